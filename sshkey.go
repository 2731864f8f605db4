package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// SSHKey is a stored public key. Private halves are never kept.
type SSHKey struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Fingerprint string `json:"fingerprint"`
	PublicKey   string `json:"public_key"`
	Comment     string `json:"comment,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// GeneratedKey is returned once from GenerateKey.
type GeneratedKey struct {
	SSHKey
	PrivateKey string `json:"private_key"`
}

// ListKeys returns all stored keys.
func (c *Console) ListKeys() []SSHKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SSHKey, 0, len(c.keys))
	for _, k := range c.keys {
		out = append(out, *k)
	}
	return out
}

// ImportKey stores a key given as an authorized_keys line.
func (c *Console) ImportKey(name, authorizedKey string) (SSHKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return SSHKey{}, invalidf("name is required")
	}
	pub, comment, _, _, err := ssh.ParseAuthorizedKey([]byte(authorizedKey))
	if err != nil {
		return SSHKey{}, invalidf("parsing public key: %v", err)
	}
	return c.addKey(name, pub, comment)
}

// GenerateKey creates an ed25519 key pair, stores the public half and
// returns the OpenSSH-encoded private key.
func (c *Console) GenerateKey(name string) (GeneratedKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return GeneratedKey{}, invalidf("name is required")
	}
	pubRaw, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return GeneratedKey{}, fmt.Errorf("generating key: %w", err)
	}
	pub, err := ssh.NewPublicKey(pubRaw)
	if err != nil {
		return GeneratedKey{}, fmt.Errorf("encoding public key: %w", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, name)
	if err != nil {
		return GeneratedKey{}, fmt.Errorf("encoding private key: %w", err)
	}
	k, err := c.addKey(name, pub, name)
	if err != nil {
		return GeneratedKey{}, err
	}
	return GeneratedKey{SSHKey: k, PrivateKey: string(pem.EncodeToMemory(block))}, nil
}

func (c *Console) addKey(name string, pub ssh.PublicKey, comment string) (SSHKey, error) {
	k := &SSHKey{
		ID:          newID("key"),
		Name:        name,
		Type:        pub.Type(),
		Fingerprint: ssh.FingerprintSHA256(pub),
		PublicKey:   strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub))),
		Comment:     comment,
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.keys {
		if existing.Fingerprint == k.Fingerprint {
			return SSHKey{}, fmt.Errorf("key %s already stored as %q: %w", k.Fingerprint, existing.Name, ErrConflict)
		}
	}
	k.CreatedAt = c.now().Format(timeLayout)
	c.keys = append(c.keys, k)
	c.log.Info("ssh key added", zap.String("id", k.ID), zap.String("fingerprint", k.Fingerprint))
	c.notify(Event{Type: "key-added", Resource: "key", ID: k.ID})
	return *k, nil
}

// DeleteKey removes a key that no VM references.
func (c *Console) DeleteKey(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := slices.IndexFunc(c.keys, func(k *SSHKey) bool { return k.ID == id })
	if idx < 0 {
		return fmt.Errorf("key %s: %w", id, ErrNotFound)
	}
	for _, vm := range c.vms {
		if vm.KeyID == id {
			return fmt.Errorf("key %s is used by vm %s: %w", id, vm.Name, ErrConflict)
		}
	}
	c.keys = slices.Delete(c.keys, idx, idx+1)
	c.notify(Event{Type: "key-deleted", Resource: "key", ID: id})
	return nil
}

func (c *Console) keyLocked(id string) *SSHKey {
	for _, k := range c.keys {
		if k.ID == id {
			return k
		}
	}
	return nil
}
