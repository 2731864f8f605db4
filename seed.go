package main

import (
	"crypto/ed25519"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// Seed fills the console with the demo fleet the frontend ships against.
func (c *Console) Seed() {
	now := c.now()
	c.mu.Lock()
	c.envs = []string{"dev", "staging", "prod"}

	c.groups = []*SecurityGroup{
		{ID: "sg-default", Name: "default", Description: "SSH from the office", Rules: []Rule{
			{ID: "rule-ssh", Direction: "ingress", Protocol: "tcp", Ports: "22", CIDR: "203.0.113.0/24", Action: "allow", Priority: 10},
			{ID: "rule-out", Direction: "egress", Protocol: "all", CIDR: "0.0.0.0/0", Action: "allow", Priority: 100},
		}},
		{ID: "sg-web", Name: "web", Description: "Public HTTP(S)", Rules: []Rule{
			{ID: "rule-http", Direction: "ingress", Protocol: "tcp", Ports: "80", CIDR: "0.0.0.0/0", Action: "allow", Priority: 20},
			{ID: "rule-https", Direction: "ingress", Protocol: "tcp", Ports: "443", CIDR: "0.0.0.0/0", Action: "allow", Priority: 20},
		}},
		{ID: "sg-game", Name: "game", Description: "Game server UDP", Rules: []Rule{
			{ID: "rule-game", Direction: "ingress", Protocol: "udp", Ports: "7000-7100", CIDR: "0.0.0.0/0", Action: "allow", Priority: 30},
		}},
	}

	ops := demoKey("fleetdesk-demo-ops-key-seed-0001")
	c.keys = []*SSHKey{{
		ID:          "key-ops",
		Name:        "ops",
		Type:        ops.Type(),
		Fingerprint: ssh.FingerprintSHA256(ops),
		PublicKey:   strings.TrimSpace(string(ssh.MarshalAuthorizedKey(ops))),
		Comment:     "ops@fleetdesk",
		CreatedAt:   now.Add(-90 * 24 * time.Hour).Format(timeLayout),
	}}

	vm := func(name, region, zone, status, public string, cpu, mem int, groups ...string) *VM {
		ip, _ := c.allocateIPLocked()
		return &VM{
			ID: "vm-" + name, Name: name, Region: region, Zone: zone,
			Flavor: Flavor{CPU: cpu, MemoryGB: mem}, Image: "ubuntu-24.04",
			Status: status, PrivateIP: ip, PublicIP: public,
			SecurityGroups: groups, KeyID: "key-ops",
			CreatedAt: now.Add(-30 * 24 * time.Hour).Format(timeLayout),
		}
	}
	c.vms = []*VM{
		vm("web-01", "eu-west", "eu-west-1a", VMRunning, "198.51.100.10", 2, 4, "sg-default", "sg-web"),
		vm("web-02", "eu-west", "eu-west-1b", VMRunning, "198.51.100.11", 2, 4, "sg-default", "sg-web"),
		vm("game-01", "ap-east", "ap-east-1a", VMRunning, "198.51.100.20", 8, 32, "sg-default", "sg-game"),
		vm("batch-01", "eu-west", "eu-west-1a", VMStopped, "", 4, 16, "sg-default"),
	}

	c.templates = []*CommandTemplate{
		{ID: "tpl-restart", Name: "Restart service", Category: "ops",
			Script: "sudo systemctl restart {{.service}}", Params: []string{"service"}},
		{ID: "tpl-logs", Name: "Tail logs", Category: "ops",
			Script: "journalctl -u {{.service}} -n {{.lines}} --no-pager", Params: []string{"service", "lines"}},
		{ID: "tpl-announce", Name: "Broadcast announcement", Category: "game",
			Script: "gamectl announce --env {{.env}} --message {{printf \"%q\" .message}}", Params: []string{"env", "message"}},
	}
	for _, t := range c.templates {
		t.UpdatedAt = now.Format(timeLayout)
	}

	for _, env := range c.envs {
		c.gifts = append(c.gifts,
			GiftItem{ID: "gift-" + env + "-rose", Env: env, Name: "Rose", Category: "flower", Rarity: "common", Price: 10, Stock: 9999},
			GiftItem{ID: "gift-" + env + "-crown", Env: env, Name: "Golden Crown", Category: "wearable", Rarity: "legendary", Price: 5000, Stock: 50},
		)
	}
	c.gifts = append(c.gifts,
		GiftItem{ID: "gift-dev-dragon", Env: "dev", Name: "Dragon Egg", Category: "pet", Rarity: "epic", Price: 1200, Stock: 200},
	)

	day := 24 * time.Hour
	c.events = []GameEvent{
		{ID: "evt-prod-spring", Env: "prod", Name: "Spring Festival", StartsAt: now.Add(-2 * day), EndsAt: now.Add(5 * day), Rewards: []string{"Rose", "Golden Crown"}},
		{ID: "evt-prod-launch", Env: "prod", Name: "Launch Week", StartsAt: now.Add(-60 * day), EndsAt: now.Add(-53 * day), Rewards: []string{"Rose"}},
		{ID: "evt-dev-dragon", Env: "dev", Name: "Dragon Hunt", StartsAt: now.Add(3 * day), EndsAt: now.Add(10 * day), Rewards: []string{"Dragon Egg"}},
	}
	c.mu.Unlock()
}

// seedManifests are published when the store starts empty.
var seedManifests = []struct {
	name, content, message string
}{
	{"game-server", "apiVersion: apps/v1\nkind: Deployment\nmetadata:\n  name: game-server\nspec:\n  replicas: 2\n  template:\n    spec:\n      containers:\n        - name: game\n          image: registry.local/game:1.4.0\n", "initial"},
	{"game-server", "apiVersion: apps/v1\nkind: Deployment\nmetadata:\n  name: game-server\nspec:\n  replicas: 4\n  template:\n    spec:\n      containers:\n        - name: game\n          image: registry.local/game:1.5.0\n          env:\n            - name: EVENT_MODE\n              value: spring\n", "scale up for spring festival"},
	{"gateway", "apiVersion: v1\nkind: Service\nmetadata:\n  name: gateway\nspec:\n  type: LoadBalancer\n  ports:\n    - port: 443\n", "initial"},
}

// demoKey derives a fixed ed25519 public key from a 32-byte seed.
func demoKey(seed string) ssh.PublicKey {
	priv := ed25519.NewKeyFromSeed([]byte(seed))
	pub, err := ssh.NewPublicKey(priv.Public())
	if err != nil {
		panic(err)
	}
	return pub
}
