package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// Virtual machine states.
const (
	VMRunning = "running"
	VMStopped = "stopped"
)

// Flavor is the VM size.
type Flavor struct {
	CPU      int `json:"cpu"`
	MemoryGB int `json:"memory_gb"`
}

// VM is a mock cloud instance.
type VM struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Region         string            `json:"region"`
	Zone           string            `json:"zone"`
	Flavor         Flavor            `json:"flavor"`
	Image          string            `json:"image"`
	Status         string            `json:"status"`
	PrivateIP      string            `json:"private_ip"`
	PublicIP       string            `json:"public_ip,omitempty"`
	SecurityGroups []string          `json:"security_groups"`
	KeyID          string            `json:"key_id,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
	CreatedAt      string            `json:"created_at"`
}

// VMFilter narrows ListVMs. Empty fields match everything.
type VMFilter struct {
	Status string
	Region string
	Query  string // case-insensitive substring of name or IP
}

func (f VMFilter) match(vm *VM) bool {
	if f.Status != "" && vm.Status != f.Status {
		return false
	}
	if f.Region != "" && vm.Region != f.Region {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(vm.Name), q) && !strings.Contains(vm.PrivateIP, q) && !strings.Contains(vm.PublicIP, q) {
			return false
		}
	}
	return true
}

// VMSpec is the create request.
type VMSpec struct {
	Name           string            `json:"name"`
	Region         string            `json:"region"`
	Zone           string            `json:"zone"`
	Flavor         Flavor            `json:"flavor"`
	Image          string            `json:"image"`
	SecurityGroups []string          `json:"security_groups"`
	KeyID          string            `json:"key_id"`
	Tags           map[string]string `json:"tags"`
}

// ListVMs returns copies of the VMs matching f, in creation order.
func (c *Console) ListVMs(f VMFilter) []VM {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []VM{}
	for _, vm := range c.vms {
		if f.match(vm) {
			out = append(out, cloneVM(vm))
		}
	}
	return out
}

// GetVM returns a VM by ID.
func (c *Console) GetVM(id string) (VM, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vm := c.vmLocked(id)
	if vm == nil {
		return VM{}, fmt.Errorf("vm %s: %w", id, ErrNotFound)
	}
	return cloneVM(vm), nil
}

// CreateVM validates spec and adds a running VM.
func (c *Console) CreateVM(spec VMSpec) (VM, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	if spec.Name == "" {
		return VM{}, invalidf("name is required")
	}
	if spec.Region == "" {
		return VM{}, invalidf("region is required")
	}
	if spec.Flavor.CPU < 1 || spec.Flavor.MemoryGB < 1 {
		return VM{}, invalidf("flavor cpu and memory must be positive")
	}
	if spec.Image == "" {
		return VM{}, invalidf("image is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range spec.SecurityGroups {
		if c.groupLocked(g) == nil {
			return VM{}, invalidf("unknown security group %s", g)
		}
	}
	if spec.KeyID != "" && c.keyLocked(spec.KeyID) == nil {
		return VM{}, invalidf("unknown key %s", spec.KeyID)
	}
	ip, err := c.allocateIPLocked()
	if err != nil {
		return VM{}, err
	}
	vm := &VM{
		ID:             newID("vm"),
		Name:           spec.Name,
		Region:         spec.Region,
		Zone:           spec.Zone,
		Flavor:         spec.Flavor,
		Image:          spec.Image,
		Status:         VMRunning,
		PrivateIP:      ip,
		SecurityGroups: append([]string{}, spec.SecurityGroups...),
		KeyID:          spec.KeyID,
		Tags:           maps.Clone(spec.Tags),
		CreatedAt:      c.now().Format(timeLayout),
	}
	c.vms = append(c.vms, vm)
	c.log.Info("vm created", zap.String("id", vm.ID), zap.String("name", vm.Name))
	c.notify(Event{Type: "vm-created", Resource: "vm", ID: vm.ID})
	return cloneVM(vm), nil
}

// StartVM moves a stopped VM to running.
func (c *Console) StartVM(id string) (VM, error) {
	return c.transitionVM(id, "start", VMStopped, VMRunning)
}

// StopVM moves a running VM to stopped.
func (c *Console) StopVM(id string) (VM, error) {
	return c.transitionVM(id, "stop", VMRunning, VMStopped)
}

// RebootVM restarts a running VM; it stays running.
func (c *Console) RebootVM(id string) (VM, error) {
	return c.transitionVM(id, "reboot", VMRunning, VMRunning)
}

func (c *Console) transitionVM(id, action, from, to string) (VM, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vm := c.vmLocked(id)
	if vm == nil {
		return VM{}, fmt.Errorf("vm %s: %w", id, ErrNotFound)
	}
	if vm.Status != from {
		return VM{}, fmt.Errorf("cannot %s vm %s while %s: %w", action, id, vm.Status, ErrInvalidState)
	}
	vm.Status = to
	c.log.Info("vm "+action, zap.String("id", id))
	c.notify(Event{Type: "vm-" + action, Resource: "vm", ID: id, Content: to})
	return cloneVM(vm), nil
}

// DeleteVM removes a stopped VM.
func (c *Console) DeleteVM(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, vm := range c.vms {
		if vm.ID != id {
			continue
		}
		if vm.Status != VMStopped {
			return fmt.Errorf("vm %s must be stopped before deletion: %w", id, ErrInvalidState)
		}
		c.vms = slices.Delete(c.vms, i, i+1)
		c.notify(Event{Type: "vm-deleted", Resource: "vm", ID: id})
		return nil
	}
	return fmt.Errorf("vm %s: %w", id, ErrNotFound)
}

func (c *Console) vmLocked(id string) *VM {
	for _, vm := range c.vms {
		if vm.ID == id {
			return vm
		}
	}
	return nil
}

// allocateIPLocked hands out 10.0.x.y addresses in order, skipping .0 and .255.
func (c *Console) allocateIPLocked() (string, error) {
	for c.nextHost < 1<<16-1 {
		c.nextHost++
		lo := c.nextHost & 0xff
		if lo == 0 || lo == 255 {
			continue
		}
		return fmt.Sprintf("10.0.%d.%d", c.nextHost>>8, lo), nil
	}
	return "", fmt.Errorf("private address space exhausted: %w", ErrConflict)
}

func cloneVM(vm *VM) VM {
	out := *vm
	out.SecurityGroups = append([]string{}, vm.SecurityGroups...)
	out.Tags = maps.Clone(vm.Tags)
	return out
}
