package main

import (
	"cmp"
	"fmt"
	"net/netip"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Rule is a single security group entry.
type Rule struct {
	ID          string `json:"id"`
	Direction   string `json:"direction"` // "ingress" or "egress"
	Protocol    string `json:"protocol"`  // "tcp", "udp", "icmp", "all"
	Ports       string `json:"ports"`     // "22", "80-443"; empty for icmp/all
	CIDR        string `json:"cidr"`
	Action      string `json:"action"` // "allow" or "deny"
	Priority    int    `json:"priority"`
	Description string `json:"description,omitempty"`
}

// SecurityGroup is a named, ordered rule set.
type SecurityGroup struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Rules       []Rule `json:"rules"`
}

// normalize fills defaults and validates the rule in place.
func (r *Rule) normalize() error {
	r.Direction = strings.ToLower(strings.TrimSpace(r.Direction))
	r.Protocol = strings.ToLower(strings.TrimSpace(r.Protocol))
	r.Action = strings.ToLower(strings.TrimSpace(r.Action))
	r.Ports = strings.TrimSpace(r.Ports)
	if r.Action == "" {
		r.Action = "allow"
	}
	if r.Priority == 0 {
		r.Priority = 100
	}

	switch r.Direction {
	case "ingress", "egress":
	default:
		return invalidf("direction must be ingress or egress")
	}
	switch r.Action {
	case "allow", "deny":
	default:
		return invalidf("action must be allow or deny")
	}
	if r.Priority < 1 || r.Priority > 1000 {
		return invalidf("priority must be between 1 and 1000")
	}
	switch r.Protocol {
	case "tcp", "udp":
		if _, _, err := parsePortRange(r.Ports); err != nil {
			return err
		}
	case "icmp", "all":
		if r.Ports != "" {
			return invalidf("ports are not allowed for protocol %s", r.Protocol)
		}
	default:
		return invalidf("unknown protocol %q", r.Protocol)
	}
	prefix, err := netip.ParsePrefix(strings.TrimSpace(r.CIDR))
	if err != nil {
		return invalidf("bad cidr %q", r.CIDR)
	}
	r.CIDR = prefix.Masked().String()
	return nil
}

// parsePortRange accepts "N" or "LO-HI" within 1..65535.
func parsePortRange(s string) (lo, hi int, err error) {
	if s == "" {
		return 0, 0, invalidf("ports are required")
	}
	a, b, isRange := strings.Cut(s, "-")
	lo, err = strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return 0, 0, invalidf("bad port %q", a)
	}
	hi = lo
	if isRange {
		hi, err = strconv.Atoi(strings.TrimSpace(b))
		if err != nil {
			return 0, 0, invalidf("bad port %q", b)
		}
	}
	if lo < 1 || hi > 65535 || lo > hi {
		return 0, 0, invalidf("port range %q out of bounds", s)
	}
	return lo, hi, nil
}

func sortRules(rules []Rule) {
	slices.SortStableFunc(rules, func(a, b Rule) int {
		if a.Direction != b.Direction {
			// ingress before egress
			return cmp.Compare(b.Direction, a.Direction)
		}
		return cmp.Compare(a.Priority, b.Priority)
	})
}

// ListGroups returns all security groups.
func (c *Console) ListGroups() []SecurityGroup {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SecurityGroup, 0, len(c.groups))
	for _, g := range c.groups {
		out = append(out, cloneGroup(g))
	}
	return out
}

// GetGroup returns a group by ID.
func (c *Console) GetGroup(id string) (SecurityGroup, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g := c.groupLocked(id)
	if g == nil {
		return SecurityGroup{}, fmt.Errorf("security group %s: %w", id, ErrNotFound)
	}
	return cloneGroup(g), nil
}

// CreateGroup adds a group with optional initial rules.
func (c *Console) CreateGroup(name, description string, rules []Rule) (SecurityGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return SecurityGroup{}, invalidf("name is required")
	}
	g := &SecurityGroup{ID: newID("sg"), Name: name, Description: description, Rules: []Rule{}}
	for _, r := range rules {
		if err := r.normalize(); err != nil {
			return SecurityGroup{}, err
		}
		r.ID = newID("rule")
		g.Rules = append(g.Rules, r)
	}
	sortRules(g.Rules)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.groups {
		if existing.Name == name {
			return SecurityGroup{}, fmt.Errorf("security group %q already exists: %w", name, ErrConflict)
		}
	}
	c.groups = append(c.groups, g)
	c.log.Info("security group created", zap.String("id", g.ID), zap.String("name", name))
	c.notify(Event{Type: "group-created", Resource: "security-group", ID: g.ID})
	return cloneGroup(g), nil
}

// DeleteGroup removes a group that no VM references.
func (c *Console) DeleteGroup(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := slices.IndexFunc(c.groups, func(g *SecurityGroup) bool { return g.ID == id })
	if idx < 0 {
		return fmt.Errorf("security group %s: %w", id, ErrNotFound)
	}
	for _, vm := range c.vms {
		if slices.Contains(vm.SecurityGroups, id) {
			return fmt.Errorf("security group %s is attached to vm %s: %w", id, vm.Name, ErrConflict)
		}
	}
	c.groups = slices.Delete(c.groups, idx, idx+1)
	c.notify(Event{Type: "group-deleted", Resource: "security-group", ID: id})
	return nil
}

// AddRule validates r and appends it to the group.
func (c *Console) AddRule(groupID string, r Rule) (Rule, error) {
	if err := r.normalize(); err != nil {
		return Rule{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.groupLocked(groupID)
	if g == nil {
		return Rule{}, fmt.Errorf("security group %s: %w", groupID, ErrNotFound)
	}
	r.ID = newID("rule")
	g.Rules = append(g.Rules, r)
	sortRules(g.Rules)
	c.notify(Event{Type: "rule-added", Resource: "security-group", ID: groupID, Content: r.ID})
	return r, nil
}

// UpdateRule replaces the rule with the given ID.
func (c *Console) UpdateRule(groupID, ruleID string, r Rule) (Rule, error) {
	if err := r.normalize(); err != nil {
		return Rule{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.groupLocked(groupID)
	if g == nil {
		return Rule{}, fmt.Errorf("security group %s: %w", groupID, ErrNotFound)
	}
	for i := range g.Rules {
		if g.Rules[i].ID == ruleID {
			r.ID = ruleID
			g.Rules[i] = r
			sortRules(g.Rules)
			c.notify(Event{Type: "rule-updated", Resource: "security-group", ID: groupID, Content: ruleID})
			return r, nil
		}
	}
	return Rule{}, fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
}

// DeleteRule removes a rule from the group.
func (c *Console) DeleteRule(groupID, ruleID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.groupLocked(groupID)
	if g == nil {
		return fmt.Errorf("security group %s: %w", groupID, ErrNotFound)
	}
	for i := range g.Rules {
		if g.Rules[i].ID == ruleID {
			g.Rules = slices.Delete(g.Rules, i, i+1)
			c.notify(Event{Type: "rule-deleted", Resource: "security-group", ID: groupID, Content: ruleID})
			return nil
		}
	}
	return fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
}

func (c *Console) groupLocked(id string) *SecurityGroup {
	for _, g := range c.groups {
		if g.ID == id {
			return g
		}
	}
	return nil
}

func cloneGroup(g *SecurityGroup) SecurityGroup {
	out := *g
	out.Rules = append([]Rule{}, g.Rules...)
	return out
}
