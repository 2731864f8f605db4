package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleNormalize(t *testing.T) {
	r := Rule{Direction: " Ingress ", Protocol: "TCP", Ports: "8000-8080", CIDR: "192.168.7.9/16"}
	require.NoError(t, r.normalize())
	assert.Equal(t, "ingress", r.Direction)
	assert.Equal(t, "tcp", r.Protocol)
	assert.Equal(t, "allow", r.Action)
	assert.Equal(t, 100, r.Priority)
	assert.Equal(t, "192.168.0.0/16", r.CIDR, "host bits are masked")
}

func TestRuleNormalize_Invalid(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{"direction", Rule{Direction: "sideways", Protocol: "all", CIDR: "0.0.0.0/0"}},
		{"action", Rule{Direction: "ingress", Protocol: "all", CIDR: "0.0.0.0/0", Action: "maybe"}},
		{"priority", Rule{Direction: "ingress", Protocol: "all", CIDR: "0.0.0.0/0", Priority: 1001}},
		{"protocol", Rule{Direction: "ingress", Protocol: "sctp", CIDR: "0.0.0.0/0"}},
		{"tcp without ports", Rule{Direction: "ingress", Protocol: "tcp", CIDR: "0.0.0.0/0"}},
		{"icmp with ports", Rule{Direction: "ingress", Protocol: "icmp", Ports: "1", CIDR: "0.0.0.0/0"}},
		{"reversed range", Rule{Direction: "ingress", Protocol: "udp", Ports: "90-80", CIDR: "0.0.0.0/0"}},
		{"port too high", Rule{Direction: "ingress", Protocol: "udp", Ports: "70000", CIDR: "0.0.0.0/0"}},
		{"cidr", Rule{Direction: "ingress", Protocol: "all", CIDR: "10.0.0.0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.rule
			assert.ErrorIs(t, r.normalize(), ErrInvalid)
		})
	}
}

func TestParsePortRange(t *testing.T) {
	lo, hi, err := parsePortRange("22")
	require.NoError(t, err)
	assert.Equal(t, [2]int{22, 22}, [2]int{lo, hi})

	lo, hi, err = parsePortRange("7000-7100")
	require.NoError(t, err)
	assert.Equal(t, [2]int{7000, 7100}, [2]int{lo, hi})

	_, _, err = parsePortRange("abc")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSortRules(t *testing.T) {
	rules := []Rule{
		{ID: "e1", Direction: "egress", Priority: 1},
		{ID: "i2", Direction: "ingress", Priority: 50},
		{ID: "i1", Direction: "ingress", Priority: 10},
	}
	sortRules(rules)
	var ids []string
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"i1", "i2", "e1"}, ids)
}

func TestCreateGroup(t *testing.T) {
	c := newSeededConsole(t)
	g, err := c.CreateGroup("db", "postgres", []Rule{
		{Direction: "egress", Protocol: "all", CIDR: "0.0.0.0/0"},
		{Direction: "ingress", Protocol: "tcp", Ports: "5432", CIDR: "10.0.0.0/16", Priority: 10},
	})
	require.NoError(t, err)
	require.Len(t, g.Rules, 2)
	assert.Equal(t, "ingress", g.Rules[0].Direction)
	assert.NotEmpty(t, g.Rules[0].ID)

	_, err = c.CreateGroup("db", "", nil)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = c.CreateGroup("", "", nil)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = c.CreateGroup("bad", "", []Rule{{Direction: "ingress", Protocol: "tcp", CIDR: "0.0.0.0/0"}})
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Len(t, c.ListGroups(), 4)
}

func TestDeleteGroup(t *testing.T) {
	c := newSeededConsole(t)
	assert.ErrorIs(t, c.DeleteGroup("sg-web"), ErrConflict, "attached to web VMs")
	assert.ErrorIs(t, c.DeleteGroup("sg-missing"), ErrNotFound)

	g, err := c.CreateGroup("scratch", "", nil)
	require.NoError(t, err)
	require.NoError(t, c.DeleteGroup(g.ID))
	_, err = c.GetGroup(g.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRuleCRUD(t *testing.T) {
	c := newSeededConsole(t)

	r, err := c.AddRule("sg-web", Rule{Direction: "ingress", Protocol: "tcp", Ports: "8443", CIDR: "0.0.0.0/0", Priority: 5})
	require.NoError(t, err)
	g, err := c.GetGroup("sg-web")
	require.NoError(t, err)
	require.Len(t, g.Rules, 3)
	assert.Equal(t, r.ID, g.Rules[0].ID, "priority 5 sorts first")

	updated, err := c.UpdateRule("sg-web", r.ID, Rule{Direction: "ingress", Protocol: "tcp", Ports: "8443", CIDR: "0.0.0.0/0", Priority: 500, Action: "deny"})
	require.NoError(t, err)
	assert.Equal(t, r.ID, updated.ID)
	g, _ = c.GetGroup("sg-web")
	assert.Equal(t, r.ID, g.Rules[2].ID)
	assert.Equal(t, "deny", g.Rules[2].Action)

	_, err = c.UpdateRule("sg-web", "rule-missing", updated)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.AddRule("sg-missing", updated)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.DeleteRule("sg-web", r.ID))
	assert.ErrorIs(t, c.DeleteRule("sg-web", r.ID), ErrNotFound)
	g, _ = c.GetGroup("sg-web")
	assert.Len(t, g.Rules, 2)
}

func TestGetGroup_ReturnsCopy(t *testing.T) {
	c := newSeededConsole(t)
	g, err := c.GetGroup("sg-default")
	require.NoError(t, err)
	g.Rules[0].Ports = "1"
	g, _ = c.GetGroup("sg-default")
	assert.Equal(t, "22", g.Rules[0].Ports)
}
