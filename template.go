package main

import (
	"fmt"
	"slices"
	"strings"
	"text/template"
	"text/template/parse"

	"go.uber.org/zap"
)

// CommandTemplate is a reusable shell snippet with {{.param}} placeholders.
type CommandTemplate struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description,omitempty"`
	Script      string   `json:"script"`
	Params      []string `json:"params"`
	UpdatedAt   string   `json:"updated_at"`
}

// TemplateInput is the create/update request.
type TemplateInput struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Script      string `json:"script"`
}

// compileScript parses the script and returns its parameter names in order of
// first use.
func compileScript(name, script string) (*template.Template, []string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(script)
	if err != nil {
		return nil, nil, invalidf("script: %v", err)
	}
	params := []string{}
	if tmpl.Tree != nil {
		collectFields(tmpl.Tree.Root, &params)
	}
	return tmpl, params, nil
}

func collectFields(node parse.Node, params *[]string) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			collectFields(child, params)
		}
	case *parse.ActionNode:
		collectFields(n.Pipe, params)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, cmd := range n.Cmds {
			for _, arg := range cmd.Args {
				collectFields(arg, params)
			}
		}
	case *parse.FieldNode:
		if len(n.Ident) > 0 && !slices.Contains(*params, n.Ident[0]) {
			*params = append(*params, n.Ident[0])
		}
	case *parse.IfNode:
		collectFields(n.Pipe, params)
		collectFields(n.List, params)
		collectFields(n.ElseList, params)
	case *parse.RangeNode:
		collectFields(n.Pipe, params)
		collectFields(n.List, params)
		collectFields(n.ElseList, params)
	case *parse.WithNode:
		collectFields(n.Pipe, params)
		collectFields(n.List, params)
		collectFields(n.ElseList, params)
	case *parse.TemplateNode:
		collectFields(n.Pipe, params)
	case *parse.ChainNode:
		collectFields(n.Node, params)
	}
}

func (in TemplateInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return invalidf("name is required")
	}
	if strings.TrimSpace(in.Script) == "" {
		return invalidf("script is required")
	}
	return nil
}

// ListTemplates returns templates, optionally restricted to one category.
func (c *Console) ListTemplates(category string) []CommandTemplate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []CommandTemplate{}
	for _, t := range c.templates {
		if category == "" || t.Category == category {
			out = append(out, cloneTemplate(t))
		}
	}
	return out
}

// GetTemplate returns a template by ID.
func (c *Console) GetTemplate(id string) (CommandTemplate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t := c.templateLocked(id)
	if t == nil {
		return CommandTemplate{}, fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	return cloneTemplate(t), nil
}

// CreateTemplate validates and stores a template.
func (c *Console) CreateTemplate(in TemplateInput) (CommandTemplate, error) {
	if err := in.validate(); err != nil {
		return CommandTemplate{}, err
	}
	_, params, err := compileScript(in.Name, in.Script)
	if err != nil {
		return CommandTemplate{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &CommandTemplate{
		ID:          newID("tpl"),
		Name:        strings.TrimSpace(in.Name),
		Category:    in.Category,
		Description: in.Description,
		Script:      in.Script,
		Params:      params,
		UpdatedAt:   c.now().Format(timeLayout),
	}
	c.templates = append(c.templates, t)
	c.log.Info("template created", zap.String("id", t.ID), zap.Strings("params", params))
	c.notify(Event{Type: "template-created", Resource: "template", ID: t.ID})
	return cloneTemplate(t), nil
}

// UpdateTemplate replaces a template's fields.
func (c *Console) UpdateTemplate(id string, in TemplateInput) (CommandTemplate, error) {
	if err := in.validate(); err != nil {
		return CommandTemplate{}, err
	}
	_, params, err := compileScript(in.Name, in.Script)
	if err != nil {
		return CommandTemplate{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.templateLocked(id)
	if t == nil {
		return CommandTemplate{}, fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	t.Name = strings.TrimSpace(in.Name)
	t.Category = in.Category
	t.Description = in.Description
	t.Script = in.Script
	t.Params = params
	t.UpdatedAt = c.now().Format(timeLayout)
	c.notify(Event{Type: "template-updated", Resource: "template", ID: id})
	return cloneTemplate(t), nil
}

// DeleteTemplate removes a template.
func (c *Console) DeleteTemplate(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := slices.IndexFunc(c.templates, func(t *CommandTemplate) bool { return t.ID == id })
	if idx < 0 {
		return fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	c.templates = slices.Delete(c.templates, idx, idx+1)
	c.notify(Event{Type: "template-deleted", Resource: "template", ID: id})
	return nil
}

// RenderTemplate fills in the template's parameters. Every parameter must
// have a value.
func (c *Console) RenderTemplate(id string, values map[string]string) (string, error) {
	t, err := c.GetTemplate(id)
	if err != nil {
		return "", err
	}
	for _, p := range t.Params {
		if _, ok := values[p]; !ok {
			return "", invalidf("missing value for %s", p)
		}
	}
	tmpl, _, err := compileScript(t.Name, t.Script)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, values); err != nil {
		return "", invalidf("rendering: %v", err)
	}
	return b.String(), nil
}

func (c *Console) templateLocked(id string) *CommandTemplate {
	for _, t := range c.templates {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func cloneTemplate(t *CommandTemplate) CommandTemplate {
	out := *t
	out.Params = append([]string{}, t.Params...)
	return out
}
