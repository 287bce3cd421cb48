// Package catalog holds an application's corrective actions, decides which of
// them are safe for a given health snapshot, and runs them.
package catalog

import (
	"fmt"

	"opsagent/internal/descriptor"
	"opsagent/internal/state"
)

// Catalog is the ordered action set of one application. It is read-only after
// construction.
type Catalog struct {
	app     string
	restart string
	actions []descriptor.ActionDefinition
	index   map[string]int
}

// New builds a catalog from a descriptor, preserving definition order.
func New(d *descriptor.Descriptor) (*Catalog, error) {
	if d == nil {
		return nil, fmt.Errorf("catalog: %w: nil descriptor", descriptor.ErrInvalid)
	}
	c := &Catalog{
		app:     d.Name,
		restart: d.RestartName(),
		actions: make([]descriptor.ActionDefinition, 0, len(d.AvailableActions)),
		index:   make(map[string]int, len(d.AvailableActions)),
	}
	for _, a := range d.AvailableActions {
		if _, dup := c.index[a.Name]; dup {
			return nil, fmt.Errorf("catalog: %w: duplicate action %q", descriptor.ErrInvalid, a.Name)
		}
		if !a.RiskLevel.Valid() {
			return nil, fmt.Errorf("catalog: %w: action %q has unknown risk_level %q", descriptor.ErrInvalid, a.Name, a.RiskLevel)
		}
		c.index[a.Name] = len(c.actions)
		c.actions = append(c.actions, a)
	}
	return c, nil
}

func (c *Catalog) App() string { return c.app }

// RestartAction is the name of the restart-equivalent action.
func (c *Catalog) RestartAction() string { return c.restart }

// Names lists action names in definition order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.actions))
	for i, a := range c.actions {
		out[i] = a.Name
	}
	return out
}

// Actions returns a copy of the action definitions.
func (c *Catalog) Actions() []descriptor.ActionDefinition {
	return append([]descriptor.ActionDefinition(nil), c.actions...)
}

func (c *Catalog) Action(name string) (descriptor.ActionDefinition, bool) {
	i, ok := c.index[name]
	if !ok {
		return descriptor.ActionDefinition{}, false
	}
	return c.actions[i], true
}

func (c *Catalog) Has(name string) bool {
	_, ok := c.index[name]
	return ok
}

func (c *Catalog) Size() int { return len(c.actions) }

// Index returns the position of name in definition order, or -1.
func (c *Catalog) Index(name string) int {
	if i, ok := c.index[name]; ok {
		return i
	}
	return -1
}

// NameAt is the inverse of Index.
func (c *Catalog) NameAt(i int) (string, bool) {
	if i < 0 || i >= len(c.actions) {
		return "", false
	}
	return c.actions[i].Name, true
}

// ValidActions returns, in definition order, the actions that pass every policy
// rule for snap:
//   - high-risk actions run only in the dev environment;
//   - the restart-equivalent action is pointless on a healthy service.
func (c *Catalog) ValidActions(snap state.Snapshot) []string {
	out := make([]string, 0, len(c.actions))
	for _, a := range c.actions {
		if c.allowed(a, snap) {
			out = append(out, a.Name)
		}
	}
	return out
}

func (c *Catalog) allowed(a descriptor.ActionDefinition, snap state.Snapshot) bool {
	if a.RiskLevel == descriptor.RiskHigh && snap.Env != state.DefaultEnv {
		return false
	}
	if a.Name == c.restart && snap.Status == state.StatusHealthy {
		return false
	}
	return true
}
