package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"opsagent/internal/descriptor"
	"opsagent/internal/logger"
)

// PolicyDocument is the checkpoint format: descriptor, value table and
// hyperparameters.
type PolicyDocument struct {
	AppSpec         *descriptor.Descriptor `json:"app_spec"`
	QTable          Table                  `json:"q_table"`
	Hyperparameters Hyperparameters        `json:"hyperparameters"`
}

// policyFile is the tolerant decode shape; absent hyperparameters fall back
// to defaults individually. The embedded descriptor is kept raw so it goes
// through the same schema check as a descriptor file.
type policyFile struct {
	AppSpec         json.RawMessage `json:"app_spec"`
	QTable          Table           `json:"q_table"`
	Hyperparameters struct {
		LearningRate   *float64 `json:"learning_rate"`
		DiscountFactor *float64 `json:"discount_factor"`
		Epsilon        *float64 `json:"epsilon"`
	} `json:"hyperparameters"`
}

// Policy snapshots the agent's learned state.
func (a *Agent) Policy() PolicyDocument {
	a.mu.Lock()
	defer a.mu.Unlock()
	return PolicyDocument{
		AppSpec:         a.desc,
		QTable:          a.table.Clone(),
		Hyperparameters: a.hp,
	}
}

// SavePolicy overwrites path with the agent's policy document.
func (a *Agent) SavePolicy(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("save policy: path is empty")
	}
	data, err := json.MarshalIndent(a.Policy(), "", "  ")
	if err != nil {
		return fmt.Errorf("save policy: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("save policy: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save policy: %w", err)
	}
	return nil
}

// ReadPolicy decodes a policy file without binding it to an agent.
func ReadPolicy(path string) (PolicyDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PolicyDocument{}, fmt.Errorf("read policy %s: %w", path, err)
	}
	var raw policyFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return PolicyDocument{}, fmt.Errorf("decode policy %s: %w", path, err)
	}
	hp := DefaultHyperparameters()
	if v := raw.Hyperparameters.LearningRate; v != nil {
		hp.LearningRate = *v
	}
	if v := raw.Hyperparameters.DiscountFactor; v != nil {
		hp.DiscountFactor = *v
	}
	if v := raw.Hyperparameters.Epsilon; v != nil {
		hp.Epsilon = *v
	}
	if err := hp.Validate(); err != nil {
		return PolicyDocument{}, fmt.Errorf("policy %s: %w", path, err)
	}
	var spec *descriptor.Descriptor
	if trimmed := bytes.TrimSpace(raw.AppSpec); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		spec, err = descriptor.Parse(trimmed, descriptor.FormatJSON)
		if err != nil {
			return PolicyDocument{}, fmt.Errorf("policy %s: app_spec: %w", path, err)
		}
	}
	if raw.QTable == nil {
		raw.QTable = make(Table)
	}
	// A null row decodes to a nil map; give it storage so updates can write.
	for key, row := range raw.QTable {
		if row == nil {
			raw.QTable[key] = make(map[string]float64)
		}
	}
	return PolicyDocument{AppSpec: spec, QTable: raw.QTable, Hyperparameters: hp}, nil
}

// LoadPolicy replaces the agent's table and hyperparameters with the ones in
// path. Rows naming actions the catalog does not know are rejected.
func (a *Agent) LoadPolicy(path string) error {
	doc, err := ReadPolicy(path)
	if err != nil {
		return err
	}
	for key, row := range doc.QTable {
		for action := range row {
			if !a.catalog.Has(action) {
				return fmt.Errorf("policy %s: state %q names unknown action %q", path, key, action)
			}
		}
	}
	if doc.AppSpec != nil && doc.AppSpec.Name != a.desc.Name {
		logger.Warnf("agent: policy %s was saved for app=%s, loading into app=%s", path, doc.AppSpec.Name, a.desc.Name)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.table = doc.QTable
	a.hp = doc.Hyperparameters
	return nil
}

// NewFromPolicy rebuilds an agent from the descriptor embedded in a policy file
// and restores its table.
func NewFromPolicy(path string, opts ...Option) (*Agent, error) {
	doc, err := ReadPolicy(path)
	if err != nil {
		return nil, err
	}
	if doc.AppSpec == nil {
		return nil, fmt.Errorf("policy %s: %w: app_spec missing", path, descriptor.ErrInvalid)
	}
	a, err := New(doc.AppSpec, opts...)
	if err != nil {
		return nil, err
	}
	if err := a.LoadPolicy(path); err != nil {
		return nil, err
	}
	return a, nil
}
