// Package descriptor models the application descriptor: the declarative document
// naming an application's error patterns and its corrective actions.
package descriptor

import (
	"encoding/json"
	"strings"
)

// DefaultRestartAction is the action name treated as "restart" when a descriptor
// does not designate one.
const DefaultRestartAction = "restart_service"

// Severity ranks a matched error pattern.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityNone:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank orders severities none < low < medium < high < critical. Unknown values rank as none.
func (s Severity) Rank() int {
	return severityRank[s]
}

func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Max returns the higher-ranked of s and other; s wins ties.
func (s Severity) Max(other Severity) Severity {
	if other.Rank() > s.Rank() {
		return other
	}
	return s
}

// RiskLevel gates where an action may run.
type RiskLevel string

const (
	RiskSafe   RiskLevel = "safe"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (r RiskLevel) Valid() bool {
	switch r {
	case RiskSafe, RiskMedium, RiskHigh:
		return true
	default:
		return false
	}
}

type ErrorPattern struct {
	Pattern     string   `json:"pattern" yaml:"pattern"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

type ActionDefinition struct {
	Name      string    `json:"name" yaml:"name"`
	Command   string    `json:"command" yaml:"command"`
	RiskLevel RiskLevel `json:"risk_level" yaml:"risk_level"`
}

type Environment struct {
	Name       string `json:"name" yaml:"name"`
	URL        string `json:"url,omitempty" yaml:"url,omitempty"`
	ConfigFile string `json:"config_file,omitempty" yaml:"config_file,omitempty"`
}

// Descriptor is loaded once and never mutated. Fields the agent does not use are
// carried for reporting; keys it does not know about survive re-serialization
// because the source document is kept alongside the decoded fields.
type Descriptor struct {
	Name             string             `json:"name" yaml:"name"`
	Type             string             `json:"type,omitempty" yaml:"type,omitempty"`
	Version          string             `json:"version,omitempty" yaml:"version,omitempty"`
	BuildCommand     string             `json:"build_command,omitempty" yaml:"build_command,omitempty"`
	StartCommand     string             `json:"start_command,omitempty" yaml:"start_command,omitempty"`
	InstallCommand   string             `json:"install_command,omitempty" yaml:"install_command,omitempty"`
	HealthEndpoint   string             `json:"health_endpoint,omitempty" yaml:"health_endpoint,omitempty"`
	LogLocation      string             `json:"log_location,omitempty" yaml:"log_location,omitempty"`
	Port             int                `json:"port" yaml:"port"`
	Envs             []Environment      `json:"envs,omitempty" yaml:"envs,omitempty"`
	ErrorPatterns    []ErrorPattern     `json:"error_patterns" yaml:"error_patterns"`
	AvailableActions []ActionDefinition `json:"available_actions" yaml:"available_actions"`
	RestartAction    string             `json:"restart_action,omitempty" yaml:"restart_action,omitempty"`

	raw json.RawMessage
}

// plainDescriptor drops the custom (un)marshalers.
type plainDescriptor Descriptor

func (d Descriptor) MarshalJSON() ([]byte, error) {
	if len(d.raw) > 0 {
		return d.raw, nil
	}
	return json.Marshal(plainDescriptor(d))
}

func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var p plainDescriptor
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*d = Descriptor(p)
	d.raw = append(json.RawMessage(nil), data...)
	return nil
}

// RestartName returns the designated restart-equivalent action name.
func (d *Descriptor) RestartName() string {
	if d == nil {
		return DefaultRestartAction
	}
	if name := strings.TrimSpace(d.RestartAction); name != "" {
		return name
	}
	return DefaultRestartAction
}

// Action looks up an action definition by name.
func (d *Descriptor) Action(name string) (ActionDefinition, bool) {
	if d == nil {
		return ActionDefinition{}, false
	}
	for _, a := range d.AvailableActions {
		if a.Name == name {
			return a, true
		}
	}
	return ActionDefinition{}, false
}

// ActionNames lists action names in definition order.
func (d *Descriptor) ActionNames() []string {
	if d == nil {
		return nil
	}
	out := make([]string, 0, len(d.AvailableActions))
	for _, a := range d.AvailableActions {
		out = append(out, a.Name)
	}
	return out
}
