package descriptor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks a descriptor that is missing required fields or carries values
// the agent cannot use.
var ErrInvalid = errors.New("invalid application descriptor")

const schemaURL = "descriptor.schema.json"

const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "port", "error_patterns", "available_actions"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "port": {"type": "integer", "minimum": 0, "maximum": 65535},
    "restart_action": {"type": "string"},
    "error_patterns": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["pattern", "severity"],
        "properties": {
          "pattern": {"type": "string", "minLength": 1},
          "severity": {"enum": ["none", "low", "medium", "high", "critical"]},
          "description": {"type": "string"}
        }
      }
    },
    "available_actions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "command", "risk_level"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "command": {"type": "string"},
          "risk_level": {"enum": ["safe", "medium", "high"]}
        }
      }
    },
    "envs": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {"name": {"type": "string"}}
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	schemaCompiled *jsonschema.Schema
	schemaErr      error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schemaCompiled, schemaErr = compiler.Compile(schemaURL)
	})
	return schemaCompiled, schemaErr
}

// Format selects the decoder used by Parse.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks YAML for .yaml/.yml files and JSON otherwise.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads and validates the descriptor at path.
func Load(path string) (*Descriptor, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: path is empty", ErrInvalid)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor %s: %w", path, err)
	}
	desc, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("load descriptor %s: %w", path, err)
	}
	return desc, nil
}

// Parse decodes a descriptor document, validates it against the descriptor
// schema and then checks the rules a schema cannot express.
func Parse(data []byte, format Format) (*Descriptor, error) {
	var doc any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: yaml: %v", ErrInvalid, err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: json: %v", ErrInvalid, err)
		}
	}
	// Round-trip through encoding/json so the schema validator and the struct
	// decoder see the same canonical value.
	canonical, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var generic any
	if err := json.Unmarshal(canonical, &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile descriptor schema: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var desc Descriptor
	if err := json.Unmarshal(canonical, &desc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := Validate(&desc); err != nil {
		return nil, err
	}
	return &desc, nil
}

// Validate checks the invariants of an already decoded descriptor. Descriptors
// built in code go through here too.
func Validate(d *Descriptor) error {
	if d == nil {
		return fmt.Errorf("%w: nil descriptor", ErrInvalid)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	seen := make(map[string]bool, len(d.AvailableActions))
	for i, a := range d.AvailableActions {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("%w: available_actions[%d] has no name", ErrInvalid, i)
		}
		if seen[a.Name] {
			return fmt.Errorf("%w: duplicate action %q", ErrInvalid, a.Name)
		}
		seen[a.Name] = true
		if !a.RiskLevel.Valid() {
			return fmt.Errorf("%w: action %q has unknown risk_level %q", ErrInvalid, a.Name, a.RiskLevel)
		}
	}
	for i, p := range d.ErrorPatterns {
		if !p.Severity.Valid() {
			return fmt.Errorf("%w: error_patterns[%d] has unknown severity %q", ErrInvalid, i, p.Severity)
		}
		if _, err := regexp.Compile(p.Pattern); err != nil {
			return fmt.Errorf("%w: error_patterns[%d] %q: %v", ErrInvalid, i, p.Pattern, err)
		}
	}
	return nil
}
