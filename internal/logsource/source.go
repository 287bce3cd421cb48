// Package logsource feeds log batches to the decision loop: canned scenarios
// for demos, static files and a live tail of a growing log.
package logsource

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Batch is one observation cycle worth of log lines.
type Batch struct {
	Label string   `json:"label"`
	Lines []string `json:"lines"`
}

// Source yields batches until it returns io.EOF.
type Source interface {
	Next(ctx context.Context) (Batch, error)
}

var scenarios = map[string][]string{
	"normal": {
		"INFO: Application started successfully",
		"INFO: Processing request /api/users",
		"INFO: Database connection established",
	},
	"error": {
		"ERROR: 500 Internal Server Error in /api/orders",
		"ERROR: Database connection timeout",
		"WARNING: High memory usage detected",
	},
	"critical": {
		"CRITICAL: Database connection failed",
		"ERROR: Multiple service failures detected",
		"FATAL: Application crash imminent",
	},
}

// DemoScenarios is the default episode: steady, failing, down, recovered.
var DemoScenarios = []string{"normal", "error", "critical", "normal"}

// Scenario returns a copy of the named canned batch.
func Scenario(name string) ([]string, error) {
	lines, ok := scenarios[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q (have %s)", name, strings.Join(ScenarioNames(), ", "))
	}
	return append([]string(nil), lines...), nil
}

func ScenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type scenarioSource struct {
	names []string
	pos   int
}

// ScenarioSource yields the named scenarios in order. Unknown names fail here,
// not mid-episode.
func ScenarioSource(names ...string) (Source, error) {
	if len(names) == 0 {
		names = DemoScenarios
	}
	for _, name := range names {
		if _, err := Scenario(name); err != nil {
			return nil, err
		}
	}
	return &scenarioSource{names: append([]string(nil), names...)}, nil
}

func (s *scenarioSource) Next(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	if s.pos >= len(s.names) {
		return Batch{}, io.EOF
	}
	name := s.names[s.pos]
	s.pos++
	lines, _ := Scenario(name)
	return Batch{Label: strings.ToLower(name), Lines: lines}, nil
}

type sliceSource struct {
	batches []Batch
	pos     int
}

// FromBatches replays fixed batches; used for tests and for stdin input.
func FromBatches(batches ...Batch) Source {
	return &sliceSource{batches: batches}
}

func (s *sliceSource) Next(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	if s.pos >= len(s.batches) {
		return Batch{}, io.EOF
	}
	b := s.batches[s.pos]
	s.pos++
	return b, nil
}
