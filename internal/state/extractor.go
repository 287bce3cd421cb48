package state

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"opsagent/internal/descriptor"
)

// envMarker is deliberately permissive: any word starting with "env" followed by
// optional separators captures the next token, so "envelope sent" yields "lope".
var envMarker = regexp.MustCompile(`(?i)env[ironment]*[:\s]*(\w+)`)

type compiledPattern struct {
	re       *regexp.Regexp
	severity descriptor.Severity
}

// Extractor scans log batches against an application's error patterns.
// It holds no mutable state and is safe for concurrent use.
type Extractor struct {
	app      string
	patterns []compiledPattern
	now      func() time.Time
}

// NewExtractor compiles the descriptor's error patterns in order. An invalid
// pattern fails here rather than per line.
func NewExtractor(d *descriptor.Descriptor) (*Extractor, error) {
	if d == nil {
		return nil, fmt.Errorf("state extractor: %w: nil descriptor", descriptor.ErrInvalid)
	}
	patterns := make([]compiledPattern, 0, len(d.ErrorPatterns))
	for i, p := range d.ErrorPatterns {
		re, err := regexp.Compile("(?i)" + p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("state extractor: %w: pattern %d %q: %v", descriptor.ErrInvalid, i, p.Pattern, err)
		}
		patterns = append(patterns, compiledPattern{re: re, severity: p.Severity})
	}
	return &Extractor{app: d.Name, patterns: patterns, now: time.Now}, nil
}

// WithClock replaces the timestamp source.
func (e *Extractor) WithClock(now func() time.Time) *Extractor {
	if e != nil && now != nil {
		e.now = now
	}
	return e
}

// Extract summarizes one batch. Each pattern that matches a line adds one error,
// so a line matching two patterns counts twice. The last environment marker in
// the batch wins.
func (e *Extractor) Extract(lines []string) Snapshot {
	snap := Snapshot{
		App:           e.app,
		Env:           DefaultEnv,
		ErrorSeverity: descriptor.SeverityNone,
		Timestamp:     e.now(),
	}
	for _, line := range lines {
		for _, p := range e.patterns {
			if p.re.MatchString(line) {
				snap.ErrorCount++
				snap.ErrorSeverity = snap.ErrorSeverity.Max(p.severity)
			}
		}
		if m := envMarker.FindStringSubmatch(line); m != nil {
			snap.Env = strings.ToLower(m[1])
		}
	}
	snap.Status = StatusFor(snap.ErrorCount)
	snap.PerformanceScore = ScoreFor(snap.ErrorCount)
	return snap
}

// App returns the application name stamped on snapshots.
func (e *Extractor) App() string {
	if e == nil {
		return ""
	}
	return e.app
}
