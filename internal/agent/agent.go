// Package agent is the decision loop: it turns log batches into snapshots, picks
// a corrective action epsilon-greedily and learns action values with one-step
// tabular Q-learning.
package agent

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"opsagent/internal/catalog"
	"opsagent/internal/descriptor"
	"opsagent/internal/state"
)

// Agent owns one application's value table. Every method takes the same mutex,
// so a status reader can share the agent with the decision loop.
type Agent struct {
	mu sync.Mutex

	desc      *descriptor.Descriptor
	extractor *state.Extractor
	catalog   *catalog.Catalog
	hp        Hyperparameters
	rng       *rand.Rand

	table      Table
	current    *state.Snapshot
	lastAction string
}

type Option func(*Agent)

// WithHyperparameters overrides the default learning rate, discount and epsilon.
func WithHyperparameters(hp Hyperparameters) Option {
	return func(a *Agent) { a.hp = hp }
}

// WithRand injects the random source used for exploration.
func WithRand(r *rand.Rand) Option {
	return func(a *Agent) {
		if r != nil {
			a.rng = r
		}
	}
}

// WithSeed is WithRand over a fresh source seeded with seed.
func WithSeed(seed int64) Option {
	return WithRand(rand.New(rand.NewSource(seed)))
}

// WithClock sets the timestamp source for extracted snapshots.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.extractor.WithClock(now) }
}

// New builds an agent for d. The descriptor is validated and its patterns
// compiled here, so a bad descriptor fails before any log is processed.
func New(d *descriptor.Descriptor, opts ...Option) (*Agent, error) {
	if err := descriptor.Validate(d); err != nil {
		return nil, err
	}
	ex, err := state.NewExtractor(d)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.New(d)
	if err != nil {
		return nil, err
	}
	a := &Agent{
		desc:      d,
		extractor: ex,
		catalog:   cat,
		hp:        DefaultHyperparameters(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		table:     make(Table),
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.hp.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// NewFromFile loads the descriptor at path and builds an agent for it.
func NewFromFile(path string, opts ...Option) (*Agent, error) {
	d, err := descriptor.Load(path)
	if err != nil {
		return nil, err
	}
	return New(d, opts...)
}

func (a *Agent) Descriptor() *descriptor.Descriptor { return a.desc }
func (a *Agent) Catalog() *catalog.Catalog          { return a.catalog }
func (a *Agent) Extractor() *state.Extractor        { return a.extractor }

func (a *Agent) Hyperparameters() Hyperparameters {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hp
}

// ProcessLogs extracts a snapshot from lines and makes it the current state.
func (a *Agent) ProcessLogs(lines []string) state.Snapshot {
	snap := a.extractor.Extract(lines)
	a.mu.Lock()
	a.current = &snap
	a.mu.Unlock()
	return snap
}

// Current returns the state set by the last ProcessLogs call.
func (a *Agent) Current() (state.Snapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return state.Snapshot{}, false
	}
	return *a.current, true
}

// LastAction returns the action recorded by the last successful ChooseAction.
func (a *Agent) LastAction() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastAction, a.lastAction != ""
}

// ChooseAction picks an action for st, or for the current state when st is nil.
// It returns false when there is no state or no action passes the risk policy;
// that is a "do nothing" outcome, not an error.
//
// With probability epsilon, or when the state has no table row yet, the action is
// drawn uniformly from the valid set. Otherwise the valid action with the highest
// value wins, missing entries counting as 0 and ties going to the action defined
// first in the descriptor.
func (a *Agent) ChooseAction(st *state.Snapshot) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if st == nil {
		st = a.current
	}
	if st == nil {
		return "", false
	}
	valid := a.catalog.ValidActions(*st)
	if len(valid) == 0 {
		return "", false
	}

	var action string
	row, known := a.table[st.Key()]
	if a.rng.Float64() < a.hp.Epsilon || !known {
		action = valid[a.rng.Intn(len(valid))]
	} else {
		action = greedy(row, valid)
	}
	a.lastAction = action
	return action, true
}

func greedy(row map[string]float64, valid []string) string {
	best := valid[0]
	bestValue := row[best]
	for _, name := range valid[1:] {
		if v := row[name]; v > bestValue {
			best, bestValue = name, v
		}
	}
	return best
}

// ExecuteAction runs or simulates an action from the catalog.
func (a *Agent) ExecuteAction(ctx context.Context, name string, dryRun bool) catalog.Result {
	return a.catalog.Execute(ctx, name, dryRun)
}

// UpdateValue applies the one-step Q-learning rule to the current state and the
// last chosen action:
//
//	Q(s,a) += alpha * (reward + gamma * max_a' Q(s',a') - Q(s,a))
//
// The bootstrap term is 0 when next is nil or has no row. It is a no-op until a
// state has been processed and an action chosen.
func (a *Agent) UpdateValue(reward float64, next *state.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == nil || a.lastAction == "" {
		return
	}
	key := a.current.Key()
	row := a.table[key]
	if row == nil {
		row = make(map[string]float64)
		a.table[key] = row
	}
	q := row[a.lastAction]
	var bootstrap float64
	if next != nil {
		bootstrap = a.maxValue(next.Key())
	}
	row[a.lastAction] = q + a.hp.LearningRate*(reward+a.hp.DiscountFactor*bootstrap-q)
}

// maxValue is the best value in a row over the catalog's actions, absent
// entries reading as 0. A missing row is 0.
func (a *Agent) maxValue(key string) float64 {
	row, ok := a.table[key]
	if !ok || len(row) == 0 {
		return 0
	}
	best := 0.0
	for i, name := range a.catalog.Names() {
		if v := row[name]; i == 0 || v > best {
			best = v
		}
	}
	return best
}

// Value reads one table entry, 0 when absent.
func (a *Agent) Value(key, action string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.table[key][action]
}

// Table returns a deep copy of the value table.
func (a *Agent) Table() Table {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.table.Clone()
}

// PolicySummary is the read-only report used by dashboards and sync jobs.
type PolicySummary struct {
	AppName          string          `json:"app_name"`
	TableSize        int             `json:"q_table_size"`
	AvailableActions []string        `json:"available_actions"`
	CurrentState     *state.Snapshot `json:"current_state"`
	Epsilon          float64         `json:"epsilon"`
}

func (a *Agent) Summary() PolicySummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	var cur *state.Snapshot
	if a.current != nil {
		c := *a.current
		cur = &c
	}
	return PolicySummary{
		AppName:          a.desc.Name,
		TableSize:        len(a.table),
		AvailableActions: a.catalog.Names(),
		CurrentState:     cur,
		Epsilon:          a.hp.Epsilon,
	}
}

func (a *Agent) String() string {
	s := a.Summary()
	return fmt.Sprintf("agent(app=%s rows=%d actions=%d eps=%g)", s.AppName, s.TableSize, len(s.AvailableActions), s.Epsilon)
}
