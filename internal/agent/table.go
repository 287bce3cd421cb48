package agent

import (
	"errors"
	"fmt"
	"sort"
)

const (
	DefaultLearningRate   = 0.1
	DefaultDiscountFactor = 0.9
	DefaultEpsilon        = 0.1
)

// ErrHyperparameters marks an out-of-range learning rate, discount or epsilon.
var ErrHyperparameters = errors.New("invalid hyperparameters")

// Hyperparameters are fixed for the lifetime of an agent.
type Hyperparameters struct {
	LearningRate   float64 `json:"learning_rate"`
	DiscountFactor float64 `json:"discount_factor"`
	Epsilon        float64 `json:"epsilon"`
}

func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		LearningRate:   DefaultLearningRate,
		DiscountFactor: DefaultDiscountFactor,
		Epsilon:        DefaultEpsilon,
	}
}

// Validate enforces alpha in (0,1], gamma in [0,1] and epsilon in [0,1].
func (h Hyperparameters) Validate() error {
	if !(h.LearningRate > 0 && h.LearningRate <= 1) {
		return fmt.Errorf("%w: learning_rate %g not in (0,1]", ErrHyperparameters, h.LearningRate)
	}
	if !(h.DiscountFactor >= 0 && h.DiscountFactor <= 1) {
		return fmt.Errorf("%w: discount_factor %g not in [0,1]", ErrHyperparameters, h.DiscountFactor)
	}
	if !(h.Epsilon >= 0 && h.Epsilon <= 1) {
		return fmt.Errorf("%w: epsilon %g not in [0,1]", ErrHyperparameters, h.Epsilon)
	}
	return nil
}

// Table maps a state key to per-action value estimates. Rows are never evicted.
type Table map[string]map[string]float64

func (t Table) Clone() Table {
	out := make(Table, len(t))
	for key, row := range t {
		cp := make(map[string]float64, len(row))
		for action, v := range row {
			cp[action] = v
		}
		out[key] = cp
	}
	return out
}

// Keys returns the state keys in sorted order.
func (t Table) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entry is one flattened table cell.
type Entry struct {
	State  string  `json:"state"`
	Action string  `json:"action"`
	Value  float64 `json:"value"`
}

// Entries flattens the table sorted by state key then action name.
func (t Table) Entries() []Entry {
	var out []Entry
	for _, key := range t.Keys() {
		row := t[key]
		actions := make([]string, 0, len(row))
		for a := range row {
			actions = append(actions, a)
		}
		sort.Strings(actions)
		for _, a := range actions {
			out = append(out, Entry{State: key, Action: a, Value: row[a]})
		}
	}
	return out
}
