package script

import (
	"context"
	"sync"
)

// Fake is an in-memory Engine for tests. Results are keyed by source text;
// unmatched sources fall back to Default.
type Fake struct {
	mu sync.Mutex

	// Results maps source text to a canned result.
	Results map[string]Result
	// Default is returned for sources without a canned result.
	Default Result
	// Err, when set, is returned from every call.
	Err error

	// Calls records every evaluation in order.
	Calls []FakeCall
}

// FakeCall captures one evaluation request.
type FakeCall struct {
	Name        string
	Source      string
	Snapshot    Snapshot
	SideEffects bool
}

// NewFake creates a fake engine with no canned results.
func NewFake() *Fake {
	return &Fake{Results: map[string]Result{}, Default: Result{Kind: KindBool, Bool: true}}
}

// Evaluate implements Engine.
func (f *Fake) Evaluate(_ context.Context, name, source string, snap Snapshot) (Result, error) {
	return f.record(name, source, snap, true)
}

// EvaluateWithoutSideEffects implements Engine.
func (f *Fake) EvaluateWithoutSideEffects(_ context.Context, name, source string, snap Snapshot) (Result, error) {
	return f.record(name, source, snap, false)
}

func (f *Fake) record(name, source string, snap Snapshot, sideEffects bool) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, FakeCall{Name: name, Source: source, Snapshot: snap, SideEffects: sideEffects})
	if f.Err != nil {
		return Result{}, f.Err
	}
	if result, ok := f.Results[source]; ok {
		if !sideEffects {
			result.Mutations = nil
		}
		return result, nil
	}
	result := f.Default
	if !sideEffects {
		result.Mutations = nil
	}
	return result, nil
}

// CallCount returns the number of evaluations recorded.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
