package process

import (
	"context"
	"sync"
)

// FakeRunner records commands instead of executing them. Handler, when set,
// decides the outcome of each call.
type FakeRunner struct {
	Handler func(cmd Command) (Result, error)

	mu    sync.Mutex
	calls []Command
}

// Run records cmd and delegates to Handler.
func (f *FakeRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()
	if f.Handler != nil {
		return f.Handler(cmd)
	}
	return Result{}, nil
}

// Calls returns a copy of the recorded commands.
func (f *FakeRunner) Calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.calls))
	copy(out, f.calls)
	return out
}
