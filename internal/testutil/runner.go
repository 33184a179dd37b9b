// Package testutil provides a scripted ports.Runner for tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/melih/lighthouse-deploy/internal/core/ports"
)

// Step is one expected command and the answer the runner gives to it.
type Step struct {
	Command string
	// Prefix matches every command starting with Command.
	Prefix     bool
	Stdout     string
	ExitStatus int
	Err        error
}

// Call records a command the runner received.
type Call struct {
	Command string
	Options ports.RunOptions
}

// FakeRunner answers commands from a script and fails the test when the
// commands arrive in another order. Unconsumed steps fail the test at cleanup.
type FakeRunner struct {
	t    testing.TB
	host string

	mu    sync.Mutex
	steps []Step
	calls []Call
}

func NewFakeRunner(t testing.TB, host string, steps ...Step) *FakeRunner {
	f := &FakeRunner{t: t, host: host, steps: steps}
	t.Cleanup(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		assert.Empty(t, f.steps, "commands expected on %s but never run", host)
	})
	return f
}

// Expect appends steps to the script.
func (f *FakeRunner) Expect(steps ...Step) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = append(f.steps, steps...)
	return f
}

func (f *FakeRunner) Host() string { return f.host }

func (f *FakeRunner) Run(_ context.Context, command string, opts ...ports.RunOption) (ports.Result, error) {
	o := ports.ApplyRunOptions(opts...)

	f.mu.Lock()
	f.calls = append(f.calls, Call{Command: command, Options: o})
	if len(f.steps) == 0 {
		f.mu.Unlock()
		f.t.Errorf("%s: unexpected command %q", f.host, command)
		return ports.Result{}, fmt.Errorf("unexpected command %q", command)
	}
	step := f.steps[0]
	f.steps = f.steps[1:]
	f.mu.Unlock()

	if step.Prefix {
		if !assert.True(f.t, strings.HasPrefix(command, step.Command), "command on %s: %q does not start with %q", f.host, command, step.Command) {
			return ports.Result{}, fmt.Errorf("unexpected command %q", command)
		}
	} else if !assert.Equal(f.t, step.Command, command, "command on %s", f.host) {
		return ports.Result{}, fmt.Errorf("unexpected command %q", command)
	}
	if step.Err != nil {
		return ports.Result{}, step.Err
	}
	res := ports.Result{Host: f.host, Command: command, Stdout: step.Stdout, ExitStatus: step.ExitStatus}
	return res, o.Check(res)
}

// Calls returns the commands received so far.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Commands returns the command text of every call received so far.
func (f *FakeRunner) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Command)
	}
	return out
}

// Run is shorthand for a step that succeeds with stdout.
func Run(command, stdout string) Step {
	return Step{Command: command, Stdout: stdout}
}

// Fail is shorthand for a step exiting with status 1.
func Fail(command string) Step {
	return Step{Command: command, ExitStatus: 1}
}
