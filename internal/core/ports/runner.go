package ports

import (
	"context"
	"fmt"
	"strings"
)

// Runner executes shell commands on a single host.
// Implementations must be safe for use by one goroutine at a time;
// callers fanning out across hosts hold one Runner per host.
type Runner interface {
	// Host returns the address commands are executed on.
	Host() string
	// Run executes command and returns its result.
	// A non-zero exit status fails with *CommandError unless IgnoreErrors is set.
	Run(ctx context.Context, command string, opts ...RunOption) (Result, error)
}

// Dialer opens Runners for hosts.
type Dialer interface {
	Dial(ctx context.Context, host string) (Runner, error)
}

// Result is the outcome of a finished command.
type Result struct {
	Host       string
	Command    string
	Stdout     string
	Stderr     string
	ExitStatus int
}

func (r Result) Succeeded() bool { return r.ExitStatus == 0 }

func (r Result) Failed() bool { return r.ExitStatus != 0 }

// String returns stdout without surrounding whitespace.
func (r Result) String() string {
	return strings.TrimSpace(r.Stdout)
}

// RunOptions collects the per-call settings of Runner.Run.
type RunOptions struct {
	Sudo         bool
	IgnoreErrors bool
	Quiet        bool
	UseCache     bool
	CacheKey     string
	// AbortError, when set, is what a failed command unwraps to.
	AbortError error
}

type RunOption func(*RunOptions)

func Sudo() RunOption { return func(o *RunOptions) { o.Sudo = true } }

func IgnoreErrors() RunOption { return func(o *RunOptions) { o.IgnoreErrors = true } }

func Quiet() RunOption { return func(o *RunOptions) { o.Quiet = true } }

// UseCache lets a caching Runner answer from results of earlier identical commands.
func UseCache() RunOption { return func(o *RunOptions) { o.UseCache = true } }

// CacheKey adds an explicit namespace to the cache key. It implies UseCache.
func CacheKey(key string) RunOption {
	return func(o *RunOptions) {
		o.UseCache = true
		o.CacheKey = key
	}
}

// AbortWith makes a failed command return an error that unwraps to err,
// so callers can test for domain conditions with errors.Is.
func AbortWith(err error) RunOption { return func(o *RunOptions) { o.AbortError = err } }

// ApplyRunOptions folds opts into a RunOptions value.
func ApplyRunOptions(opts ...RunOption) RunOptions {
	var o RunOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Check converts a failed result into an error according to o.
// It returns nil for succeeded results and when IgnoreErrors is set.
func (o RunOptions) Check(res Result) error {
	if res.Succeeded() || o.IgnoreErrors {
		return nil
	}
	return &CommandError{Result: res, Abort: o.AbortError}
}

// CommandError reports a command that exited with a non-zero status.
type CommandError struct {
	Result Result
	Abort  error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: command %q failed with exit status %d", e.Result.Host, e.Result.Command, e.Result.ExitStatus)
	if out := strings.TrimSpace(e.Result.Stderr); out != "" {
		msg += ": " + out
	} else if out := e.Result.String(); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Abort
}
