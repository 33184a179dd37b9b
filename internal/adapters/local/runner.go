// Package local runs commands on the controlling machine.
package local

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"go.uber.org/zap"

	"github.com/melih/lighthouse-deploy/internal/core/ports"
)

// Host is the name local runners report.
const Host = "localhost"

// Runner executes commands with sh on the controlling machine.
type Runner struct {
	host string
	log  *zap.Logger
}

// NewRunner returns a runner reporting host as its name.
func NewRunner(host string, log *zap.Logger) *Runner {
	return &Runner{host: host, log: log}
}

func (r *Runner) Host() string { return r.host }

func (r *Runner) Run(ctx context.Context, command string, opts ...ports.RunOption) (ports.Result, error) {
	o := ports.ApplyRunOptions(opts...)

	args := []string{"sh", "-c", command}
	if o.Sudo {
		args = append([]string{"sudo", "--non-interactive"}, args...)
	}
	level := zap.InfoLevel
	if o.Quiet {
		level = zap.DebugLevel
	}
	r.log.Log(level, "local", zap.String("host", r.host), zap.String("command", command))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	res := ports.Result{Host: r.host, Command: command}
	err := cmd.Run()
	res.Stdout, res.Stderr = stdout.String(), stderr.String()

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		res.ExitStatus = exitErr.ExitCode()
	case err != nil:
		return res, err
	}
	if res.Failed() {
		r.log.Debug("command failed", zap.String("host", r.host), zap.Int("status", res.ExitStatus), zap.String("stderr", res.Stderr))
	}
	return res, o.Check(res)
}

// Dialer hands out local runners, whatever the host is called.
// Runners keep the requested host name so logs and caches stay per host.
type Dialer struct {
	Log *zap.Logger
}

func (d Dialer) Dial(_ context.Context, host string) (ports.Runner, error) {
	return NewRunner(host, d.Log), nil
}
