// Package ssh runs commands on remote hosts over SSH.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/melih/lighthouse-deploy/internal/core/ports"
)

type Config struct {
	User string
	Port int
	// KeyFile is a private key in OpenSSH or PEM format.
	KeyFile string
	// KnownHosts verifies host keys. Without it host keys are not checked.
	KnownHosts   string
	Timeout      time.Duration
	SudoPassword string
}

// Dialer opens SSH connections to hosts given as [user@]host[:port].
type Dialer struct {
	cfg       Config
	log       *zap.Logger
	auth      []ssh.AuthMethod
	hostKeys  ssh.HostKeyCallback
	netDialer net.Dialer
}

func NewDialer(cfg Config, log *zap.Logger) (*Dialer, error) {
	d := &Dialer{cfg: cfg, log: log, netDialer: net.Dialer{Timeout: cfg.Timeout}}

	if cfg.KeyFile != "" {
		pem, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key %s: %w", cfg.KeyFile, err)
		}
		d.auth = append(d.auth, ssh.PublicKeys(signer))
	}
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			d.auth = append(d.auth, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		} else {
			log.Warn("ssh agent unavailable", zap.String("socket", sock), zap.Error(err))
		}
	}

	if cfg.KnownHosts != "" {
		cb, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		d.hostKeys = cb
	} else {
		log.Warn("host keys are not verified, set ssh.known_hosts to enable checking")
		d.hostKeys = ssh.InsecureIgnoreHostKey()
	}
	return d, nil
}

func (d *Dialer) Dial(ctx context.Context, host string) (ports.Runner, error) {
	user, addr := d.cfg.User, host
	if u, h, ok := strings.Cut(host, "@"); ok {
		user, addr = u, h
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		port := d.cfg.Port
		if port == 0 {
			port = 22
		}
		addr = net.JoinHostPort(addr, strconv.Itoa(port))
	}

	conn, err := d.netDialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", host, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            user,
		Auth:            d.auth,
		HostKeyCallback: d.hostKeys,
		Timeout:         d.cfg.Timeout,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", host, err)
	}
	d.log.Debug("connected", zap.String("host", host), zap.String("user", user))
	return &Runner{
		host:     host,
		client:   ssh.NewClient(c, chans, reqs),
		password: d.cfg.SudoPassword,
		log:      d.log,
	}, nil
}

// Runner executes commands over one SSH connection. Close releases it.
type Runner struct {
	host     string
	client   *ssh.Client
	password string
	log      *zap.Logger
}

func (r *Runner) Host() string { return r.host }

func (r *Runner) Run(ctx context.Context, command string, opts ...ports.RunOption) (ports.Result, error) {
	o := ports.ApplyRunOptions(opts...)
	level := zap.InfoLevel
	if o.Quiet {
		level = zap.DebugLevel
	}
	r.log.Log(level, "run", zap.String("host", r.host), zap.String("command", command))

	session, err := r.client.NewSession()
	if err != nil {
		return ports.Result{}, fmt.Errorf("%s: open session: %w", r.host, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	remote := command
	if o.Sudo {
		remote = "sudo -S -p '' sh -c " + shellQuote(command)
		session.Stdin = strings.NewReader(r.password + "\n")
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(remote) }()
	select {
	case err = <-done:
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return ports.Result{}, ctx.Err()
	}

	res := ports.Result{Host: r.host, Command: command, Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *ssh.ExitError
	switch {
	case errors.As(err, &exitErr):
		res.ExitStatus = exitErr.ExitStatus()
	case err != nil:
		return res, fmt.Errorf("%s: %w", r.host, err)
	}
	if res.Failed() {
		r.log.Debug("command failed", zap.String("host", r.host), zap.Int("status", res.ExitStatus), zap.String("stderr", res.Stderr))
	}
	return res, o.Check(res)
}

func (r *Runner) Close() error {
	return r.client.Close()
}

// shellQuote wraps s in single quotes for sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
