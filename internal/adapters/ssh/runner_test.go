package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/melih/lighthouse-deploy/internal/core/ports"
)

type reply struct {
	stdout string
	status uint32
}

// startServer runs an SSH server answering exec requests from replies.
func startServer(t *testing.T, replies map[string]reply) (string, ssh.PublicKey) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{NoClientAuth: true}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go serve(nc, cfg, replies)
		}
	}()
	return ln.Addr().String(), signer.PublicKey()
}

func serve(nc net.Conn, cfg *ssh.ServerConfig, replies map[string]reply) {
	_, chans, reqs, err := ssh.NewServerConn(nc, cfg)
	if err != nil {
		return
	}
	go ssh.DiscardRequests(reqs)
	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			newCh.Reject(ssh.UnknownChannelType, "sessions only")
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			continue
		}
		go func() {
			defer ch.Close()
			for req := range chReqs {
				if req.Type != "exec" {
					req.Reply(false, nil)
					continue
				}
				var payload struct{ Command string }
				if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
					req.Reply(false, nil)
					return
				}
				req.Reply(true, nil)
				rep, ok := replies[payload.Command]
				if !ok {
					rep = reply{status: 127}
				}
				io.WriteString(ch, rep.stdout)
				ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{rep.status}))
				return
			}
		}()
	}
}

func TestRunner(t *testing.T) {
	addr, hostKey := startServer(t, map[string]reply{
		"docker version --format '{{.Server.Version}}'": {stdout: "25.0.6\n"},
		"docker inspect --type container missing":        {stdout: "[]\n", status: 1},
	})

	knownHostsFile := filepath.Join(t.TempDir(), "known_hosts")
	require.NoError(t, os.WriteFile(knownHostsFile, []byte(knownhosts.Line([]string{addr}, hostKey)+"\n"), 0o600))
	t.Setenv("SSH_AUTH_SOCK", "")

	d, err := NewDialer(Config{User: "deploy", KnownHosts: knownHostsFile, Timeout: 5 * time.Second}, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	r, err := d.Dial(ctx, addr)
	require.NoError(t, err)
	t.Cleanup(func() { r.(*Runner).Close() })
	assert.Equal(t, addr, r.Host())

	res, err := r.Run(ctx, "docker version --format '{{.Server.Version}}'")
	require.NoError(t, err)
	assert.Equal(t, "25.0.6", res.String())

	notFound := errors.New("container not found")
	_, err = r.Run(ctx, "docker inspect --type container missing", ports.AbortWith(notFound))
	var cmdErr *ports.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 1, cmdErr.Result.ExitStatus)
	assert.ErrorIs(t, err, notFound)

	res, err = r.Run(ctx, "false", ports.IgnoreErrors())
	require.NoError(t, err)
	assert.Equal(t, 127, res.ExitStatus)
}

func TestDialRejectsUnknownHostKey(t *testing.T) {
	addr, _ := startServer(t, nil)

	_, otherKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	otherSigner, err := ssh.NewSignerFromKey(otherKey)
	require.NoError(t, err)

	knownHostsFile := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{addr}, otherSigner.PublicKey())
	require.NoError(t, os.WriteFile(knownHostsFile, []byte(line+"\n"), 0o600))
	t.Setenv("SSH_AUTH_SOCK", "")

	d, err := NewDialer(Config{KnownHosts: knownHostsFile, Timeout: 5 * time.Second}, zap.NewNop())
	require.NoError(t, err)
	_, err = d.Dial(context.Background(), addr)
	assert.Error(t, err)
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'docker ps'`, shellQuote("docker ps"))
	assert.Equal(t, `'echo '\''hi'\'''`, shellQuote("echo 'hi'"))
}
