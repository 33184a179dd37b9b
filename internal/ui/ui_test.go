package ui

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatError(t *testing.T) {
	out := FormatError("deploy failed", "host h1 unreachable", "check ssh.known_hosts")
	assert.Contains(t, out, "Error: deploy failed")
	assert.Contains(t, out, "host h1 unreachable")
	assert.Contains(t, out, "Hint: check ssh.known_hosts")

	assert.NotContains(t, FormatError("x", "", ""), "Hint")
}

func TestTaskLines(t *testing.T) {
	var buf bytes.Buffer
	TaskStarted(&buf, "update", "web", "production")
	TaskDone(&buf, "update", "web")
	TaskFailed(&buf, "rollback", "web", errors.New("boom"))
	Deployment(&buf, "web", "container", "nginx:1.25", []string{"h1"})

	out := buf.String()
	assert.Contains(t, out, "update")
	assert.Contains(t, out, "on production")
	assert.Contains(t, out, "OK")
	assert.Contains(t, out, "rollback web: boom")
	assert.Contains(t, out, "nginx:1.25")
}
