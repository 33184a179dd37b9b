package cli

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/melih/lighthouse-deploy/internal/config"
	"github.com/melih/lighthouse-deploy/internal/core/domain"
	"github.com/melih/lighthouse-deploy/internal/core/ports"
	"github.com/melih/lighthouse-deploy/internal/deploy"
	"github.com/melih/lighthouse-deploy/internal/testutil"
)

type dialer struct {
	mu      sync.Mutex
	runners map[string]*testutil.FakeRunner
}

func (d *dialer) Dial(_ context.Context, host string) (ports.Runner, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runners[host], nil
}

func useEnv(t *testing.T, r *testutil.FakeRunner) *bytes.Buffer {
	t.Helper()
	web, err := domain.NewContainer("web", domain.MustParseImage("nginx:1.25"), nil, nil)
	require.NoError(t, err)

	d := &dialer{runners: map[string]*testutil.FakeRunner{"h1": r}}
	manager, err := deploy.NewManager(deploy.NewTasks(web, d, deploy.Options{Infrastructure: "test", Hosts: []string{"h1"}}, zap.NewNop()))
	require.NoError(t, err)

	var out bytes.Buffer
	prev := loadEnv
	loadEnv = func() (*env, error) {
		return &env{cfg: &config.Config{}, log: zap.NewNop(), manager: manager, out: &out}, nil
	}
	t.Cleanup(func() { loadEnv = prev })
	return &out
}

func execute(args ...string) error {
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func TestUpdateCommand(t *testing.T) {
	r := testutil.NewFakeRunner(t, "h1",
		testutil.Run("docker inspect --type container web", `[{"Image":"sha256:1"}]`),
		testutil.Run("docker inspect --type image nginx:1.26", `[{"Id":"sha256:1"}]`),
		testutil.Run("docker start web", ""),
	)
	out := useEnv(t, r)

	require.NoError(t, execute("update", "--tag", "1.26", "web"))
	assert.Contains(t, out.String(), "update web")
	assert.Contains(t, out.String(), "OK")
}

func TestRevertAllDeployments(t *testing.T) {
	r := testutil.NewFakeRunner(t, "h1",
		testutil.Fail("docker inspect --type container web_backup"),
	)
	useEnv(t, r)
	require.NoError(t, execute("revert"))
}

func TestUnknownDeployment(t *testing.T) {
	useEnv(t, testutil.NewFakeRunner(t, "h1"))
	err := execute("pull", "db")
	assert.ErrorIs(t, err, ports.ErrDeploymentNotFound)
}

func TestListCommand(t *testing.T) {
	out := useEnv(t, testutil.NewFakeRunner(t, "h1"))
	require.NoError(t, execute("list"))
	assert.Contains(t, out.String(), "nginx:1.25")
}
