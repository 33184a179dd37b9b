package deploy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/melih/lighthouse-deploy/internal/core/domain"
	"github.com/melih/lighthouse-deploy/internal/core/ports"
)

func TestManager(t *testing.T) {
	web, err := domain.NewContainer("web", domain.MustParseImage("nginx:1.25"), nil, nil)
	require.NoError(t, err)
	app := &recorder{changed: true}

	m, err := NewManager(
		NewTasks(web, &dialer{}, Options{Hosts: []string{"h1"}}, zap.NewNop()),
		NewTasks(app, &dialer{}, Options{Hosts: hosts(2)}, zap.NewNop()),
	)
	require.NoError(t, err)

	assert.Equal(t, []ports.DeploymentInfo{
		{Name: "web", Kind: "container", Image: "nginx:1.25", Hosts: []string{"h1"}},
		{Name: "app", Kind: "custom", Image: "app:1", Hosts: []string{"h1", "h2"}},
	}, m.List())

	ctx := context.Background()
	require.NoError(t, m.Update(ctx, "app", "2", true))
	require.NoError(t, m.Rollback(ctx, "app", false))
	assert.Equal(t, []string{"update@h1", "update@h2", "revert@h1", "revert@h2"}, app.ops())

	assert.ErrorIs(t, m.Deploy(ctx, "db", ports.DeployRequest{}), ports.ErrDeploymentNotFound)
	_, err = m.Tasks("db")
	assert.ErrorIs(t, err, ports.ErrDeploymentNotFound)
}

func TestManagerRejectsDuplicates(t *testing.T) {
	_, err := NewManager(
		NewTasks(&recorder{}, &dialer{}, Options{}, zap.NewNop()),
		NewTasks(&recorder{}, &dialer{}, Options{}, zap.NewNop()),
	)
	assert.Error(t, err)
}
