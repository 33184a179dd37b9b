package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-deploy/internal/core/ports"
	"github.com/melih/lighthouse-deploy/internal/testutil"
)

func TestStoreCachesByHostCommandAndKey(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	fake1 := testutil.NewFakeRunner(t, "host1",
		testutil.Run("docker info", "swarm"),
		testutil.Run("docker info", "swarm again"),
		testutil.Run("uptime", "1 day"),
		testutil.Run("uptime", "1 day"),
	)
	fake2 := testutil.NewFakeRunner(t, "host2", testutil.Run("docker info", "standalone"))
	r1, r2 := store.Wrap(fake1), store.Wrap(fake2)

	res, err := r1.Run(ctx, "docker info", ports.UseCache())
	require.NoError(t, err)
	assert.Equal(t, "swarm", res.String())

	res, err = r1.Run(ctx, "docker info", ports.UseCache())
	require.NoError(t, err)
	assert.Equal(t, "swarm", res.String(), "answered from the store")

	res, err = r2.Run(ctx, "docker info", ports.UseCache())
	require.NoError(t, err)
	assert.Equal(t, "standalone", res.String(), "hosts do not share entries")

	res, err = r1.Run(ctx, "docker info", ports.CacheKey("epoch:1"))
	require.NoError(t, err)
	assert.Equal(t, "swarm again", res.String(), "a new cache key forces a fresh read")

	_, err = r1.Run(ctx, "uptime")
	require.NoError(t, err)
	_, err = r1.Run(ctx, "uptime")
	require.NoError(t, err)

	assert.Equal(t, 3, store.Len())
}

func TestStoreKeepsFailedResults(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	fake := testutil.NewFakeRunner(t, "host1", testutil.Fail("docker node inspect self"))
	r := store.Wrap(fake)

	for range 2 {
		_, err := r.Run(ctx, "docker node inspect self", ports.UseCache())
		var cmdErr *ports.CommandError
		require.ErrorAs(t, err, &cmdErr)
	}

	res, err := r.Run(ctx, "docker node inspect self", ports.UseCache(), ports.IgnoreErrors())
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.Len(t, fake.Calls(), 1)
}

func TestStoreDoesNotKeepErrors(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	fake := testutil.NewFakeRunner(t, "host1",
		testutil.Step{Command: "hostname", Err: errors.New("connection reset")},
		testutil.Run("hostname", "node1"),
	)
	r := store.Wrap(fake)

	_, err := r.Run(ctx, "hostname", ports.UseCache())
	require.Error(t, err)

	res, err := r.Run(ctx, "hostname", ports.UseCache())
	require.NoError(t, err)
	assert.Equal(t, "node1", res.String())
	assert.Equal(t, "host1", r.Host())
}
