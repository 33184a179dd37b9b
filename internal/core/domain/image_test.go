package domain

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-deploy/internal/testutil"
)

func TestParseImage(t *testing.T) {
	digest := "sha256:" + strings.Repeat("a", 64)
	tests := []struct {
		ref  string
		want Image
		str  string
	}{
		{"nginx", Image{Name: "nginx", Tag: "latest"}, "nginx:latest"},
		{"nginx:1.25", Image{Name: "nginx", Tag: "1.25"}, "nginx:1.25"},
		{"library/nginx:1.25", Image{Name: "library/nginx", Tag: "1.25"}, "library/nginx:1.25"},
		{"registry.example.com/app", Image{Registry: "registry.example.com", Name: "app", Tag: "latest"}, "registry.example.com/app:latest"},
		{"localhost/app:dev", Image{Registry: "localhost", Name: "app", Tag: "dev"}, "localhost/app:dev"},
		{"localhost:5000/app", Image{Registry: "localhost:5000", Name: "app", Tag: "latest"}, "localhost:5000/app:latest"},
		{"registry.example.com:5000/team/app:2.0", Image{Registry: "registry.example.com:5000", Name: "team/app", Tag: "2.0"}, "registry.example.com:5000/team/app:2.0"},
		{"app@" + digest, Image{Name: "app", Digest: digest}, "app@" + digest},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			img, err := ParseImage(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, img)
			assert.Equal(t, tt.str, img.String())

			again, err := ParseImage(img.String())
			require.NoError(t, err)
			assert.Equal(t, img, again)
		})
	}
}

func TestParseImageInvalid(t *testing.T) {
	for _, ref := range []string{"", "Bad Name"} {
		_, err := ParseImage(ref)
		assert.Error(t, err, "ParseImage(%q)", ref)
	}
}

func TestImageRebind(t *testing.T) {
	img := MustParseImage("registry.example.com/app:1")

	assert.Equal(t, img, img.Rebind("", ""))
	assert.Equal(t, "registry.example.com/app:2", img.Rebind("", "2").String())
	assert.Equal(t, "mirror.local:5000/app:1", img.Rebind("mirror.local:5000", "").String())
	assert.Equal(t, "mirror.local/app:3", img.Rebind("mirror.local", "3").String())
	assert.Equal(t, "registry.example.com/app:1", img.String(), "original is unchanged")

	digest := "sha256:" + strings.Repeat("a", 64)
	pinned := MustParseImage("registry.example.com/app@" + digest)
	assert.Equal(t, "registry.example.com/app:2", pinned.Rebind("", "2").String(), "a new tag drops the digest")
	assert.Equal(t, "mirror.local/app@"+digest, pinned.Rebind("mirror.local", "").String())

	bound := img.bind("web")
	assert.Equal(t, "web", bound.Container())
	assert.Empty(t, bound.Rebind("", "").Container())
}

func TestImageTarget(t *testing.T) {
	img := MustParseImage("registry.example.com/app:1")

	target, err := img.Target("mirror.local:5000", "2.1-rc_1")
	require.NoError(t, err)
	assert.Equal(t, "mirror.local:5000/app:2.1-rc_1", target.String())

	for _, bad := range [][2]string{
		{"", "1; rm -rf /"},
		{"", "1 && reboot"},
		{"", "$(reboot)"},
		{"evil.example.com;reboot", ""},
		{"evil.example.com$(reboot)", ""},
		{"mirror.local:port", ""},
	} {
		_, err := img.Target(bad[0], bad[1])
		assert.Error(t, err, "Target(%q, %q)", bad[0], bad[1])
	}
}

func TestImageID(t *testing.T) {
	ctx := context.Background()

	t.Run("unbound inspects the image", func(t *testing.T) {
		r := testutil.NewFakeRunner(t, "host1",
			testutil.Run("docker inspect --type image nginx:latest", `[{"Id":"sha256:abc"}]`),
		)
		id, err := MustParseImage("nginx").ID(ctx, r)
		require.NoError(t, err)
		assert.Equal(t, "sha256:abc", id)
	})

	t.Run("bound reads the running image", func(t *testing.T) {
		r := testutil.NewFakeRunner(t, "host1",
			testutil.Run("docker inspect --type container web", `[{"Id":"c1","Image":"sha256:def"}]`),
		)
		c, err := NewContainer("web", MustParseImage("nginx"), nil, nil)
		require.NoError(t, err)
		id, err := c.Image().ID(ctx, r)
		require.NoError(t, err)
		assert.Equal(t, "sha256:def", id)
	})

	t.Run("missing image", func(t *testing.T) {
		r := testutil.NewFakeRunner(t, "host1", testutil.Fail("docker inspect --type image nginx:latest"))
		_, err := MustParseImage("nginx").ID(ctx, r)
		assert.ErrorIs(t, err, ErrImageNotFound)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("empty inspect output", func(t *testing.T) {
		r := testutil.NewFakeRunner(t, "host1", testutil.Run("docker inspect --type image nginx:latest", `[]`))
		_, err := MustParseImage("nginx").ID(ctx, r)
		assert.ErrorIs(t, err, ErrImageNotFound)
	})
}

func TestImageRepoDigest(t *testing.T) {
	ctx := context.Background()
	r := testutil.NewFakeRunner(t, "host1",
		testutil.Run("docker inspect --type image app:1", `[{"Id":"sha256:1","RepoDigests":["app@sha256:feed"]}]`),
		testutil.Run("docker inspect --type image app:2", `[{"Id":"sha256:2","RepoDigests":[]}]`),
	)

	digest, err := MustParseImage("app:1").RepoDigest(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, "app@sha256:feed", digest)

	digest, err = MustParseImage("app:2").RepoDigest(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, "app:2", digest)
}

func TestRegistry(t *testing.T) {
	reg, err := ParseRegistry("registry.example.com:5000")
	require.NoError(t, err)
	assert.Equal(t, "registry.example.com", reg.Host())
	assert.Equal(t, "5000", reg.Port())

	reg, err = ParseRegistry("localhost")
	require.NoError(t, err)
	assert.Equal(t, "localhost", reg.Host())
	assert.Empty(t, reg.Port())
}
