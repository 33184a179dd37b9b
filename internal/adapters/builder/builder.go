package builder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"

	"github.com/melih/lighthouse-deploy/internal/core/ports"
)

type Adapter struct {
	cli *client.Client
	out io.Writer
	log *zap.Logger
}

var _ ports.BuilderService = (*Adapter)(nil)

func NewBuilderAdapter(out io.Writer, log *zap.Logger) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return NewBuilderAdapterWithClient(cli, out, log), nil
}

func NewBuilderAdapterWithClient(cli *client.Client, out io.Writer, log *zap.Logger) *Adapter {
	if out == nil {
		out = io.Discard
	}
	return &Adapter{cli: cli, out: out, log: log}
}

// BuildImage builds the Dockerfile found at req.Path, cloning req.RepoURL first when set
func (a *Adapter) BuildImage(ctx context.Context, req ports.BuildRequest) (string, error) {
	if req.Tag == "" {
		return "", fmt.Errorf("build: image tag is required")
	}
	dir := req.Path
	if req.RepoURL != "" {
		tmpDir, err := os.MkdirTemp("", "lighthouse-build-*")
		if err != nil {
			return "", fmt.Errorf("failed to create temp dir: %w", err)
		}
		defer os.RemoveAll(tmpDir) // Clean up after build

		a.log.Info("cloning build source", zap.String("repo", req.RepoURL), zap.String("dir", tmpDir))
		_, err = git.PlainCloneContext(ctx, tmpDir, false, &git.CloneOptions{
			URL:      req.RepoURL,
			Progress: a.out,
			Depth:    1, // Shallow clone for speed
		})
		if err != nil {
			return "", fmt.Errorf("failed to clone repo: %w", err)
		}
		dir = filepath.Join(tmpDir, req.Path)
	}
	if dir == "" {
		dir = "."
	}

	tar, err := archive.TarWithOptions(dir, &archive.TarOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to create build context: %w", err)
	}
	defer tar.Close()

	a.log.Info("building image", zap.String("image", req.Tag), zap.String("context", dir))
	resp, err := a.cli.ImageBuild(ctx, tar, types.ImageBuildOptions{
		Tags:        []string{req.Tag},
		Dockerfile:  "Dockerfile",
		NoCache:     req.NoCache,
		PullParent:  true,
		Remove:      true, // Remove intermediate containers
		ForceRemove: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	// The build is only finished once the stream is drained.
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, a.out, 0, false, nil); err != nil {
		return "", fmt.Errorf("failed to build image %s: %w", req.Tag, err)
	}
	return req.Tag, nil
}
