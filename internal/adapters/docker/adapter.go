package docker

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"go.uber.org/zap"

	"github.com/melih/lighthouse-deploy/internal/core/ports"
)

// Credentials authenticate pulls and pushes against the deployment registry.
type Credentials struct {
	Username string
	Password string
	Server   string
}

// Adapter implements ports.ImageService using the Docker SDK against the local daemon.
type Adapter struct {
	cli  *client.Client
	auth string
	out  io.Writer
	log  *zap.Logger
}

var _ ports.ImageService = (*Adapter)(nil)

// NewAdapter creates a new Docker adapter instance from the DOCKER_* environment.
// Progress of pulls and pushes is written to out.
func NewAdapter(creds Credentials, out io.Writer, log *zap.Logger) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return NewAdapterWithClient(cli, creds, out, log)
}

// NewAdapterWithClient wraps an existing client.
func NewAdapterWithClient(cli *client.Client, creds Credentials, out io.Writer, log *zap.Logger) (*Adapter, error) {
	auth, err := registry.EncodeAuthConfig(registry.AuthConfig{
		Username:      creds.Username,
		Password:      creds.Password,
		ServerAddress: creds.Server,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode registry credentials: %w", err)
	}
	if out == nil {
		out = io.Discard
	}
	return &Adapter{cli: cli, auth: auth, out: out, log: log}, nil
}

// Pull fetches ref into the local daemon
func (a *Adapter) Pull(ctx context.Context, ref string) error {
	a.log.Info("pulling image", zap.String("image", ref))
	reader, err := a.cli.ImagePull(ctx, ref, types.ImagePullOptions{RegistryAuth: a.auth})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer reader.Close()
	if err := jsonmessage.DisplayJSONMessagesStream(reader, a.out, 0, false, nil); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	return nil
}

// Tag adds target as a reference to the image source points to
func (a *Adapter) Tag(ctx context.Context, source, target string) error {
	if err := a.cli.ImageTag(ctx, source, target); err != nil {
		return fmt.Errorf("failed to tag %s as %s: %w", source, target, err)
	}
	return nil
}

// Push uploads ref to its registry
func (a *Adapter) Push(ctx context.Context, ref string) error {
	a.log.Info("pushing image", zap.String("image", ref))
	reader, err := a.cli.ImagePush(ctx, ref, types.ImagePushOptions{RegistryAuth: a.auth})
	if err != nil {
		return fmt.Errorf("failed to push image %s: %w", ref, err)
	}
	defer reader.Close()
	if err := jsonmessage.DisplayJSONMessagesStream(reader, a.out, 0, false, nil); err != nil {
		return fmt.Errorf("failed to push image %s: %w", ref, err)
	}
	return nil
}

// Remove untags ref, deleting the image when no other reference is left
func (a *Adapter) Remove(ctx context.Context, ref string) error {
	if _, err := a.cli.ImageRemove(ctx, ref, types.ImageRemoveOptions{PruneChildren: true}); err != nil {
		return fmt.Errorf("failed to remove image %s: %w", ref, err)
	}
	return nil
}

// PruneDangling removes untagged images left behind by pulls and builds
func (a *Adapter) PruneDangling(ctx context.Context) error {
	report, err := a.cli.ImagesPrune(ctx, filters.NewArgs(filters.Arg("dangling", "true")))
	if err != nil {
		return fmt.Errorf("failed to prune images: %w", err)
	}
	a.log.Debug("pruned dangling images",
		zap.Int("deleted", len(report.ImagesDeleted)),
		zap.Uint64("reclaimed", report.SpaceReclaimed))
	return nil
}
