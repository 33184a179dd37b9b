// Package app wires the adapters and deployments declared in the configuration.
package app

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/melih/lighthouse-deploy/internal/adapters/builder"
	"github.com/melih/lighthouse-deploy/internal/adapters/cache"
	"github.com/melih/lighthouse-deploy/internal/adapters/docker"
	"github.com/melih/lighthouse-deploy/internal/adapters/local"
	"github.com/melih/lighthouse-deploy/internal/adapters/ssh"
	"github.com/melih/lighthouse-deploy/internal/config"
	"github.com/melih/lighthouse-deploy/internal/core/ports"
	"github.com/melih/lighthouse-deploy/internal/deploy"
	"github.com/melih/lighthouse-deploy/internal/manifest"
)

// NewDialer returns the SSH dialer, or a local one when cfg.Local is set.
func NewDialer(cfg *config.Config, log *zap.Logger) (ports.Dialer, error) {
	if cfg.Local {
		return local.Dialer{Log: log}, nil
	}
	return ssh.NewDialer(ssh.Config{
		User:         cfg.SSH.User,
		Port:         cfg.SSH.Port,
		KeyFile:      cfg.SSH.KeyFile,
		KnownHosts:   cfg.SSH.KnownHosts,
		Timeout:      cfg.SSH.Timeout,
		SudoPassword: cfg.SSH.SudoPassword,
	}, log)
}

// Build loads the manifest and returns a Manager serving its deployments.
// Progress of local image operations is written to out.
func Build(cfg *config.Config, out io.Writer, log *zap.Logger) (*deploy.Manager, error) {
	m, err := manifest.Load(cfg.Manifest)
	if err != nil {
		return nil, err
	}

	dialer, err := NewDialer(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ssh: %w", err)
	}
	images, err := docker.NewAdapter(docker.Credentials{
		Username: cfg.Docker.Username,
		Password: cfg.Docker.Password,
		Server:   cfg.Registry,
	}, out, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize docker adapter: %w", err)
	}

	var imageBuilder *builder.Adapter
	tasks := make([]*deploy.Tasks, 0, len(m.Deployments))
	for _, d := range m.Deployments {
		target, err := d.Deployable()
		if err != nil {
			return nil, err
		}
		opts := deploy.Options{
			Infrastructure: cfg.Infrastructure,
			Hosts:          cfg.Hosts,
			Parallel:       cfg.Parallel,
			PoolSize:       cfg.PoolSize,
			Registry:       cfg.Registry,
			HostRegistry:   cfg.HostRegistry,
		}
		if len(d.Hosts) > 0 {
			opts.Hosts = d.Hosts
		}
		with := []deploy.Option{
			deploy.WithImages(images),
			deploy.WithCache(func() deploy.Cache { return cache.NewStore() }),
		}
		if d.Build != nil {
			if imageBuilder == nil {
				if imageBuilder, err = builder.NewBuilderAdapter(out, log); err != nil {
					return nil, fmt.Errorf("failed to initialize builder: %w", err)
				}
			}
			with = append(with, deploy.WithBuilder(imageBuilder, deploy.BuildSource{
				RepoURL: d.Build.RepoURL,
				Path:    d.Build.Path,
				NoCache: d.Build.NoCache,
			}))
		}
		tasks = append(tasks, deploy.NewTasks(target, dialer, opts, log, with...))
	}
	return deploy.NewManager(tasks...)
}
