// Package deploy sequences the lifecycle operations of a deployment across its hosts.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/melih/lighthouse-deploy/internal/core/ports"
)

// Cache decorates the runners of one run.
type Cache interface {
	Wrap(r ports.Runner) ports.Runner
}

// Options select where and how a deployment runs.
type Options struct {
	// Infrastructure names the environment; guarded operations run once per infrastructure.
	Infrastructure string
	Hosts          []string
	Parallel       bool
	// PoolSize limits the hosts worked on at once in parallel mode. Zero means no limit.
	PoolSize int
	// Registry is the registry images are pushed to from the controlling machine.
	// Prepare and Push do nothing when it is empty and no build is configured.
	Registry string
	// HostRegistry is the same registry as reached from the hosts. Defaults to Registry.
	HostRegistry string
}

func (o Options) hostRegistry() string {
	if o.HostRegistry != "" {
		return o.HostRegistry
	}
	return o.Registry
}

// BuildSource makes Prepare build the image instead of pulling it.
type BuildSource struct {
	RepoURL string
	Path    string
	NoCache bool
}

type Option func(*Tasks)

// WithImages sets the image service of the controlling machine used by Prepare and Push.
func WithImages(images ports.ImageService) Option {
	return func(t *Tasks) { t.images = images }
}

// WithBuilder makes Prepare build the image from src.
func WithBuilder(builder ports.BuilderService, src BuildSource) Option {
	return func(t *Tasks) {
		t.builder = builder
		t.source = src
	}
}

// WithCache gives every run a fresh command cache created by newCache.
func WithCache(newCache func() Cache) Option {
	return func(t *Tasks) { t.newCache = newCache }
}

// Tasks drives one Deployable across the configured hosts.
type Tasks struct {
	target   ports.Deployable
	dialer   ports.Dialer
	opts     Options
	log      *zap.Logger
	images   ports.ImageService
	builder  ports.BuilderService
	source   BuildSource
	newCache func() Cache
}

func NewTasks(target ports.Deployable, dialer ports.Dialer, opts Options, log *zap.Logger, with ...Option) *Tasks {
	t := &Tasks{
		target: target,
		dialer: dialer,
		opts:   opts,
		log:    log.With(zap.String("deployment", target.Name())),
	}
	for _, fn := range with {
		fn(t)
	}
	return t
}

func (t *Tasks) Name() string { return t.target.Name() }

func (t *Tasks) Target() ports.Deployable { return t.target }

func (t *Tasks) Options() Options { return t.opts }

// run holds what lives for one task invocation: the guard, the command cache
// and the connections to the hosts.
type run struct {
	guard *Guard
	cache Cache

	mu      sync.Mutex
	runners map[string]ports.Runner
}

func (t *Tasks) newRun() *run {
	r := &run{guard: NewGuard(), runners: make(map[string]ports.Runner)}
	if t.newCache != nil {
		r.cache = t.newCache()
	}
	return r
}

func (t *Tasks) runner(ctx context.Context, rn *run, host string) (ports.Runner, error) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	if r, ok := rn.runners[host]; ok {
		return r, nil
	}
	r, err := t.dialer.Dial(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", host, err)
	}
	if rn.cache != nil {
		r = rn.cache.Wrap(r)
	}
	rn.runners[host] = r
	return r, nil
}

func (rn *run) close() error {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	var errs []error
	for host, r := range rn.runners {
		if c, ok := r.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", host, err))
			}
		}
	}
	rn.runners = nil
	return errors.Join(errs...)
}

// session runs fn with a fresh run and tears it down afterwards.
func (t *Tasks) session(fn func(rn *run) error) (err error) {
	rn := t.newRun()
	defer func() {
		if cerr := rn.close(); cerr != nil {
			t.log.Warn("failed to close connections", zap.Error(cerr))
		}
	}()
	return fn(rn)
}

// eachHost calls fn for every host, serially or in parallel.
func (t *Tasks) eachHost(ctx context.Context, rn *run, task string, fn func(ctx context.Context, r ports.Runner) error) error {
	if len(t.opts.Hosts) == 0 {
		t.log.Info("task skipped (no host provided)", zap.String("task", task))
		return nil
	}
	do := func(ctx context.Context, host string) error {
		r, err := t.runner(ctx, rn, host)
		if err != nil {
			return err
		}
		t.log.Debug("running task", zap.String("task", task), zap.String("host", host))
		if err := fn(ctx, r); err != nil {
			return fmt.Errorf("%s on %s: %w", task, host, err)
		}
		return nil
	}

	if !t.opts.Parallel {
		for _, host := range t.opts.Hosts {
			if err := do(ctx, host); err != nil {
				return err
			}
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	if t.opts.PoolSize > 0 {
		g.SetLimit(t.opts.PoolSize)
	}
	for _, host := range t.opts.Hosts {
		g.Go(func() error { return do(ctx, host) })
	}
	return g.Wait()
}

// guarded runs fn on the first host to get there only.
func (t *Tasks) guarded(ctx context.Context, rn *run, task string, fn func(ctx context.Context, r ports.Runner) error) error {
	participants := 0
	if t.opts.Parallel {
		participants = len(t.opts.Hosts)
	}
	return t.eachHost(ctx, rn, task, func(ctx context.Context, r ports.Runner) error {
		err := rn.guard.Do(t.opts.Infrastructure, t.Name()+"."+task, participants, func() error {
			return fn(ctx, r)
		})
		if errors.Is(err, ErrConcurrencyDenied) {
			t.log.Debug("task already handled by another host", zap.String("task", task), zap.String("host", r.Host()))
			return nil
		}
		return err
	})
}

// Prepare makes the image available on the controlling machine: it is built
// when a builder is configured, pulled otherwise. Dangling images are pruned.
func (t *Tasks) Prepare(ctx context.Context, tag string) error {
	if t.builder == nil && t.opts.Registry == "" {
		return nil
	}
	if t.images == nil {
		return errors.New("prepare: no local docker daemon configured")
	}
	if t.builder != nil {
		ref := t.target.ImageRef(tag, t.opts.Registry)
		if _, err := t.builder.BuildImage(ctx, ports.BuildRequest{
			RepoURL: t.source.RepoURL,
			Path:    t.source.Path,
			Tag:     ref,
			NoCache: t.source.NoCache,
		}); err != nil {
			return err
		}
	} else if err := t.images.Pull(ctx, t.target.ImageRef(tag, "")); err != nil {
		return err
	}
	return t.images.PruneDangling(ctx)
}

// Push uploads the prepared image to Registry. A pulled image is tagged for
// the registry first and the temporary tag is removed afterwards.
func (t *Tasks) Push(ctx context.Context, tag string) error {
	if t.builder == nil && t.opts.Registry == "" {
		return nil
	}
	if t.images == nil {
		return errors.New("push: no local docker daemon configured")
	}
	target := t.target.ImageRef(tag, t.opts.Registry)
	if t.builder != nil {
		return t.images.Push(ctx, target)
	}
	if err := t.images.Tag(ctx, t.target.ImageRef(tag, ""), target); err != nil {
		return err
	}
	if err := t.images.Push(ctx, target); err != nil {
		return err
	}
	return t.images.Remove(ctx, target)
}

func (t *Tasks) Pull(ctx context.Context, tag string) error {
	return t.session(func(rn *run) error { return t.pull(ctx, rn, tag) })
}

func (t *Tasks) pull(ctx context.Context, rn *run, tag string) error {
	return t.eachHost(ctx, rn, "pull", func(ctx context.Context, r ports.Runner) error {
		return t.target.Pull(ctx, r, tag, t.opts.hostRegistry())
	})
}

func (t *Tasks) Migrate(ctx context.Context, tag string) error {
	return t.session(func(rn *run) error { return t.migrate(ctx, rn, tag) })
}

func (t *Tasks) migrate(ctx context.Context, rn *run, tag string) error {
	return t.guarded(ctx, rn, "migrate", func(ctx context.Context, r ports.Runner) error {
		return t.target.Migrate(ctx, r, tag, t.opts.hostRegistry())
	})
}

func (t *Tasks) MigrateBack(ctx context.Context) error {
	return t.session(func(rn *run) error { return t.migrateBack(ctx, rn) })
}

func (t *Tasks) migrateBack(ctx context.Context, rn *run) error {
	return t.guarded(ctx, rn, "migrate-back", t.target.MigrateBack)
}

func (t *Tasks) Backup(ctx context.Context) error {
	return t.session(func(rn *run) error { return t.backup(ctx, rn) })
}

func (t *Tasks) backup(ctx context.Context, rn *run) error {
	return t.guarded(ctx, rn, "backup", t.target.Backup)
}

func (t *Tasks) Restore(ctx context.Context, backupName string) error {
	return t.session(func(rn *run) error {
		return t.guarded(ctx, rn, "restore", func(ctx context.Context, r ports.Runner) error {
			return t.target.Restore(ctx, r, backupName)
		})
	})
}

// Update moves every host to the image selected by tag.
func (t *Tasks) Update(ctx context.Context, tag string, force bool) error {
	return t.session(func(rn *run) error { return t.update(ctx, rn, tag, force) })
}

func (t *Tasks) update(ctx context.Context, rn *run, tag string, force bool) error {
	req := ports.UpdateRequest{Tag: tag, Registry: t.opts.hostRegistry(), Force: force}
	return t.eachHost(ctx, rn, "update", func(ctx context.Context, r ports.Runner) error {
		changed, err := t.target.Update(ctx, r, req)
		if err != nil {
			return err
		}
		if !changed {
			t.log.Info("No changes detected, update skipped.", zap.String("host", r.Host()))
		}
		return nil
	})
}

// Revert restores the state kept by the last Update on every host.
func (t *Tasks) Revert(ctx context.Context) error {
	return t.session(func(rn *run) error { return t.revert(ctx, rn) })
}

func (t *Tasks) revert(ctx context.Context, rn *run) error {
	return t.eachHost(ctx, rn, "revert", t.target.Revert)
}

// Rollback undoes migrations when migrateBack is set and reverts every host.
func (t *Tasks) Rollback(ctx context.Context, migrateBack bool) error {
	return t.session(func(rn *run) error {
		if migrateBack {
			if err := t.migrateBack(ctx, rn); err != nil {
				return err
			}
		}
		return t.revert(ctx, rn)
	})
}

// Deploy runs prepare, push, backup, pull, migrate and update in that order,
// every step on all hosts before the next one starts.
func (t *Tasks) Deploy(ctx context.Context, req ports.DeployRequest) error {
	if req.Prepare {
		if err := t.Prepare(ctx, req.Tag); err != nil {
			return err
		}
		if err := t.Push(ctx, req.Tag); err != nil {
			return err
		}
	}
	return t.session(func(rn *run) error {
		if req.Backup {
			if err := t.backup(ctx, rn); err != nil {
				return err
			}
		}
		if err := t.pull(ctx, rn, req.Tag); err != nil {
			return err
		}
		if req.Migrate {
			if err := t.migrate(ctx, rn, req.Tag); err != nil {
				return err
			}
		}
		return t.update(ctx, rn, req.Tag, req.Force)
	})
}
