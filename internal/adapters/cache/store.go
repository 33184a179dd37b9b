// Package cache memoizes the results of read-only remote commands for one run.
package cache

import (
	"context"
	"io"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/melih/lighthouse-deploy/internal/core/ports"
)

type key struct {
	host     string
	command  string
	cacheKey string
}

// Store holds command results keyed by host, command text and cache key.
// Only commands run with ports.UseCache or ports.CacheKey are stored.
// Results are kept until the Store is dropped; callers change the cache key
// to force a fresh read.
type Store struct {
	mu      sync.Mutex
	results map[key]ports.Result
	group   singleflight.Group
}

func NewStore() *Store {
	return &Store{results: make(map[key]ports.Result)}
}

// Wrap returns a Runner that answers cacheable commands from s.
func (s *Store) Wrap(r ports.Runner) ports.Runner {
	return &runner{Runner: r, store: s}
}

// Len returns the number of stored results.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

func (s *Store) get(k key) (ports.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.results[k]
	return res, ok
}

func (s *Store) put(k key, res ports.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[k] = res
}

type runner struct {
	ports.Runner
	store *Store
}

func (c *runner) Run(ctx context.Context, command string, opts ...ports.RunOption) (ports.Result, error) {
	o := ports.ApplyRunOptions(opts...)
	if !o.UseCache {
		return c.Runner.Run(ctx, command, opts...)
	}
	k := key{host: c.Host(), command: command, cacheKey: o.CacheKey}
	if res, ok := c.store.get(k); ok {
		return res, o.Check(res)
	}

	// Identical lookups from concurrent callers share one remote call.
	flight := k.host + "\x00" + k.cacheKey + "\x00" + k.command
	v, err, _ := c.store.group.Do(flight, func() (any, error) {
		res, err := c.Runner.Run(ctx, command, append(opts, ports.IgnoreErrors())...)
		if err != nil {
			return nil, err
		}
		c.store.put(k, res)
		return res, nil
	})
	if err != nil {
		return ports.Result{}, err
	}
	res := v.(ports.Result)
	return res, o.Check(res)
}

// Close closes the wrapped Runner when it holds a connection.
func (c *runner) Close() error {
	if closer, ok := c.Runner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
