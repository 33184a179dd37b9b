package deploy

import (
	"context"
	"fmt"
	"sync"

	"github.com/melih/lighthouse-deploy/internal/core/domain"
	"github.com/melih/lighthouse-deploy/internal/core/ports"
)

type entry struct {
	tasks *Tasks
	// serializes runs of one deployment
	mu sync.Mutex
}

// Manager serves a fixed set of deployments by name.
type Manager struct {
	order   []string
	entries map[string]*entry
}

var _ ports.DeploymentService = (*Manager)(nil)

func NewManager(tasks ...*Tasks) (*Manager, error) {
	m := &Manager{entries: make(map[string]*entry, len(tasks))}
	for _, t := range tasks {
		if _, ok := m.entries[t.Name()]; ok {
			return nil, fmt.Errorf("deployment %q declared twice", t.Name())
		}
		m.entries[t.Name()] = &entry{tasks: t}
		m.order = append(m.order, t.Name())
	}
	return m, nil
}

// Tasks returns the tasks of the named deployment.
func (m *Manager) Tasks(name string) (*Tasks, error) {
	e, ok := m.entries[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ports.ErrDeploymentNotFound)
	}
	return e.tasks, nil
}

func (m *Manager) List() []ports.DeploymentInfo {
	out := make([]ports.DeploymentInfo, 0, len(m.order))
	for _, name := range m.order {
		t := m.entries[name].tasks
		out = append(out, ports.DeploymentInfo{
			Name:  name,
			Kind:  kind(t.Target()),
			Image: t.Target().ImageRef("", ""),
			Hosts: append([]string{}, t.Options().Hosts...),
		})
	}
	return out
}

func kind(d ports.Deployable) string {
	switch d.(type) {
	case *domain.Service:
		return "service"
	case *domain.Container:
		return "container"
	default:
		return "custom"
	}
}

func (m *Manager) with(name string, fn func(t *Tasks) error) error {
	e, ok := m.entries[name]
	if !ok {
		return fmt.Errorf("%q: %w", name, ports.ErrDeploymentNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.tasks)
}

func (m *Manager) Deploy(ctx context.Context, name string, req ports.DeployRequest) error {
	return m.with(name, func(t *Tasks) error { return t.Deploy(ctx, req) })
}

func (m *Manager) Update(ctx context.Context, name, tag string, force bool) error {
	return m.with(name, func(t *Tasks) error { return t.Update(ctx, tag, force) })
}

func (m *Manager) Rollback(ctx context.Context, name string, migrateBack bool) error {
	return m.with(name, func(t *Tasks) error { return t.Rollback(ctx, migrateBack) })
}
