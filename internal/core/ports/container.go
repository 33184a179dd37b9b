package ports

import "context"

// UpdateRequest selects the image a Deployable is moved to.
// Empty Tag and Registry keep the values the entity was declared with.
type UpdateRequest struct {
	Tag      string
	Registry string
	Force    bool
}

// Deployable defines the lifecycle operations the task layer drives on every host.
// Containers and swarm services both implement it, so tasks do not need to know
// which kind of workload they are deploying.
type Deployable interface {
	Name() string
	// ImageRef renders the image reference for the given tag and registry overrides.
	ImageRef(tag, registry string) string
	Pull(ctx context.Context, r Runner, tag, registry string) error
	// Update returns true when the host state changed.
	Update(ctx context.Context, r Runner, req UpdateRequest) (bool, error)
	Revert(ctx context.Context, r Runner) error
	Migrate(ctx context.Context, r Runner, tag, registry string) error
	MigrateBack(ctx context.Context, r Runner) error
	Backup(ctx context.Context, r Runner) error
	Restore(ctx context.Context, r Runner, backupName string) error
}
