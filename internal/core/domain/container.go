package domain

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/docker/docker/api/types"

	"github.com/melih/lighthouse-deploy/internal/core/ports"
)

const backupSuffix = "_backup"

// pruneVolumesCommand removes the volumes no container refers to any more.
const pruneVolumesCommand = `docker volume ls --filter "dangling=true" --quiet | xargs --no-run-if-empty docker volume rm`

var containerSchema = NewSchema("container", nil,
	Option("user"),
	Option("ports", Wire("publish")),
	Option("env"),
	Option("volumes", Wire("volume")),
	Option("links", Wire("link")),
	Option("hosts", Wire("add-host")),
	Option("network", Wire("net")),
	Option("restart_policy", Wire("restart")),
	Option("stop_signal", Wire("stop-signal")),
	Option("labels", Wire("label")),
	Attribute("command"),
	Attribute("stop_timeout", Default(10)),
)

// Container is the desired state of one docker container on a host.
// Operations never modify the receiver, so a Container may be shared by
// goroutines working on different hosts.
type Container struct {
	Entity
	image Image
	// createOnly containers are materialized with docker create and never started.
	createOnly bool
}

var _ ports.Deployable = (*Container)(nil)

// Overrides are the values a fork replaces. Zero fields keep the original values.
type Overrides struct {
	Name       string
	Image      *Image
	Options    Options
	Attributes Attributes
}

// NewContainer declares a container. Option keys may be field or wire names;
// unknown option keys are passed to docker verbatim, unknown attributes fail.
func NewContainer(name string, image Image, options Options, attrs Attributes) (*Container, error) {
	c := &Container{image: image.Rebind("", "")}
	e, err := newEntity(containerSchema, c, name, options, attrs)
	if err != nil {
		return nil, err
	}
	c.Entity = e
	return c, nil
}

// Fork returns a copy of c carrying only its explicitly set fields, with o applied on top.
func (c *Container) Fork(o Overrides) (*Container, error) {
	name := o.Name
	if name == "" {
		name = c.name
	}
	image := c.image
	if o.Image != nil {
		image = *o.Image
	}
	options, attrs := c.forkFields(o.Options, o.Attributes)
	fork, err := NewContainer(name, image, options, attrs)
	if err != nil {
		return nil, err
	}
	fork.createOnly = c.createOnly
	return fork, nil
}

// clone is Fork without validation, for overrides built from known fields.
func (c *Container) clone(name string, image Image) *Container {
	fork := &Container{image: image.Rebind("", ""), createOnly: c.createOnly}
	fork.Entity = Entity{
		schema: containerSchema,
		owner:  fork,
		name:   name,
		values: maps.Clone(c.values),
		extra:  maps.Clone(c.extra),
	}
	return fork
}

// Image returns the container image bound to the container name.
func (c *Container) Image() Image { return c.image.bind(c.name) }

// ImageRef renders the image reference the container would run with the given overrides.
func (c *Container) ImageRef(tag, registry string) string {
	return c.image.Rebind(registry, tag).String()
}

func (c *Container) Command() string {
	if v := c.Get("command"); v != nil {
		return valueString(v)
	}
	return ""
}

func (c *Container) StopTimeout() string {
	return valueString(c.Get("stop_timeout"))
}

// CreateOnly reports whether the container is materialized without being started.
func (c *Container) CreateOnly() bool { return c.createOnly }

// BackupContainer returns the container the current one is renamed to during an update.
func (c *Container) BackupContainer() *Container {
	return c.clone(c.name+backupSuffix, c.image)
}

// Info inspects the live container.
func (c *Container) Info(ctx context.Context, r ports.Runner) (types.ContainerJSON, error) {
	return inspect[types.ContainerJSON](ctx, r, "docker inspect --type container "+c.name, ErrContainerNotFound, ports.Quiet())
}

// Run starts the container detached from the image rebound to tag and registry.
func (c *Container) Run(ctx context.Context, r ports.Runner, tag, registry string) error {
	command, err := c.runCommand("docker run", Flags{{Name: "detach", Value: true}}, tag, registry)
	if err != nil {
		return err
	}
	_, err = r.Run(ctx, command)
	return err
}

// Create creates the container without starting it.
func (c *Container) Create(ctx context.Context, r ports.Runner, tag, registry string) error {
	command, err := c.runCommand("docker create", nil, tag, registry)
	if err != nil {
		return err
	}
	_, err = r.Run(ctx, command)
	return err
}

func (c *Container) runCommand(prefix string, mode Flags, tag, registry string) (string, error) {
	image, err := c.image.Target(registry, tag)
	if err != nil {
		return "", fmt.Errorf("container %s: %w", c.name, err)
	}
	flags := append(Flags{{Name: "name", Value: c.name}}, mode...)
	flags = append(flags, c.Flags()...)
	return Command(prefix, flags.String(), image.String(), c.Command()), nil
}

func (c *Container) realize(ctx context.Context, r ports.Runner, tag, registry string) error {
	if c.createOnly {
		return c.Create(ctx, r, tag, registry)
	}
	return c.Run(ctx, r, tag, registry)
}

func (c *Container) Start(ctx context.Context, r ports.Runner) error {
	_, err := r.Run(ctx, "docker start "+c.name)
	return err
}

// Stop stops the container, waiting the stop_timeout before killing it.
func (c *Container) Stop(ctx context.Context, r ports.Runner) error {
	_, err := r.Run(ctx, fmt.Sprintf("docker stop --time %s %s", c.StopTimeout(), c.name))
	return err
}

func (c *Container) Restart(ctx context.Context, r ports.Runner) error {
	_, err := r.Run(ctx, fmt.Sprintf("docker restart --time %s %s", c.StopTimeout(), c.name))
	return err
}

// Rename renames the live container. A missing container fails with ErrContainerNotFound.
func (c *Container) Rename(ctx context.Context, r ports.Runner, newName string) error {
	_, err := r.Run(ctx, fmt.Sprintf("docker rename %s %s", c.name, newName), ports.AbortWith(ErrContainerNotFound))
	return err
}

func (c *Container) Signal(ctx context.Context, r ports.Runner, signal string) error {
	_, err := r.Run(ctx, fmt.Sprintf("docker kill --signal %s %s", signal, c.name))
	return err
}

// Execute runs command inside the container.
func (c *Container) Execute(ctx context.Context, r ports.Runner, command string, opts ...ports.RunOption) (ports.Result, error) {
	opts = append([]ports.RunOption{ports.Quiet()}, opts...)
	return r.Run(ctx, Command("docker exec --tty --interactive", c.name, command), opts...)
}

type DeleteOptions struct {
	Force       bool
	DeleteImage bool
	// KeepVolumes skips removing dangling volumes afterwards.
	KeepVolumes bool
}

// Delete removes the container. With DeleteImage the image it ran is removed
// too, which requires the container to exist so its image id can be read.
func (c *Container) Delete(ctx context.Context, r ports.Runner, opts DeleteOptions) error {
	var imageID string
	if opts.DeleteImage {
		id, err := c.Image().ID(ctx, r)
		if err != nil {
			return err
		}
		imageID = id
	}
	command := "docker rm " + c.name
	if opts.Force {
		command = "docker rm --force " + c.name
	}
	if _, err := r.Run(ctx, command); err != nil {
		return err
	}
	if !opts.KeepVolumes {
		if _, err := r.Run(ctx, pruneVolumesCommand); err != nil {
			return err
		}
	}
	if imageID != "" {
		return deleteImage(ctx, r, imageID, false)
	}
	return nil
}

// Pull fetches the image the container would run with the given overrides.
func (c *Container) Pull(ctx context.Context, r ports.Runner, tag, registry string) error {
	image, err := c.image.Target(registry, tag)
	if err != nil {
		return fmt.Errorf("container %s: %w", c.name, err)
	}
	return image.Pull(ctx, r)
}

// Update replaces the live container with one running the image selected by req.
// The previous container is kept stopped under the backup name for Revert.
// Unless forced, nothing is replaced when the live container already runs the
// target image; the container is only started then and Update returns false.
func (c *Container) Update(ctx context.Context, r ports.Runner, req ports.UpdateRequest) (bool, error) {
	target, err := c.image.Target(req.Registry, req.Tag)
	if err != nil {
		return false, fmt.Errorf("container %s: %w", c.name, err)
	}
	if !req.Force {
		same, err := c.runsImage(ctx, r, target)
		if err != nil {
			return false, err
		}
		if same {
			if !c.createOnly {
				if err := c.Start(ctx, r); err != nil {
					return false, err
				}
			}
			return false, nil
		}
	}

	backup := c.BackupContainer()
	err = backup.Delete(ctx, r, DeleteOptions{DeleteImage: true})
	if err != nil && !errors.Is(err, ErrContainerNotFound) {
		return false, fmt.Errorf("delete %s: %w", backup.name, err)
	}

	switch err := c.Rename(ctx, r, backup.name); {
	case errors.Is(err, ErrContainerNotFound):
		// fresh install
	case err != nil:
		return false, err
	default:
		if err := backup.Stop(ctx, r); err != nil {
			return false, err
		}
	}

	if err := c.realize(ctx, r, req.Tag, req.Registry); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Container) runsImage(ctx context.Context, r ports.Runner, target Image) (bool, error) {
	current, err := c.Image().ID(ctx, r)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	want, err := target.ID(ctx, r)
	if errors.Is(err, ErrImageNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return current == want, nil
}

// Revert brings back the container kept by the last Update and removes the
// current one with its image. Without a backup it does nothing.
func (c *Container) Revert(ctx context.Context, r ports.Runner) error {
	backup := c.BackupContainer()
	if _, err := backup.Info(ctx, r); err != nil {
		if errors.Is(err, ErrContainerNotFound) {
			return nil
		}
		return err
	}
	if !c.createOnly {
		if err := c.Stop(ctx, r); err != nil {
			return err
		}
		if err := backup.Start(ctx, r); err != nil {
			return err
		}
	}
	if err := c.Delete(ctx, r, DeleteOptions{DeleteImage: true}); err != nil {
		return err
	}
	return backup.Rename(ctx, r, c.name)
}

func (c *Container) Migrate(context.Context, ports.Runner, string, string) error { return nil }

func (c *Container) MigrateBack(context.Context, ports.Runner) error { return nil }

func (c *Container) Backup(context.Context, ports.Runner) error { return nil }

func (c *Container) Restore(context.Context, ports.Runner, string) error { return nil }
