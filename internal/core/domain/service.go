package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"sync/atomic"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/docker/docker/api/types/swarm"

	"github.com/melih/lighthouse-deploy/internal/core/ports"
)

const (
	leaderCommand = `docker node inspect --format '{{.ManagerStatus.Leader}}' self`
	// serviceOptionsLabel is stashed on the sentinel with the options last applied to the service.
	serviceOptionsLabel = "_service_options"
)

var serviceSchema = NewSchema("service", nil,
	Option("replicas", Default(1)),
	Option("mounts", Wire("mount"), Removable(mountDiff)),
	Option("network"),
	Option("restart_condition", Wire("restart-condition")),
	Option("labels", Wire("label"), Removable(labelDiff)),
	Option("container_labels", Wire("container-label"), Removable(containerLabelDiff)),
	Option("constraints", Wire("constraint"), Removable(constraintDiff)),
	Option("stop_timeout", Wire("stop-grace-period"), Computed(sentinelStopTimeout)),
	Option("env", Computed(fromSentinel("env")), Removable(envDiff)),
	Option("ports", Wire("publish"), Computed(fromSentinel("ports")), Removable(portDiff)),
	Option("user", Computed(fromSentinel("user"))),
	Attribute("image", Computed(func(owner any) any {
		if s := owner.(*Service); s.sentinel != nil {
			return s.sentinel.image
		}
		return nil
	})),
	Attribute("command", Computed(fromSentinel("command"))),
	Attribute("args"),
)

func fromSentinel(field string) func(owner any) any {
	return func(owner any) any {
		if s := owner.(*Service); s.sentinel != nil {
			return s.sentinel.Get(field)
		}
		return nil
	}
}

// sentinelStopTimeout turns the sentinel's stop timeout in seconds into a duration.
func sentinelStopTimeout(owner any) any {
	v := fromSentinel("stop_timeout")(owner)
	switch t := v.(type) {
	case int:
		return strconv.Itoa(t) + "s"
	case string:
		if _, err := strconv.Atoi(t); err == nil {
			return t + "s"
		}
	}
	return v
}

// Service is the desired state of a swarm service.
//
// The sentinel container stands for one replica. Options the service does not
// set are taken from it, and every manager keeps it created (never started)
// so the last deployed image survives for Revert.
type Service struct {
	Entity
	sentinel *Container
	// epoch invalidates cached inspections once the service was changed.
	// Forks with the same name share it.
	epoch *atomic.Uint64
}

var _ ports.Deployable = (*Service)(nil)

// ServiceOverrides are the values a service fork replaces.
type ServiceOverrides struct {
	Name       string
	Container  *Container
	Options    Options
	Attributes Attributes
}

// NewService declares a service. container, when given, is the template of the
// sentinel; otherwise the image attribute is required.
func NewService(name string, container *Container, options Options, attrs Attributes) (*Service, error) {
	s := &Service{epoch: new(atomic.Uint64)}
	if ref, ok := attrs["image"].(string); ok {
		img, err := ParseImage(ref)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", name, err)
		}
		attrs = maps.Clone(attrs)
		attrs["image"] = img
	}
	e, err := newEntity(serviceSchema, s, name, options, attrs)
	if err != nil {
		return nil, err
	}
	s.Entity = e

	var image *Image
	if img, ok := e.values["image"].(Image); ok {
		image = &img
	}
	switch {
	case container != nil:
		s.sentinel, err = container.Fork(Overrides{Name: name, Image: image})
		if err != nil {
			return nil, err
		}
	case image != nil:
		s.sentinel, err = NewContainer(name, *image, nil, nil)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("service %s: no image and no container given", name)
	}
	s.sentinel.createOnly = true
	return s, nil
}

// Fork returns a copy of s carrying only its explicitly set fields, with o applied on top.
func (s *Service) Fork(o ServiceOverrides) (*Service, error) {
	name := o.Name
	if name == "" {
		name = s.name
	}
	container := o.Container
	if container == nil {
		container = s.sentinel
	}
	options, attrs := s.forkFields(o.Options, o.Attributes)
	fork, err := NewService(name, container, options, attrs)
	if err != nil {
		return nil, err
	}
	if name == s.name {
		fork.epoch = s.epoch
	}
	return fork, nil
}

// Sentinel returns the container tracking the service on every manager.
func (s *Service) Sentinel() *Container { return s.sentinel }

func (s *Service) Image() Image {
	img, _ := s.Get("image").(Image)
	return img
}

func (s *Service) ImageRef(tag, registry string) string {
	return s.Image().Rebind(registry, tag).String()
}

// Info inspects the live service. Results are cached until the service is changed.
func (s *Service) Info(ctx context.Context, r ports.Runner) (swarm.Service, error) {
	key := fmt.Sprintf("service-info:%s:%d", s.name, s.epoch.Load())
	return inspect[swarm.Service](ctx, r, "docker service inspect "+s.name, ErrServiceNotFound,
		ports.CacheKey(key), ports.Quiet())
}

// role reports whether the host is a swarm manager and whether it leads the swarm.
func role(ctx context.Context, r ports.Runner) (manager, leader bool, err error) {
	res, err := r.Run(ctx, leaderCommand, ports.IgnoreErrors(), ports.UseCache(), ports.Quiet())
	if err != nil {
		return false, false, err
	}
	if res.Failed() {
		return false, false, nil
	}
	return true, res.String() == "true", nil
}

// Update brings the service to the image selected by req.
//
// Hosts that are not managers do nothing. Every manager updates its sentinel
// and reports a change when the sentinel was replaced, but only the leader
// creates or updates the service itself.
func (s *Service) Update(ctx context.Context, r ports.Runner, req ports.UpdateRequest) (bool, error) {
	image, err := s.Image().Target(req.Registry, req.Tag)
	if err != nil {
		return false, fmt.Errorf("service %s: %w", s.name, err)
	}
	manager, leader, err := role(ctx, r)
	if err != nil || !manager {
		return false, err
	}

	live, err := s.Info(ctx, r)
	exists := true
	switch {
	case errors.Is(err, ErrServiceNotFound):
		exists = false
	case err != nil:
		return false, err
	}

	var options string
	if exists {
		digest, err := image.RepoDigest(ctx, r)
		if err != nil {
			return false, err
		}
		flags := append(Flags{{Name: "image", Value: digest}}, s.updateFlags(live)...)
		options = flags.String()
	} else {
		options = Command(s.createFlags().String(), image.String(), s.command(), s.args())
	}

	sentinel, err := s.stamp(options)
	if err != nil {
		return false, err
	}
	changed, err := sentinel.Update(ctx, r, req)
	if err != nil {
		return false, fmt.Errorf("update sentinel of service %s: %w", s.name, err)
	}
	if !changed || !leader {
		return changed, nil
	}

	command := Command("docker service create", options)
	if exists {
		command = Command("docker service update", options, s.name)
	}
	if _, err := r.Run(ctx, command); err != nil {
		return false, err
	}
	s.epoch.Add(1)
	return true, nil
}

// updateFlags renders the options of docker service update. List options are
// sent in full with "-add" after the live values missing from them are removed
// with "-rm".
func (s *Service) updateFlags(live swarm.Service) Flags {
	var flags Flags
	for _, f := range serviceSchema.Fields(OptionField) {
		value := s.Get(f.Name)
		switch {
		case f.Name == "network":
			// networks can only be set at creation
		case f.Diff != nil:
			desired := stringList(value)
			flags = append(flags,
				Flag{Name: f.Wire + "-rm", Value: f.Diff.Remove(live, desired)},
				Flag{Name: f.Wire + "-add", Value: desired},
			)
		default:
			flags = append(flags, Flag{Name: f.Wire, Value: value})
		}
	}
	if args := s.args(); args != "" {
		flags = append(flags, Flag{Name: "args", Value: args})
	}
	return append(flags, s.extraFlags()...)
}

func (s *Service) createFlags() Flags {
	return append(Flags{{Name: "name", Value: s.name}}, s.Flags()...)
}

func (s *Service) command() string {
	if v := s.Get("command"); v != nil {
		return valueString(v)
	}
	return ""
}

func (s *Service) args() string {
	return strings.Join(stringList(s.Get("args")), " ")
}

// stamp returns a fork of the sentinel labelled with the service options about to be applied.
func (s *Service) stamp(options string) (*Container, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(options); err != nil {
		return nil, err
	}
	labels := []string{}
	for _, l := range stringList(s.sentinel.Get("labels")) {
		if beforeEquals(l) != serviceOptionsLabel {
			labels = append(labels, l)
		}
	}
	labels = append(labels, serviceOptionsLabel+"="+asciiJSON(strings.TrimSpace(buf.String())))
	return s.sentinel.Fork(Overrides{Options: Options{"labels": labels}})
}

// asciiJSON escapes every non-ASCII rune of an encoded JSON value as \uXXXX.
func asciiJSON(encoded string) string {
	var b strings.Builder
	for _, c := range encoded {
		switch {
		case c < utf8.RuneSelf:
			b.WriteRune(c)
		case c > 0xFFFF:
			hi, lo := utf16.EncodeRune(c)
			fmt.Fprintf(&b, "\\u%04x\\u%04x", hi, lo)
		default:
			fmt.Fprintf(&b, "\\u%04x", c)
		}
	}
	return b.String()
}

// AppliedOptions returns the service options recorded on the live sentinel
// by the last Update on this host.
func (s *Service) AppliedOptions(ctx context.Context, r ports.Runner) (string, error) {
	info, err := s.sentinel.Info(ctx, r)
	if err != nil {
		return "", err
	}
	if info.Config == nil {
		return "", nil
	}
	raw, ok := info.Config.Labels[serviceOptionsLabel]
	if !ok {
		return "", nil
	}
	var options string
	if err := json.Unmarshal([]byte(raw), &options); err != nil {
		return "", fmt.Errorf("decode %s label: %w", serviceOptionsLabel, err)
	}
	return options, nil
}

// Revert restores the sentinel kept by the last Update and rolls the service
// back to its previous specification. Like Update it only acts on managers.
func (s *Service) Revert(ctx context.Context, r ports.Runner) error {
	manager, leader, err := role(ctx, r)
	if err != nil || !manager {
		return err
	}
	if err := s.sentinel.Revert(ctx, r); err != nil {
		return fmt.Errorf("revert sentinel of service %s: %w", s.name, err)
	}
	if !leader {
		return nil
	}
	if _, err := r.Run(ctx, "docker service update --rollback "+s.name); err != nil {
		return err
	}
	s.epoch.Add(1)
	return nil
}

// Pull fetches the service image on the host.
func (s *Service) Pull(ctx context.Context, r ports.Runner, tag, registry string) error {
	image, err := s.Image().Target(registry, tag)
	if err != nil {
		return fmt.Errorf("service %s: %w", s.name, err)
	}
	return image.Pull(ctx, r)
}

func (s *Service) Migrate(context.Context, ports.Runner, string, string) error { return nil }

func (s *Service) MigrateBack(context.Context, ports.Runner) error { return nil }

func (s *Service) Backup(context.Context, ports.Runner) error { return nil }

func (s *Service) Restore(context.Context, ports.Runner, string) error { return nil }
