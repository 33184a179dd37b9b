package domain

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/google/go-containerregistry/pkg/name"

	"github.com/melih/lighthouse-deploy/internal/core/ports"
)

// DefaultTag is used when a reference names no tag and no digest.
const DefaultTag = "latest"

// Image addresses a docker image as [registry/]name[:tag][@digest].
//
// Images are plain values. The image of a Container is additionally bound to
// the container name, which makes ID report the image the live container runs.
type Image struct {
	Registry string
	Name     string
	Tag      string
	Digest   string

	container string
}

// ParseImage splits ref into its registry, name, tag and digest.
// The first path segment is a registry when it contains '.' or ':' or is "localhost".
func ParseImage(ref string) (Image, error) {
	if ref == "" {
		return Image{}, fmt.Errorf("parse image: empty reference")
	}
	var img Image
	rest := ref
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		rest, img.Digest = rest[:i], rest[i+1:]
	}
	if i := strings.LastIndexByte(rest, ':'); i >= 0 && !strings.Contains(rest[i+1:], "/") {
		rest, img.Tag = rest[:i], rest[i+1:]
	}
	if first, remainder, ok := strings.Cut(rest, "/"); ok && isRegistry(first) {
		img.Registry, rest = first, remainder
	}
	img.Name = rest
	if img.Tag == "" && img.Digest == "" {
		img.Tag = DefaultTag
	}
	if _, err := img.Reference(); err != nil {
		return Image{}, fmt.Errorf("parse image %q: %w", ref, err)
	}
	return img, nil
}

// MustParseImage is like ParseImage but panics on error.
func MustParseImage(ref string) Image {
	img, err := ParseImage(ref)
	if err != nil {
		panic(err)
	}
	return img
}

func isRegistry(segment string) bool {
	return strings.ContainsAny(segment, ".:") || segment == "localhost"
}

// String renders the canonical reference, registry/name:tag or name:tag,
// with @digest appended when the image is pinned.
func (img Image) String() string {
	var b strings.Builder
	if img.Registry != "" {
		b.WriteString(img.Registry)
		b.WriteByte('/')
	}
	b.WriteString(img.Name)
	if img.Tag != "" {
		b.WriteByte(':')
		b.WriteString(img.Tag)
	}
	if img.Digest != "" {
		b.WriteByte('@')
		b.WriteString(img.Digest)
	}
	return b.String()
}

// Reference validates the image as a registry reference.
func (img Image) Reference() (name.Reference, error) {
	return name.ParseReference(img.String(), name.WeakValidation)
}

// Rebind returns a copy of img pointing at registry and tag.
// Empty arguments keep the current values. A new tag drops the digest.
// The copy is not bound to a container.
func (img Image) Rebind(registry, tag string) Image {
	out := Image{Registry: img.Registry, Name: img.Name, Tag: img.Tag, Digest: img.Digest}
	if registry != "" {
		out.Registry = registry
	}
	if tag != "" {
		out.Tag, out.Digest = tag, ""
	}
	return out
}

var registryPattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9.-]*[A-Za-z0-9])?(:[0-9]+)?$`)

// Target is Rebind for references that end up in docker commands.
// It fails when the rebound image is not a valid reference.
func (img Image) Target(registry, tag string) (Image, error) {
	out := img.Rebind(registry, tag)
	if out.Registry != "" && !registryPattern.MatchString(out.Registry) {
		return Image{}, fmt.Errorf("image %q: invalid registry %q", out.String(), out.Registry)
	}
	if _, err := out.Reference(); err != nil {
		return Image{}, fmt.Errorf("image %q: %w", out.String(), err)
	}
	return out, nil
}

// Container returns the name of the container the image is bound to.
func (img Image) Container() string { return img.container }

func (img Image) bind(container string) Image {
	img.container = container
	return img
}

// ID resolves the image id. A bound image reports the image of the live
// container, an unbound one inspects the reference itself.
func (img Image) ID(ctx context.Context, r ports.Runner) (string, error) {
	if img.container != "" {
		info, err := inspect[types.ContainerJSON](ctx, r,
			"docker inspect --type container "+img.container, ErrContainerNotFound, ports.Quiet())
		if err != nil {
			return "", err
		}
		if info.ContainerJSONBase == nil {
			return "", ErrContainerNotFound
		}
		return info.Image, nil
	}
	info, err := img.Inspect(ctx, r)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// Inspect returns the daemon's record of the image.
func (img Image) Inspect(ctx context.Context, r ports.Runner) (types.ImageInspect, error) {
	return inspect[types.ImageInspect](ctx, r,
		"docker inspect --type image "+img.String(), ErrImageNotFound, ports.Quiet())
}

// RepoDigest returns the first repository digest of the image, which pins the
// exact content. Images without one (never pushed) fall back to String.
func (img Image) RepoDigest(ctx context.Context, r ports.Runner) (string, error) {
	info, err := img.Inspect(ctx, r)
	if err != nil {
		return "", err
	}
	if len(info.RepoDigests) > 0 {
		return info.RepoDigests[0], nil
	}
	return img.String(), nil
}

// Pull fetches the image on the host.
func (img Image) Pull(ctx context.Context, r ports.Runner) error {
	_, err := r.Run(ctx, "docker pull "+img.String(), ports.Quiet())
	return err
}

// Delete removes the image from the host. Failures are ignored since the
// image may still be used by another container.
func (img Image) Delete(ctx context.Context, r ports.Runner, force bool) error {
	return deleteImage(ctx, r, img.String(), force)
}

func deleteImage(ctx context.Context, r ports.Runner, ref string, force bool) error {
	command := "docker rmi " + ref
	if force {
		command = "docker rmi --force " + ref
	}
	_, err := r.Run(ctx, command, ports.IgnoreErrors())
	return err
}
