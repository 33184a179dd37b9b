package ports

import "context"

// BuildRequest describes an image build on the controlling machine.
type BuildRequest struct {
	// RepoURL is cloned before building when set; Path is then relative to the clone.
	RepoURL string
	Path    string
	// Tag is the full image reference the result is tagged with.
	Tag     string
	NoCache bool
}

// BuilderService defines operations for building container images from source code.
type BuilderService interface {
	// BuildImage builds (and optionally clones the source of) a Docker image.
	// It returns the reference the image was tagged with.
	BuildImage(ctx context.Context, req BuildRequest) (string, error)
}
