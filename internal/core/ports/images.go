package ports

import "context"

// ImageService manages images in the Docker daemon of the controlling machine.
type ImageService interface {
	Pull(ctx context.Context, ref string) error
	Tag(ctx context.Context, source, target string) error
	Push(ctx context.Context, ref string) error
	Remove(ctx context.Context, ref string) error
	PruneDangling(ctx context.Context) error
}
