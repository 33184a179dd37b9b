package domain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/melih/lighthouse-deploy/internal/core/ports"
)

// inspect runs a docker inspect style command and decodes the first element
// of the returned JSON array into T. A failing command or an empty array
// yields notFound.
func inspect[T any](ctx context.Context, r ports.Runner, command string, notFound error, opts ...ports.RunOption) (T, error) {
	var zero T
	res, err := r.Run(ctx, command, append(opts, ports.AbortWith(notFound))...)
	if err != nil {
		return zero, err
	}
	var items []T
	if err := json.Unmarshal([]byte(res.Stdout), &items); err != nil {
		return zero, fmt.Errorf("decode %q output: %w", command, err)
	}
	if len(items) == 0 {
		return zero, notFound
	}
	return items[0], nil
}
