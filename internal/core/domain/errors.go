package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by every "resource is absent" error.
var ErrNotFound = errors.New("not found")

var (
	ErrContainerNotFound = fmt.Errorf("container %w", ErrNotFound)
	ErrImageNotFound     = fmt.Errorf("image %w", ErrNotFound)
	ErrServiceNotFound   = fmt.Errorf("service %w", ErrNotFound)
)

// UnknownFieldError is returned when an entity is given a field its schema does not declare.
type UnknownFieldError struct {
	Entity string
	Kind   FieldKind
	Field  string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("%s: unknown %s: %s", e.Entity, e.Kind, e.Field)
}
