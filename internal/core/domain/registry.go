package domain

import (
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
)

// Registry is a docker registry address in host[:port] form.
type Registry string

// ParseRegistry validates s as a registry address.
func ParseRegistry(s string) (Registry, error) {
	if _, err := name.NewRegistry(s, name.WeakValidation); err != nil {
		return "", fmt.Errorf("parse registry %q: %w", s, err)
	}
	return Registry(s), nil
}

func (r Registry) String() string { return string(r) }

// Host returns the registry address without the port.
func (r Registry) Host() string {
	host, _, _ := strings.Cut(string(r), ":")
	return host
}

// Port returns the port part of the address, or "" when none is given.
func (r Registry) Port() string {
	_, port, _ := strings.Cut(string(r), ":")
	return port
}
