// Package manifest reads the declared containers and services from YAML.
package manifest

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/melih/lighthouse-deploy/internal/core/domain"
	"github.com/melih/lighthouse-deploy/internal/core/ports"
)

const (
	KindContainer = "container"
	KindService   = "service"
)

// Manifest is the root of a manifest file:
//
//	deployments:
//	  - name: web
//	    image: registry.example.com/web:1
//	    options:
//	      ports: ["80:80"]
//	    attributes:
//	      command: serve
//	  - name: api
//	    kind: service
//	    image: api:1
//	    options:
//	      replicas: 3
type Manifest struct {
	Deployments []Deployment `yaml:"deployments"`
}

type Deployment struct {
	Name  string `yaml:"name"`
	Kind  string `yaml:"kind"`
	Image string `yaml:"image"`
	// Hosts replaces the configured hosts for this deployment.
	Hosts      []string       `yaml:"hosts"`
	Options    map[string]any `yaml:"options"`
	Attributes map[string]any `yaml:"attributes"`
	// Container is the sentinel template of a service.
	Container *ContainerSpec `yaml:"container"`
	Build     *Build         `yaml:"build"`
}

type ContainerSpec struct {
	Options    map[string]any `yaml:"options"`
	Attributes map[string]any `yaml:"attributes"`
}

// Build makes the image of a deployment be built instead of pulled.
type Build struct {
	RepoURL string `yaml:"repo_url"`
	Path    string `yaml:"path"`
	NoCache bool   `yaml:"no_cache"`
}

func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	seen := make(map[string]bool, len(m.Deployments))
	for i, d := range m.Deployments {
		if d.Name == "" {
			return nil, fmt.Errorf("deployment #%d: name is required", i+1)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("deployment %s: declared twice", d.Name)
		}
		seen[d.Name] = true
		switch d.Kind {
		case "", KindContainer, KindService:
		default:
			return nil, fmt.Errorf("deployment %s: unknown kind %q", d.Name, d.Kind)
		}
	}
	return &m, nil
}

// Deployable builds the domain entity d declares.
func (d Deployment) Deployable() (ports.Deployable, error) {
	if d.Kind == KindService {
		return d.service()
	}
	if d.Image == "" {
		return nil, fmt.Errorf("container %s: image is required", d.Name)
	}
	img, err := domain.ParseImage(d.Image)
	if err != nil {
		return nil, fmt.Errorf("container %s: %w", d.Name, err)
	}
	return domain.NewContainer(d.Name, img, d.Options, d.Attributes)
}

func (d Deployment) service() (*domain.Service, error) {
	attrs := domain.Attributes{}
	for k, v := range d.Attributes {
		attrs[k] = v
	}
	if _, ok := attrs["image"]; !ok && d.Image != "" {
		attrs["image"] = d.Image
	}

	var sentinel *domain.Container
	if d.Container != nil {
		if d.Image == "" {
			return nil, errors.New("service " + d.Name + ": container template needs an image")
		}
		img, err := domain.ParseImage(d.Image)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", d.Name, err)
		}
		sentinel, err = domain.NewContainer(d.Name, img, d.Container.Options, d.Container.Attributes)
		if err != nil {
			return nil, err
		}
	}
	return domain.NewService(d.Name, sentinel, d.Options, attrs)
}
