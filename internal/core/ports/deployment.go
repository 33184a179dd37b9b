package ports

import (
	"context"
	"errors"
)

// ErrDeploymentNotFound is returned for names no deployment is configured under.
var ErrDeploymentNotFound = errors.New("deployment not found")

// DeployRequest carries the switches of a full deploy run.
type DeployRequest struct {
	Tag     string
	Force   bool
	Prepare bool
	Backup  bool
	Migrate bool
}

// DeploymentInfo describes a configured deployment.
type DeploymentInfo struct {
	Name  string   `json:"name"`
	Kind  string   `json:"kind"`
	Image string   `json:"image"`
	Hosts []string `json:"hosts"`
}

// DeploymentService is the control surface exposed to the HTTP API.
type DeploymentService interface {
	List() []DeploymentInfo
	Deploy(ctx context.Context, name string, req DeployRequest) error
	Update(ctx context.Context, name, tag string, force bool) error
	Rollback(ctx context.Context, name string, migrateBack bool) error
}
