package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-deploy/internal/core/ports"
)

type fakeService struct {
	deployed    []ports.DeployRequest
	updated     []string
	migrateBack []bool
	err         error
}

func (f *fakeService) List() []ports.DeploymentInfo {
	return []ports.DeploymentInfo{{Name: "web", Kind: "container", Image: "nginx:latest", Hosts: []string{"h1"}}}
}

func (f *fakeService) lookup(name string) error {
	if name != "web" {
		return fmt.Errorf("%q: %w", name, ports.ErrDeploymentNotFound)
	}
	return f.err
}

func (f *fakeService) Deploy(_ context.Context, name string, req ports.DeployRequest) error {
	if err := f.lookup(name); err != nil {
		return err
	}
	f.deployed = append(f.deployed, req)
	return nil
}

func (f *fakeService) Update(_ context.Context, name, tag string, force bool) error {
	if err := f.lookup(name); err != nil {
		return err
	}
	f.updated = append(f.updated, fmt.Sprintf("%s:%t", tag, force))
	return nil
}

func (f *fakeService) Rollback(_ context.Context, name string, migrateBack bool) error {
	if err := f.lookup(name); err != nil {
		return err
	}
	f.migrateBack = append(f.migrateBack, migrateBack)
	return nil
}

func newApp(svc ports.DeploymentService) *fiber.App {
	return NewApp(svc)
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestListDeployments(t *testing.T) {
	app := newApp(&fakeService{})
	req := httptest.NewRequest("GET", "/api/v1/deployments", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var list []ports.DeploymentInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Len(t, list, 1)
	assert.Equal(t, "web", list[0].Name)
}

func TestDeploy(t *testing.T) {
	svc := &fakeService{}
	app := newApp(svc)

	status, body := do(t, app, "POST", "/api/v1/deployments/web/deploy", `{"tag":"1.2","backup":true,"migrate":false}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "deployed", body["status"])

	status, _ = do(t, app, "POST", "/api/v1/deployments/web/deploy", "")
	assert.Equal(t, fiber.StatusOK, status)

	require.Len(t, svc.deployed, 2)
	assert.Equal(t, ports.DeployRequest{Tag: "1.2", Prepare: true, Backup: true}, svc.deployed[0])
	assert.Equal(t, ports.DeployRequest{Prepare: true, Migrate: true}, svc.deployed[1])
}

func TestUpdateAndRollback(t *testing.T) {
	svc := &fakeService{}
	app := newApp(svc)

	status, _ := do(t, app, "POST", "/api/v1/deployments/web/update", `{"tag":"2","force":true}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, []string{"2:true"}, svc.updated)

	status, _ = do(t, app, "POST", "/api/v1/deployments/web/rollback", `{"migrate_back":false}`)
	assert.Equal(t, fiber.StatusOK, status)
	status, _ = do(t, app, "POST", "/api/v1/deployments/web/rollback", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, []bool{false, true}, svc.migrateBack)
}

func TestErrors(t *testing.T) {
	t.Run("unknown deployment", func(t *testing.T) {
		status, body := do(t, newApp(&fakeService{}), "POST", "/api/v1/deployments/db/update", "")
		assert.Equal(t, fiber.StatusNotFound, status)
		assert.Contains(t, body["error"], "deployment not found")
	})
	t.Run("failed task", func(t *testing.T) {
		status, body := do(t, newApp(&fakeService{err: errors.New("host h1: boom")}), "POST", "/api/v1/deployments/web/deploy", "")
		assert.Equal(t, fiber.StatusInternalServerError, status)
		assert.Equal(t, "host h1: boom", body["error"])
	})
	t.Run("bad body", func(t *testing.T) {
		status, body := do(t, newApp(&fakeService{}), "POST", "/api/v1/deployments/web/update", `{"tag":`)
		assert.Equal(t, fiber.StatusBadRequest, status)
		assert.Equal(t, "Invalid request body", body["error"])
	})
}
