package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/melih/lighthouse-deploy/internal/app"
	"github.com/melih/lighthouse-deploy/internal/config"
	"github.com/melih/lighthouse-deploy/internal/core/ports"
	"github.com/melih/lighthouse-deploy/internal/deploy"
	"github.com/melih/lighthouse-deploy/internal/logging"
	"github.com/melih/lighthouse-deploy/internal/ui"
)

var (
	tag            string
	force          bool
	noPrepare      bool
	withBackup     bool
	noMigrate      bool
	keepMigrations bool
	backupName     string
)

// env is what every task command needs.
type env struct {
	cfg     *config.Config
	log     *zap.Logger
	manager *deploy.Manager
	out     io.Writer
}

// loadEnv is replaced in tests.
var loadEnv = func() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprint(os.Stderr, ui.FormatError("Failed to load config", err.Error(), "check lighthouse.yml and LIGHTHOUSE_* variables"))
		return nil, err
	}
	log, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}
	manager, err := app.Build(cfg, os.Stdout, log)
	if err != nil {
		fmt.Fprint(os.Stderr, ui.FormatError("Failed to load deployments", err.Error(), "set manifest to the file declaring them"))
		return nil, err
	}
	return &env{cfg: cfg, log: log, manager: manager, out: os.Stdout}, nil
}

type taskFunc func(ctx context.Context, t *deploy.Tasks) error

// runTask runs fn for the deployments named in args, all of them when none is given.
func runTask(task string, fn taskFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.log.Sync()

		names := args
		if len(names) == 0 {
			for _, d := range e.manager.List() {
				names = append(names, d.Name)
			}
		}
		for _, name := range names {
			t, err := e.manager.Tasks(name)
			if err != nil {
				return err
			}
			ui.TaskStarted(e.out, task, name, t.Options().Infrastructure)
			if err := fn(cmd.Context(), t); err != nil {
				ui.TaskFailed(e.out, task, name, err)
				return err
			}
			ui.TaskDone(e.out, task, name)
		}
		return nil
	}
}

func newTaskCmd(use, short string, fn taskFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [deployment...]",
		Short: short,
		RunE:  runTask(use, fn),
	}
}

func init() {
	deployCmd := newTaskCmd("deploy", "prepare -> push -> backup -> pull -> migrate -> update",
		func(ctx context.Context, t *deploy.Tasks) error {
			return t.Deploy(ctx, ports.DeployRequest{
				Tag:     tag,
				Force:   force,
				Prepare: !noPrepare,
				Backup:  withBackup,
				Migrate: !noMigrate,
			})
		})
	deployCmd.Flags().BoolVar(&noPrepare, "no-prepare", false, "skip prepare and push")
	deployCmd.Flags().BoolVar(&withBackup, "backup", false, "back up data before pulling")
	deployCmd.Flags().BoolVar(&noMigrate, "no-migrate", false, "skip migrations")
	deployCmd.Flags().BoolVar(&force, "force", false, "update even when nothing changed")

	prepareCmd := newTaskCmd("prepare", "build or pull the image on this machine",
		func(ctx context.Context, t *deploy.Tasks) error { return t.Prepare(ctx, tag) })
	pushCmd := newTaskCmd("push", "push the prepared image to the registry",
		func(ctx context.Context, t *deploy.Tasks) error { return t.Push(ctx, tag) })
	pullCmd := newTaskCmd("pull", "pull the image on every host",
		func(ctx context.Context, t *deploy.Tasks) error { return t.Pull(ctx, tag) })
	migrateCmd := newTaskCmd("migrate", "apply migrations",
		func(ctx context.Context, t *deploy.Tasks) error { return t.Migrate(ctx, tag) })
	migrateBackCmd := newTaskCmd("migrate-back", "remove previously applied migrations if any",
		func(ctx context.Context, t *deploy.Tasks) error { return t.MigrateBack(ctx) })
	backupCmd := newTaskCmd("backup", "back up data",
		func(ctx context.Context, t *deploy.Tasks) error { return t.Backup(ctx) })
	restoreCmd := newTaskCmd("restore", "restore data",
		func(ctx context.Context, t *deploy.Tasks) error { return t.Restore(ctx, backupName) })
	restoreCmd.Flags().StringVar(&backupName, "backup-name", "", "backup to restore")

	updateCmd := newTaskCmd("update", "start the new version where it is not running yet",
		func(ctx context.Context, t *deploy.Tasks) error { return t.Update(ctx, tag, force) })
	updateCmd.Flags().BoolVar(&force, "force", false, "update even when nothing changed")

	revertCmd := newTaskCmd("revert", "revert to the version kept by the last update",
		func(ctx context.Context, t *deploy.Tasks) error { return t.Revert(ctx) })
	rollbackCmd := newTaskCmd("rollback", "migrate back and revert",
		func(ctx context.Context, t *deploy.Tasks) error { return t.Rollback(ctx, !keepMigrations) })
	rollbackCmd.Flags().BoolVar(&keepMigrations, "no-migrate-back", false, "keep applied migrations")

	for _, cmd := range []*cobra.Command{
		deployCmd, prepareCmd, pushCmd, pullCmd, migrateCmd, updateCmd,
	} {
		cmd.Flags().StringVarP(&tag, "tag", "t", "", "image tag to deploy")
	}
	rootCmd.AddCommand(deployCmd, prepareCmd, pushCmd, pullCmd, migrateCmd, migrateBackCmd,
		backupCmd, restoreCmd, updateCmd, revertCmd, rollbackCmd, listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the declared deployments",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		for _, d := range e.manager.List() {
			ui.Deployment(e.out, d.Name, d.Kind, d.Image, d.Hosts)
		}
		return nil
	},
}
