package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/melih/lighthouse-deploy/internal/adapters/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the deployment API",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.log.Sync()

		server := http.NewApp(e.manager)
		go func() {
			<-cmd.Context().Done()
			server.Shutdown()
		}()
		e.log.Info("Server starting", zap.String("listen", e.cfg.API.Listen))
		return server.Listen(e.cfg.API.Listen)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
