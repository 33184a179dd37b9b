package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/melih/lighthouse-deploy/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "lighthouse",
	Short: "Deploy docker containers and swarm services over SSH",
	Long: `lighthouse drives docker on remote hosts over SSH: it prepares and pushes
images, pulls them on every host, updates containers and swarm services in place
and rolls them back to the previous version.

Deployments are declared in a manifest file, hosts and registries in lighthouse.yml.`,
	SilenceUsage: true,
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default: lighthouse.yml)")
	flags.StringP("infrastructure", "i", "", "infrastructure to run the tasks on")
	flags.StringSliceP("hosts", "H", nil, "hosts to run the tasks on ([user@]host[:port])")
	flags.Bool("parallel", false, "run on all hosts at once")
	flags.Int("pool-size", 0, "maximum number of hosts worked on at once in parallel mode")
	flags.StringP("manifest", "m", "", "manifest file declaring the deployments")

	for key, flag := range map[string]string{
		"infrastructure": "infrastructure",
		"hosts":          "hosts",
		"parallel":       "parallel",
		"pool_size":      "pool-size",
		"manifest":       "manifest",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func initConfig() {
	config.Setup(viper.GetViper())
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("lighthouse")
		viper.SetConfigType("yml")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
		}
	}
}
