package main

import (
	"flag"
	"log"
	"os"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/melih/lighthouse-deploy/internal/adapters/http"
	"github.com/melih/lighthouse-deploy/internal/app"
	"github.com/melih/lighthouse-deploy/internal/config"
	"github.com/melih/lighthouse-deploy/internal/logging"
)

func main() {
	cfgFile := flag.String("config", "lighthouse.yml", "config file")
	flag.Parse()

	// 1. Load configuration
	config.Setup(viper.GetViper())
	viper.SetConfigFile(*cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			log.Fatalf("Failed to read config: %v", err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 2. Initialize Adapters and the deployments they serve
	manager, err := app.Build(cfg, os.Stdout, logger)
	if err != nil {
		logger.Fatal("Failed to load deployments", zap.Error(err))
	}

	// 3. Setup Framework (Fiber) with the deployment routes
	server := http.NewApp(manager)

	// 4. Start Server
	logger.Info("Server starting", zap.String("listen", cfg.API.Listen))
	if err := server.Listen(cfg.API.Listen); err != nil {
		logger.Fatal("Server failed to start", zap.Error(err))
	}
}
