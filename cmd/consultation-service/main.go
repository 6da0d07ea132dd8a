package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/medrex/teleconsult/internal/consultation"
	"github.com/medrex/teleconsult/pkg/config"
	"github.com/medrex/teleconsult/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "consultation-service",
		Short:        "Consultation and messaging engine",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: search ./, ./config, /etc/teleconsult)")
	cmd.AddCommand(newTokenCmd(&configPath))
	return cmd
}

func runServe(configPath string) error {
	// Load configuration
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return err
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)

	// Initialize Consultation Service
	service, err := consultation.New(cfg, logger)
	if err != nil {
		logger.Errorf("Failed to initialize Consultation Service: %v", err)
		return err
	}

	addr := cfg.Server.Addr()
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	// Start service in a goroutine
	go func() {
		if err := service.Start(addr); err != nil {
			logger.Fatalf("Failed to start Consultation Service: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Consultation Service...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := service.Stop(ctx); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
	logger.Info("Consultation Service stopped")
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
