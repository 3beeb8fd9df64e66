package main

import (
	"context"
	"log"

	"formflow/internal/config"
	"formflow/internal/database"
	"formflow/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:          "formctl",
	Short:        "FormFlow maintenance commands",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Overload("configs/.env"); err != nil {
			log.Println("Error loading configs/.env file, skipping")
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalln(err.Error())
	}
}

// connect opens the configured PostgreSQL database. Demo fallback is never used here:
// maintenance against a throwaway in-memory database would silently do nothing.
func connect(ctx context.Context) (*config.Config, *gorm.DB, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	zapLogger, err := logger.New(cfg.LogLevel, cfg.Release())
	if err != nil {
		return nil, nil, nil, err
	}
	db, _, err := database.Connect(ctx, cfg.DSN(), cfg.DBConnectRetries, false, zapLogger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, db, zapLogger, nil
}
