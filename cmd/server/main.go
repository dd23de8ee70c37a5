package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/config"
	"github.com/lalith-99/huddle/internal/observ"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "huddle",
	Short:         "Chat backend with channels, a public feed and file sharing",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		autoMigrate, _ := cmd.Flags().GetBool("migrate")
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()
		return serve(cmd.Context(), cfg, logger, autoMigrate)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		status, err := migrateUp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		fmt.Printf("Schema %s\n", status)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		status, err := migrationStatus(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		fmt.Printf("Schema %s\n", status)
		return nil
	},
}

// setup loads the config and builds the logger every command needs.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, logger, nil
}

func init() {
	serveCmd.Flags().Bool("migrate", false, "apply pending migrations before serving")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}
