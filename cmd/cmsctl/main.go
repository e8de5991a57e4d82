// Command cmsctl runs maintenance tasks against the CMS database.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/cms-api/pkg/config"
	"github.com/noah-isme/cms-api/pkg/database"
	"github.com/noah-isme/cms-api/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "cmsctl",
	Short:         "Operate the corporate CMS backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(migrateCmd, noticesCmd, usersCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// runtimeEnv bundles what most subcommands need.
type runtimeEnv struct {
	cfg    *config.Config
	db     *sqlx.DB
	logger *zap.Logger
}

func (e *runtimeEnv) Close() {
	if e.db != nil {
		_ = e.db.Close()
	}
	_ = e.logger.Sync()
}

// openRuntime loads validated configuration and connects to the database.
func openRuntime() (*runtimeEnv, error) {
	cfg, err := config.LoadAndValidate()
	if err != nil {
		return nil, err
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return &runtimeEnv{cfg: cfg, db: db, logger: logr}, nil
}
