package cli

import (
	"context"
	"database/sql"
	"errors"

	"github.com/spf13/cobra"

	"github.com/iliyamo/task-manager/internal/config"
	"github.com/iliyamo/task-manager/internal/database"
	"github.com/iliyamo/task-manager/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the MySQL schema",
}

func migrateStep(use, short string, step func(context.Context, *sql.DB) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if cfg.StoreDriver != config.DriverMySQL {
				return errors.New("migrations apply to STORE_DRIVER=mysql only")
			}
			db, err := storage.OpenSQL(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			return step(cmd.Context(), db)
		},
	}
}

func init() {
	migrateCmd.AddCommand(
		migrateStep("up", "Apply all pending migrations", database.MigrateUp),
		migrateStep("down", "Roll back the latest migration", database.MigrateDown),
		migrateStep("status", "Show applied and pending migrations", database.MigrateStatus),
	)
	rootCmd.AddCommand(migrateCmd)
}
