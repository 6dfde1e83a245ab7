package main

import (
	"github.com/mohammad-safakhou/ideascope/config"
	"github.com/mohammad-safakhou/ideascope/internal/persist"
	"github.com/spf13/cobra"
)

func migrateCMD() *cobra.Command {
	var migDir string
	var direction string
	var steps int
	var cfgPath string

	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			// An empty dsn makes Migrate read DATABASE_URL / POSTGRES_*.
			var dsn string
			if cfg.Storage.Postgres.Enabled() {
				dsn = cfg.Storage.Postgres.DSN()
			}
			return persist.Migrate(migDir, dsn, direction, steps)
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", persist.DefaultMigrations, "migrations source (file://migrations)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	migrate.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return migrate
}
