package main

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/database"
)

func newSetupCmd() *cobra.Command {
	var crosswalkPath string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create the Postgres tables used by run when DATABASE_URL is set",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Println("Starting database setup...")

			cfg, _, schema, err := loadConfig(crosswalkPath)
			if err != nil {
				return err
			}
			if !cfg.HasDatabase() {
				return fmt.Errorf("DATABASE_URL environment variable not set")
			}

			ctx := context.Background()
			dbpool, err := database.ConnectDB(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer dbpool.Close()

			dbManager := database.NewPostgresDBManager(ctx, dbpool)

			log.Println("Creating release_records table...")
			if err := dbManager.CreateReleaseRecordsTable(); err != nil {
				return err
			}

			log.Println("Creating field_diagnostics table...")
			if err := dbManager.CreateFieldDiagnosticsTable(); err != nil {
				return err
			}

			log.Printf("Creating harmonized_records table with %d canonical fields...", schema.Len())
			if err := dbManager.CreateHarmonizedRecordsTable(schema.FieldNames()); err != nil {
				return err
			}

			log.Println("Database setup finished successfully.")
			return nil
		},
	}

	cmd.Flags().StringVar(&crosswalkPath, "crosswalk", "", "Crosswalk YAML (default: CROSSWALK_PATH or the embedded one)")
	return cmd
}
