package main

import (
	"context"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/config"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/crosswalk"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/database"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/logging"
	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/server"
)

func main() {
	if _, err := config.LoadEnv([]string{".env", ".env.local"}); err != nil {
		log.Fatalf("Error loading .env file: %v", err)
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logging.Configure(cfg.LogLevel, cfg.LogFormat, nil); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}
	if !cfg.HasDatabase() {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	schema, err := crosswalk.LoadSchema(cfg.CrosswalkPath)
	if err != nil {
		log.Fatalf("Failed to load crosswalk: %v", err)
	}

	ctx := context.Background()
	dbpool, err := database.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to the database: %v", err)
	}
	defer dbpool.Close()

	dbManager := database.NewPostgresDBManager(ctx, dbpool)
	router := server.SetupRoutes(server.NewCoverageService(dbManager, schema.FieldNames(), cfg.LowCoverageThreshold))

	log.Printf("Server starting on port %s", cfg.APIPort)
	if err := http.ListenAndServe(fmt.Sprintf(":%s", cfg.APIPort), router); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
