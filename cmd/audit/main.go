package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gaugeworks/gaugetrack-backend/internal/database"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/logger"
	"github.com/gaugeworks/gaugetrack-backend/internal/services"
)

// audit runs one pair-integrity sweep against the configured database
// and prints the findings as json. Exit code 1 when violations exist.
func main() {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "production"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	dbsvc, err := database.Open(database.ConfigFromEnv(log), log)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	defer dbsvc.Close()

	integrity := services.NewIntegrityService(services.IntegrityServiceDeps{
		Base: services.BaseDeps{
			DB:     dbsvc.DB(),
			Log:    log,
			Runner: services.NewDatabaseTxRunner(dbsvc.Transaction),
		},
	})

	report, err := integrity.AuditPairIntegrity(context.Background())
	if err != nil {
		log.Error("integrity audit failed", "error", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Error("encode report failed", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))

	if !report.Clean() {
		os.Exit(1)
	}
}
