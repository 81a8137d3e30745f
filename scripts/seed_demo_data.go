package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gaugeworks/gaugetrack-backend/internal/data/repos"
	"github.com/gaugeworks/gaugetrack-backend/internal/database"
	types "github.com/gaugeworks/gaugetrack-backend/internal/domain/gauges"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/logger"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/pointers"
	"github.com/gaugeworks/gaugetrack-backend/internal/services"
)

// Seeds a demo population into the configured database: spares, bonded
// pairs in several lifecycle states, and one calibration batch left
// mid-flight. Everything goes through the real services so the rows
// satisfy the pairing invariants. Intended for local development only;
// serial numbers carry the DEMO- prefix so reruns fail fast on the
// unique index instead of piling up duplicates.
//
// Usage: go run ./scripts (DATABASE_* env as for the server)

type seedSummary struct {
	Spares     []int64 `json:"spares"`
	Pairs      []int64 `json:"pair_display_gauges"`
	CheckedOut int64   `json:"checked_out_set,omitempty"`
	OutOfSvc   int64   `json:"out_of_service_set,omitempty"`
	BatchID    int64   `json:"dispatched_batch_id,omitempty"`
}

func main() {
	log, err := logger.New("development")
	if err != nil {
		fmt.Printf("init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	dbsvc, err := database.Open(database.ConfigFromEnv(log), log)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	defer dbsvc.Close()

	gauges := repos.NewGaugeRepo(dbsvc.DB(), log)
	events := repos.NewPairEventRepo(dbsvc.DB(), log)
	batches := repos.NewCalibrationBatchRepo(dbsvc.DB(), log)
	certs := repos.NewCertificateRepo(dbsvc.DB(), log)

	base := services.BaseDeps{
		DB:     dbsvc.DB(),
		Log:    log,
		Runner: services.NewDatabaseTxRunner(dbsvc.Transaction),
	}
	pairing := services.NewPairingService(services.PairingServiceDeps{
		Base: base, Gauges: gauges, Events: events, Publisher: services.NopPublisher{},
	})
	cascade := services.NewCascadeService(services.CascadeServiceDeps{
		Base: base, Gauges: gauges, Events: events, Publisher: services.NopPublisher{},
	})
	calibration := services.NewCalibrationService(services.CalibrationServiceDeps{
		Base: base, Gauges: gauges, Batches: batches, Certs: certs, Events: events,
		Blobs: services.NewMemoryBlobStore(log), Publisher: services.NopPublisher{},
	})

	ctx := context.Background()
	const actor = "seed-script"
	summary := seedSummary{}

	input := func(serial string, fn types.GaugeFunction, size, class string) services.CreateGaugeInput {
		return services.CreateGaugeInput{
			SerialNumber:       serial,
			EquipmentType:      "thread_plug",
			Category:           "plug",
			ThreadSize:         size,
			ThreadClass:        class,
			Function:           fn,
			OwnershipType:      types.OwnershipCompany,
			StorageLocation:    "Shelf A1",
			NextCalibrationDue: pointers.Ptr(time.Now().AddDate(0, 6, 0)),
		}
	}

	// Loose spares across two thread sizes.
	for _, spec := range []struct {
		serial string
		fn     types.GaugeFunction
		size   string
	}{
		{"DEMO-SP01", types.FunctionGo, "1/4-20"},
		{"DEMO-SP02", types.FunctionNoGo, "1/4-20"},
		{"DEMO-SP03", types.FunctionGo, "3/8-16"},
	} {
		g, err := pairing.CreateSpare(ctx, input(spec.serial, spec.fn, spec.size, "UNC-2B"), actor)
		if err != nil {
			log.Error("seed spare failed", "serial", spec.serial, "error", err)
			os.Exit(1)
		}
		summary.Spares = append(summary.Spares, g.ID)
	}

	// Bonded pairs created atomically.
	pairSpecs := []struct {
		goSerial, nogoSerial, size string
	}{
		{"DEMO-PR01A", "DEMO-PR01B", "1/2-13"},
		{"DEMO-PR02A", "DEMO-PR02B", "1/2-13"},
		{"DEMO-PR03A", "DEMO-PR03B", "5/8-11"},
	}
	var pairGoIDs []int64
	for _, spec := range pairSpecs {
		res, err := pairing.CreatePair(ctx,
			input(spec.goSerial, types.FunctionGo, spec.size, "UNC-2B"),
			input(spec.nogoSerial, types.FunctionNoGo, spec.size, "UNC-2B"),
			actor)
		if err != nil {
			log.Error("seed pair failed", "serial", spec.goSerial, "error", err)
			os.Exit(1)
		}
		pairGoIDs = append(pairGoIDs, res.Go.ID)
		summary.Pairs = append(summary.Pairs, res.Go.ID)
	}

	// One set on a job, one parked out of service.
	if _, err := cascade.CheckoutSet(ctx, pairGoIDs[0], actor); err != nil {
		log.Error("seed checkout failed", "error", err)
		os.Exit(1)
	}
	summary.CheckedOut = pairGoIDs[0]
	if _, err := cascade.CascadeStatusChange(ctx, pairGoIDs[1], types.StatusOutOfService, actor, "demo wear"); err != nil {
		log.Error("seed out-of-service failed", "error", err)
		os.Exit(1)
	}
	summary.OutOfSvc = pairGoIDs[1]

	// A calibration batch already on its way to the vendor.
	batch, err := calibration.CreateBatch(ctx, services.CreateBatchInput{
		Vendor:   "Acme Calibration",
		Notes:    "demo seed",
		GaugeIDs: []int64{pairGoIDs[2]},
	}, actor)
	if err != nil {
		log.Error("seed batch failed", "error", err)
		os.Exit(1)
	}
	if _, err := calibration.DispatchBatch(ctx, batch.Batch.ID, actor); err != nil {
		log.Error("seed dispatch failed", "error", err)
		os.Exit(1)
	}
	summary.BatchID = batch.Batch.ID

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		log.Error("encode summary failed", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
