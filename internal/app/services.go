package app

import (
	"context"

	"github.com/gaugeworks/gaugetrack-backend/internal/database"
	"github.com/gaugeworks/gaugetrack-backend/internal/observability"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/logger"
	"github.com/gaugeworks/gaugetrack-backend/internal/services"
)

type Services struct {
	Pairing     services.PairingService
	Cascade     services.CascadeService
	Calibration services.CalibrationService
	Integrity   services.IntegrityService
	Publisher   services.EventPublisher
	Blobs       services.BlobStore
}

func wireServices(ctx context.Context, dbsvc *database.Service, log *logger.Logger, cfg Config, r Repos, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	var publisher services.EventPublisher = services.NopPublisher{}
	if cfg.EventsDriver == "redis" {
		p, err := services.NewRedisPublisher(log, metrics)
		if err != nil {
			return Services{}, err
		}
		publisher = p
	}

	var blobs services.BlobStore
	var err error
	switch cfg.BlobDriver {
	case "gcs":
		blobs, err = services.NewGCSBlobStore(ctx, log)
		if err != nil {
			return Services{}, err
		}
	default:
		blobs = services.NewMemoryBlobStore(log)
	}

	base := services.BaseDeps{
		DB:     dbsvc.DB(),
		Log:    log,
		Runner: services.NewDatabaseTxRunner(dbsvc.Transaction),
		Hooks:  services.NewMetricsHooks(metrics),
	}

	return Services{
		Pairing: services.NewPairingService(services.PairingServiceDeps{
			Base:      base,
			Gauges:    r.Gauges,
			Events:    r.Events,
			Publisher: publisher,
		}),
		Cascade: services.NewCascadeService(services.CascadeServiceDeps{
			Base:      base,
			Gauges:    r.Gauges,
			Events:    r.Events,
			Publisher: publisher,
		}),
		Calibration: services.NewCalibrationService(services.CalibrationServiceDeps{
			Base:      base,
			Gauges:    r.Gauges,
			Batches:   r.Batches,
			Certs:     r.Certs,
			Events:    r.Events,
			Blobs:     blobs,
			Publisher: publisher,
		}),
		Integrity: services.NewIntegrityService(services.IntegrityServiceDeps{
			Base: base,
		}),
		Publisher: publisher,
		Blobs:     blobs,
	}, nil
}
