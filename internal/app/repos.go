package app

import (
	"gorm.io/gorm"

	"github.com/gaugeworks/gaugetrack-backend/internal/data/repos"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/logger"
)

type Repos struct {
	Gauges  repos.GaugeRepo
	Events  repos.PairEventRepo
	Certs   repos.CertificateRepo
	Batches repos.CalibrationBatchRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Gauges:  repos.NewGaugeRepo(db, log),
		Events:  repos.NewPairEventRepo(db, log),
		Certs:   repos.NewCertificateRepo(db, log),
		Batches: repos.NewCalibrationBatchRepo(db, log),
	}
}
