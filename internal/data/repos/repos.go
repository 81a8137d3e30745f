package repos

import (
	"gorm.io/gorm"

	"github.com/gaugeworks/gaugetrack-backend/internal/data/repos/gauges"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/logger"
)

type GaugeRepo = gauges.GaugeRepo
type PairEventRepo = gauges.PairEventRepo
type CertificateRepo = gauges.CertificateRepo
type CalibrationBatchRepo = gauges.CalibrationBatchRepo

type SpareFilter = gauges.SpareFilter

func NewGaugeRepo(db *gorm.DB, baseLog *logger.Logger) GaugeRepo {
	return gauges.NewGaugeRepo(db, baseLog)
}

func NewPairEventRepo(db *gorm.DB, baseLog *logger.Logger) PairEventRepo {
	return gauges.NewPairEventRepo(db, baseLog)
}

func NewCertificateRepo(db *gorm.DB, baseLog *logger.Logger) CertificateRepo {
	return gauges.NewCertificateRepo(db, baseLog)
}

func NewCalibrationBatchRepo(db *gorm.DB, baseLog *logger.Logger) CalibrationBatchRepo {
	return gauges.NewCalibrationBatchRepo(db, baseLog)
}
