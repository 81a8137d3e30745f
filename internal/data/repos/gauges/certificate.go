package gauges

import (
	"errors"
	"time"

	"gorm.io/gorm"

	types "github.com/gaugeworks/gaugetrack-backend/internal/domain/gauges"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/dbctx"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/logger"
)

type CertificateRepo interface {
	CreateSuperseding(dbc dbctx.Context, cert *types.CalibrationCertificate) error
	GetCurrent(dbc dbctx.Context, gaugeID int64) (*types.CalibrationCertificate, error)
	ListByGauge(dbc dbctx.Context, gaugeID int64) ([]*types.CalibrationCertificate, error)
	Supersede(dbc dbctx.Context, gaugeID int64, byID int64, at time.Time) (int64, error)
}

type certificateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCertificateRepo(db *gorm.DB, baseLog *logger.Logger) CertificateRepo {
	return &certificateRepo{
		db:  db,
		log: baseLog.With("repo", "CertificateRepo"),
	}
}

// CreateSuperseding inserts cert and makes it the gauge's current
// certificate. The previous current row is marked superseded with a
// back-reference, never deleted. The insert lands inactive first so the
// one-current-per-gauge index holds at every step.
func (r *certificateRepo) CreateSuperseding(dbc dbctx.Context, cert *types.CalibrationCertificate) error {
	const op = "CertificateRepo.CreateSuperseding"
	transaction, err := requireTx(dbc, op)
	if err != nil {
		return err
	}
	if cert == nil {
		return types.NewError(types.CodeValidation, op, "certificate is required", nil)
	}
	if err := cert.Validate(); err != nil {
		return err
	}
	now := time.Now()
	cert.IsCurrent = false
	if err := transaction.Create(cert).Error; err != nil {
		return err
	}
	if _, err := r.Supersede(dbc, cert.GaugeID, cert.ID, now); err != nil {
		return err
	}
	if err := transaction.Model(&types.CalibrationCertificate{}).
		Where("id = ?", cert.ID).
		Updates(map[string]interface{}{"is_current": true, "updated_at": now}).Error; err != nil {
		return err
	}
	cert.IsCurrent = true
	return nil
}

// GetCurrent returns the single current certificate, or nil when the
// gauge has none on file.
func (r *certificateRepo) GetCurrent(dbc dbctx.Context, gaugeID int64) (*types.CalibrationCertificate, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var cert types.CalibrationCertificate
	err := transaction.WithContext(dbc.Ctx).
		Where("gauge_id = ? AND is_current = ?", gaugeID, true).
		First(&cert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (r *certificateRepo) ListByGauge(dbc dbctx.Context, gaugeID int64) ([]*types.CalibrationCertificate, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.CalibrationCertificate
	if err := transaction.WithContext(dbc.Ctx).
		Where("gauge_id = ?", gaugeID).
		Order("calibrated_at DESC, id DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Supersede retires the gauge's current certificate in favor of byID.
// The old row keeps its data and gains a supersession timestamp plus a
// back-reference; nothing is deleted. Returns the number of rows retired.
func (r *certificateRepo) Supersede(dbc dbctx.Context, gaugeID int64, byID int64, at time.Time) (int64, error) {
	const op = "CertificateRepo.Supersede"
	transaction, err := requireTx(dbc, op)
	if err != nil {
		return 0, err
	}
	res := transaction.Model(&types.CalibrationCertificate{}).
		Where("gauge_id = ? AND is_current = ? AND id <> ?", gaugeID, true, byID).
		Updates(map[string]interface{}{
			"is_current":       false,
			"superseded_at":    at,
			"superseded_by_id": byID,
			"updated_at":       at,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
