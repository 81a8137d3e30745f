package gauges

import (
	"time"
)

// CalibrationCertificate is the stored record of a calibration result for
// one gauge. At most one certificate per gauge is current at a time; an
// upload supersedes the previous current row in place instead of deleting
// it, keeping the full chain auditable.
type CalibrationCertificate struct {
	ID                int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	GaugeID           int64      `gorm:"not null;index:idx_cert_gauge" json:"gauge_id"`
	CertificateNumber string     `gorm:"size:120;not null" json:"certificate_number"`
	Vendor            string     `gorm:"size:200" json:"vendor,omitempty"`
	CalibratedAt      time.Time  `gorm:"not null" json:"calibrated_at"`
	NextDueAt         *time.Time `json:"next_due_at,omitempty"`
	FilePath          string     `gorm:"size:500" json:"file_path,omitempty"`
	FileSize          int64      `json:"file_size,omitempty"`
	FileHash          string     `gorm:"size:64" json:"file_hash,omitempty"`
	IsCurrent         bool       `gorm:"not null;index:idx_cert_current" json:"is_current"`
	SupersededAt      *time.Time `json:"superseded_at,omitempty"`
	SupersededByID    *int64     `json:"superseded_by_id,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime;default:now()" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime;default:now()" json:"updated_at"`
}

func (CalibrationCertificate) TableName() string { return "calibration_certificate" }

// Validate checks the fields callers must supply before persisting.
func (c *CalibrationCertificate) Validate() error {
	const op = "Gauges.Certificate.Validate"
	if c.GaugeID == 0 {
		return NewError(CodeValidation, op, "gauge id is required", nil)
	}
	if c.CertificateNumber == "" {
		return NewError(CodeValidation, op, "certificate number is required", nil)
	}
	if c.CalibratedAt.IsZero() {
		return NewError(CodeValidation, op, "calibration date is required", nil)
	}
	if c.NextDueAt != nil && !c.NextDueAt.After(c.CalibratedAt) {
		return NewError(CodeValidation, op, "next due date must follow the calibration date", nil)
	}
	return nil
}
