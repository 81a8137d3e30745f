package gauges

import (
	"time"

	"gorm.io/gorm"
)

// GaugeStatus is the stored lifecycle status of a single gauge.
type GaugeStatus string

const (
	StatusAvailable          GaugeStatus = "available"
	StatusCheckedOut         GaugeStatus = "checked_out"
	StatusPendingQC          GaugeStatus = "pending_qc"
	StatusOutForCalibration  GaugeStatus = "out_for_calibration"
	StatusPendingCertificate GaugeStatus = "pending_certificate"
	StatusPendingRelease     GaugeStatus = "pending_release"
	StatusOutOfService       GaugeStatus = "out_of_service"
	StatusRetired            GaugeStatus = "retired"
	StatusReturned           GaugeStatus = "returned"
)

// PairStatusCalibrationDue is derived only: a member whose status is
// available but whose next_calibration_due has passed reports as due.
// It is never written to the status column.
const PairStatusCalibrationDue = "calibration_due"

// GaugeFunction is the physical role of a gauge, fixed at creation.
// A bonded set always holds exactly one of each.
type GaugeFunction string

const (
	FunctionGo   GaugeFunction = "go"
	FunctionNoGo GaugeFunction = "nogo"
)

// Pair-role suffixes appended to the shared display id.
const (
	SuffixGo   = "A"
	SuffixNoGo = "B"
)

// OwnershipType distinguishes company stock from customer-owned gauges.
type OwnershipType string

const (
	OwnershipCompany  OwnershipType = "company"
	OwnershipCustomer OwnershipType = "customer"
)

// Gauge is one physical measurement instrument. Identity and
// classification fields are immutable after creation; pairing attributes
// change only through the pairing service.
type Gauge struct {
	ID           int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	DisplayID    *string `gorm:"column:display_id;index" json:"display_id,omitempty"`
	SerialNumber string  `gorm:"column:serial_number;not null;index" json:"serial_number"`

	EquipmentType string        `gorm:"column:equipment_type;not null;index" json:"equipment_type"`
	Category      string        `gorm:"column:category;not null" json:"category"`
	ThreadSize    string        `gorm:"column:thread_size;not null" json:"thread_size"`
	ThreadClass   string        `gorm:"column:thread_class;not null" json:"thread_class"`
	Function      GaugeFunction `gorm:"column:gauge_function;not null" json:"function"`

	Status GaugeStatus `gorm:"column:status;not null;default:'available';index" json:"status"`

	CompanionID *int64  `gorm:"column:companion_id;index" json:"companion_id,omitempty"`
	PairSuffix  *string `gorm:"column:pair_suffix" json:"pair_suffix,omitempty"`
	IsSpare     bool    `gorm:"column:is_spare;not null;index" json:"is_spare"`

	OwnershipType OwnershipType `gorm:"column:ownership_type;not null;default:'company'" json:"ownership_type"`
	CustomerID    *int64        `gorm:"column:customer_id;index" json:"customer_id,omitempty"`

	Sealed          bool   `gorm:"column:sealed;not null" json:"sealed"`
	StorageLocation string `gorm:"column:storage_location" json:"storage_location"`

	NextCalibrationDue *time.Time `gorm:"column:next_calibration_due;index" json:"next_calibration_due,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Gauge) TableName() string { return "gauge" }

// CustomerOwned reports whether the gauge belongs to a customer.
func (g *Gauge) CustomerOwned() bool {
	return g.OwnershipType == OwnershipCustomer
}

// IsCalibrationDue reports whether an available gauge has passed its
// calibration due date. Gauges already inside the calibration workflow
// are not due again until released.
func (g *Gauge) IsCalibrationDue(now time.Time) bool {
	if g.Status != StatusAvailable {
		return false
	}
	if g.NextCalibrationDue == nil {
		return false
	}
	return !now.Before(*g.NextCalibrationDue)
}

// EffectiveStatus folds the derived calibration-due state over the stored
// status. The returned value is a member of the pair status priority
// order, never persisted.
func (g *Gauge) EffectiveStatus(now time.Time) string {
	if g.IsCalibrationDue(now) {
		return PairStatusCalibrationDue
	}
	return string(g.Status)
}

// SuffixForFunction maps the physical role to its display-id suffix.
func SuffixForFunction(fn GaugeFunction) string {
	if fn == FunctionNoGo {
		return SuffixNoGo
	}
	return SuffixGo
}

// ValidStatus reports whether s is a member of the stored status set.
func ValidStatus(s GaugeStatus) bool {
	switch s {
	case StatusAvailable, StatusCheckedOut, StatusPendingQC,
		StatusOutForCalibration, StatusPendingCertificate, StatusPendingRelease,
		StatusOutOfService, StatusRetired, StatusReturned:
		return true
	}
	return false
}

// ValidateNew checks the creation invariants for a gauge row. It does not
// consult storage; serial uniqueness is enforced by the unique index.
func (g *Gauge) ValidateNew() error {
	const op = "Gauges.ValidateNew"
	if g == nil {
		return NewError(CodeValidation, op, "gauge is nil", nil)
	}
	if g.SerialNumber == "" {
		return NewError(CodeValidation, op, "serial number is required", nil)
	}
	if g.EquipmentType == "" || g.ThreadSize == "" {
		return NewError(CodeValidation, op, "equipment type and thread size are required", nil)
	}
	if g.Function != FunctionGo && g.Function != FunctionNoGo {
		return NewError(CodeValidation, op, "gauge function must be go or nogo", nil)
	}
	switch g.OwnershipType {
	case OwnershipCompany:
		if g.CustomerID != nil {
			return NewError(CodeValidation, op, "company-owned gauge cannot reference a customer", nil)
		}
	case OwnershipCustomer:
		if g.CustomerID == nil {
			return NewError(CodeValidation, op, "customer-owned gauge requires a customer reference", nil)
		}
	default:
		return NewError(CodeValidation, op, "ownership type must be company or customer", nil)
	}
	if g.Status != "" && !ValidStatus(g.Status) {
		return NewError(CodeValidation, op, "unknown gauge status", nil)
	}
	return nil
}
