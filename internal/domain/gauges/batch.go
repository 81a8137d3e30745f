package gauges

import (
	"time"
)

// BatchStatus tracks a calibration batch through its lifetime.
type BatchStatus string

const (
	BatchOpen       BatchStatus = "open"
	BatchDispatched BatchStatus = "dispatched"
	BatchClosed     BatchStatus = "closed"
)

// CalibrationBatch groups gauges shipped to one vendor in one dispatch.
// The batch closes automatically once every item has left the workflow,
// either released back to service or exited to a terminal status.
type CalibrationBatch struct {
	ID           int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	BatchNumber  string      `gorm:"size:60;not null;uniqueIndex:idx_batch_number" json:"batch_number"`
	Vendor       string      `gorm:"size:200;not null" json:"vendor"`
	Status       BatchStatus `gorm:"size:20;not null;default:'open'" json:"status"`
	Notes        string      `gorm:"size:1000" json:"notes,omitempty"`
	CreatedBy    string      `gorm:"size:120;not null" json:"created_by"`
	DispatchedAt *time.Time  `json:"dispatched_at,omitempty"`
	ClosedAt     *time.Time  `json:"closed_at,omitempty"`
	CreatedAt    time.Time   `gorm:"autoCreateTime;default:now()" json:"created_at"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime;default:now()" json:"updated_at"`
}

func (CalibrationBatch) TableName() string { return "calibration_batch" }

// CalibrationBatchItem is one gauge's membership in a batch. ReceivedAt
// and ReleasedAt mark the physical return and the final release so batch
// closure can be decided without consulting gauge rows.
type CalibrationBatchItem struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	BatchID    int64      `gorm:"not null;index:idx_batch_item_batch;uniqueIndex:idx_batch_item_unique" json:"batch_id"`
	GaugeID    int64      `gorm:"not null;index:idx_batch_item_gauge;uniqueIndex:idx_batch_item_unique" json:"gauge_id"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;default:now()" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime;default:now()" json:"updated_at"`
}

func (CalibrationBatchItem) TableName() string { return "calibration_batch_item" }

// Validate checks a batch before persisting.
func (b *CalibrationBatch) Validate() error {
	const op = "Gauges.Batch.Validate"
	if b.Vendor == "" {
		return NewError(CodeValidation, op, "vendor is required", nil)
	}
	if b.CreatedBy == "" {
		return NewError(CodeValidation, op, "creating actor is required", nil)
	}
	switch b.Status {
	case "", BatchOpen, BatchDispatched, BatchClosed:
	default:
		return NewError(CodeValidation, op, "unknown batch status "+string(b.Status), nil)
	}
	return nil
}
