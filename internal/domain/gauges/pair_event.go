package gauges

import (
	"time"

	"gorm.io/datatypes"
)

// PairAction enumerates the closed vocabulary of relationship-history
// actions. Cascades outside this vocabulary are logged but not recorded.
type PairAction string

const (
	ActionCreatedTogether  PairAction = "created_together"
	ActionPairedFromSpares PairAction = "paired_from_spares"
	ActionReplaced         PairAction = "replaced"
	ActionUnpaired         PairAction = "unpaired"
	ActionCascadedOOS      PairAction = "cascaded_oos"
	ActionCascadedLocation PairAction = "cascaded_location"
	ActionCascadedReturn   PairAction = "cascaded_return"
	ActionOrphaned         PairAction = "orphaned"
)

var validActions = map[PairAction]struct{}{
	ActionCreatedTogether:  {},
	ActionPairedFromSpares: {},
	ActionReplaced:         {},
	ActionUnpaired:         {},
	ActionCascadedOOS:      {},
	ActionCascadedLocation: {},
	ActionCascadedReturn:   {},
	ActionOrphaned:         {},
}

// ValidAction reports whether a is part of the history vocabulary.
func ValidAction(a PairAction) bool {
	_, ok := validActions[a]
	return ok
}

// PairEvent is an append-only audit row for a pairing state transition.
// Rows are never updated or deleted by application code; the schema
// cascade-deletes them only when a referenced gauge is hard-deleted.
type PairEvent struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	GoID      int64          `gorm:"column:go_id;not null;index:idx_pair_event_go" json:"go_id"`
	NoGoID    int64          `gorm:"column:nogo_id;not null;index:idx_pair_event_nogo" json:"nogo_id"`
	Action    PairAction     `gorm:"size:40;not null;index:idx_pair_event_action" json:"action"`
	Actor     string         `gorm:"size:120;not null" json:"actor"`
	Reason    string         `gorm:"size:500" json:"reason,omitempty"`
	Details   datatypes.JSON `gorm:"type:jsonb" json:"details,omitempty"`
	CreatedAt time.Time      `gorm:"autoCreateTime;default:now()" json:"created_at"`
}

func (PairEvent) TableName() string { return "gauge_pair_event" }
