package gauges

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/gaugeworks/gaugetrack-backend/internal/domain/gauges"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/dbctx"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/logger"
)

type PairEventRepo interface {
	Create(dbc dbctx.Context, ev *types.PairEvent) error
	ListByGauge(dbc dbctx.Context, gaugeID int64, limit int) ([]*types.PairEvent, error)
	CountByAction(dbc dbctx.Context, action types.PairAction) (int64, error)
}

type pairEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPairEventRepo(db *gorm.DB, baseLog *logger.Logger) PairEventRepo {
	return &pairEventRepo{
		db:  db,
		log: baseLog.With("repo", "PairEventRepo"),
	}
}

// Create appends one audit row. History is insert-only; there is no
// update or delete method on purpose.
func (r *pairEventRepo) Create(dbc dbctx.Context, ev *types.PairEvent) error {
	const op = "PairEventRepo.Create"
	transaction, err := requireTx(dbc, op)
	if err != nil {
		return err
	}
	if ev == nil {
		return types.NewError(types.CodeValidation, op, "event is required", nil)
	}
	if !types.ValidAction(ev.Action) {
		return types.NewError(types.CodeValidation, op,
			fmt.Sprintf("unknown history action %q", ev.Action), nil)
	}
	if ev.Actor == "" {
		return types.NewError(types.CodeValidation, op, "actor is required", nil)
	}
	return transaction.Create(ev).Error
}

func (r *pairEventRepo) ListByGauge(dbc dbctx.Context, gaugeID int64, limit int) ([]*types.PairEvent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*types.PairEvent
	if err := transaction.WithContext(dbc.Ctx).
		Where("go_id = ? OR nogo_id = ?", gaugeID, gaugeID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *pairEventRepo) CountByAction(dbc dbctx.Context, action types.PairAction) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.PairEvent{}).
		Where("action = ?", action).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
