package gauges

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gaugeworks/gaugetrack-backend/internal/database"
	types "github.com/gaugeworks/gaugetrack-backend/internal/domain/gauges"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/dbctx"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/logger"
)

type CalibrationBatchRepo interface {
	CreateBatch(dbc dbctx.Context, batch *types.CalibrationBatch, gaugeIDs []int64) error
	GetBatch(dbc dbctx.Context, id int64) (*types.CalibrationBatch, []*types.CalibrationBatchItem, error)
	LockByID(dbc dbctx.Context, id int64) (*types.CalibrationBatch, error)
	UpdateBatchFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error
	FindOpenItemByGauge(dbc dbctx.Context, gaugeID int64) (*types.CalibrationBatchItem, *types.CalibrationBatch, error)
	MarkItemReceived(dbc dbctx.Context, batchID, gaugeID int64, at time.Time) error
	MarkItemReleased(dbc dbctx.Context, batchID, gaugeID int64, at time.Time) error
	OpenItemCount(dbc dbctx.Context, batchID int64) (int64, error)
	NextBatchSeq(dbc dbctx.Context) (int64, error)
}

type calibrationBatchRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCalibrationBatchRepo(db *gorm.DB, baseLog *logger.Logger) CalibrationBatchRepo {
	return &calibrationBatchRepo{
		db:  db,
		log: baseLog.With("repo", "CalibrationBatchRepo"),
	}
}

func (r *calibrationBatchRepo) CreateBatch(dbc dbctx.Context, batch *types.CalibrationBatch, gaugeIDs []int64) error {
	const op = "CalibrationBatchRepo.CreateBatch"
	transaction, err := requireTx(dbc, op)
	if err != nil {
		return err
	}
	if batch == nil {
		return types.NewError(types.CodeValidation, op, "batch is required", nil)
	}
	if err := batch.Validate(); err != nil {
		return err
	}
	if len(gaugeIDs) == 0 {
		return types.NewError(types.CodeValidation, op, "a batch needs at least one gauge", nil)
	}
	if err := transaction.Create(batch).Error; err != nil {
		return err
	}
	items := make([]*types.CalibrationBatchItem, 0, len(gaugeIDs))
	for _, id := range dedupeAscending(gaugeIDs) {
		items = append(items, &types.CalibrationBatchItem{BatchID: batch.ID, GaugeID: id})
	}
	return transaction.Create(&items).Error
}

func (r *calibrationBatchRepo) GetBatch(dbc dbctx.Context, id int64) (*types.CalibrationBatch, []*types.CalibrationBatchItem, error) {
	const op = "CalibrationBatchRepo.GetBatch"
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var batch types.CalibrationBatch
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		First(&batch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, types.NewError(types.CodeNotFound, op,
			fmt.Sprintf("calibration batch %d not found", id), err)
	}
	if err != nil {
		return nil, nil, err
	}
	var items []*types.CalibrationBatchItem
	if err := transaction.WithContext(dbc.Ctx).
		Where("batch_id = ?", id).
		Order("gauge_id ASC").
		Find(&items).Error; err != nil {
		return nil, nil, err
	}
	return &batch, items, nil
}

// LockByID takes a FOR UPDATE lock on the batch row. Dispatch and the
// release auto-close decision serialize on this lock so two releases of
// the last two items cannot both miss the close.
func (r *calibrationBatchRepo) LockByID(dbc dbctx.Context, id int64) (*types.CalibrationBatch, error) {
	const op = "CalibrationBatchRepo.LockByID"
	transaction, err := requireTx(dbc, op)
	if err != nil {
		return nil, err
	}
	var batch types.CalibrationBatch
	qErr := transaction.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&batch).Error
	if errors.Is(qErr, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.CodeNotFound, op,
			fmt.Sprintf("calibration batch %d not found", id), qErr)
	}
	if qErr != nil {
		return nil, qErr
	}
	return &batch, nil
}

func (r *calibrationBatchRepo) UpdateBatchFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error {
	const op = "CalibrationBatchRepo.UpdateBatchFields"
	transaction, err := requireTx(dbc, op)
	if err != nil {
		return err
	}
	if id == 0 {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.Model(&types.CalibrationBatch{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// FindOpenItemByGauge locates the gauge's membership in a dispatched,
// still-open batch. Receipt handlers use this to resolve which batch a
// physically returned unit belongs to.
func (r *calibrationBatchRepo) FindOpenItemByGauge(dbc dbctx.Context, gaugeID int64) (*types.CalibrationBatchItem, *types.CalibrationBatch, error) {
	const op = "CalibrationBatchRepo.FindOpenItemByGauge"
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var item types.CalibrationBatchItem
	err := transaction.WithContext(dbc.Ctx).
		Joins("JOIN calibration_batch ON calibration_batch.id = calibration_batch_item.batch_id").
		Where("calibration_batch_item.gauge_id = ? AND calibration_batch_item.released_at IS NULL", gaugeID).
		Where("calibration_batch.status = ?", types.BatchDispatched).
		Order("calibration_batch_item.id DESC").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, types.NewError(types.CodeNotFound, op,
			fmt.Sprintf("gauge %d is not in an open calibration batch", gaugeID), err)
	}
	if err != nil {
		return nil, nil, err
	}
	var batch types.CalibrationBatch
	if err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", item.BatchID).
		First(&batch).Error; err != nil {
		return nil, nil, err
	}
	return &item, &batch, nil
}

func (r *calibrationBatchRepo) MarkItemReceived(dbc dbctx.Context, batchID, gaugeID int64, at time.Time) error {
	const op = "CalibrationBatchRepo.MarkItemReceived"
	transaction, err := requireTx(dbc, op)
	if err != nil {
		return err
	}
	res := transaction.Model(&types.CalibrationBatchItem{}).
		Where("batch_id = ? AND gauge_id = ?", batchID, gaugeID).
		Updates(map[string]interface{}{"received_at": at, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.CodeNotFound, op,
			fmt.Sprintf("gauge %d is not part of batch %d", gaugeID, batchID), nil)
	}
	return nil
}

func (r *calibrationBatchRepo) MarkItemReleased(dbc dbctx.Context, batchID, gaugeID int64, at time.Time) error {
	const op = "CalibrationBatchRepo.MarkItemReleased"
	transaction, err := requireTx(dbc, op)
	if err != nil {
		return err
	}
	res := transaction.Model(&types.CalibrationBatchItem{}).
		Where("batch_id = ? AND gauge_id = ?", batchID, gaugeID).
		Updates(map[string]interface{}{"released_at": at, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.CodeNotFound, op,
			fmt.Sprintf("gauge %d is not part of batch %d", gaugeID, batchID), nil)
	}
	return nil
}

func (r *calibrationBatchRepo) OpenItemCount(dbc dbctx.Context, batchID int64) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.CalibrationBatchItem{}).
		Where("batch_id = ? AND released_at IS NULL", batchID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *calibrationBatchRepo) NextBatchSeq(dbc dbctx.Context) (int64, error) {
	const op = "CalibrationBatchRepo.NextBatchSeq"
	transaction, err := requireTx(dbc, op)
	if err != nil {
		return 0, err
	}
	return database.NextSeq(transaction, "calibration_batch")
}
