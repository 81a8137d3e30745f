package gauges

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gaugeworks/gaugetrack-backend/internal/database"
	types "github.com/gaugeworks/gaugetrack-backend/internal/domain/gauges"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/dbctx"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/logger"
)

// SpareFilter narrows ListSpares. Zero values match everything.
type SpareFilter struct {
	EquipmentType string
	ThreadSize    string
	ThreadClass   string
	Function      types.GaugeFunction
	OwnershipType types.OwnershipType
	CustomerID    *int64
}

type GaugeRepo interface {
	Create(dbc dbctx.Context, gs []*types.Gauge) ([]*types.Gauge, error)
	GetByID(dbc dbctx.Context, id int64) (*types.Gauge, error)
	GetByIDs(dbc dbctx.Context, ids []int64) ([]*types.Gauge, error)
	GetBySerial(dbc dbctx.Context, serial string) (*types.Gauge, error)
	ListSpares(dbc dbctx.Context, filter SpareFilter) ([]*types.Gauge, error)
	ListByStatus(dbc dbctx.Context, status types.GaugeStatus) ([]*types.Gauge, error)
	LockByIDs(dbc dbctx.Context, ids []int64) ([]*types.Gauge, error)
	LinkCompanions(dbc dbctx.Context, goID, nogoID int64, displayID string) error
	UnlinkCompanions(dbc dbctx.Context, idA, idB int64) error
	UpdateStatus(dbc dbctx.Context, ids []int64, status types.GaugeStatus) error
	UpdateLocation(dbc dbctx.Context, ids []int64, location string) error
	UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error
	SetSealed(dbc dbctx.Context, id int64, sealed bool) error
	SetDisplay(dbc dbctx.Context, id int64, displayID, suffix string) error
	SoftDelete(dbc dbctx.Context, id int64) error
	NextDisplaySeq(dbc dbctx.Context) (int64, error)
}

type gaugeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGaugeRepo(db *gorm.DB, baseLog *logger.Logger) GaugeRepo {
	return &gaugeRepo{
		db:  db,
		log: baseLog.With("repo", "GaugeRepo"),
	}
}

// requireTx rejects mutating calls arriving without a transaction. A
// missing handle means a multi-step mutation would partially commit, so
// it fails immediately instead of opening an implicit transaction.
func requireTx(dbc dbctx.Context, op string) (*gorm.DB, error) {
	if dbc.Tx == nil {
		return nil, types.NewError(types.CodeMissingConnection, op,
			"mutating call requires an active transaction handle", nil)
	}
	return dbc.Tx.WithContext(dbc.Ctx), nil
}

func (r *gaugeRepo) Create(dbc dbctx.Context, gs []*types.Gauge) ([]*types.Gauge, error) {
	const op = "GaugeRepo.Create"
	transaction, err := requireTx(dbc, op)
	if err != nil {
		return nil, err
	}
	if len(gs) == 0 {
		return []*types.Gauge{}, nil
	}
	if err := transaction.Create(&gs).Error; err != nil {
		return nil, err
	}
	return gs, nil
}

func (r *gaugeRepo) GetByID(dbc dbctx.Context, id int64) (*types.Gauge, error) {
	const op = "GaugeRepo.GetByID"
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var g types.Gauge
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.CodeNotFound, op,
			fmt.Sprintf("gauge %d not found", id), err)
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *gaugeRepo) GetByIDs(dbc dbctx.Context, ids []int64) ([]*types.Gauge, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Gauge
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *gaugeRepo) GetBySerial(dbc dbctx.Context, serial string) (*types.Gauge, error) {
	const op = "GaugeRepo.GetBySerial"
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if serial == "" {
		return nil, types.NewError(types.CodeValidation, op, "serial number is required", nil)
	}
	var g types.Gauge
	err := transaction.WithContext(dbc.Ctx).
		Where("serial_number = ?", serial).
		First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.CodeNotFound, op,
			fmt.Sprintf("gauge with serial %q not found", serial), err)
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *gaugeRepo) ListSpares(dbc dbctx.Context, filter SpareFilter) ([]*types.Gauge, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).
		Where("is_spare = ? AND companion_id IS NULL", true)
	if filter.EquipmentType != "" {
		q = q.Where("equipment_type = ?", filter.EquipmentType)
	}
	if filter.ThreadSize != "" {
		q = q.Where("thread_size = ?", filter.ThreadSize)
	}
	if filter.ThreadClass != "" {
		q = q.Where("thread_class = ?", filter.ThreadClass)
	}
	if filter.Function != "" {
		q = q.Where("gauge_function = ?", filter.Function)
	}
	if filter.OwnershipType != "" {
		q = q.Where("ownership_type = ?", filter.OwnershipType)
	}
	if filter.CustomerID != nil {
		q = q.Where("customer_id = ?", *filter.CustomerID)
	}
	var out []*types.Gauge
	if err := q.Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *gaugeRepo) ListByStatus(dbc dbctx.Context, status types.GaugeStatus) ([]*types.Gauge, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Gauge
	if err := transaction.WithContext(dbc.Ctx).
		Where("status = ?", status).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// LockByIDs acquires FOR UPDATE locks in ascending id order. Every call
// site shares this ordering so two concurrent pairings of the same rows
// cannot deadlock on each other.
func (r *gaugeRepo) LockByIDs(dbc dbctx.Context, ids []int64) ([]*types.Gauge, error) {
	const op = "GaugeRepo.LockByIDs"
	transaction, err := requireTx(dbc, op)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*types.Gauge{}, nil
	}
	sorted := dedupeAscending(ids)
	var out []*types.Gauge
	if err := transaction.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", sorted).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) != len(sorted) {
		return nil, types.NewError(types.CodeNotFound, op,
			fmt.Sprintf("expected %d gauges, found %d", len(sorted), len(out)), nil)
	}
	return out, nil
}

// LinkCompanions locks both rows, verifies neither is already linked,
// then turns the two records into a bonded set in the caller's
// transaction: mutual companion references, shared display id with A/B
// suffixes, spare flags cleared.
func (r *gaugeRepo) LinkCompanions(dbc dbctx.Context, goID, nogoID int64, displayID string) error {
	const op = "GaugeRepo.LinkCompanions"
	transaction, err := requireTx(dbc, op)
	if err != nil {
		return err
	}
	if goID == nogoID {
		return types.NewError(types.CodeValidation, op, "cannot link a gauge to itself", nil)
	}
	if displayID == "" {
		return types.NewError(types.CodeValidation, op, "display id is required to link a set", nil)
	}
	locked, err := r.LockByIDs(dbc, []int64{goID, nogoID})
	if err != nil {
		return err
	}
	for _, g := range locked {
		if g.CompanionID != nil {
			return types.NewError(types.CodePrecondition, op,
				fmt.Sprintf("gauge %d already has companion %d", g.ID, *g.CompanionID), nil)
		}
	}
	now := time.Now()
	if err := transaction.Model(&types.Gauge{}).
		Where("id = ?", goID).
		Updates(map[string]interface{}{
			"companion_id": nogoID,
			"pair_suffix":  types.SuffixGo,
			"display_id":   displayID,
			"is_spare":     false,
			"updated_at":   now,
		}).Error; err != nil {
		return err
	}
	if err := transaction.Model(&types.Gauge{}).
		Where("id = ?", nogoID).
		Updates(map[string]interface{}{
			"companion_id": goID,
			"pair_suffix":  types.SuffixNoGo,
			"display_id":   displayID,
			"is_spare":     false,
			"updated_at":   now,
		}).Error; err != nil {
		return err
	}
	return nil
}

// UnlinkCompanions dissolves the set: companion references, suffixes and
// display ids cleared, both rows restored to spares. Callers record the
// relationship history before calling this so the audit row captures the
// pre-unlink linkage.
func (r *gaugeRepo) UnlinkCompanions(dbc dbctx.Context, idA, idB int64) error {
	const op = "GaugeRepo.UnlinkCompanions"
	transaction, err := requireTx(dbc, op)
	if err != nil {
		return err
	}
	if _, err := r.LockByIDs(dbc, []int64{idA, idB}); err != nil {
		return err
	}
	now := time.Now()
	return transaction.Model(&types.Gauge{}).
		Where("id IN ?", []int64{idA, idB}).
		Updates(map[string]interface{}{
			"companion_id": nil,
			"pair_suffix":  nil,
			"display_id":   nil,
			"is_spare":     true,
			"updated_at":   now,
		}).Error
}

func (r *gaugeRepo) UpdateStatus(dbc dbctx.Context, ids []int64, status types.GaugeStatus) error {
	const op = "GaugeRepo.UpdateStatus"
	transaction, err := requireTx(dbc, op)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if !types.ValidStatus(status) {
		return types.NewError(types.CodeValidation, op,
			fmt.Sprintf("unknown status %q", status), nil)
	}
	return transaction.Model(&types.Gauge{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()}).Error
}

func (r *gaugeRepo) UpdateLocation(dbc dbctx.Context, ids []int64, location string) error {
	const op = "GaugeRepo.UpdateLocation"
	transaction, err := requireTx(dbc, op)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.Model(&types.Gauge{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{"storage_location": location, "updated_at": time.Now()}).Error
}

func (r *gaugeRepo) UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error {
	const op = "GaugeRepo.UpdateFields"
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
	return transaction.Model(&types.Gauge{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *gaugeRepo) SetSealed(dbc dbctx.Context, id int64, sealed bool) error {
	return r.UpdateFields(dbc, id, map[string]interface{}{"sealed": sealed})
}

func (r *gaugeRepo) SetDisplay(dbc dbctx.Context, id int64, displayID, suffix string) error {
	return r.UpdateFields(dbc, id, map[string]interface{}{
		"display_id":  displayID,
		"pair_suffix": suffix,
	})
}

// SoftDelete retires the gauge and marks the row deleted. The record
// stays queryable with Unscoped for audit trails.
func (r *gaugeRepo) SoftDelete(dbc dbctx.Context, id int64) error {
	const op = "GaugeRepo.SoftDelete"
	transaction, err := requireTx(dbc, op)
	if err != nil {
		return err
	}
	if err := transaction.Model(&types.Gauge{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": types.StatusRetired, "updated_at": time.Now()}).Error; err != nil {
		return err
	}
	res := transaction.Where("id = ?", id).Delete(&types.Gauge{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.CodeNotFound, op,
			fmt.Sprintf("gauge %d not found", id), nil)
	}
	return nil
}

func (r *gaugeRepo) NextDisplaySeq(dbc dbctx.Context) (int64, error) {
	const op = "GaugeRepo.NextDisplaySeq"
	transaction, err := requireTx(dbc, op)
	if err != nil {
		return 0, err
	}
	return database.NextSeq(transaction, "gauge_display")
}

func dedupeAscending(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
