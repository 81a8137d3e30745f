package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gaugeworks/gaugetrack-backend/internal/data/repos"
	"github.com/gaugeworks/gaugetrack-backend/internal/database"
	types "github.com/gaugeworks/gaugetrack-backend/internal/domain/gauges"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/dbctx"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/logger"
)

// missingCompanionWarning flags a dangling companion reference found
// during a cascade. It reflects a historical data issue, so the
// operation proceeds on the surviving member instead of failing.
const missingCompanionWarning = "missing companion"

// CascadeResult reports what a cascading mutation touched. Companion is
// nil and Cascaded false when the target had no companion; Warning is
// set when the data promised a companion that no longer exists.
type CascadeResult struct {
	Target    *types.Gauge `json:"target"`
	Companion *types.Gauge `json:"companion,omitempty"`
	Cascaded  bool         `json:"cascaded"`
	Warning   string       `json:"warning,omitempty"`
}

type CascadeService interface {
	CascadeStatusChange(ctx context.Context, id int64, newStatus types.GaugeStatus, actor, reason string) (*CascadeResult, error)
	CascadeLocationChange(ctx context.Context, id int64, newLocation, actor, reason string) (*CascadeResult, error)
	CanCheckoutSet(ctx context.Context, id int64) (*types.PairStatus, error)
	CheckoutSet(ctx context.Context, id int64, actor string) (*CascadeResult, error)
	ReturnSet(ctx context.Context, id int64, actor, reason string) (*CascadeResult, error)
	CompleteQC(ctx context.Context, id int64, pass bool, actor, reason string) (*CascadeResult, error)
	DeleteAndOrphanCompanion(ctx context.Context, id int64, actor, reason string) (*CascadeResult, error)
}

type CascadeServiceDeps struct {
	Base      BaseDeps
	Gauges    repos.GaugeRepo
	Events    repos.PairEventRepo
	Publisher EventPublisher
}

type cascadeService struct {
	deps CascadeServiceDeps
	log  *logger.Logger
}

func NewCascadeService(deps CascadeServiceDeps) CascadeService {
	deps.Base = deps.Base.withDefaults()
	return &cascadeService{
		deps: deps,
		log:  deps.Base.Log.With("service", "CascadeService"),
	}
}

// lockSet resolves and locks the target and its companion in ascending
// id order. A companion id that no longer resolves to a row is the
// soft "missing companion" case: the target is locked alone and the
// warning is returned for the result metadata.
func lockSet(dbc dbctx.Context, gauges repos.GaugeRepo, log *logger.Logger, op string, id int64) (target, companion *types.Gauge, warning string, err error) {
	target, err = gauges.GetByID(dbc, id)
	if err != nil {
		return nil, nil, "", err
	}
	if target.CompanionID == nil {
		locked, err := gauges.LockByIDs(dbc, []int64{id})
		if err != nil {
			return nil, nil, "", err
		}
		return locked[0], nil, "", nil
	}
	companionID := *target.CompanionID

	locked, err := gauges.LockByIDs(dbc, []int64{id, companionID})
	if types.IsCode(err, types.CodeNotFound) {
		log.Warn("companion row missing, proceeding without cascade",
			"op", op, "gauge_id", id, "companion_id", companionID)
		single, lerr := gauges.LockByIDs(dbc, []int64{id})
		if lerr != nil {
			return nil, nil, "", lerr
		}
		return single[0], nil, missingCompanionWarning, nil
	}
	if err != nil {
		return nil, nil, "", err
	}

	target = pickByID(locked, id)
	companion = pickByID(locked, companionID)
	if target.CompanionID == nil || *target.CompanionID != companion.ID ||
		companion.CompanionID == nil || *companion.CompanionID != target.ID {
		return nil, nil, "", types.NewError(types.CodePrecondition, op,
			fmt.Sprintf("pair membership of gauge %d changed concurrently", id), nil)
	}
	return target, companion, "", nil
}

func memberIDs(target, companion *types.Gauge) []int64 {
	ids := []int64{target.ID}
	if companion != nil {
		ids = append(ids, companion.ID)
	}
	return ids
}

// actionForStatus maps a cascaded status to its history action. The
// history vocabulary is closed; statuses outside it cascade without a
// pair event and are structured-logged instead.
func actionForStatus(status types.GaugeStatus) types.PairAction {
	switch status {
	case types.StatusOutOfService:
		return types.ActionCascadedOOS
	case types.StatusReturned:
		return types.ActionCascadedReturn
	}
	return ""
}

// CascadeStatusChange applies newStatus to the target and mirrors it to
// the companion inside the same transaction.
func (s *cascadeService) CascadeStatusChange(ctx context.Context, id int64, newStatus types.GaugeStatus, actor, reason string) (*CascadeResult, error) {
	const op = "Cascade.CascadeStatusChange"
	actor, err := requireActor(op, actor)
	if err != nil {
		return nil, err
	}
	if !types.ValidStatus(newStatus) {
		return nil, types.NewError(types.CodeValidation, op,
			fmt.Sprintf("unknown status %q", newStatus), nil)
	}

	var result *CascadeResult
	err = executeWrite(ctx, s.deps.Base, op, func(dbc dbctx.Context) error {
		target, companion, warning, err := lockSet(dbc, s.deps.Gauges, s.log, op, id)
		if err != nil {
			return err
		}
		if err := s.deps.Gauges.UpdateStatus(dbc, memberIDs(target, companion), newStatus); err != nil {
			return err
		}
		if companion != nil {
			if action := actionForStatus(newStatus); action != "" {
				goG, nogoG := orderByFunction(target, companion)
				if err := s.deps.Events.Create(dbc, &types.PairEvent{
					GoID:    goG.ID,
					NoGoID:  nogoG.ID,
					Action:  action,
					Actor:   actor,
					Reason:  reason,
					Details: eventDetails(map[string]interface{}{"status": string(newStatus)}),
				}); err != nil {
					return err
				}
			} else {
				s.log.Info("status cascade outside history vocabulary",
					"op", op, "gauge_id", id, "status", newStatus)
			}
		}
		target.Status = newStatus
		if companion != nil {
			companion.Status = newStatus
		}
		result = &CascadeResult{Target: target, Companion: companion, Cascaded: companion != nil, Warning: warning}
		return nil
	}, database.RepeatableRead)
	if err != nil {
		return nil, err
	}

	s.deps.Base.Hooks.IncCascade("status", result.Cascaded)
	publishEvent(ctx, s.deps.Publisher, s.log, Event{
		Kind:    "cascade.status",
		GaugeID: id,
		Actor:   actor,
		Details: map[string]interface{}{"status": string(newStatus), "cascaded": result.Cascaded},
	})
	return result, nil
}

// CascadeLocationChange relocates the target and its companion together.
func (s *cascadeService) CascadeLocationChange(ctx context.Context, id int64, newLocation, actor, reason string) (*CascadeResult, error) {
	const op = "Cascade.CascadeLocationChange"
	actor, err := requireActor(op, actor)
	if err != nil {
		return nil, err
	}
	newLocation = strings.TrimSpace(newLocation)
	if newLocation == "" {
		return nil, types.NewError(types.CodeValidation, op, "storage location is required", nil)
	}

	var result *CascadeResult
	err = executeWrite(ctx, s.deps.Base, op, func(dbc dbctx.Context) error {
		target, companion, warning, err := lockSet(dbc, s.deps.Gauges, s.log, op, id)
		if err != nil {
			return err
		}
		if err := s.deps.Gauges.UpdateLocation(dbc, memberIDs(target, companion), newLocation); err != nil {
			return err
		}
		if companion != nil {
			goG, nogoG := orderByFunction(target, companion)
			if err := s.deps.Events.Create(dbc, &types.PairEvent{
				GoID:    goG.ID,
				NoGoID:  nogoG.ID,
				Action:  types.ActionCascadedLocation,
				Actor:   actor,
				Reason:  reason,
				Details: eventDetails(map[string]interface{}{"storage_location": newLocation}),
			}); err != nil {
				return err
			}
		}
		target.StorageLocation = newLocation
		if companion != nil {
			companion.StorageLocation = newLocation
		}
		result = &CascadeResult{Target: target, Companion: companion, Cascaded: companion != nil, Warning: warning}
		return nil
	}, database.RepeatableRead)
	if err != nil {
		return nil, err
	}

	s.deps.Base.Hooks.IncCascade("location", result.Cascaded)
	publishEvent(ctx, s.deps.Publisher, s.log, Event{
		Kind:    "cascade.location",
		GaugeID: id,
		Actor:   actor,
		Details: map[string]interface{}{"storage_location": newLocation, "cascaded": result.Cascaded},
	})
	return result, nil
}

// CanCheckoutSet reports whether the set containing id is eligible for
// checkout. Read-only; eligibility requires a complete pair with both
// members independently available.
func (s *cascadeService) CanCheckoutSet(ctx context.Context, id int64) (*types.PairStatus, error) {
	const op = "Cascade.CanCheckoutSet"
	dbc := dbctx.Context{Ctx: ctx}

	target, err := s.deps.Gauges.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if target.CompanionID == nil {
		return &types.PairStatus{
			Status:      target.EffectiveStatus(time.Now()),
			CanCheckout: false,
			Reason:      fmt.Sprintf("gauge %d has no companion; checkout requires a complete set", id),
		}, nil
	}
	companion, err := s.deps.Gauges.GetByID(dbc, *target.CompanionID)
	if types.IsCode(err, types.CodeNotFound) {
		s.log.Warn("companion row missing during checkout check",
			"gauge_id", id, "companion_id", *target.CompanionID)
		return &types.PairStatus{
			Status:      target.EffectiveStatus(time.Now()),
			CanCheckout: false,
			Reason:      missingCompanionWarning,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	goG, nogoG := orderByFunction(target, companion)
	ps := types.ComputeStatus(goG, nogoG, time.Now())
	return &ps, nil
}

// CheckoutSet moves a complete, eligible set to checked_out.
func (s *cascadeService) CheckoutSet(ctx context.Context, id int64, actor string) (*CascadeResult, error) {
	const op = "Cascade.CheckoutSet"
	actor, err := requireActor(op, actor)
	if err != nil {
		return nil, err
	}

	var result *CascadeResult
	err = executeWrite(ctx, s.deps.Base, op, func(dbc dbctx.Context) error {
		target, companion, warning, err := lockSet(dbc, s.deps.Gauges, s.log, op, id)
		if err != nil {
			return err
		}
		if companion == nil {
			reason := fmt.Sprintf("gauge %d has no companion; checkout requires a complete set", id)
			if warning != "" {
				reason = warning
			}
			return types.NewError(types.CodePrecondition, op, reason, nil)
		}
		goG, nogoG := orderByFunction(target, companion)
		ps := types.ComputeStatus(goG, nogoG, time.Now())
		if !ps.CanCheckout {
			return types.NewError(types.CodePrecondition, op, ps.Reason, nil)
		}
		if err := s.deps.Gauges.UpdateStatus(dbc, memberIDs(target, companion), types.StatusCheckedOut); err != nil {
			return err
		}
		target.Status = types.StatusCheckedOut
		companion.Status = types.StatusCheckedOut
		result = &CascadeResult{Target: target, Companion: companion, Cascaded: true}
		return nil
	}, database.RepeatableRead)
	if err != nil {
		return nil, err
	}

	s.deps.Base.Hooks.IncCascade("checkout", true)
	publishEvent(ctx, s.deps.Publisher, s.log, Event{
		Kind:    "set.checked_out",
		GaugeID: id,
		Actor:   actor,
	})
	return result, nil
}

// ReturnSet takes a checked-out set back in: both members land in the
// qc hold and lose their calibration seals. The stored status after a
// return is pending_qc; the return itself is captured by the
// cascaded_return history row.
func (s *cascadeService) ReturnSet(ctx context.Context, id int64, actor, reason string) (*CascadeResult, error) {
	const op = "Cascade.ReturnSet"
	actor, err := requireActor(op, actor)
	if err != nil {
		return nil, err
	}

	var result *CascadeResult
	err = executeWrite(ctx, s.deps.Base, op, func(dbc dbctx.Context) error {
		target, companion, warning, err := lockSet(dbc, s.deps.Gauges, s.log, op, id)
		if err != nil {
			return err
		}
		for _, g := range []*types.Gauge{target, companion} {
			if g == nil {
				continue
			}
			if g.Status != types.StatusCheckedOut {
				return types.NewError(types.CodePrecondition, op,
					fmt.Sprintf("gauge %d is %s, not checked out", g.ID, g.Status), nil)
			}
		}
		ids := memberIDs(target, companion)
		if err := s.deps.Gauges.UpdateStatus(dbc, ids, types.StatusPendingQC); err != nil {
			return err
		}
		for _, memberID := range ids {
			if err := s.deps.Gauges.SetSealed(dbc, memberID, false); err != nil {
				return err
			}
		}
		if companion != nil {
			goG, nogoG := orderByFunction(target, companion)
			if err := s.deps.Events.Create(dbc, &types.PairEvent{
				GoID:   goG.ID,
				NoGoID: nogoG.ID,
				Action: types.ActionCascadedReturn,
				Actor:  actor,
				Reason: reason,
			}); err != nil {
				return err
			}
		}
		for _, g := range []*types.Gauge{target, companion} {
			if g == nil {
				continue
			}
			g.Status = types.StatusPendingQC
			g.Sealed = false
		}
		result = &CascadeResult{Target: target, Companion: companion, Cascaded: companion != nil, Warning: warning}
		return nil
	}, database.RepeatableRead)
	if err != nil {
		return nil, err
	}

	s.deps.Base.Hooks.IncCascade("return", result.Cascaded)
	publishEvent(ctx, s.deps.Publisher, s.log, Event{
		Kind:    "set.returned",
		GaugeID: id,
		Actor:   actor,
	})
	return result, nil
}

// CompleteQC resolves the qc hold for the set: pass restores both
// members to available, fail parks them out of service.
func (s *cascadeService) CompleteQC(ctx context.Context, id int64, pass bool, actor, reason string) (*CascadeResult, error) {
	const op = "Cascade.CompleteQC"
	actor, err := requireActor(op, actor)
	if err != nil {
		return nil, err
	}

	newStatus := types.StatusAvailable
	if !pass {
		newStatus = types.StatusOutOfService
	}

	var result *CascadeResult
	err = executeWrite(ctx, s.deps.Base, op, func(dbc dbctx.Context) error {
		target, companion, warning, err := lockSet(dbc, s.deps.Gauges, s.log, op, id)
		if err != nil {
			return err
		}
		for _, g := range []*types.Gauge{target, companion} {
			if g == nil {
				continue
			}
			if g.Status != types.StatusPendingQC {
				return types.NewError(types.CodePrecondition, op,
					fmt.Sprintf("gauge %d is %s, not awaiting qc", g.ID, g.Status), nil)
			}
		}
		if err := s.deps.Gauges.UpdateStatus(dbc, memberIDs(target, companion), newStatus); err != nil {
			return err
		}
		if companion != nil && !pass {
			goG, nogoG := orderByFunction(target, companion)
			if err := s.deps.Events.Create(dbc, &types.PairEvent{
				GoID:    goG.ID,
				NoGoID:  nogoG.ID,
				Action:  types.ActionCascadedOOS,
				Actor:   actor,
				Reason:  reason,
				Details: eventDetails(map[string]interface{}{"qc_failed": true}),
			}); err != nil {
				return err
			}
		}
		for _, g := range []*types.Gauge{target, companion} {
			if g == nil {
				continue
			}
			g.Status = newStatus
		}
		result = &CascadeResult{Target: target, Companion: companion, Cascaded: companion != nil, Warning: warning}
		return nil
	}, database.RepeatableRead)
	if err != nil {
		return nil, err
	}

	s.deps.Base.Hooks.IncCascade("qc", result.Cascaded)
	publishEvent(ctx, s.deps.Publisher, s.log, Event{
		Kind:    "set.qc_completed",
		GaugeID: id,
		Actor:   actor,
		Details: map[string]interface{}{"pass": pass},
	})
	return result, nil
}

// DeleteAndOrphanCompanion soft-deletes the target and leaves its
// companion behind as an unpaired spare. Blocked while the companion is
// checked out; the orphaned history row is written before the unlink.
func (s *cascadeService) DeleteAndOrphanCompanion(ctx context.Context, id int64, actor, reason string) (*CascadeResult, error) {
	const op = "Cascade.DeleteAndOrphanCompanion"
	actor, err := requireActor(op, actor)
	if err != nil {
		return nil, err
	}

	var result *CascadeResult
	err = executeWrite(ctx, s.deps.Base, op, func(dbc dbctx.Context) error {
		target, companion, warning, err := lockSet(dbc, s.deps.Gauges, s.log, op, id)
		if err != nil {
			return err
		}
		if companion != nil {
			if companion.Status == types.StatusCheckedOut {
				return types.NewError(types.CodePrecondition, op,
					fmt.Sprintf("cannot delete gauge %d while its companion %d is checked out", id, companion.ID), nil)
			}
			goG, nogoG := orderByFunction(target, companion)
			formerDisplay := ""
			if target.DisplayID != nil {
				formerDisplay = *target.DisplayID
			}
			if err := s.deps.Events.Create(dbc, &types.PairEvent{
				GoID:   goG.ID,
				NoGoID: nogoG.ID,
				Action: types.ActionOrphaned,
				Actor:  actor,
				Reason: reason,
				Details: eventDetails(map[string]interface{}{
					"deleted_id": target.ID,
					"display_id": formerDisplay,
				}),
			}); err != nil {
				return err
			}
			if err := s.deps.Gauges.UnlinkCompanions(dbc, target.ID, companion.ID); err != nil {
				return err
			}
		}
		if err := s.deps.Gauges.SoftDelete(dbc, target.ID); err != nil {
			return err
		}
		target.Status = types.StatusRetired
		markUnlinked(companion)
		result = &CascadeResult{Target: target, Companion: companion, Cascaded: companion != nil, Warning: warning}
		return nil
	}, database.RepeatableRead)
	if err != nil {
		return nil, err
	}

	s.deps.Base.Hooks.IncPairAction(string(types.ActionOrphaned))
	publishEvent(ctx, s.deps.Publisher, s.log, Event{
		Kind:    "gauge.deleted",
		GaugeID: id,
		Actor:   actor,
	})
	return result, nil
}
