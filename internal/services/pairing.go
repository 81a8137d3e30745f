package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/gaugeworks/gaugetrack-backend/internal/data/repos"
	"github.com/gaugeworks/gaugetrack-backend/internal/database"
	types "github.com/gaugeworks/gaugetrack-backend/internal/domain/gauges"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/dbctx"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/logger"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/pointers"
)

const displayIDFormat = "G-%05d"

// CreateGaugeInput carries the caller-supplied fields for a new gauge.
type CreateGaugeInput struct {
	SerialNumber       string              `json:"serial_number"`
	EquipmentType      string              `json:"equipment_type"`
	Category           string              `json:"category"`
	ThreadSize         string              `json:"thread_size"`
	ThreadClass        string              `json:"thread_class"`
	Function           types.GaugeFunction `json:"function"`
	OwnershipType      types.OwnershipType `json:"ownership_type"`
	CustomerID         *int64              `json:"customer_id,omitempty"`
	StorageLocation    string              `json:"storage_location"`
	NextCalibrationDue *time.Time          `json:"next_calibration_due,omitempty"`
}

func (in CreateGaugeInput) toGauge(spare bool) *types.Gauge {
	g := &types.Gauge{
		SerialNumber:       strings.TrimSpace(in.SerialNumber),
		EquipmentType:      strings.TrimSpace(in.EquipmentType),
		Category:           strings.TrimSpace(in.Category),
		ThreadSize:         strings.TrimSpace(in.ThreadSize),
		ThreadClass:        strings.TrimSpace(in.ThreadClass),
		Function:           in.Function,
		Status:             types.StatusAvailable,
		IsSpare:            spare,
		OwnershipType:      in.OwnershipType,
		CustomerID:         in.CustomerID,
		StorageLocation:    strings.TrimSpace(in.StorageLocation),
		NextCalibrationDue: in.NextCalibrationDue,
	}
	if g.OwnershipType == "" {
		g.OwnershipType = types.OwnershipCompany
	}
	return g
}

// PairResult is the post-operation view of a bonded set. After an
// unpair the members come back as spares and DisplayID is empty.
type PairResult struct {
	Go        *types.Gauge `json:"go"`
	NoGo      *types.Gauge `json:"nogo"`
	DisplayID string       `json:"display_id,omitempty"`
}

type PairingService interface {
	CreateSpare(ctx context.Context, in CreateGaugeInput, actor string) (*types.Gauge, error)
	CreatePair(ctx context.Context, goIn, nogoIn CreateGaugeInput, actor string) (*PairResult, error)
	PairSpares(ctx context.Context, goID, nogoID int64, location, actor, reason string) (*PairResult, error)
	UnpairSet(ctx context.Context, memberID int64, actor, reason string) (*PairResult, error)
	ReplaceCompanion(ctx context.Context, memberID, spareID int64, actor, reason string) (*PairResult, error)
}

type PairingServiceDeps struct {
	Base      BaseDeps
	Gauges    repos.GaugeRepo
	Events    repos.PairEventRepo
	Publisher EventPublisher
}

type pairingService struct {
	deps PairingServiceDeps
	log  *logger.Logger
}

func NewPairingService(deps PairingServiceDeps) PairingService {
	deps.Base = deps.Base.withDefaults()
	return &pairingService{
		deps: deps,
		log:  deps.Base.Log.With("service", "PairingService"),
	}
}

// CreateSpare registers a single unpaired gauge. Spares carry no display
// id; the serial number is their identity until they join a set.
func (s *pairingService) CreateSpare(ctx context.Context, in CreateGaugeInput, actor string) (*types.Gauge, error) {
	const op = "Pairing.CreateSpare"
	actor, err := requireActor(op, actor)
	if err != nil {
		return nil, err
	}
	g := in.toGauge(true)
	if err := g.ValidateNew(); err != nil {
		return nil, err
	}

	err = executeWrite(ctx, s.deps.Base, op, func(dbc dbctx.Context) error {
		_, err := s.deps.Gauges.Create(dbc, []*types.Gauge{g})
		return err
	}, database.RepeatableRead)
	if err != nil {
		return nil, err
	}

	publishEvent(ctx, s.deps.Publisher, s.log, Event{
		Kind:    "gauge.created",
		GaugeID: g.ID,
		Actor:   actor,
		Details: map[string]interface{}{"serial_number": g.SerialNumber},
	})
	return g, nil
}

// CreatePair creates both members and bonds them in one transaction:
// rows inserted, display id minted, companion links written, history
// recorded. A failure at any step rolls the whole set back.
func (s *pairingService) CreatePair(ctx context.Context, goIn, nogoIn CreateGaugeInput, actor string) (*PairResult, error) {
	const op = "Pairing.CreatePair"
	actor, err := requireActor(op, actor)
	if err != nil {
		return nil, err
	}
	if goIn.Function == "" {
		goIn.Function = types.FunctionGo
	}
	if nogoIn.Function == "" {
		nogoIn.Function = types.FunctionNoGo
	}
	if goIn.Function != types.FunctionGo {
		return nil, types.NewError(types.CodeValidation, op, "first gauge of a pair must be the GO member", nil)
	}
	if nogoIn.Function != types.FunctionNoGo {
		return nil, types.NewError(types.CodeValidation, op, "second gauge of a pair must be the NO-GO member", nil)
	}

	goG := goIn.toGauge(false)
	nogoG := nogoIn.toGauge(false)
	if err := goG.ValidateNew(); err != nil {
		return nil, err
	}
	if err := nogoG.ValidateNew(); err != nil {
		return nil, err
	}
	if err := types.ValidatePairCompatibility(goG, nogoG); err != nil {
		return nil, err
	}

	var displayID string
	err = executeWrite(ctx, s.deps.Base, op, func(dbc dbctx.Context) error {
		if _, err := s.deps.Gauges.Create(dbc, []*types.Gauge{goG, nogoG}); err != nil {
			return err
		}
		seq, err := s.deps.Gauges.NextDisplaySeq(dbc)
		if err != nil {
			return err
		}
		displayID = fmt.Sprintf(displayIDFormat, seq)
		if err := s.deps.Gauges.LinkCompanions(dbc, goG.ID, nogoG.ID, displayID); err != nil {
			return err
		}
		return s.deps.Events.Create(dbc, &types.PairEvent{
			GoID:    goG.ID,
			NoGoID:  nogoG.ID,
			Action:  types.ActionCreatedTogether,
			Actor:   actor,
			Details: eventDetails(map[string]interface{}{"display_id": displayID}),
		})
	}, database.RepeatableRead)
	if err != nil {
		return nil, err
	}

	markLinked(goG, nogoG, displayID)
	s.deps.Base.Hooks.IncPairAction(string(types.ActionCreatedTogether))
	publishEvent(ctx, s.deps.Publisher, s.log, Event{
		Kind:      "pair.created",
		GoID:      goG.ID,
		NoGoID:    nogoG.ID,
		DisplayID: displayID,
		Actor:     actor,
	})
	return &PairResult{Go: goG, NoGo: nogoG, DisplayID: displayID}, nil
}

// PairSpares bonds two existing spares. A resting place is mandatory:
// both members move to the given location as part of the same
// transaction that links them.
func (s *pairingService) PairSpares(ctx context.Context, goID, nogoID int64, location, actor, reason string) (*PairResult, error) {
	const op = "Pairing.PairSpares"
	actor, err := requireActor(op, actor)
	if err != nil {
		return nil, err
	}
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, types.NewError(types.CodeValidation, op, "storage location is required when pairing spares", nil)
	}
	if goID == nogoID {
		return nil, types.NewError(types.CodeValidation, op, "cannot pair a gauge with itself", nil)
	}

	var goG, nogoG *types.Gauge
	var displayID string
	err = executeWrite(ctx, s.deps.Base, op, func(dbc dbctx.Context) error {
		locked, err := s.deps.Gauges.LockByIDs(dbc, []int64{goID, nogoID})
		if err != nil {
			return err
		}
		goG, nogoG = pickByID(locked, goID), pickByID(locked, nogoID)

		for _, g := range []*types.Gauge{goG, nogoG} {
			if !g.IsSpare || g.CompanionID != nil {
				return types.NewError(types.CodePrecondition, op,
					fmt.Sprintf("gauge %d is not an unpaired spare", g.ID), nil)
			}
			if g.Status == types.StatusPendingQC {
				return types.NewError(types.CodePrecondition, op,
					fmt.Sprintf("gauge %d is awaiting qc and cannot be paired", g.ID), nil)
			}
		}
		if goG.Function != types.FunctionGo {
			return types.NewError(types.CodeValidation, op,
				fmt.Sprintf("gauge %d is not a GO member", goG.ID), nil)
		}
		if nogoG.Function != types.FunctionNoGo {
			return types.NewError(types.CodeValidation, op,
				fmt.Sprintf("gauge %d is not a NO-GO member", nogoG.ID), nil)
		}
		if err := types.ValidatePairCompatibility(goG, nogoG); err != nil {
			return err
		}

		seq, err := s.deps.Gauges.NextDisplaySeq(dbc)
		if err != nil {
			return err
		}
		displayID = fmt.Sprintf(displayIDFormat, seq)
		if err := s.deps.Gauges.LinkCompanions(dbc, goID, nogoID, displayID); err != nil {
			return err
		}
		if err := s.deps.Gauges.UpdateLocation(dbc, []int64{goID, nogoID}, location); err != nil {
			return err
		}
		return s.deps.Events.Create(dbc, &types.PairEvent{
			GoID:   goID,
			NoGoID: nogoID,
			Action: types.ActionPairedFromSpares,
			Actor:  actor,
			Reason: reason,
			Details: eventDetails(map[string]interface{}{
				"display_id":       displayID,
				"storage_location": location,
			}),
		})
	}, database.RepeatableRead)
	if err != nil {
		return nil, err
	}

	markLinked(goG, nogoG, displayID)
	goG.StorageLocation = location
	nogoG.StorageLocation = location
	s.deps.Base.Hooks.IncPairAction(string(types.ActionPairedFromSpares))
	publishEvent(ctx, s.deps.Publisher, s.log, Event{
		Kind:      "pair.paired_from_spares",
		GoID:      goID,
		NoGoID:    nogoID,
		DisplayID: displayID,
		Actor:     actor,
	})
	return &PairResult{Go: goG, NoGo: nogoG, DisplayID: displayID}, nil
}

// UnpairSet dissolves a set starting from either member. The history row
// is written before the unlink so it captures the pre-unlink linkage;
// both rows revert to spares and lose the shared display id.
func (s *pairingService) UnpairSet(ctx context.Context, memberID int64, actor, reason string) (*PairResult, error) {
	const op = "Pairing.UnpairSet"
	actor, err := requireActor(op, actor)
	if err != nil {
		return nil, err
	}

	var goG, nogoG *types.Gauge
	var formerDisplay string
	err = executeWrite(ctx, s.deps.Base, op, func(dbc dbctx.Context) error {
		member, err := s.deps.Gauges.GetByID(dbc, memberID)
		if err != nil {
			return err
		}
		if member.CompanionID == nil {
			return types.NewError(types.CodePrecondition, op,
				fmt.Sprintf("gauge %d is not paired", memberID), nil)
		}
		companionID := *member.CompanionID

		locked, err := s.deps.Gauges.LockByIDs(dbc, []int64{memberID, companionID})
		if err != nil {
			return err
		}
		member = pickByID(locked, memberID)
		companion := pickByID(locked, companionID)
		if member.CompanionID == nil || *member.CompanionID != companion.ID ||
			companion.CompanionID == nil || *companion.CompanionID != member.ID {
			return types.NewError(types.CodePrecondition, op,
				fmt.Sprintf("gauge %d is no longer paired with gauge %d", memberID, companionID), nil)
		}

		goG, nogoG = orderByFunction(member, companion)
		if goG.DisplayID != nil {
			formerDisplay = *goG.DisplayID
		}

		if err := s.deps.Events.Create(dbc, &types.PairEvent{
			GoID:    goG.ID,
			NoGoID:  nogoG.ID,
			Action:  types.ActionUnpaired,
			Actor:   actor,
			Reason:  reason,
			Details: eventDetails(map[string]interface{}{"display_id": formerDisplay}),
		}); err != nil {
			return err
		}
		return s.deps.Gauges.UnlinkCompanions(dbc, goG.ID, nogoG.ID)
	}, database.RepeatableRead)
	if err != nil {
		return nil, err
	}

	markUnlinked(goG, nogoG)
	s.deps.Base.Hooks.IncPairAction(string(types.ActionUnpaired))
	publishEvent(ctx, s.deps.Publisher, s.log, Event{
		Kind:      "pair.unpaired",
		GoID:      goG.ID,
		NoGoID:    nogoG.ID,
		DisplayID: formerDisplay,
		Actor:     actor,
	})
	return &PairResult{Go: goG, NoGo: nogoG}, nil
}

// ReplaceCompanion swaps one member of a set for a spare. The remaining
// member keeps the set's display id; the replaced unit reverts to a
// spare. All three rows are locked in one transaction.
func (s *pairingService) ReplaceCompanion(ctx context.Context, memberID, spareID int64, actor, reason string) (*PairResult, error) {
	const op = "Pairing.ReplaceCompanion"
	actor, err := requireActor(op, actor)
	if err != nil {
		return nil, err
	}
	if memberID == spareID {
		return nil, types.NewError(types.CodeValidation, op, "replacement must differ from the remaining member", nil)
	}

	var newGo, newNoGo, replaced *types.Gauge
	var displayID string
	err = executeWrite(ctx, s.deps.Base, op, func(dbc dbctx.Context) error {
		member, err := s.deps.Gauges.GetByID(dbc, memberID)
		if err != nil {
			return err
		}
		if member.CompanionID == nil {
			return types.NewError(types.CodePrecondition, op,
				fmt.Sprintf("gauge %d is not paired; pair the spare instead of replacing", memberID), nil)
		}
		oldID := *member.CompanionID
		if oldID == spareID {
			return types.NewError(types.CodeValidation, op,
				fmt.Sprintf("gauge %d is already the companion of gauge %d", spareID, memberID), nil)
		}

		locked, err := s.deps.Gauges.LockByIDs(dbc, []int64{memberID, oldID, spareID})
		if err != nil {
			return err
		}
		member = pickByID(locked, memberID)
		old := pickByID(locked, oldID)
		spare := pickByID(locked, spareID)
		if member.CompanionID == nil || *member.CompanionID != old.ID ||
			old.CompanionID == nil || *old.CompanionID != member.ID {
			return types.NewError(types.CodePrecondition, op,
				fmt.Sprintf("gauge %d is no longer paired with gauge %d", memberID, oldID), nil)
		}
		if member.Status == types.StatusCheckedOut || old.Status == types.StatusCheckedOut {
			return types.NewError(types.CodePrecondition, op,
				"cannot replace a companion while the set is checked out", nil)
		}
		if !spare.IsSpare || spare.CompanionID != nil {
			return types.NewError(types.CodePrecondition, op,
				fmt.Sprintf("gauge %d is not an unpaired spare", spare.ID), nil)
		}
		if spare.Status == types.StatusPendingQC {
			return types.NewError(types.CodePrecondition, op,
				fmt.Sprintf("gauge %d is awaiting qc and cannot join a set", spare.ID), nil)
		}
		if err := types.ValidatePairCompatibility(member, spare); err != nil {
			return err
		}

		oldGo, oldNoGo := orderByFunction(member, old)
		formerDisplay := ""
		if member.DisplayID != nil {
			formerDisplay = *member.DisplayID
		}
		if err := s.deps.Events.Create(dbc, &types.PairEvent{
			GoID:   oldGo.ID,
			NoGoID: oldNoGo.ID,
			Action: types.ActionReplaced,
			Actor:  actor,
			Reason: reason,
			Details: eventDetails(map[string]interface{}{
				"display_id":     formerDisplay,
				"replaced_id":    old.ID,
				"replacement_id": spare.ID,
			}),
		}); err != nil {
			return err
		}
		if err := s.deps.Gauges.UnlinkCompanions(dbc, member.ID, old.ID); err != nil {
			return err
		}

		displayID = formerDisplay
		if displayID == "" {
			seq, err := s.deps.Gauges.NextDisplaySeq(dbc)
			if err != nil {
				return err
			}
			displayID = fmt.Sprintf(displayIDFormat, seq)
		}
		newGo, newNoGo = orderByFunction(member, spare)
		if err := s.deps.Gauges.LinkCompanions(dbc, newGo.ID, newNoGo.ID, displayID); err != nil {
			return err
		}
		if member.StorageLocation != "" && spare.StorageLocation != member.StorageLocation {
			if err := s.deps.Gauges.UpdateLocation(dbc, []int64{spare.ID}, member.StorageLocation); err != nil {
				return err
			}
			spare.StorageLocation = member.StorageLocation
		}
		replaced = old
		return nil
	}, database.RepeatableRead)
	if err != nil {
		return nil, err
	}

	markUnlinked(replaced)
	markLinked(newGo, newNoGo, displayID)
	s.deps.Base.Hooks.IncPairAction(string(types.ActionReplaced))
	publishEvent(ctx, s.deps.Publisher, s.log, Event{
		Kind:      "pair.replaced",
		GoID:      newGo.ID,
		NoGoID:    newNoGo.ID,
		DisplayID: displayID,
		Actor:     actor,
		Details:   map[string]interface{}{"replaced_id": replaced.ID},
	})
	return &PairResult{Go: newGo, NoGo: newNoGo, DisplayID: displayID}, nil
}

func requireActor(op, actor string) (string, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return "", types.NewError(types.CodeValidation, op, "actor is required", nil)
	}
	return actor, nil
}

func eventDetails(fields map[string]interface{}) datatypes.JSON {
	if len(fields) == 0 {
		return nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func pickByID(gs []*types.Gauge, id int64) *types.Gauge {
	for _, g := range gs {
		if g.ID == id {
			return g
		}
	}
	return nil
}

func orderByFunction(a, b *types.Gauge) (goMember, nogoMember *types.Gauge) {
	if a.Function == types.FunctionNoGo && b.Function == types.FunctionGo {
		return b, a
	}
	return a, b
}

func markLinked(goG, nogoG *types.Gauge, displayID string) {
	goID, nogoID := goG.ID, nogoG.ID
	goG.CompanionID = pointers.Ptr(nogoID)
	goG.PairSuffix = pointers.Ptr(types.SuffixGo)
	goG.DisplayID = pointers.Ptr(displayID)
	goG.IsSpare = false
	nogoG.CompanionID = pointers.Ptr(goID)
	nogoG.PairSuffix = pointers.Ptr(types.SuffixNoGo)
	nogoG.DisplayID = pointers.Ptr(displayID)
	nogoG.IsSpare = false
}

func markUnlinked(gs ...*types.Gauge) {
	for _, g := range gs {
		if g == nil {
			continue
		}
		g.CompanionID = nil
		g.PairSuffix = nil
		g.DisplayID = nil
		g.IsSpare = true
	}
}
