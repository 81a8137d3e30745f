package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gaugeworks/gaugetrack-backend/internal/data/repos"
	"github.com/gaugeworks/gaugetrack-backend/internal/database"
	types "github.com/gaugeworks/gaugetrack-backend/internal/domain/gauges"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/dbctx"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/logger"
)

const batchNumberFormat = "CAL-%05d"

// CreateBatchInput names the gauges headed out for external calibration.
// Companions are pulled in automatically; a set always travels whole.
type CreateBatchInput struct {
	Vendor   string  `json:"vendor"`
	Notes    string  `json:"notes,omitempty"`
	GaugeIDs []int64 `json:"gauge_ids"`
}

// AttachCertificateInput carries one calibration certificate upload.
// Content may be empty when only the certificate metadata is recorded.
type AttachCertificateInput struct {
	GaugeID           int64      `json:"gauge_id"`
	CertificateNumber string     `json:"certificate_number"`
	Vendor            string     `json:"vendor"`
	CalibratedAt      time.Time  `json:"calibrated_at"`
	NextDueAt         *time.Time `json:"next_due_at,omitempty"`
	FileName          string     `json:"file_name,omitempty"`
	Content           []byte     `json:"-"`
}

type BatchResult struct {
	Batch   *types.CalibrationBatch `json:"batch"`
	Members []*types.Gauge          `json:"members"`
}

// CertificateResult reports a certificate attachment. Advanced is true
// when the upload completed the set's paperwork and moved it (or a lone
// orphan) to pending_release.
type CertificateResult struct {
	Certificate *types.CalibrationCertificate `json:"certificate"`
	Gauge       *types.Gauge                  `json:"gauge"`
	Companion   *types.Gauge                  `json:"companion,omitempty"`
	Advanced    bool                          `json:"advanced"`
	Warning     string                        `json:"warning,omitempty"`
}

// CalibrationService drives the external-calibration lifecycle:
// batch → dispatch → receive → certify → release.
type CalibrationService interface {
	CreateBatch(ctx context.Context, in CreateBatchInput, actor string) (*BatchResult, error)
	DispatchBatch(ctx context.Context, batchID int64, actor string) (*BatchResult, error)
	ReceiveGauge(ctx context.Context, gaugeID int64, actor string) (*types.Gauge, error)
	AttachCertificate(ctx context.Context, in AttachCertificateInput, actor string) (*CertificateResult, error)
	ReleaseSet(ctx context.Context, gaugeID int64, location, actor string) (*CascadeResult, error)
}

type CalibrationServiceDeps struct {
	Base      BaseDeps
	Gauges    repos.GaugeRepo
	Batches   repos.CalibrationBatchRepo
	Certs     repos.CertificateRepo
	Events    repos.PairEventRepo
	Blobs     BlobStore
	Publisher EventPublisher
}

type calibrationService struct {
	deps CalibrationServiceDeps
	log  *logger.Logger
}

func NewCalibrationService(deps CalibrationServiceDeps) CalibrationService {
	deps.Base = deps.Base.withDefaults()
	return &calibrationService{
		deps: deps,
		log:  deps.Base.Log.With("service", "CalibrationService"),
	}
}

// CreateBatch opens a batch over the given gauges plus their companions.
// Every member must be available (or calibration-due) when the batch is
// assembled.
func (s *calibrationService) CreateBatch(ctx context.Context, in CreateBatchInput, actor string) (*BatchResult, error) {
	const op = "Calibration.CreateBatch"
	actor, err := requireActor(op, actor)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Vendor) == "" {
		return nil, types.NewError(types.CodeValidation, op, "vendor is required", nil)
	}
	if len(in.GaugeIDs) == 0 {
		return nil, types.NewError(types.CodeValidation, op, "at least one gauge is required", nil)
	}

	var batch *types.CalibrationBatch
	var members []*types.Gauge
	err = executeWrite(ctx, s.deps.Base, op, func(dbc dbctx.Context) error {
		requested, err := s.deps.Gauges.GetByIDs(dbc, in.GaugeIDs)
		if err != nil {
			return err
		}
		if len(requested) != len(dedupeIDs(in.GaugeIDs)) {
			return types.NewError(types.CodeNotFound, op, "one or more gauges not found", nil)
		}
		expanded := make([]int64, 0, len(requested)*2)
		for _, g := range requested {
			expanded = append(expanded, g.ID)
			if g.CompanionID != nil {
				expanded = append(expanded, *g.CompanionID)
			}
		}

		members, err = s.deps.Gauges.LockByIDs(dbc, expanded)
		if err != nil {
			return err
		}
		now := time.Now()
		for _, g := range members {
			eff := g.EffectiveStatus(now)
			if eff != string(types.StatusAvailable) && eff != types.PairStatusCalibrationDue {
				return types.NewError(types.CodePrecondition, op,
					fmt.Sprintf("gauge %d is %s; only available or calibration-due gauges join a batch", g.ID, eff), nil)
			}
		}

		seq, err := s.deps.Batches.NextBatchSeq(dbc)
		if err != nil {
			return err
		}
		batch = &types.CalibrationBatch{
			BatchNumber: fmt.Sprintf(batchNumberFormat, seq),
			Vendor:      strings.TrimSpace(in.Vendor),
			Status:      types.BatchOpen,
			Notes:       in.Notes,
			CreatedBy:   actor,
		}
		memberIDs := make([]int64, 0, len(members))
		for _, g := range members {
			memberIDs = append(memberIDs, g.ID)
		}
		return s.deps.Batches.CreateBatch(dbc, batch, memberIDs)
	}, database.RepeatableRead)
	if err != nil {
		return nil, err
	}

	publishEvent(ctx, s.deps.Publisher, s.log, Event{
		Kind:  "calibration.batch_created",
		Actor: actor,
		Details: map[string]interface{}{
			"batch_number": batch.BatchNumber,
			"members":      len(members),
		},
	})
	return &BatchResult{Batch: batch, Members: members}, nil
}

// DispatchBatch sends an open batch to the vendor: every member moves to
// out_for_calibration and the batch is stamped dispatched.
func (s *calibrationService) DispatchBatch(ctx context.Context, batchID int64, actor string) (*BatchResult, error) {
	const op = "Calibration.DispatchBatch"
	actor, err := requireActor(op, actor)
	if err != nil {
		return nil, err
	}

	var batch *types.CalibrationBatch
	var members []*types.Gauge
	err = executeWrite(ctx, s.deps.Base, op, func(dbc dbctx.Context) error {
		batch, err = s.deps.Batches.LockByID(dbc, batchID)
		if err != nil {
			return err
		}
		if batch.Status != types.BatchOpen {
			return types.NewError(types.CodePrecondition, op,
				fmt.Sprintf("batch %s is %s, not open", batch.BatchNumber, batch.Status), nil)
		}
		_, items, err := s.deps.Batches.GetBatch(dbc, batchID)
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.GaugeID)
		}
		members, err = s.deps.Gauges.LockByIDs(dbc, ids)
		if err != nil {
			return err
		}
		now := time.Now()
		for _, g := range members {
			eff := g.EffectiveStatus(now)
			if eff != string(types.StatusAvailable) && eff != types.PairStatusCalibrationDue {
				return types.NewError(types.CodePrecondition, op,
					fmt.Sprintf("gauge %d is %s and cannot be dispatched", g.ID, eff), nil)
			}
		}
		if err := s.deps.Gauges.UpdateStatus(dbc, ids, types.StatusOutForCalibration); err != nil {
			return err
		}
		if err := s.deps.Batches.UpdateBatchFields(dbc, batchID, map[string]interface{}{
			"status":        types.BatchDispatched,
			"dispatched_at": now,
		}); err != nil {
			return err
		}
		batch.Status = types.BatchDispatched
		batch.DispatchedAt = &now
		for _, g := range members {
			g.Status = types.StatusOutForCalibration
		}
		return nil
	}, database.RepeatableRead)
	if err != nil {
		return nil, err
	}

	publishEvent(ctx, s.deps.Publisher, s.log, Event{
		Kind:  "calibration.batch_dispatched",
		Actor: actor,
		Details: map[string]interface{}{
			"batch_number": batch.BatchNumber,
			"members":      len(members),
		},
	})
	return &BatchResult{Batch: batch, Members: members}, nil
}

// ReceiveGauge checks one unit back in from the vendor. The unit is
// sealed on receipt and waits in pending_certificate for its paperwork.
func (s *calibrationService) ReceiveGauge(ctx context.Context, gaugeID int64, actor string) (*types.Gauge, error) {
	const op = "Calibration.ReceiveGauge"
	actor, err := requireActor(op, actor)
	if err != nil {
		return nil, err
	}

	var g *types.Gauge
	var batchNumber string
	err = executeWrite(ctx, s.deps.Base, op, func(dbc dbctx.Context) error {
		item, batch, err := s.deps.Batches.FindOpenItemByGauge(dbc, gaugeID)
		if err != nil {
			return err
		}
		batchNumber = batch.BatchNumber

		locked, err := s.deps.Gauges.LockByIDs(dbc, []int64{gaugeID})
		if err != nil {
			return err
		}
		g = locked[0]
		if g.Status != types.StatusOutForCalibration {
			return types.NewError(types.CodePrecondition, op,
				fmt.Sprintf("gauge %d is %s, not out for calibration", g.ID, g.Status), nil)
		}
		if err := s.deps.Gauges.SetSealed(dbc, gaugeID, true); err != nil {
			return err
		}
		if err := s.deps.Gauges.UpdateStatus(dbc, []int64{gaugeID}, types.StatusPendingCertificate); err != nil {
			return err
		}
		if err := s.deps.Batches.MarkItemReceived(dbc, item.BatchID, gaugeID, time.Now()); err != nil {
			return err
		}
		g.Sealed = true
		g.Status = types.StatusPendingCertificate
		return nil
	}, database.RepeatableRead)
	if err != nil {
		return nil, err
	}

	publishEvent(ctx, s.deps.Publisher, s.log, Event{
		Kind:    "calibration.received",
		GaugeID: gaugeID,
		Actor:   actor,
		Details: map[string]interface{}{"batch_number": batchNumber},
	})
	return g, nil
}

// AttachCertificate stores the certificate file, records the certificate
// row (superseding any prior current one) and stamps the gauge's next
// due date. The set advances to pending_release only once both members
// hold a current certificate; a companion-less orphan advances alone.
//
// The blob upload runs outside the transaction: blob stores are not
// transactional, and a rolled-back attempt leaves at worst an unused
// file that the next attempt's duplicate detection reuses.
func (s *calibrationService) AttachCertificate(ctx context.Context, in AttachCertificateInput, actor string) (*CertificateResult, error) {
	const op = "Calibration.AttachCertificate"
	actor, err := requireActor(op, actor)
	if err != nil {
		return nil, err
	}
	cert := &types.CalibrationCertificate{
		GaugeID:           in.GaugeID,
		CertificateNumber: strings.TrimSpace(in.CertificateNumber),
		Vendor:            strings.TrimSpace(in.Vendor),
		CalibratedAt:      in.CalibratedAt,
		NextDueAt:         in.NextDueAt,
	}
	if err := cert.Validate(); err != nil {
		return nil, err
	}

	if len(in.Content) > 0 && s.deps.Blobs != nil {
		name := strings.TrimSpace(in.FileName)
		if name == "" {
			name = cert.CertificateNumber
		}
		blob, err := s.deps.Blobs.Upload(ctx, fmt.Sprintf("gauge-%d", in.GaugeID), name, in.Content)
		if err != nil {
			return nil, types.NewError(types.CodeInternal, op, "certificate file upload failed", err)
		}
		cert.FilePath = blob.Path
		cert.FileSize = blob.SizeBytes
		cert.FileHash = blob.ContentHash
	}

	var result *CertificateResult
	err = executeWrite(ctx, s.deps.Base, op, func(dbc dbctx.Context) error {
		target, companion, warning, err := lockSet(dbc, s.deps.Gauges, s.log, op, in.GaugeID)
		if err != nil {
			return err
		}
		if target.Status != types.StatusPendingCertificate {
			return types.NewError(types.CodePrecondition, op,
				fmt.Sprintf("gauge %d is %s; certificates attach in pending_certificate", target.ID, target.Status), nil)
		}

		insert := *cert
		if err := s.deps.Certs.CreateSuperseding(dbc, &insert); err != nil {
			return err
		}
		if in.NextDueAt != nil {
			if err := s.deps.Gauges.UpdateFields(dbc, target.ID, map[string]interface{}{
				"next_calibration_due": in.NextDueAt,
			}); err != nil {
				return err
			}
			target.NextCalibrationDue = in.NextDueAt
		}

		advanced := false
		if companion == nil {
			if err := s.deps.Gauges.UpdateStatus(dbc, []int64{target.ID}, types.StatusPendingRelease); err != nil {
				return err
			}
			target.Status = types.StatusPendingRelease
			advanced = true
		} else {
			companionCert, err := s.deps.Certs.GetCurrent(dbc, companion.ID)
			if err != nil {
				return err
			}
			certifiable := companion.Status == types.StatusPendingCertificate ||
				companion.Status == types.StatusPendingRelease
			if companionCert != nil && certifiable {
				if err := s.deps.Gauges.UpdateStatus(dbc,
					[]int64{target.ID, companion.ID}, types.StatusPendingRelease); err != nil {
					return err
				}
				target.Status = types.StatusPendingRelease
				companion.Status = types.StatusPendingRelease
				advanced = true
			} else {
				s.log.Info("certificate attached, awaiting companion certification",
					"gauge_id", target.ID, "companion_id", companion.ID)
			}
		}
		result = &CertificateResult{
			Certificate: &insert,
			Gauge:       target,
			Companion:   companion,
			Advanced:    advanced,
			Warning:     warning,
		}
		return nil
	}, database.RepeatableRead)
	if err != nil {
		return nil, err
	}

	publishEvent(ctx, s.deps.Publisher, s.log, Event{
		Kind:    "calibration.certified",
		GaugeID: in.GaugeID,
		Actor:   actor,
		Details: map[string]interface{}{
			"certificate_number": cert.CertificateNumber,
			"advanced":           result.Advanced,
		},
	})
	return result, nil
}

// ReleaseSet confirms the set's resting place and returns it to service:
// location cascades to both members, statuses flip to available, and the
// batch items are closed out. A batch whose last item is released closes
// automatically.
func (s *calibrationService) ReleaseSet(ctx context.Context, gaugeID int64, location, actor string) (*CascadeResult, error) {
	const op = "Calibration.ReleaseSet"
	actor, err := requireActor(op, actor)
	if err != nil {
		return nil, err
	}
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, types.NewError(types.CodeValidation, op, "storage location is required to release", nil)
	}

	var result *CascadeResult
	err = executeWrite(ctx, s.deps.Base, op, func(dbc dbctx.Context) error {
		target, companion, warning, err := lockSet(dbc, s.deps.Gauges, s.log, op, gaugeID)
		if err != nil {
			return err
		}
		for _, g := range []*types.Gauge{target, companion} {
			if g == nil {
				continue
			}
			if g.Status != types.StatusPendingRelease {
				return types.NewError(types.CodePrecondition, op,
					fmt.Sprintf("gauge %d is %s, not pending release", g.ID, g.Status), nil)
			}
		}

		ids := memberIDs(target, companion)
		if err := s.deps.Gauges.UpdateLocation(dbc, ids, location); err != nil {
			return err
		}
		if err := s.deps.Gauges.UpdateStatus(dbc, ids, types.StatusAvailable); err != nil {
			return err
		}
		if companion != nil {
			goG, nogoG := orderByFunction(target, companion)
			if err := s.deps.Events.Create(dbc, &types.PairEvent{
				GoID:    goG.ID,
				NoGoID:  nogoG.ID,
				Action:  types.ActionCascadedLocation,
				Actor:   actor,
				Details: eventDetails(map[string]interface{}{"storage_location": location, "released": true}),
			}); err != nil {
				return err
			}
		}

		now := time.Now()
		affected := map[int64]struct{}{}
		for _, memberID := range ids {
			item, _, err := s.deps.Batches.FindOpenItemByGauge(dbc, memberID)
			if types.IsCode(err, types.CodeNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := s.deps.Batches.MarkItemReleased(dbc, item.BatchID, memberID, now); err != nil {
				return err
			}
			affected[item.BatchID] = struct{}{}
		}
		// Close-out check runs after every member's item is released,
		// under the batch row lock so two concurrent releases of the
		// same batch's last items cannot both see a nonzero count.
		for _, batchID := range sortedKeys(affected) {
			if _, err := s.deps.Batches.LockByID(dbc, batchID); err != nil {
				return err
			}
			remaining, err := s.deps.Batches.OpenItemCount(dbc, batchID)
			if err != nil {
				return err
			}
			if remaining == 0 {
				if err := s.deps.Batches.UpdateBatchFields(dbc, batchID, map[string]interface{}{
					"status":    types.BatchClosed,
					"closed_at": now,
				}); err != nil {
					return err
				}
			}
		}

		for _, g := range []*types.Gauge{target, companion} {
			if g == nil {
				continue
			}
			g.Status = types.StatusAvailable
			g.StorageLocation = location
		}
		result = &CascadeResult{Target: target, Companion: companion, Cascaded: companion != nil, Warning: warning}
		return nil
	}, database.RepeatableRead)
	if err != nil {
		return nil, err
	}

	publishEvent(ctx, s.deps.Publisher, s.log, Event{
		Kind:    "calibration.released",
		GaugeID: gaugeID,
		Actor:   actor,
		Details: map[string]interface{}{"storage_location": location},
	})
	return result, nil
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// sortedKeys returns map keys ascending so batch row locks are always
// acquired in the same order across concurrent releases.
func sortedKeys(m map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
