package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/logger"
)

// IntegrityReport lists rows violating the pairing invariants. Every
// field holds offending ids; an empty report means the stored
// population is consistent.
type IntegrityReport struct {
	SelfLinks          []int64   `json:"self_links,omitempty"`
	AsymmetricLinks    []int64   `json:"asymmetric_links,omitempty"`
	DanglingCompanions []int64   `json:"dangling_companions,omitempty"`
	PairFieldDrift     []int64   `json:"pair_field_drift,omitempty"`
	SpareFlagDrift     []int64   `json:"spare_flag_drift,omitempty"`
	OwnershipDrift     []int64   `json:"ownership_drift,omitempty"`
	DanglingEvents     []int64   `json:"dangling_events,omitempty"`
	MultipleCurrent    []int64   `json:"multiple_current_certificates,omitempty"`
	CheckedAt          time.Time `json:"checked_at"`
}

// Findings counts the offending rows across all checks.
func (r *IntegrityReport) Findings() int {
	return len(r.SelfLinks) + len(r.AsymmetricLinks) + len(r.DanglingCompanions) +
		len(r.PairFieldDrift) + len(r.SpareFlagDrift) + len(r.OwnershipDrift) +
		len(r.DanglingEvents) + len(r.MultipleCurrent)
}

// Clean reports whether the sweep found nothing.
func (r *IntegrityReport) Clean() bool { return r.Findings() == 0 }

// IntegrityService sweeps the stored population for violations of the
// bidirectional pairing invariant and its satellites. Read-only.
type IntegrityService interface {
	AuditPairIntegrity(ctx context.Context) (*IntegrityReport, error)
}

type IntegrityServiceDeps struct {
	Base BaseDeps
}

type integrityService struct {
	deps IntegrityServiceDeps
	log  *logger.Logger
}

func NewIntegrityService(deps IntegrityServiceDeps) IntegrityService {
	deps.Base = deps.Base.withDefaults()
	return &integrityService{
		deps: deps,
		log:  deps.Base.Log.With("service", "IntegrityService"),
	}
}

const (
	querySelfLinks = `
SELECT id FROM gauge
WHERE deleted_at IS NULL AND companion_id = id
ORDER BY id`

	queryAsymmetricLinks = `
SELECT a.id FROM gauge a
JOIN gauge b ON a.companion_id = b.id
WHERE a.deleted_at IS NULL AND b.deleted_at IS NULL
  AND (b.companion_id IS NULL OR b.companion_id <> a.id)
ORDER BY a.id`

	queryDanglingCompanions = `
SELECT a.id FROM gauge a
LEFT JOIN gauge b ON a.companion_id = b.id AND b.deleted_at IS NULL
WHERE a.deleted_at IS NULL AND a.companion_id IS NOT NULL AND b.id IS NULL
ORDER BY a.id`

	queryPairFieldDrift = `
SELECT a.id FROM gauge a
JOIN gauge b ON a.companion_id = b.id
WHERE a.deleted_at IS NULL AND b.deleted_at IS NULL
  AND b.companion_id = a.id
  AND (a.pair_suffix IS NULL OR a.display_id IS NULL
       OR a.display_id <> b.display_id OR a.pair_suffix = b.pair_suffix)
ORDER BY a.id`

	querySpareFlagDrift = `
SELECT id FROM gauge
WHERE deleted_at IS NULL
  AND ((is_spare = ? AND companion_id IS NOT NULL)
       OR (is_spare = ? AND companion_id IS NULL))
ORDER BY id`

	queryOwnershipDrift = `
SELECT a.id FROM gauge a
JOIN gauge b ON a.companion_id = b.id
WHERE a.deleted_at IS NULL AND b.deleted_at IS NULL
  AND b.companion_id = a.id
  AND (a.ownership_type <> b.ownership_type
       OR (a.ownership_type = 'customer'
           AND (a.customer_id IS NULL OR b.customer_id IS NULL OR a.customer_id <> b.customer_id)))
ORDER BY a.id`

	queryDanglingEvents = `
SELECT e.id FROM gauge_pair_event e
LEFT JOIN gauge g1 ON e.go_id = g1.id
LEFT JOIN gauge g2 ON e.nogo_id = g2.id
WHERE g1.id IS NULL OR g2.id IS NULL
ORDER BY e.id`

	queryMultipleCurrent = `
SELECT gauge_id FROM calibration_certificate
WHERE is_current = ?
GROUP BY gauge_id
HAVING COUNT(*) > 1
ORDER BY gauge_id`
)

// AuditPairIntegrity runs every check concurrently against the base
// handle. Each goroutine fills its own report field, so the report is
// safe to read once Wait returns.
func (s *integrityService) AuditPairIntegrity(ctx context.Context) (*IntegrityReport, error) {
	const op = "Integrity.AuditPairIntegrity"
	start := time.Now()
	report := &IntegrityReport{CheckedAt: start.UTC()}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return s.scanIDs(gctx, querySelfLinks, nil, &report.SelfLinks) })
	group.Go(func() error { return s.scanIDs(gctx, queryAsymmetricLinks, nil, &report.AsymmetricLinks) })
	group.Go(func() error { return s.scanIDs(gctx, queryDanglingCompanions, nil, &report.DanglingCompanions) })
	group.Go(func() error { return s.scanIDs(gctx, queryPairFieldDrift, nil, &report.PairFieldDrift) })
	group.Go(func() error {
		return s.scanIDs(gctx, querySpareFlagDrift, []interface{}{true, false}, &report.SpareFlagDrift)
	})
	group.Go(func() error { return s.scanIDs(gctx, queryOwnershipDrift, nil, &report.OwnershipDrift) })
	group.Go(func() error { return s.scanIDs(gctx, queryDanglingEvents, nil, &report.DanglingEvents) })
	group.Go(func() error {
		return s.scanIDs(gctx, queryMultipleCurrent, []interface{}{true}, &report.MultipleCurrent)
	})

	if err := group.Wait(); err != nil {
		s.deps.Base.Hooks.ObserveOperation(op, "failure", time.Since(start))
		return nil, MapError(op, err)
	}

	if !report.Clean() {
		s.log.Warn("pair integrity violations found",
			"findings", report.Findings(),
			"asymmetric", len(report.AsymmetricLinks),
			"dangling", len(report.DanglingCompanions))
	}
	s.deps.Base.Hooks.ObserveOperation(op, "success", time.Since(start))
	return report, nil
}

func (s *integrityService) scanIDs(ctx context.Context, query string, args []interface{}, dest *[]int64) error {
	return s.deps.Base.DB.WithContext(ctx).Raw(query, args...).Scan(dest).Error
}
