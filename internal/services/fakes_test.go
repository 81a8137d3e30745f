package services

import (
	"context"
	"database/sql"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gaugeworks/gaugetrack-backend/internal/data/repos"
	types "github.com/gaugeworks/gaugetrack-backend/internal/domain/gauges"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/dbctx"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/logger"
)

func testLogger(tb testing.TB) *logger.Logger {
	tb.Helper()
	log, err := logger.New("test")
	if err != nil {
		tb.Fatalf("logger.New: %v", err)
	}
	return log
}

func deadlockErr() error {
	return &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
}

// callRecorder collects repo method invocations across fakes so tests
// can assert cross-repo ordering, e.g. history written before unlink.
type callRecorder struct {
	calls []string
}

func (r *callRecorder) record(name string) {
	r.calls = append(r.calls, name)
}

func (r *callRecorder) indexOf(name string) int {
	for i, c := range r.calls {
		if c == name {
			return i
		}
	}
	return -1
}

// fakeTxRunner counts transaction attempts. A non-nil entry in errs is
// returned instead of running fn, simulating a transaction-level
// failure such as a deadlock rollback.
type fakeTxRunner struct {
	calls         int
	errs          []error
	lastIsolation sql.IsolationLevel
}

func (r *fakeTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error, opts ...*sql.TxOptions) error {
	r.calls++
	if len(opts) > 0 && opts[0] != nil {
		r.lastIsolation = opts[0].Isolation
	}
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return err
		}
	}
	return fn(dbctx.Context{Ctx: ctx})
}

type recordingHooks struct {
	operations  []string
	conflicts   int
	retries     int
	pairActions []string
	cascades    []string
}

func (h *recordingHooks) ObserveOperation(name, status string, _ time.Duration) {
	h.operations = append(h.operations, name+"|"+status)
}
func (h *recordingHooks) IncConflict(string) { h.conflicts++ }
func (h *recordingHooks) IncRetry(string)    { h.retries++ }
func (h *recordingHooks) IncPairAction(action string) {
	h.pairActions = append(h.pairActions, action)
}
func (h *recordingHooks) IncCascade(kind string, cascaded bool) {
	suffix := "|solo"
	if cascaded {
		suffix = "|cascaded"
	}
	h.cascades = append(h.cascades, kind+suffix)
}

func (h *recordingHooks) lastOperation(tb testing.TB) string {
	tb.Helper()
	if len(h.operations) == 0 {
		tb.Fatalf("no operations observed")
	}
	return h.operations[len(h.operations)-1]
}

type fakePublisher struct {
	events []Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, event Event) error {
	p.events = append(p.events, event)
	return p.err
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneGauge(g *types.Gauge) *types.Gauge {
	if g == nil {
		return nil
	}
	out := *g
	out.CompanionID = cloneInt64(g.CompanionID)
	out.PairSuffix = cloneString(g.PairSuffix)
	out.DisplayID = cloneString(g.DisplayID)
	out.CustomerID = cloneInt64(g.CustomerID)
	out.NextCalibrationDue = cloneTime(g.NextCalibrationDue)
	return &out
}

// memGaugeRepo is an in-memory GaugeRepo. Reads hand out copies so a
// caller mutating a returned struct cannot bypass the write methods,
// matching how rows behave behind a real database.
type memGaugeRepo struct {
	rec      *callRecorder
	nextID   int64
	seq      int64
	rows     map[int64]*types.Gauge
	deleted  map[int64]bool
	lockErrs []error
}

func newMemGaugeRepo(rec *callRecorder) *memGaugeRepo {
	return &memGaugeRepo{
		rec:     rec,
		rows:    make(map[int64]*types.Gauge),
		deleted: make(map[int64]bool),
	}
}

func (m *memGaugeRepo) add(g *types.Gauge) *types.Gauge {
	if g.ID == 0 {
		m.nextID++
		g.ID = m.nextID
	} else if g.ID > m.nextID {
		m.nextID = g.ID
	}
	stored := cloneGauge(g)
	m.rows[g.ID] = stored
	return stored
}

func (m *memGaugeRepo) stored(tb testing.TB, id int64) *types.Gauge {
	tb.Helper()
	g, ok := m.rows[id]
	if !ok {
		tb.Fatalf("gauge %d not in fake store", id)
	}
	return g
}

func (m *memGaugeRepo) live(id int64) (*types.Gauge, bool) {
	g, ok := m.rows[id]
	if !ok || m.deleted[id] {
		return nil, false
	}
	return g, true
}

func (m *memGaugeRepo) Create(_ dbctx.Context, gs []*types.Gauge) ([]*types.Gauge, error) {
	m.rec.record("gauges.Create")
	for _, g := range gs {
		m.nextID++
		g.ID = m.nextID
		m.rows[g.ID] = cloneGauge(g)
	}
	return gs, nil
}

func (m *memGaugeRepo) GetByID(_ dbctx.Context, id int64) (*types.Gauge, error) {
	m.rec.record("gauges.GetByID")
	g, ok := m.live(id)
	if !ok {
		return nil, types.NewError(types.CodeNotFound, "GaugeRepo.GetByID", "gauge not found", nil)
	}
	return cloneGauge(g), nil
}

func (m *memGaugeRepo) GetByIDs(_ dbctx.Context, ids []int64) ([]*types.Gauge, error) {
	m.rec.record("gauges.GetByIDs")
	var out []*types.Gauge
	for _, id := range ids {
		if g, ok := m.live(id); ok {
			out = append(out, cloneGauge(g))
		}
	}
	return out, nil
}

func (m *memGaugeRepo) GetBySerial(_ dbctx.Context, serial string) (*types.Gauge, error) {
	m.rec.record("gauges.GetBySerial")
	for id, g := range m.rows {
		if !m.deleted[id] && g.SerialNumber == serial {
			return cloneGauge(g), nil
		}
	}
	return nil, types.NewError(types.CodeNotFound, "GaugeRepo.GetBySerial", "gauge not found", nil)
}

func (m *memGaugeRepo) ListSpares(_ dbctx.Context, filter repos.SpareFilter) ([]*types.Gauge, error) {
	m.rec.record("gauges.ListSpares")
	var out []*types.Gauge
	for id, g := range m.rows {
		if m.deleted[id] || !g.IsSpare || g.CompanionID != nil {
			continue
		}
		if filter.EquipmentType != "" && g.EquipmentType != filter.EquipmentType {
			continue
		}
		if filter.ThreadSize != "" && g.ThreadSize != filter.ThreadSize {
			continue
		}
		if filter.ThreadClass != "" && g.ThreadClass != filter.ThreadClass {
			continue
		}
		if filter.Function != "" && g.Function != filter.Function {
			continue
		}
		if filter.OwnershipType != "" && g.OwnershipType != filter.OwnershipType {
			continue
		}
		if filter.CustomerID != nil && (g.CustomerID == nil || *g.CustomerID != *filter.CustomerID) {
			continue
		}
		out = append(out, cloneGauge(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memGaugeRepo) ListByStatus(_ dbctx.Context, status types.GaugeStatus) ([]*types.Gauge, error) {
	m.rec.record("gauges.ListByStatus")
	var out []*types.Gauge
	for id, g := range m.rows {
		if !m.deleted[id] && g.Status == status {
			out = append(out, cloneGauge(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memGaugeRepo) LockByIDs(_ dbctx.Context, ids []int64) ([]*types.Gauge, error) {
	m.rec.record("gauges.LockByIDs")
	if len(m.lockErrs) > 0 {
		err := m.lockErrs[0]
		m.lockErrs = m.lockErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	seen := make(map[int64]struct{}, len(ids))
	sorted := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := make([]*types.Gauge, 0, len(sorted))
	for _, id := range sorted {
		g, ok := m.live(id)
		if !ok {
			return nil, types.NewError(types.CodeNotFound, "GaugeRepo.LockByIDs", "gauge not found", nil)
		}
		out = append(out, cloneGauge(g))
	}
	return out, nil
}

func (m *memGaugeRepo) LinkCompanions(_ dbctx.Context, goID, nogoID int64, displayID string) error {
	m.rec.record("gauges.LinkCompanions")
	goG, okA := m.live(goID)
	nogoG, okB := m.live(nogoID)
	if !okA || !okB {
		return types.NewError(types.CodeNotFound, "GaugeRepo.LinkCompanions", "gauge not found", nil)
	}
	if goG.CompanionID != nil || nogoG.CompanionID != nil {
		return types.NewError(types.CodePrecondition, "GaugeRepo.LinkCompanions", "gauge already linked", nil)
	}
	goSuffix, nogoSuffix := types.SuffixGo, types.SuffixNoGo
	goDisplay, nogoDisplay := displayID, displayID
	linkedNogo, linkedGo := nogoID, goID
	goG.CompanionID = &linkedNogo
	goG.PairSuffix = &goSuffix
	goG.DisplayID = &goDisplay
	goG.IsSpare = false
	nogoG.CompanionID = &linkedGo
	nogoG.PairSuffix = &nogoSuffix
	nogoG.DisplayID = &nogoDisplay
	nogoG.IsSpare = false
	return nil
}

func (m *memGaugeRepo) UnlinkCompanions(_ dbctx.Context, idA, idB int64) error {
	m.rec.record("gauges.UnlinkCompanions")
	for _, id := range []int64{idA, idB} {
		g, ok := m.live(id)
		if !ok {
			return types.NewError(types.CodeNotFound, "GaugeRepo.UnlinkCompanions", "gauge not found", nil)
		}
		g.CompanionID = nil
		g.PairSuffix = nil
		g.DisplayID = nil
		g.IsSpare = true
	}
	return nil
}

func (m *memGaugeRepo) UpdateStatus(_ dbctx.Context, ids []int64, status types.GaugeStatus) error {
	m.rec.record("gauges.UpdateStatus")
	for _, id := range ids {
		if g, ok := m.live(id); ok {
			g.Status = status
		}
	}
	return nil
}

func (m *memGaugeRepo) UpdateLocation(_ dbctx.Context, ids []int64, location string) error {
	m.rec.record("gauges.UpdateLocation")
	for _, id := range ids {
		if g, ok := m.live(id); ok {
			g.StorageLocation = location
		}
	}
	return nil
}

func (m *memGaugeRepo) UpdateFields(_ dbctx.Context, id int64, updates map[string]interface{}) error {
	m.rec.record("gauges.UpdateFields")
	g, ok := m.live(id)
	if !ok {
		return nil
	}
	for key, value := range updates {
		switch key {
		case "next_calibration_due":
			if v, ok := value.(*time.Time); ok {
				g.NextCalibrationDue = cloneTime(v)
			}
		case "sealed":
			if v, ok := value.(bool); ok {
				g.Sealed = v
			}
		case "display_id":
			if v, ok := value.(string); ok {
				g.DisplayID = &v
			}
		case "pair_suffix":
			if v, ok := value.(string); ok {
				g.PairSuffix = &v
			}
		}
	}
	return nil
}

func (m *memGaugeRepo) SetSealed(_ dbctx.Context, id int64, sealed bool) error {
	m.rec.record("gauges.SetSealed")
	if g, ok := m.live(id); ok {
		g.Sealed = sealed
	}
	return nil
}

func (m *memGaugeRepo) SetDisplay(_ dbctx.Context, id int64, displayID, suffix string) error {
	m.rec.record("gauges.SetDisplay")
	if g, ok := m.live(id); ok {
		g.DisplayID = &displayID
		g.PairSuffix = &suffix
	}
	return nil
}

func (m *memGaugeRepo) SoftDelete(_ dbctx.Context, id int64) error {
	m.rec.record("gauges.SoftDelete")
	g, ok := m.live(id)
	if !ok {
		return types.NewError(types.CodeNotFound, "GaugeRepo.SoftDelete", "gauge not found", nil)
	}
	g.Status = types.StatusRetired
	m.deleted[id] = true
	return nil
}

func (m *memGaugeRepo) NextDisplaySeq(_ dbctx.Context) (int64, error) {
	m.rec.record("gauges.NextDisplaySeq")
	m.seq++
	return m.seq, nil
}

func cloneEvent(ev *types.PairEvent) *types.PairEvent {
	out := *ev
	if ev.Details != nil {
		out.Details = append([]byte(nil), ev.Details...)
	}
	return &out
}

type memEventRepo struct {
	rec    *callRecorder
	nextID int64
	events []*types.PairEvent
}

func newMemEventRepo(rec *callRecorder) *memEventRepo {
	return &memEventRepo{rec: rec}
}

func (m *memEventRepo) Create(_ dbctx.Context, ev *types.PairEvent) error {
	m.rec.record("events.Create:" + string(ev.Action))
	if !types.ValidAction(ev.Action) {
		return types.NewError(types.CodeValidation, "PairEventRepo.Create", "unknown history action", nil)
	}
	if ev.Actor == "" {
		return types.NewError(types.CodeValidation, "PairEventRepo.Create", "actor is required", nil)
	}
	m.nextID++
	ev.ID = m.nextID
	m.events = append(m.events, cloneEvent(ev))
	return nil
}

func (m *memEventRepo) ListByGauge(_ dbctx.Context, gaugeID int64, limit int) ([]*types.PairEvent, error) {
	m.rec.record("events.ListByGauge")
	var out []*types.PairEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		ev := m.events[i]
		if ev.GoID == gaugeID || ev.NoGoID == gaugeID {
			out = append(out, cloneEvent(ev))
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memEventRepo) CountByAction(_ dbctx.Context, action types.PairAction) (int64, error) {
	m.rec.record("events.CountByAction")
	var count int64
	for _, ev := range m.events {
		if ev.Action == action {
			count++
		}
	}
	return count, nil
}

func (m *memEventRepo) single(tb testing.TB, action types.PairAction) *types.PairEvent {
	tb.Helper()
	var found []*types.PairEvent
	for _, ev := range m.events {
		if ev.Action == action {
			found = append(found, ev)
		}
	}
	if len(found) != 1 {
		tb.Fatalf("%s events: want=1 got=%d", action, len(found))
	}
	return found[0]
}

func cloneCert(c *types.CalibrationCertificate) *types.CalibrationCertificate {
	out := *c
	out.NextDueAt = cloneTime(c.NextDueAt)
	out.SupersededAt = cloneTime(c.SupersededAt)
	out.SupersededByID = cloneInt64(c.SupersededByID)
	return &out
}

type memCertRepo struct {
	rec    *callRecorder
	nextID int64
	certs  []*types.CalibrationCertificate
}

func newMemCertRepo(rec *callRecorder) *memCertRepo {
	return &memCertRepo{rec: rec}
}

func (m *memCertRepo) CreateSuperseding(dbc dbctx.Context, cert *types.CalibrationCertificate) error {
	m.rec.record("certs.CreateSuperseding")
	if err := cert.Validate(); err != nil {
		return err
	}
	m.nextID++
	cert.ID = m.nextID
	if _, err := m.Supersede(dbc, cert.GaugeID, cert.ID, time.Now()); err != nil {
		return err
	}
	cert.IsCurrent = true
	m.certs = append(m.certs, cloneCert(cert))
	return nil
}

func (m *memCertRepo) GetCurrent(_ dbctx.Context, gaugeID int64) (*types.CalibrationCertificate, error) {
	m.rec.record("certs.GetCurrent")
	for _, c := range m.certs {
		if c.GaugeID == gaugeID && c.IsCurrent {
			return cloneCert(c), nil
		}
	}
	return nil, nil
}

func (m *memCertRepo) ListByGauge(_ dbctx.Context, gaugeID int64) ([]*types.CalibrationCertificate, error) {
	m.rec.record("certs.ListByGauge")
	var out []*types.CalibrationCertificate
	for _, c := range m.certs {
		if c.GaugeID == gaugeID {
			out = append(out, cloneCert(c))
		}
	}
	return out, nil
}

func (m *memCertRepo) Supersede(_ dbctx.Context, gaugeID int64, byID int64, at time.Time) (int64, error) {
	m.rec.record("certs.Supersede")
	var retired int64
	for _, c := range m.certs {
		if c.GaugeID == gaugeID && c.IsCurrent && c.ID != byID {
			c.IsCurrent = false
			stamped := at
			c.SupersededAt = &stamped
			by := byID
			c.SupersededByID = &by
			retired++
		}
	}
	return retired, nil
}

func cloneBatch(b *types.CalibrationBatch) *types.CalibrationBatch {
	out := *b
	out.DispatchedAt = cloneTime(b.DispatchedAt)
	out.ClosedAt = cloneTime(b.ClosedAt)
	return &out
}

func cloneItem(i *types.CalibrationBatchItem) *types.CalibrationBatchItem {
	out := *i
	out.ReceivedAt = cloneTime(i.ReceivedAt)
	out.ReleasedAt = cloneTime(i.ReleasedAt)
	return &out
}

type memBatchRepo struct {
	rec       *callRecorder
	nextBatch int64
	nextItem  int64
	seq       int64
	batches   map[int64]*types.CalibrationBatch
	items     []*types.CalibrationBatchItem
}

func newMemBatchRepo(rec *callRecorder) *memBatchRepo {
	return &memBatchRepo{
		rec:     rec,
		batches: make(map[int64]*types.CalibrationBatch),
	}
}

func (m *memBatchRepo) CreateBatch(_ dbctx.Context, batch *types.CalibrationBatch, gaugeIDs []int64) error {
	m.rec.record("batches.CreateBatch")
	if err := batch.Validate(); err != nil {
		return err
	}
	m.nextBatch++
	batch.ID = m.nextBatch
	m.batches[batch.ID] = cloneBatch(batch)
	seen := make(map[int64]struct{}, len(gaugeIDs))
	for _, id := range gaugeIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		m.nextItem++
		m.items = append(m.items, &types.CalibrationBatchItem{ID: m.nextItem, BatchID: batch.ID, GaugeID: id})
	}
	return nil
}

func (m *memBatchRepo) GetBatch(_ dbctx.Context, id int64) (*types.CalibrationBatch, []*types.CalibrationBatchItem, error) {
	m.rec.record("batches.GetBatch")
	b, ok := m.batches[id]
	if !ok {
		return nil, nil, types.NewError(types.CodeNotFound, "CalibrationBatchRepo.GetBatch", "batch not found", nil)
	}
	var items []*types.CalibrationBatchItem
	for _, item := range m.items {
		if item.BatchID == id {
			items = append(items, cloneItem(item))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].GaugeID < items[j].GaugeID })
	return cloneBatch(b), items, nil
}

func (m *memBatchRepo) LockByID(_ dbctx.Context, id int64) (*types.CalibrationBatch, error) {
	m.rec.record("batches.LockByID")
	b, ok := m.batches[id]
	if !ok {
		return nil, types.NewError(types.CodeNotFound, "CalibrationBatchRepo.LockByID", "batch not found", nil)
	}
	return cloneBatch(b), nil
}

func (m *memBatchRepo) UpdateBatchFields(_ dbctx.Context, id int64, updates map[string]interface{}) error {
	m.rec.record("batches.UpdateBatchFields")
	b, ok := m.batches[id]
	if !ok {
		return nil
	}
	for key, value := range updates {
		switch key {
		case "status":
			if v, ok := value.(types.BatchStatus); ok {
				b.Status = v
			}
		case "dispatched_at":
			if v, ok := value.(time.Time); ok {
				stamped := v
				b.DispatchedAt = &stamped
			}
		case "closed_at":
			if v, ok := value.(time.Time); ok {
				stamped := v
				b.ClosedAt = &stamped
			}
		}
	}
	return nil
}

func (m *memBatchRepo) FindOpenItemByGauge(_ dbctx.Context, gaugeID int64) (*types.CalibrationBatchItem, *types.CalibrationBatch, error) {
	m.rec.record("batches.FindOpenItemByGauge")
	for i := len(m.items) - 1; i >= 0; i-- {
		item := m.items[i]
		if item.GaugeID != gaugeID || item.ReleasedAt != nil {
			continue
		}
		b, ok := m.batches[item.BatchID]
		if !ok || b.Status != types.BatchDispatched {
			continue
		}
		return cloneItem(item), cloneBatch(b), nil
	}
	return nil, nil, types.NewError(types.CodeNotFound, "CalibrationBatchRepo.FindOpenItemByGauge", "not in an open batch", nil)
}

func (m *memBatchRepo) MarkItemReceived(_ dbctx.Context, batchID, gaugeID int64, at time.Time) error {
	m.rec.record("batches.MarkItemReceived")
	for _, item := range m.items {
		if item.BatchID == batchID && item.GaugeID == gaugeID {
			stamped := at
			item.ReceivedAt = &stamped
			return nil
		}
	}
	return types.NewError(types.CodeNotFound, "CalibrationBatchRepo.MarkItemReceived", "item not found", nil)
}

func (m *memBatchRepo) MarkItemReleased(_ dbctx.Context, batchID, gaugeID int64, at time.Time) error {
	m.rec.record("batches.MarkItemReleased")
	for _, item := range m.items {
		if item.BatchID == batchID && item.GaugeID == gaugeID {
			stamped := at
			item.ReleasedAt = &stamped
			return nil
		}
	}
	return types.NewError(types.CodeNotFound, "CalibrationBatchRepo.MarkItemReleased", "item not found", nil)
}

func (m *memBatchRepo) OpenItemCount(_ dbctx.Context, batchID int64) (int64, error) {
	m.rec.record("batches.OpenItemCount")
	var count int64
	for _, item := range m.items {
		if item.BatchID == batchID && item.ReleasedAt == nil {
			count++
		}
	}
	return count, nil
}

func (m *memBatchRepo) NextBatchSeq(_ dbctx.Context) (int64, error) {
	m.rec.record("batches.NextBatchSeq")
	m.seq++
	return m.seq, nil
}

// serviceHarness bundles the fakes behind one BaseDeps so each test
// builds only the service it exercises.
type serviceHarness struct {
	base    BaseDeps
	rec     *callRecorder
	runner  *fakeTxRunner
	hooks   *recordingHooks
	gauges  *memGaugeRepo
	events  *memEventRepo
	certs   *memCertRepo
	batches *memBatchRepo
	pub     *fakePublisher
}

func newHarness(tb testing.TB) *serviceHarness {
	rec := &callRecorder{}
	h := &serviceHarness{
		rec:     rec,
		runner:  &fakeTxRunner{},
		hooks:   &recordingHooks{},
		gauges:  newMemGaugeRepo(rec),
		events:  newMemEventRepo(rec),
		certs:   newMemCertRepo(rec),
		batches: newMemBatchRepo(rec),
		pub:     &fakePublisher{},
	}
	h.base = BaseDeps{
		Log:    testLogger(tb),
		Runner: h.runner,
		Hooks:  h.hooks,
	}
	return h
}

func (h *serviceHarness) pairing() PairingService {
	return NewPairingService(PairingServiceDeps{
		Base:      h.base,
		Gauges:    h.gauges,
		Events:    h.events,
		Publisher: h.pub,
	})
}

func (h *serviceHarness) cascade() CascadeService {
	return NewCascadeService(CascadeServiceDeps{
		Base:      h.base,
		Gauges:    h.gauges,
		Events:    h.events,
		Publisher: h.pub,
	})
}

func (h *serviceHarness) calibration(blobs BlobStore) CalibrationService {
	return NewCalibrationService(CalibrationServiceDeps{
		Base:      h.base,
		Gauges:    h.gauges,
		Batches:   h.batches,
		Certs:     h.certs,
		Events:    h.events,
		Blobs:     blobs,
		Publisher: h.pub,
	})
}

func (h *serviceHarness) seedSpare(serial string, fn types.GaugeFunction) *types.Gauge {
	return h.gauges.add(&types.Gauge{
		SerialNumber:  serial,
		EquipmentType: "thread_plug",
		Category:      "plug",
		ThreadSize:    "1/2-20",
		ThreadClass:   "UNF-2B",
		Function:      fn,
		Status:        types.StatusAvailable,
		IsSpare:       true,
		OwnershipType: types.OwnershipCompany,
	})
}

func (h *serviceHarness) seedPair(serialGo, serialNogo, displayID string) (*types.Gauge, *types.Gauge) {
	goG := h.seedSpare(serialGo, types.FunctionGo)
	nogoG := h.seedSpare(serialNogo, types.FunctionNoGo)
	goSuffix, nogoSuffix := types.SuffixGo, types.SuffixNoGo
	goDisplay, nogoDisplay := displayID, displayID
	goID, nogoID := goG.ID, nogoG.ID
	goG.CompanionID = &nogoID
	goG.PairSuffix = &goSuffix
	goG.DisplayID = &goDisplay
	goG.IsSpare = false
	nogoG.CompanionID = &goID
	nogoG.PairSuffix = &nogoSuffix
	nogoG.DisplayID = &nogoDisplay
	nogoG.IsSpare = false
	return goG, nogoG
}
