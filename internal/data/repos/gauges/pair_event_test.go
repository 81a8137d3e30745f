package gauges

import (
	"context"
	"testing"

	"github.com/gaugeworks/gaugetrack-backend/internal/data/repos/testutil"
	types "github.com/gaugeworks/gaugetrack-backend/internal/domain/gauges"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/dbctx"
)

func TestPairEventRepoRequiresTx(t *testing.T) {
	repo := NewPairEventRepo(nil, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	err := repo.Create(dbc, &types.PairEvent{Action: types.ActionUnpaired, Actor: "x"})
	if !types.IsCode(err, types.CodeMissingConnection) {
		t.Fatalf("Create: want=%s got=%v", types.CodeMissingConnection, err)
	}
}

func TestPairEventRepoCreateAndList(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewPairEventRepo(db, testutil.Logger(t))

	goG, nogoG := testutil.SeedPair(t, ctx, tx, "EVT-0001", "EVT-0002", "G-91001")

	before, err := repo.CountByAction(dbc, types.ActionCreatedTogether)
	if err != nil {
		t.Fatalf("CountByAction: %v", err)
	}

	created := &types.PairEvent{
		GoID:   goG.ID,
		NoGoID: nogoG.ID,
		Action: types.ActionCreatedTogether,
		Actor:  "inspector",
	}
	if err := repo.Create(dbc, created); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == 0 {
		t.Fatalf("event id not assigned")
	}
	unpaired := &types.PairEvent{
		GoID:   goG.ID,
		NoGoID: nogoG.ID,
		Action: types.ActionUnpaired,
		Actor:  "inspector",
		Reason: "reassignment",
	}
	if err := repo.Create(dbc, unpaired); err != nil {
		t.Fatalf("Create: %v", err)
	}

	after, err := repo.CountByAction(dbc, types.ActionCreatedTogether)
	if err != nil || after != before+1 {
		t.Fatalf("CountByAction: err=%v before=%d after=%d", err, before, after)
	}

	// Either member's id resolves the shared history, newest first.
	for _, id := range []int64{goG.ID, nogoG.ID} {
		events, err := repo.ListByGauge(dbc, id, 0)
		if err != nil || len(events) != 2 {
			t.Fatalf("ListByGauge(%d): err=%v len=%d", id, err, len(events))
		}
		if events[0].Action != types.ActionUnpaired {
			t.Fatalf("order: want=%s first, got=%s", types.ActionUnpaired, events[0].Action)
		}
	}
	if events, err := repo.ListByGauge(dbc, goG.ID, 1); err != nil || len(events) != 1 {
		t.Fatalf("ListByGauge limited: err=%v len=%d", err, len(events))
	}
}

func TestPairEventRepoRejectsInvalid(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewPairEventRepo(db, testutil.Logger(t))

	goG, nogoG := testutil.SeedPair(t, ctx, tx, "EVT-0003", "EVT-0004", "G-91002")

	if err := repo.Create(dbc, nil); !types.IsCode(err, types.CodeValidation) {
		t.Fatalf("nil event: want=%s got=%v", types.CodeValidation, err)
	}
	badAction := &types.PairEvent{GoID: goG.ID, NoGoID: nogoG.ID, Action: "checked_out", Actor: "x"}
	if err := repo.Create(dbc, badAction); !types.IsCode(err, types.CodeValidation) {
		t.Fatalf("unknown action: want=%s got=%v", types.CodeValidation, err)
	}
	noActor := &types.PairEvent{GoID: goG.ID, NoGoID: nogoG.ID, Action: types.ActionUnpaired}
	if err := repo.Create(dbc, noActor); !types.IsCode(err, types.CodeValidation) {
		t.Fatalf("missing actor: want=%s got=%v", types.CodeValidation, err)
	}
}

// History rows follow a hard-deleted gauge out of the database through
// the schema's cascade; application code never deletes them.
func TestPairEventFollowsGaugeDeletion(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewPairEventRepo(db, testutil.Logger(t))

	goG, nogoG := testutil.SeedPair(t, ctx, tx, "EVT-0005", "EVT-0006", "G-91003")
	ev := &types.PairEvent{GoID: goG.ID, NoGoID: nogoG.ID, Action: types.ActionCreatedTogether, Actor: "inspector"}
	if err := repo.Create(dbc, ev); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := tx.Unscoped().Where("id IN ?", []int64{goG.ID, nogoG.ID}).
		Delete(&types.Gauge{}).Error; err != nil {
		t.Fatalf("hard delete gauges: %v", err)
	}

	events, err := repo.ListByGauge(dbc, goG.ID, 0)
	if err != nil {
		t.Fatalf("ListByGauge: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("cascade must remove history rows: len=%d", len(events))
	}
}
