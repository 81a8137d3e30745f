package services

import (
	"context"
	"strings"
	"testing"
	"time"

	types "github.com/gaugeworks/gaugetrack-backend/internal/domain/gauges"
)

func TestCascadeStatusChangeMirrorsCompanion(t *testing.T) {
	h := newHarness(t)
	goG, nogoG := h.seedPair("P1", "P2", "G-00042")
	svc := h.cascade()

	res, err := svc.CascadeStatusChange(context.Background(), goG.ID, types.StatusOutOfService, "inspector", "dropped")
	if err != nil {
		t.Fatalf("CascadeStatusChange: %v", err)
	}
	if !res.Cascaded {
		t.Fatalf("paired target must cascade")
	}
	if h.gauges.stored(t, goG.ID).Status != types.StatusOutOfService {
		t.Fatalf("target status: want=%s got=%s", types.StatusOutOfService, h.gauges.stored(t, goG.ID).Status)
	}
	if h.gauges.stored(t, nogoG.ID).Status != types.StatusOutOfService {
		t.Fatalf("companion status: want=%s got=%s", types.StatusOutOfService, h.gauges.stored(t, nogoG.ID).Status)
	}

	ev := h.events.single(t, types.ActionCascadedOOS)
	if ev.GoID != goG.ID || ev.NoGoID != nogoG.ID {
		t.Fatalf("event members: want=(%d,%d) got=(%d,%d)", goG.ID, nogoG.ID, ev.GoID, ev.NoGoID)
	}
	if len(h.hooks.cascades) != 1 || h.hooks.cascades[0] != "status|cascaded" {
		t.Fatalf("cascade hook: got=%v", h.hooks.cascades)
	}
}

func TestCascadeStatusChangeOutsideVocabularySkipsHistory(t *testing.T) {
	h := newHarness(t)
	goG, nogoG := h.seedPair("P1", "P2", "G-00042")
	svc := h.cascade()

	// checked_out cascades but is not part of the history vocabulary.
	if _, err := svc.CascadeStatusChange(context.Background(), goG.ID, types.StatusCheckedOut, "inspector", ""); err != nil {
		t.Fatalf("CascadeStatusChange: %v", err)
	}
	if h.gauges.stored(t, nogoG.ID).Status != types.StatusCheckedOut {
		t.Fatalf("companion must still mirror the status")
	}
	if len(h.events.events) != 0 {
		t.Fatalf("no history row outside the vocabulary: got=%d", len(h.events.events))
	}
}

func TestCascadeStatusChangeWithoutCompanion(t *testing.T) {
	h := newHarness(t)
	spare := h.seedSpare("S1", types.FunctionGo)
	svc := h.cascade()

	res, err := svc.CascadeStatusChange(context.Background(), spare.ID, types.StatusOutOfService, "inspector", "")
	if err != nil {
		t.Fatalf("CascadeStatusChange: %v", err)
	}
	if res.Cascaded || res.Companion != nil {
		t.Fatalf("lone gauge must not report a cascade: %+v", res)
	}
	if len(h.events.events) != 0 {
		t.Fatalf("no pair history for a lone gauge")
	}
}

func TestCascadeStatusChangeSurvivesMissingCompanion(t *testing.T) {
	h := newHarness(t)
	goG := h.seedSpare("S1", types.FunctionGo)
	dangling := int64(404)
	goG.CompanionID = &dangling
	goG.IsSpare = false
	svc := h.cascade()

	res, err := svc.CascadeStatusChange(context.Background(), goG.ID, types.StatusOutOfService, "inspector", "")
	if err != nil {
		t.Fatalf("dangling companion must not fail the operation: %v", err)
	}
	if res.Warning != "missing companion" {
		t.Fatalf("warning: want=%q got=%q", "missing companion", res.Warning)
	}
	if res.Cascaded {
		t.Fatalf("nothing to cascade onto")
	}
	if h.gauges.stored(t, goG.ID).Status != types.StatusOutOfService {
		t.Fatalf("surviving member must still be updated")
	}
}

func TestCascadeStatusChangeRejectsUnknownStatus(t *testing.T) {
	h := newHarness(t)
	spare := h.seedSpare("S1", types.FunctionGo)
	svc := h.cascade()

	_, err := svc.CascadeStatusChange(context.Background(), spare.ID, "lost", "inspector", "")
	if !types.IsCode(err, types.CodeValidation) {
		t.Fatalf("want=%s got=%v", types.CodeValidation, err)
	}
	if h.runner.calls != 0 {
		t.Fatalf("no transaction should start on input validation: got=%d", h.runner.calls)
	}
}

func TestCascadeLocationChange(t *testing.T) {
	h := newHarness(t)
	goG, nogoG := h.seedPair("P1", "P2", "G-00042")
	svc := h.cascade()

	res, err := svc.CascadeLocationChange(context.Background(), nogoG.ID, "Drawer B2", "inspector", "reorg")
	if err != nil {
		t.Fatalf("CascadeLocationChange: %v", err)
	}
	if !res.Cascaded {
		t.Fatalf("paired target must cascade")
	}
	if h.gauges.stored(t, goG.ID).StorageLocation != "Drawer B2" ||
		h.gauges.stored(t, nogoG.ID).StorageLocation != "Drawer B2" {
		t.Fatalf("both members must move together")
	}
	ev := h.events.single(t, types.ActionCascadedLocation)
	if ev.GoID != goG.ID || ev.NoGoID != nogoG.ID {
		t.Fatalf("event members: want=(%d,%d) got=(%d,%d)", goG.ID, nogoG.ID, ev.GoID, ev.NoGoID)
	}
}

func TestCanCheckoutSetEligiblePair(t *testing.T) {
	h := newHarness(t)
	goG, _ := h.seedPair("P1", "P2", "G-00042")
	svc := h.cascade()

	ps, err := svc.CanCheckoutSet(context.Background(), goG.ID)
	if err != nil {
		t.Fatalf("CanCheckoutSet: %v", err)
	}
	if !ps.CanCheckout || ps.Status != string(types.StatusAvailable) {
		t.Fatalf("eligible pair: got=%+v", ps)
	}
	if h.runner.calls != 0 {
		t.Fatalf("read path must not open a transaction: got=%d", h.runner.calls)
	}
}

func TestCanCheckoutSetBlockedByMember(t *testing.T) {
	h := newHarness(t)
	goG, nogoG := h.seedPair("P1", "P2", "G-00042")
	nogoG.Status = types.StatusCheckedOut
	svc := h.cascade()

	ps, err := svc.CanCheckoutSet(context.Background(), goG.ID)
	if err != nil {
		t.Fatalf("CanCheckoutSet: %v", err)
	}
	if ps.CanCheckout || ps.Status != string(types.StatusCheckedOut) {
		t.Fatalf("blocked pair: got=%+v", ps)
	}
	if ps.Reason == "" {
		t.Fatalf("blocked pair needs a reason")
	}
}

func TestCanCheckoutSetRequiresCompanion(t *testing.T) {
	h := newHarness(t)
	spare := h.seedSpare("S1", types.FunctionGo)
	svc := h.cascade()

	ps, err := svc.CanCheckoutSet(context.Background(), spare.ID)
	if err != nil {
		t.Fatalf("CanCheckoutSet: %v", err)
	}
	if ps.CanCheckout {
		t.Fatalf("lone gauge is never checkout-eligible")
	}
	if !strings.Contains(ps.Reason, "no companion") {
		t.Fatalf("reason: got=%q", ps.Reason)
	}
}

func TestCanCheckoutSetMissingCompanionRow(t *testing.T) {
	h := newHarness(t)
	goG := h.seedSpare("S1", types.FunctionGo)
	dangling := int64(404)
	goG.CompanionID = &dangling
	goG.IsSpare = false
	svc := h.cascade()

	ps, err := svc.CanCheckoutSet(context.Background(), goG.ID)
	if err != nil {
		t.Fatalf("CanCheckoutSet: %v", err)
	}
	if ps.CanCheckout || ps.Reason != "missing companion" {
		t.Fatalf("dangling companion: got=%+v", ps)
	}
}

func TestCheckoutSetMovesBothMembers(t *testing.T) {
	h := newHarness(t)
	goG, nogoG := h.seedPair("P1", "P2", "G-00042")
	svc := h.cascade()

	res, err := svc.CheckoutSet(context.Background(), nogoG.ID, "machinist")
	if err != nil {
		t.Fatalf("CheckoutSet: %v", err)
	}
	if !res.Cascaded {
		t.Fatalf("checkout always covers the whole set")
	}
	if h.gauges.stored(t, goG.ID).Status != types.StatusCheckedOut ||
		h.gauges.stored(t, nogoG.ID).Status != types.StatusCheckedOut {
		t.Fatalf("both members must be checked out")
	}
	if len(h.pub.events) != 1 || h.pub.events[0].Kind != "set.checked_out" {
		t.Fatalf("published events: got=%v", h.pub.events)
	}
}

func TestCheckoutSetRejectsBlockedPair(t *testing.T) {
	h := newHarness(t)
	goG, nogoG := h.seedPair("P1", "P2", "G-00042")
	nogoG.Status = types.StatusPendingQC
	svc := h.cascade()

	_, err := svc.CheckoutSet(context.Background(), goG.ID, "machinist")
	if !types.IsCode(err, types.CodePrecondition) {
		t.Fatalf("want=%s got=%v", types.CodePrecondition, err)
	}
	if h.gauges.stored(t, goG.ID).Status != types.StatusAvailable {
		t.Fatalf("blocked checkout must not move the target")
	}
}

func TestCheckoutSetRejectsOverduePair(t *testing.T) {
	h := newHarness(t)
	goG, _ := h.seedPair("P1", "P2", "G-00042")
	past := time.Now().Add(-time.Hour)
	goG.NextCalibrationDue = &past
	svc := h.cascade()

	_, err := svc.CheckoutSet(context.Background(), goG.ID, "machinist")
	if !types.IsCode(err, types.CodePrecondition) {
		t.Fatalf("calibration-due member must block checkout: got=%v", err)
	}
}

func TestCheckoutSetRequiresCompanion(t *testing.T) {
	h := newHarness(t)
	spare := h.seedSpare("S1", types.FunctionGo)
	svc := h.cascade()

	_, err := svc.CheckoutSet(context.Background(), spare.ID, "machinist")
	if !types.IsCode(err, types.CodePrecondition) {
		t.Fatalf("want=%s got=%v", types.CodePrecondition, err)
	}
}

func TestReturnSetLandsInQCHoldAndUnseals(t *testing.T) {
	h := newHarness(t)
	goG, nogoG := h.seedPair("P1", "P2", "G-00042")
	goG.Status = types.StatusCheckedOut
	nogoG.Status = types.StatusCheckedOut
	goG.Sealed = true
	nogoG.Sealed = true
	svc := h.cascade()

	res, err := svc.ReturnSet(context.Background(), goG.ID, "machinist", "job done")
	if err != nil {
		t.Fatalf("ReturnSet: %v", err)
	}
	if !res.Cascaded {
		t.Fatalf("return covers the whole set")
	}
	for _, id := range []int64{goG.ID, nogoG.ID} {
		stored := h.gauges.stored(t, id)
		if stored.Status != types.StatusPendingQC {
			t.Fatalf("gauge %d status: want=%s got=%s", id, types.StatusPendingQC, stored.Status)
		}
		if stored.Sealed {
			t.Fatalf("gauge %d must lose its seal on return", id)
		}
	}
	if ev := h.events.single(t, types.ActionCascadedReturn); ev.Reason != "job done" {
		t.Fatalf("event reason: got=%q", ev.Reason)
	}
}

func TestReturnSetRejectsNotCheckedOut(t *testing.T) {
	h := newHarness(t)
	goG, _ := h.seedPair("P1", "P2", "G-00042")
	svc := h.cascade()

	_, err := svc.ReturnSet(context.Background(), goG.ID, "machinist", "")
	if !types.IsCode(err, types.CodePrecondition) {
		t.Fatalf("want=%s got=%v", types.CodePrecondition, err)
	}
}

func TestCompleteQCPassRestoresAvailability(t *testing.T) {
	h := newHarness(t)
	goG, nogoG := h.seedPair("P1", "P2", "G-00042")
	goG.Status = types.StatusPendingQC
	nogoG.Status = types.StatusPendingQC
	svc := h.cascade()

	if _, err := svc.CompleteQC(context.Background(), goG.ID, true, "qc", ""); err != nil {
		t.Fatalf("CompleteQC: %v", err)
	}
	if h.gauges.stored(t, goG.ID).Status != types.StatusAvailable ||
		h.gauges.stored(t, nogoG.ID).Status != types.StatusAvailable {
		t.Fatalf("passing qc must restore both members")
	}
	if len(h.events.events) != 0 {
		t.Fatalf("passing qc writes no history: got=%d", len(h.events.events))
	}
}

func TestCompleteQCFailParksSetOutOfService(t *testing.T) {
	h := newHarness(t)
	goG, nogoG := h.seedPair("P1", "P2", "G-00042")
	goG.Status = types.StatusPendingQC
	nogoG.Status = types.StatusPendingQC
	svc := h.cascade()

	if _, err := svc.CompleteQC(context.Background(), goG.ID, false, "qc", "worn threads"); err != nil {
		t.Fatalf("CompleteQC: %v", err)
	}
	if h.gauges.stored(t, nogoG.ID).Status != types.StatusOutOfService {
		t.Fatalf("failed qc must park the companion too")
	}
	if ev := h.events.single(t, types.ActionCascadedOOS); ev.Reason != "worn threads" {
		t.Fatalf("event reason: got=%q", ev.Reason)
	}
}

func TestCompleteQCRejectsWrongState(t *testing.T) {
	h := newHarness(t)
	goG, _ := h.seedPair("P1", "P2", "G-00042")
	svc := h.cascade()

	_, err := svc.CompleteQC(context.Background(), goG.ID, true, "qc", "")
	if !types.IsCode(err, types.CodePrecondition) {
		t.Fatalf("want=%s got=%v", types.CodePrecondition, err)
	}
}

func TestDeleteAndOrphanCompanion(t *testing.T) {
	h := newHarness(t)
	goG, nogoG := h.seedPair("P1", "P2", "G-00042")
	svc := h.cascade()

	res, err := svc.DeleteAndOrphanCompanion(context.Background(), nogoG.ID, "inspector", "damaged")
	if err != nil {
		t.Fatalf("DeleteAndOrphanCompanion: %v", err)
	}
	if !res.Cascaded {
		t.Fatalf("orphaning a paired gauge must report the companion")
	}
	if !h.gauges.deleted[nogoG.ID] {
		t.Fatalf("target must be soft-deleted")
	}
	orphan := h.gauges.stored(t, goG.ID)
	if orphan.CompanionID != nil || !orphan.IsSpare || orphan.DisplayID != nil {
		t.Fatalf("companion must revert to spare: %+v", orphan)
	}

	ev := h.events.single(t, types.ActionOrphaned)
	if ev.GoID != goG.ID || ev.NoGoID != nogoG.ID {
		t.Fatalf("event members: want=(%d,%d) got=(%d,%d)", goG.ID, nogoG.ID, ev.GoID, ev.NoGoID)
	}

	evIdx := h.rec.indexOf("events.Create:orphaned")
	unlinkIdx := h.rec.indexOf("gauges.UnlinkCompanions")
	deleteIdx := h.rec.indexOf("gauges.SoftDelete")
	if evIdx > unlinkIdx || unlinkIdx > deleteIdx {
		t.Fatalf("delete order: history, unlink, delete; calls=%v", h.rec.calls)
	}
}

func TestDeleteAndOrphanBlockedWhileCompanionCheckedOut(t *testing.T) {
	h := newHarness(t)
	goG, nogoG := h.seedPair("P1", "P2", "G-00042")
	goG.Status = types.StatusCheckedOut
	nogoG.Status = types.StatusCheckedOut
	svc := h.cascade()

	_, err := svc.DeleteAndOrphanCompanion(context.Background(), nogoG.ID, "inspector", "")
	if !types.IsCode(err, types.CodePrecondition) {
		t.Fatalf("want=%s got=%v", types.CodePrecondition, err)
	}
	if h.gauges.deleted[nogoG.ID] {
		t.Fatalf("blocked delete must not remove the row")
	}
	if h.gauges.stored(t, nogoG.ID).CompanionID == nil {
		t.Fatalf("blocked delete must keep the link intact")
	}
	if len(h.events.events) != 0 {
		t.Fatalf("blocked delete must write no history")
	}
}

func TestDeleteAndOrphanLoneGauge(t *testing.T) {
	h := newHarness(t)
	spare := h.seedSpare("S1", types.FunctionGo)
	svc := h.cascade()

	res, err := svc.DeleteAndOrphanCompanion(context.Background(), spare.ID, "inspector", "")
	if err != nil {
		t.Fatalf("DeleteAndOrphanCompanion: %v", err)
	}
	if res.Cascaded || res.Companion != nil {
		t.Fatalf("lone gauge has nothing to orphan: %+v", res)
	}
	if !h.gauges.deleted[spare.ID] {
		t.Fatalf("target must be soft-deleted")
	}
	if len(h.events.events) != 0 {
		t.Fatalf("no history for a lone delete")
	}
}
