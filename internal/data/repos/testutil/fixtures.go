package testutil

import (
	"context"
	"testing"

	"gorm.io/gorm"

	types "github.com/gaugeworks/gaugetrack-backend/internal/domain/gauges"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/pointers"
)

// SeedSpare inserts one unpaired gauge with sensible defaults.
func SeedSpare(tb testing.TB, ctx context.Context, tx *gorm.DB, serial string, fn types.GaugeFunction) *types.Gauge {
	tb.Helper()
	g := &types.Gauge{
		SerialNumber:  serial,
		EquipmentType: "thread_plug",
		Category:      "plug",
		ThreadSize:    "1/2-20",
		ThreadClass:   "UNF-2B",
		Function:      fn,
		Status:        types.StatusAvailable,
		IsSpare:       true,
		OwnershipType: types.OwnershipCompany,
	}
	if err := tx.WithContext(ctx).Create(g).Error; err != nil {
		tb.Fatalf("seed spare: %v", err)
	}
	return g
}

// SeedPair inserts a bonded GO/NO-GO pair sharing displayID.
func SeedPair(tb testing.TB, ctx context.Context, tx *gorm.DB, serialGo, serialNogo, displayID string) (*types.Gauge, *types.Gauge) {
	tb.Helper()
	goG := SeedSpare(tb, ctx, tx, serialGo, types.FunctionGo)
	nogoG := SeedSpare(tb, ctx, tx, serialNogo, types.FunctionNoGo)

	link := func(g *types.Gauge, companionID int64, suffix string) {
		updates := map[string]interface{}{
			"companion_id": companionID,
			"pair_suffix":  suffix,
			"display_id":   displayID,
			"is_spare":     false,
		}
		if err := tx.WithContext(ctx).Model(&types.Gauge{}).
			Where("id = ?", g.ID).Updates(updates).Error; err != nil {
			tb.Fatalf("seed pair link: %v", err)
		}
		g.CompanionID = pointers.Ptr(companionID)
		g.PairSuffix = pointers.Ptr(suffix)
		g.DisplayID = pointers.Ptr(displayID)
		g.IsSpare = false
	}
	link(goG, nogoG.ID, types.SuffixGo)
	link(nogoG, goG.ID, types.SuffixNoGo)
	return goG, nogoG
}
