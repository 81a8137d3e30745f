package database

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/gaugeworks/gaugetrack-backend/internal/domain/gauges"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/logger"
)

// displaySequence backs NextSeq. One row per named counter.
type displaySequence struct {
	Name  string `gorm:"primaryKey;size:60"`
	Value int64  `gorm:"not null;default:0"`
}

func (displaySequence) TableName() string { return "display_sequence" }

func allModels() []interface{} {
	return []interface{}{
		&displaySequence{},
		&gauges.Gauge{},
		&gauges.PairEvent{},
		&gauges.CalibrationCertificate{},
		&gauges.CalibrationBatch{},
		&gauges.CalibrationBatchItem{},
	}
}

// Migrate applies the schema through gormigrate so every change is
// recorded and reversible. Postgres-only statements are skipped on
// sqlite, which exists for local development without row locking.
func Migrate(db *gorm.DB, dialect Dialect, log *logger.Logger) error {
	log.Info("running migrations")

	steps := []*gormigrate.Migration{
		{
			ID: "2025081201_initial_schema",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(allModels()...)
			},
			Rollback: func(tx *gorm.DB) error {
				for _, m := range allModels() {
					if err := tx.Migrator().DropTable(m); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			// Serial numbers are unique among live rows only; a
			// soft-deleted gauge frees its serial for re-registration.
			ID: "2025081202_gauge_serial_active_unique",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec(`
					CREATE UNIQUE INDEX IF NOT EXISTS idx_gauge_serial_active
					ON gauge(serial_number)
					WHERE deleted_at IS NULL;
				`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec(`DROP INDEX IF EXISTS idx_gauge_serial_active;`).Error
			},
		},
		{
			// At most one current certificate per gauge.
			ID: "2025081203_certificate_current_unique",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec(`
					CREATE UNIQUE INDEX IF NOT EXISTS idx_cert_gauge_current
					ON calibration_certificate(gauge_id)
					WHERE is_current = TRUE;
				`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec(`DROP INDEX IF EXISTS idx_cert_gauge_current;`).Error
			},
		},
		{
			// History rows follow a hard-deleted gauge out of the
			// database; they are never deleted any other way.
			ID: "2025081204_pair_event_fk_cascade",
			Migrate: func(tx *gorm.DB) error {
				if dialect != DialectPostgreSQL && dialect != DialectCockroachDB {
					return nil
				}
				for _, stmt := range []string{
					`ALTER TABLE gauge_pair_event
						DROP CONSTRAINT IF EXISTS fk_pair_event_go,
						ADD CONSTRAINT fk_pair_event_go
						FOREIGN KEY (go_id) REFERENCES gauge(id) ON DELETE CASCADE;`,
					`ALTER TABLE gauge_pair_event
						DROP CONSTRAINT IF EXISTS fk_pair_event_nogo,
						ADD CONSTRAINT fk_pair_event_nogo
						FOREIGN KEY (nogo_id) REFERENCES gauge(id) ON DELETE CASCADE;`,
				} {
					if err := tx.Exec(stmt).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				if dialect != DialectPostgreSQL && dialect != DialectCockroachDB {
					return nil
				}
				for _, stmt := range []string{
					`ALTER TABLE gauge_pair_event DROP CONSTRAINT IF EXISTS fk_pair_event_go;`,
					`ALTER TABLE gauge_pair_event DROP CONSTRAINT IF EXISTS fk_pair_event_nogo;`,
				} {
					if err := tx.Exec(stmt).Error; err != nil {
						return err
					}
				}
				return nil
			},
		},
	}

	if err := gormigrate.New(db, gormigrate.DefaultOptions, steps).Migrate(); err != nil {
		return fmt.Errorf("gormigrate: %w", err)
	}
	log.Info("migrations complete", "steps", len(steps))
	return nil
}
