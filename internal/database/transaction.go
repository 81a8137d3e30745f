package database

import (
	"context"
	"database/sql"
	"strings"

	"github.com/cockroachdb/cockroach-go/v2/crdb/crdbgorm"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// TransactionFunc executes fn inside one transaction. Optional TxOptions
// set the isolation level; callers that link or unlink companions pass
// RepeatableRead so neither side of a bidirectional update is observed
// half-written.
type TransactionFunc func(
	ctx context.Context, fn func(tx *gorm.DB) error, opts ...*sql.TxOptions,
) error

// RepeatableRead is the isolation used by all pairing mutations.
var RepeatableRead = &sql.TxOptions{Isolation: sql.LevelRepeatableRead}

func Silent(db *gorm.DB) *gorm.DB {
	return db.Session(&gorm.Session{
		Logger: db.Logger.LogMode(gormLogger.Silent),
	})
}

type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgreSQL
	DialectCockroachDB
)

func (d Dialect) String() string {
	switch d {
	case DialectPostgreSQL:
		return "postgres"
	case DialectCockroachDB:
		return "cockroach"
	default:
		return "sqlite"
	}
}

// GetTransactionFunc probes the server version once and returns the
// matching runner. CockroachDB needs its client-side retry loop; the
// others use GORM's plain Transaction.
func GetTransactionFunc(db *gorm.DB) (TransactionFunc, Dialect, error) {
	version := ""
	_ = Silent(db).Raw("SELECT version()").Scan(&version).Error

	dialect := DialectSQLite
	if strings.HasPrefix(version, "PostgreSQL") {
		dialect = DialectPostgreSQL
	} else if strings.HasPrefix(version, "CockroachDB") {
		dialect = DialectCockroachDB
	}

	if dialect == DialectCockroachDB {
		return func(ctx context.Context, fn func(tx *gorm.DB) error, opts ...*sql.TxOptions) error {
			var o *sql.TxOptions
			if len(opts) > 0 {
				o = opts[0]
			}
			return crdbgorm.ExecuteTx(ctx, db, o, fn)
		}, dialect, nil
	}
	return func(ctx context.Context, fn func(tx *gorm.DB) error, opts ...*sql.TxOptions) error {
		var o *sql.TxOptions
		if len(opts) > 0 {
			o = opts[0]
		}
		return db.WithContext(ctx).Transaction(fn, o)
	}, dialect, nil
}

// NextSeq increments and returns the named counter inside the caller's
// transaction. The upsert takes a row lock on conflict, so concurrent
// transactions serialize on the counter and each sees a distinct value.
func NextSeq(tx *gorm.DB, name string) (int64, error) {
	err := tx.Exec(
		`INSERT INTO display_sequence (name, value) VALUES (?, 1)
		 ON CONFLICT (name) DO UPDATE SET value = display_sequence.value + 1`,
		name,
	).Error
	if err != nil {
		return 0, err
	}
	var value int64
	if err := tx.Raw(`SELECT value FROM display_sequence WHERE name = ?`, name).Scan(&value).Error; err != nil {
		return 0, err
	}
	return value, nil
}
