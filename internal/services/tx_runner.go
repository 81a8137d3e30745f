package services

import (
	"context"
	"database/sql"

	"gorm.io/gorm"

	"github.com/gaugeworks/gaugetrack-backend/internal/database"
	types "github.com/gaugeworks/gaugetrack-backend/internal/domain/gauges"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/dbctx"
)

// TxRunner provides the shared transaction boundary for service writes.
// Every logical operation owns one transaction for its full duration;
// the handle is never shared across operations.
type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error, opts ...*sql.TxOptions) error
}

type gormTxRunner struct {
	db *gorm.DB
}

// NewGormTxRunner returns a runner backed by plain GORM transactions.
func NewGormTxRunner(db *gorm.DB) TxRunner {
	return &gormTxRunner{db: db}
}

func (r *gormTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error, opts ...*sql.TxOptions) error {
	if fn == nil {
		return nil
	}
	if r == nil || r.db == nil {
		return types.NewError(types.CodeInternal, "services.tx", "transaction runner has nil db", nil)
	}
	var o *sql.TxOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	}, o)
}

type databaseTxRunner struct {
	run database.TransactionFunc
}

// NewDatabaseTxRunner wraps the dialect-aware transaction function so
// CockroachDB deployments get its client-side retry loop for free.
func NewDatabaseTxRunner(run database.TransactionFunc) TxRunner {
	return &databaseTxRunner{run: run}
}

func (r *databaseTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error, opts ...*sql.TxOptions) error {
	if fn == nil {
		return nil
	}
	if r == nil || r.run == nil {
		return types.NewError(types.CodeInternal, "services.tx", "transaction runner has nil db", nil)
	}
	return r.run(ctx, func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	}, opts...)
}
