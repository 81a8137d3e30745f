package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	types "github.com/gaugeworks/gaugetrack-backend/internal/domain/gauges"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/dbctx"
)

// Retry policy for transactional writes: up to three attempts with
// doubling waits starting at 100ms, capped at 400ms. Only transient
// storage contention is retried; validation and not-found failures
// propagate on the first attempt.
const (
	writeAttempts  = 3
	retryBaseDelay = 100 * time.Millisecond
	retryMaxDelay  = 400 * time.Millisecond
)

func executeWrite(ctx context.Context, deps BaseDeps, op string, fn func(dbc dbctx.Context) error, opts ...*sql.TxOptions) error {
	start := time.Now()
	deps = deps.withDefaults()
	op = strings.TrimSpace(op)
	if op == "" {
		op = "services.write"
	}

	attempts := 0
	body := func() error {
		attempts++
		err := deps.Runner.InTx(ctx, fn, opts...)
		if err == nil {
			return nil
		}
		mapped := MapError(op, err)
		if types.IsCode(mapped, types.CodeTransient) {
			deps.Hooks.IncConflict(op)
			return mapped
		}
		return backoff.Permanent(mapped)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryBaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = retryMaxDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, writeAttempts-1), ctx)

	notify := func(err error, wait time.Duration) {
		deps.Hooks.IncRetry(op)
		deps.Log.Warn("transient storage contention, retrying",
			"op", op, "attempt", attempts, "wait", wait, "error", err)
	}

	err := backoff.RetryNotify(body, policy, notify)
	if err != nil && types.IsCode(err, types.CodeTransient) {
		err = types.NewError(types.CodeRetryExhausted, op,
			fmt.Sprintf("gave up after %d attempts", attempts), err)
	}

	status := "success"
	if err != nil {
		status = string(types.CodeOf(err))
		if status == "" {
			status = "failure"
		}
	}
	deps.Hooks.ObserveOperation(op, status, time.Since(start))
	return err
}
