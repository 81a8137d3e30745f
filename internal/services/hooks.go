package services

import (
	"strings"
	"time"

	"github.com/gaugeworks/gaugetrack-backend/internal/observability"
)

// Hooks captures service-level observability events.
type Hooks interface {
	ObserveOperation(name, status string, dur time.Duration)
	IncConflict(name string)
	IncRetry(name string)
	IncPairAction(action string)
	IncCascade(kind string, cascaded bool)
}

type noopHooks struct{}

func (noopHooks) ObserveOperation(string, string, time.Duration) {}
func (noopHooks) IncConflict(string)                             {}
func (noopHooks) IncRetry(string)                                {}
func (noopHooks) IncPairAction(string)                           {}
func (noopHooks) IncCascade(string, bool)                        {}

type metricsHooks struct {
	metrics *observability.Metrics
}

// NewMetricsHooks creates service hooks backed by prometheus metrics.
func NewMetricsHooks(metrics *observability.Metrics) Hooks {
	if metrics == nil {
		return noopHooks{}
	}
	return &metricsHooks{metrics: metrics}
}

func (h *metricsHooks) ObserveOperation(name, status string, dur time.Duration) {
	if h == nil || h.metrics == nil {
		return
	}
	h.metrics.ObserveOperation(strings.TrimSpace(name), strings.TrimSpace(status), dur)
}

func (h *metricsHooks) IncConflict(name string) {
	if h == nil || h.metrics == nil {
		return
	}
	h.metrics.IncConflict(strings.TrimSpace(name))
}

func (h *metricsHooks) IncRetry(name string) {
	if h == nil || h.metrics == nil {
		return
	}
	h.metrics.IncRetry(strings.TrimSpace(name))
}

func (h *metricsHooks) IncPairAction(action string) {
	if h == nil || h.metrics == nil {
		return
	}
	h.metrics.IncPairOperation(strings.TrimSpace(action))
}

func (h *metricsHooks) IncCascade(kind string, cascaded bool) {
	if h == nil || h.metrics == nil {
		return
	}
	h.metrics.IncCascade(strings.TrimSpace(kind), cascaded)
}
