package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestEnabled(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{"  true  ", true},
		{"0", false},
		{"no", false},
		{"enabled", false},
	}
	for _, tc := range cases {
		t.Setenv("METRICS_ENABLED", tc.value)
		if got := Enabled(); got != tc.want {
			t.Fatalf("Enabled with %q: got %v want %v", tc.value, got, tc.want)
		}
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("pair", "ok", time.Millisecond)
	m.IncConflict("pair")
	m.IncRetry("pair")
	m.IncCascade("status", true)
	m.IncPairOperation("paired")
	m.IncEventPublished("pair.created", "published")
	if m.Handler() == nil {
		t.Fatal("nil Metrics Handler: got nil")
	}
}

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics()
	m.ObserveOperation("pair", "ok", 25*time.Millisecond)
	m.IncConflict("pair")
	m.IncRetry("pair")
	m.IncCascade("status", true)
	m.IncCascade("location", false)
	m.IncPairOperation("paired")
	m.IncEventPublished("pair.created", "published")
	m.IncEventPublished("pair.created", "error")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("metrics endpoint: status %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`gaugetrack_operation_duration_seconds_count{op="pair",status="ok"} 1`,
		`gaugetrack_storage_conflicts_total{op="pair"} 1`,
		`gaugetrack_operation_retries_total{op="pair"} 1`,
		`gaugetrack_cascades_total{cascaded="true",kind="status"} 1`,
		`gaugetrack_cascades_total{cascaded="false",kind="location"} 1`,
		`gaugetrack_pair_operations_total{action="paired"} 1`,
		`gaugetrack_events_published_total{kind="pair.created",outcome="published"} 1`,
		`gaugetrack_events_published_total{kind="pair.created",outcome="error"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("exposition missing %q\nbody:\n%s", want, body)
		}
	}
}

func TestSeparateRegistries(t *testing.T) {
	// Two instances must not collide; promauto panics on duplicate
	// registration against a shared registry.
	a := NewMetrics()
	b := NewMetrics()
	a.IncConflict("pair")

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if strings.Contains(rec.Body.String(), `gaugetrack_storage_conflicts_total{op="pair"} 1`) {
		t.Fatal("registries are shared between instances")
	}
}
