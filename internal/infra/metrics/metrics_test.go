package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersRecord(t *testing.T) {
	m := New()

	m.ObserveRequest("maintenance", "ok", 120*time.Millisecond)
	m.IncClassification("quick")
	m.IncClassification("quick")
	m.IncCache(true)
	m.IncCache(false)
	m.IncRouting("troubleshooting", "continuity")
	m.ObserveLLMCall("openai", nil, 30, 12)
	m.ObserveLLMCall("openai", errors.New("boom"), 0, 0)
	m.IncRegistryRefresh(nil)

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("maintenance", "ok")); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ClassificationsTotal.WithLabelValues("quick")); got != 2 {
		t.Errorf("quick classifications = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ClassifierCache.WithLabelValues("hit")); got != 1 {
		t.Errorf("cache hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RoutingDecisions.WithLabelValues("troubleshooting", "continuity")); got != 1 {
		t.Errorf("routing = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LLMCalls.WithLabelValues("openai", "error")); got != 1 {
		t.Errorf("llm errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LLMTokens.WithLabelValues("openai", "prompt")); got != 30 {
		t.Errorf("prompt tokens = %v, want 30", got)
	}
	if got := testutil.ToFloat64(m.RegistryRefreshes.WithLabelValues("ok")); got != 1 {
		t.Errorf("refreshes = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("documentation", "ok", time.Second)
	m.IncClassification("llm")
	m.IncCache(true)
	m.IncRouting("documentation", "primary")
	m.ObserveLLMCall("x", nil, 1, 1)
	m.IncRegistryRefresh(nil)
	if m.Registry() != nil {
		t.Error("nil metrics should have nil registry")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.IncClassification("fallback")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `techassist_classifications_total{method="fallback"} 1`) {
		t.Errorf("metric missing from exposition:\n%s", body)
	}
}

// Two instances must not collide on registration.
func TestNewTwice(t *testing.T) {
	a, b := New(), New()
	a.IncClassification("quick")
	if got := testutil.ToFloat64(b.ClassificationsTotal.WithLabelValues("quick")); got != 0 {
		t.Errorf("registries leaked: %v", got)
	}
}
