package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/keithlinneman/eventlimit/internal/version"
)

func counterValue(t *testing.T, m *LimiterMetrics, name string) float64 {
	t.Helper()
	families, err := m.reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			for _, metric := range f.GetMetric() {
				if c := metric.GetCounter(); c != nil {
					return c.GetValue()
				}
				if g := metric.GetGauge(); g != nil {
					return g.GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %q not found", name)
	return 0
}

func findFamily(t *testing.T, m *LimiterMetrics, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestNew_ReturnsNonNil(t *testing.T) {
	if New() == nil {
		t.Fatal("New() returned nil")
	}
}

func TestNew_RegistryPopulated(t *testing.T) {
	m := New()

	// MustRegister in New() would panic if any metric failed to register.
	// Verify the registry is functional by scraping it.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := rec.Body.String()
	for _, name := range []string{
		"events_allowed_total",
		"events_dropped_total",
		"fingerprints_evicted_total",
		"fingerprints_tracked",
		"profiling_active",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metric %q not found in /metrics output", name)
		}
	}

	// Go/process collectors should be present
	if !strings.Contains(body, "go_goroutines") {
		t.Error("go collector metrics missing")
	}
}

func TestCounters_Increment(t *testing.T) {
	m := New()

	m.IncAllowed()
	m.IncAllowed()
	m.IncDropped()
	m.IncEvicted()

	if got := counterValue(t, m, "events_allowed_total"); got != 2 {
		t.Errorf("events_allowed_total = %v, want 2", got)
	}
	if got := counterValue(t, m, "events_dropped_total"); got != 1 {
		t.Errorf("events_dropped_total = %v, want 1", got)
	}
	if got := counterValue(t, m, "fingerprints_evicted_total"); got != 1 {
		t.Errorf("fingerprints_evicted_total = %v, want 1", got)
	}
}

func TestSetTracked(t *testing.T) {
	m := New()
	m.SetTracked(42)
	if got := counterValue(t, m, "fingerprints_tracked"); got != 42 {
		t.Fatalf("fingerprints_tracked = %v, want 42", got)
	}
}

func TestObserveDecision_RecordsSamples(t *testing.T) {
	m := New()
	m.ObserveDecision(0.0001)
	m.ObserveDecision(0.002)

	f := findFamily(t, m, "event_decision_duration_seconds")
	if f == nil {
		t.Fatal("histogram family missing")
	}
	h := f.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Fatalf("sample count = %d, want 2", h.GetSampleCount())
	}
}

func TestIncCommand_LabelsByCommand(t *testing.T) {
	m := New()
	m.IncCommand("1")
	m.IncCommand("1")
	m.IncCommand("storm")

	f := findFamily(t, m, "demo_commands_total")
	if f == nil {
		t.Fatal("demo_commands_total missing")
	}
	got := map[string]float64{}
	for _, metric := range f.GetMetric() {
		var cmd string
		for _, l := range metric.GetLabel() {
			if l.GetName() == "command" {
				cmd = l.GetValue()
			}
		}
		got[cmd] = metric.GetCounter().GetValue()
	}
	if got["1"] != 2 || got["storm"] != 1 {
		t.Fatalf("command counts = %v", got)
	}
}

func TestSetBuildInfoFromVersion(t *testing.T) {
	m := New()
	m.SetBuildInfoFromVersion("eventlimit", "demo", version.Info{Version: "1.2.3", Commit: "abc"})

	f := findFamily(t, m, "build_info")
	if f == nil {
		t.Fatal("build_info missing")
	}
	labels := map[string]string{}
	for _, l := range f.GetMetric()[0].GetLabel() {
		labels[l.GetName()] = l.GetValue()
	}
	if labels["app"] != "eventlimit" || labels["component"] != "demo" || labels["version"] != "1.2.3" {
		t.Fatalf("labels = %v", labels)
	}
}

func TestSetProfilingActive(t *testing.T) {
	m := New()
	m.SetProfilingActive(true)
	if got := counterValue(t, m, "profiling_active"); got != 1 {
		t.Fatalf("profiling_active = %v, want 1", got)
	}
	m.SetProfilingActive(false)
	if got := counterValue(t, m, "profiling_active"); got != 0 {
		t.Fatalf("profiling_active = %v, want 0", got)
	}
}
