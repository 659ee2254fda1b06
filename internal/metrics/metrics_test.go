package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"binance-ats/internal/binance"
)

var _ binance.Observer = (*Metrics)(nil)

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	return 0
}

func TestObserverCounts(t *testing.T) {
	m := New()
	m.ObserveRequest("/fapi/v1/klines", 200, 120*time.Millisecond)
	m.ObserveRequest("/fapi/v1/klines", 200, 80*time.Millisecond)
	m.ObserveRequest("/fapi/v1/klines", 429, 10*time.Millisecond)
	m.ObserveRetry("/fapi/v1/klines", "rate_limited")

	if got := counterValue(t, m, "ats_exchange_requests_total", map[string]string{"endpoint": "/fapi/v1/klines", "status": "200"}); got != 2 {
		t.Errorf("200 requests = %v, want 2", got)
	}
	if got := counterValue(t, m, "ats_exchange_retries_total", map[string]string{"endpoint": "/fapi/v1/klines", "outcome": "rate_limited"}); got != 1 {
		t.Errorf("retries = %v, want 1", got)
	}
}

func TestScanMetrics(t *testing.T) {
	m := New()
	at := time.Unix(1_700_000_000, 0)
	m.SetScanning(true)
	m.Symbol(OutcomePlanned)
	m.GateRejected("C")
	m.Plan("dry")
	m.ScanFinished(true, 42*time.Second, at)
	m.SetScanning(false)

	if got := counterValue(t, m, "ats_scans_total", map[string]string{"result": "ok"}); got != 1 {
		t.Errorf("scans = %v", got)
	}
	if got := counterValue(t, m, "ats_gate_rejections_total", map[string]string{"gate": "C"}); got != 1 {
		t.Errorf("gate C rejections = %v", got)
	}
	if got := counterValue(t, m, "ats_last_scan_timestamp_seconds", nil); got != 1_700_000_000 {
		t.Errorf("last scan = %v", got)
	}
	if got := counterValue(t, m, "ats_scanning", nil); got != 0 {
		t.Errorf("scanning = %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Plan("live")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `ats_plans_total{mode="live"} 1`) {
		t.Errorf("plans counter missing from exposition:\n%s", body)
	}
}
