package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCollectorsAppearOnEndpoint(t *testing.T) {
	m := NewMetrics(DefaultConfig())
	m.IncHalt(true)
	m.IncHalt(false)
	m.IncError()
	m.IncPacket("in")
	m.IncPacket("out")
	m.IncSession()
	m.SetBreakpoints(3)
	m.SetWatches(2)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		`pawndbg_halts_total{reason="breakpoint"} 1`,
		`pawndbg_halts_total{reason="step"} 1`,
		`pawndbg_script_errors_total 1`,
		`pawndbg_rsp_packets_total{direction="in"} 1`,
		`pawndbg_rsp_sessions_total 1`,
		`pawndbg_breakpoints 3`,
		`pawndbg_watches 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in metrics output", want)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.IncHalt(true)
	m.IncError()
	m.IncPacket("in")
	m.IncSession()
	m.SetBreakpoints(1)
	m.SetWatches(1)
}
