package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordTurn(t *testing.T) {
	m := New("test")
	m.RecordTurn("respond", PathShortcut, 20*time.Millisecond)
	m.RecordTurn("respond", PathShortcut, 30*time.Millisecond)
	m.RecordTurn("incoming_call", PathGreeting, time.Millisecond)

	if got := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("respond", PathShortcut)); got != 2 {
		t.Fatalf("shortcut turns = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.TurnDuration); got != 2 {
		t.Fatalf("expected 2 duration series, got %d", got)
	}
}

func TestObserveToolsAndRounds(t *testing.T) {
	m := New("test")
	m.ObserveToolCall("case_status", "ok")
	m.ObserveToolCall("case_status", "invalid")
	m.ObserveRounds(5, true)
	m.ObserveRounds(1, false)
	m.RecordSessionStart()

	if got := testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("case_status", "invalid")); got != 1 {
		t.Fatalf("invalid tool calls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RoundCapTotal); got != 1 {
		t.Fatalf("round cap = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionsStarted); got != 1 {
		t.Fatalf("sessions started = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordTurn("respond", PathAgent, time.Second)
	m.ObserveToolCall("x", "ok")
	m.ObserveRounds(1, false)
	m.RecordSessionStart()
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New("test")
	m.RecordTurn("respond", PathAgent, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `test_turns_total{endpoint="respond",path="agent"} 1`) {
		t.Fatalf("metrics output missing turn counter:\n%s", body)
	}
}
