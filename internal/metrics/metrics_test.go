package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecord(t *testing.T) {
	m := New()

	m.RecordAnnotation("high", "billing", "negative")
	m.RecordAnnotation("high", "billing", "negative")
	m.RecordAnnotation("low", "general", "neutral")
	m.RecordReply("template")
	m.RecordReply("external")
	m.RecordReply("template")
	m.RecordExternalFailure("timeout")
	m.RecordExternalCall("error", 250*time.Millisecond)

	if got := testutil.ToFloat64(m.EmailsAnnotated.WithLabelValues("high", "billing", "negative")); got != 2 {
		t.Errorf("annotated high/billing/negative: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RepliesGenerated.WithLabelValues("template")); got != 2 {
		t.Errorf("template replies: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ExternalFailures.WithLabelValues("timeout")); got != 1 {
		t.Errorf("timeout failures: got %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.ExternalLatency); got != 1 {
		t.Errorf("latency series: got %d, want 1", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordAnnotation("low", "general", "neutral")
	m.RecordReply("template")
	m.RecordExternalFailure("auth")
	m.RecordExternalCall("ok", time.Second)
	m.RecordRun(time.Second, time.Now())
	if err := m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Errorf("nil metrics should not write: %v", err)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.RecordReply("template")
	m.RecordRun(1500*time.Millisecond, time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "textfile", "triage.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{
		`triage_replies_generated_total{source="template"} 1`,
		"triage_run_duration_seconds 1.5",
		"triage_last_run_timestamp_seconds 1.7e+09",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}
