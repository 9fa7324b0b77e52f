package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", "200", time.Second)
	m.ObserveLLMRequest("gpt", "/responses", "200", time.Second, 10, 5)
	m.IncChunkAppend("rolling", "ok")
	m.SetQueueDepth("evaluation", 3)
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("nil write: %v", err)
	}
}

func TestWritePrometheusIsSortedAndLabelled(t *testing.T) {
	m := NewMetrics()
	m.IncCompetencyEvaluation("strategic_thinking", "ok")
	m.IncCompetencyEvaluation("innovation", "ok")
	m.IncCompetencyEvaluation("innovation", "error")
	m.ObserveChunkEvaluation("ok", 3*time.Second)

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	iErr := strings.Index(out, `cs_competency_evaluations_total{competency="innovation",status="error"} 1`)
	iOK := strings.Index(out, `cs_competency_evaluations_total{competency="innovation",status="ok"} 1`)
	sOK := strings.Index(out, `cs_competency_evaluations_total{competency="strategic_thinking",status="ok"} 1`)
	if iErr < 0 || iOK < 0 || sOK < 0 {
		t.Fatalf("missing series:\n%s", out)
	}
	if !(iErr < iOK && iOK < sOK) {
		t.Fatalf("series not sorted:\n%s", out)
	}
	if !strings.Contains(out, `cs_chunk_evaluation_duration_seconds_bucket{status="ok",le="5"} 1`) {
		t.Fatalf("missing bucket:\n%s", out)
	}
	if !strings.Contains(out, `cs_chunk_evaluation_duration_seconds_bucket{status="ok",le="2"} 0`) {
		t.Fatalf("bucket below observation should be 0:\n%s", out)
	}
}

func TestEmptyLabelBecomesUnknown(t *testing.T) {
	c := NewCounterVec("x_total", "x", []string{"kind"})
	c.Inc("")
	if c.Value("unknown") != 1 {
		t.Fatalf("empty label should map to unknown")
	}
}
