package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/casestudy-backend/internal/observability"
	"github.com/yungbote/casestudy-backend/internal/platform/ctxutil"
)

func TestAttachTraceContextStampsIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())

	var seen *ctxutil.TraceData
	r.GET("/api/sessions/:id", func(c *gin.Context) {
		seen = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})

	sid := "6f1c2a3b-4d5e-4f60-8a7b-9c0d1e2f3a4b"
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+sid, nil)
	req.Header.Set("X-Request-Id", "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if seen == nil {
		t.Fatalf("trace data missing from request context")
	}
	if seen.RequestID != "req-1" || rec.Header().Get("X-Request-Id") != "req-1" {
		t.Fatalf("request id not propagated: ctx=%q header=%q", seen.RequestID, rec.Header().Get("X-Request-Id"))
	}
	if seen.TraceID == "" || rec.Header().Get("X-Trace-Id") != seen.TraceID {
		t.Fatalf("trace id mismatch: ctx=%q header=%q", seen.TraceID, rec.Header().Get("X-Trace-Id"))
	}
	if seen.SessionID != sid {
		t.Fatalf("session id: got %q", seen.SessionID)
	}
}

func TestAttachTraceContextIgnoresNonUUIDParam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	var seen *ctxutil.TraceData
	r.GET("/api/sessions/:id", func(c *gin.Context) {
		seen = ctxutil.GetTraceData(c.Request.Context())
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/sessions/nope", nil))
	if seen == nil || seen.SessionID != "" {
		t.Fatalf("unexpected session id: %+v", seen)
	}
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := observability.NewMetrics()
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/api/sessions/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/sessions/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	var b strings.Builder
	if err := m.WritePrometheus(&b); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := b.String()
	if !strings.Contains(out, `cs_api_requests_total{method="GET",route="/api/sessions/:id",status="200"} 1`) {
		t.Fatalf("route sample missing:\n%s", out)
	}
	if !strings.Contains(out, `route="unmatched",status="404"`) {
		t.Fatalf("unmatched sample missing:\n%s", out)
	}
}

func TestMetricsNilIsPassThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(nil))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusTeapot) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status: got %d", rec.Code)
	}
}
