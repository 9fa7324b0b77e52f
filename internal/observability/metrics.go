package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/casestudy-backend/internal/platform/envutil"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	llmRequests *CounterVec
	llmLatency  *HistogramVec
	llmTokens   *CounterVec

	chunkAppends      *CounterVec
	evaluations       *CounterVec
	evaluationLatency *HistogramVec
	evaluationRows    *CounterVec
	queueDepth        *GaugeVec
	queueRejected     *CounterVec
	speakerGuesses    *CounterVec
	streamReconn      *CounterVec

	pgStats   *GaugeVec
	redisUp   *Gauge
	redisPing *Gauge

	writers []interface{ WritePrometheus(io.Writer) error }
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Current returns the process metrics, or nil when metrics are disabled. All methods are nil-safe.
func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	return envutil.Duration("METRICS_SCRAPE_INTERVAL_SECONDS", 10*time.Second)
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

// NewMetrics builds an unregistered metrics set; Init installs one as Current.
func NewMetrics() *Metrics {
	m := &Metrics{
		apiRequests: NewCounterVec("cs_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"cs_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		),
		apiInflight: NewGauge("cs_api_inflight_requests", "In-flight API requests."),
		llmRequests: NewCounterVec("cs_llm_requests_total", "LLM requests by model/endpoint/status.", []string{"model", "endpoint", "status"}),
		llmLatency: NewHistogramVec(
			"cs_llm_request_duration_seconds",
			"LLM request latency in seconds by model/endpoint/status.",
			[]string{"model", "endpoint", "status"},
			[]float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		),
		llmTokens:    NewCounterVec("cs_llm_tokens_total", "LLM tokens by model/direction.", []string{"model", "direction"}),
		chunkAppends: NewCounterVec("cs_transcript_chunk_appends_total", "Transcript chunk appends by kind/status.", []string{"kind", "status"}),
		evaluations:  NewCounterVec("cs_competency_evaluations_total", "Per-competency evaluation calls by competency/status.", []string{"competency", "status"}),
		evaluationLatency: NewHistogramVec(
			"cs_chunk_evaluation_duration_seconds",
			"Whole-chunk evaluation latency in seconds by status.",
			[]string{"status"},
			[]float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		),
		evaluationRows: NewCounterVec("cs_competency_evaluation_rows_total", "Evaluation rows persisted by status.", []string{"status"}),
		queueDepth:     NewGaugeVec("cs_worker_queue_depth", "Queued jobs by pool.", []string{"pool"}),
		queueRejected:  NewCounterVec("cs_worker_queue_rejected_total", "Jobs rejected because the queue was full.", []string{"pool"}),
		speakerGuesses: NewCounterVec("cs_speaker_identification_total", "Speaker identification results by confidence.", []string{"confidence"}),
		streamReconn:   NewCounterVec("cs_stream_reconnects_total", "Transcription stream reconnect outcomes.", []string{"outcome"}),
		pgStats:        NewGaugeVec("cs_postgres_pool", "Database pool stats by field.", []string{"field"}),
		redisUp:        NewGauge("cs_redis_up", "Redis reachability (1 up, 0 down)."),
		redisPing:      NewGauge("cs_redis_ping_seconds", "Redis ping latency in seconds."),
	}
	m.writers = []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.chunkAppends, m.evaluations, m.evaluationLatency, m.evaluationRows,
		m.queueDepth, m.queueRejected, m.speakerGuesses, m.streamReconn,
		m.pgStats, m.redisUp, m.redisPing,
	}
	return m
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, wr := range m.writers {
		if err := wr.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Add(1)
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Add(-1)
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.llmRequests.Inc(model, endpoint, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), model, endpoint, status)
	}
	if inputTokens > 0 {
		m.llmTokens.Add(float64(inputTokens), model, "input")
	}
	if outputTokens > 0 {
		m.llmTokens.Add(float64(outputTokens), model, "output")
	}
}

func (m *Metrics) IncChunkAppend(kind, status string) {
	if m == nil {
		return
	}
	m.chunkAppends.Inc(kind, status)
}

func (m *Metrics) IncCompetencyEvaluation(competency, status string) {
	if m == nil {
		return
	}
	m.evaluations.Inc(competency, status)
}

func (m *Metrics) ObserveChunkEvaluation(status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.evaluationLatency.Observe(dur.Seconds(), status)
}

func (m *Metrics) IncEvaluationRow(status string) {
	if m == nil {
		return
	}
	m.evaluationRows.Inc(status)
}

func (m *Metrics) SetQueueDepth(pool string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth), pool)
}

func (m *Metrics) IncQueueRejected(pool string) {
	if m == nil {
		return
	}
	m.queueRejected.Inc(pool)
}

func (m *Metrics) IncSpeakerGuess(confidence string) {
	if m == nil {
		return
	}
	m.speakerGuesses.Inc(confidence)
}

func (m *Metrics) IncStreamReconnect(outcome string) {
	if m == nil {
		return
	}
	m.streamReconn.Inc(outcome)
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		if log != nil {
			log.Warn("metrics: db handle unavailable", "error", err)
		}
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := sqlDB.Stats()
				m.pgStats.Set(float64(stats.OpenConnections), "open")
				m.pgStats.Set(float64(stats.InUse), "in_use")
				m.pgStats.Set(float64(stats.Idle), "idle")
				m.pgStats.Set(float64(stats.WaitCount), "wait_count")
				m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_seconds")
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}
