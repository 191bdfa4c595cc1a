package observability

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	types "github.com/andychuong/ai-study-companion-sub000/internal/domain"
	"github.com/andychuong/ai-study-companion-sub000/internal/domain/jobs"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec

	llmRequests  *prometheus.CounterVec
	llmLatency   *prometheus.HistogramVec
	llmFallbacks *prometheus.CounterVec

	vectorRequests *prometheus.CounterVec
	vectorLatency  *prometheus.HistogramVec

	stepTotal    *prometheus.CounterVec
	stepLatency  *prometheus.HistogramVec
	runsFinished *prometheus.CounterVec
	queueDepth   *prometheus.GaugeVec

	eventsEnqueued *prometheus.CounterVec
	nudgesCreated  prometheus.Counter
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Current returns the process metrics, or nil when Init has not run. Every
// method tolerates a nil receiver.
func Current() *Metrics {
	return instance
}

// Init builds the process metrics once. Disabled leaves Current nil.
func Init(log *logger.Logger, enabled bool) *Metrics {
	initOnce.Do(func() {
		if !enabled {
			if log != nil {
				log.Info("metrics disabled")
			}
			return
		}
		instance = newMetrics(prometheus.NewRegistry())
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

// NewForTest builds an isolated Metrics without touching the process instance.
func NewForTest() *Metrics {
	return newMetrics(prometheus.NewRegistry())
}

const namespace = "study_companion"

var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

func counter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
}

func histogram(name, help string, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: name, Help: help, Buckets: latencyBuckets}, labels)
}

func newMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry:       reg,
		apiRequests:    counter("api_requests_total", "Ingress requests by route, event and status.", "method", "route", "event", "status"),
		apiLatency:     histogram("api_request_duration_seconds", "HTTP request latency.", "method", "route"),
		llmRequests:    counter("llm_requests_total", "LLM gateway calls by model, operation and status.", "model", "operation", "status"),
		llmLatency:     histogram("llm_request_duration_seconds", "LLM gateway call latency.", "model", "operation"),
		llmFallbacks:   counter("llm_fallback_total", "Calls retried on the secondary model.", "operation", "outcome"),
		vectorRequests: counter("vector_requests_total", "Vector index calls by provider, operation and status.", "provider", "operation", "status"),
		vectorLatency:  histogram("vector_request_duration_seconds", "Vector index call latency.", "provider", "operation"),
		stepTotal:      counter("workflow_steps_total", "Step executions by pipeline, step and outcome.", "pipeline", "step", "outcome"),
		stepLatency:    histogram("workflow_step_duration_seconds", "Step execution latency.", "pipeline", "step"),
		runsFinished:   counter("workflow_runs_finished_total", "Workflow runs reaching a terminal status.", "pipeline", "status"),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "workflow_queue_depth", Help: "Workflow runs by status.",
		}, []string{"status"}),
		eventsEnqueued: counter("events_enqueued_total", "Domain events accepted, by name and whether a new run was created.", "event", "created"),
		nudgesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "engagement_nudges_total", Help: "Engagement nudge notifications created.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency,
		m.llmRequests, m.llmLatency, m.llmFallbacks,
		m.vectorRequests, m.vectorLatency,
		m.stepTotal, m.stepLatency, m.runsFinished, m.queueDepth,
		m.eventsEnqueued, m.nudgesCreated,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveAPI records one ingress request. event is empty outside the event
// ingress route.
func (m *Metrics) ObserveAPI(method, route, event, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.WithLabelValues(method, route, event, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) ObserveLLMRequest(model, operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(model, operation, status).Inc()
	m.llmLatency.WithLabelValues(model, operation).Observe(dur.Seconds())
}

func (m *Metrics) IncLLMFallback(operation, outcome string) {
	if m == nil {
		return
	}
	m.llmFallbacks.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveVectorRequest(provider, operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.vectorRequests.WithLabelValues(provider, operation, status).Inc()
	m.vectorLatency.WithLabelValues(provider, operation).Observe(dur.Seconds())
}

func (m *Metrics) ObserveStep(pipeline, step, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stepTotal.WithLabelValues(pipeline, step, outcome).Inc()
	m.stepLatency.WithLabelValues(pipeline, step).Observe(dur.Seconds())
}

func (m *Metrics) IncRunFinished(pipeline, status string) {
	if m == nil {
		return
	}
	m.runsFinished.WithLabelValues(pipeline, status).Inc()
}

func (m *Metrics) IncEventEnqueued(event string, created bool) {
	if m == nil {
		return
	}
	m.eventsEnqueued.WithLabelValues(event, strconv.FormatBool(created)).Inc()
}

func (m *Metrics) IncNudgeCreated() {
	if m == nil {
		return
	}
	m.nudgesCreated.Inc()
}

const queueSampleInterval = 15 * time.Second

// StartJobQueueCollector samples workflow_run counts by status until ctx ends.
func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(queueSampleInterval)
		defer ticker.Stop()
		for {
			m.sampleQueue(ctx, log, db)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (m *Metrics) sampleQueue(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := db.WithContext(ctx).Model(&types.WorkflowRun{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		if log != nil && ctx.Err() == nil {
			log.Warn("queue depth sample failed", "error", err)
		}
		return
	}
	for _, s := range []string{jobs.RunQueued, jobs.RunRunning, jobs.RunSucceeded, jobs.RunFailed} {
		m.queueDepth.WithLabelValues(s).Set(0)
	}
	for _, r := range rows {
		m.queueDepth.WithLabelValues(r.Status).Set(float64(r.N))
	}
}
