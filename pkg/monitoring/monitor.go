package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// 游戏化指标

	BadgesAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_badges_awarded_total",
			Help: "Badges newly awarded by the evaluator",
		},
		[]string{"badge"},
	)

	XPAccrued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_xp_accrued_total",
			Help: "Sum of positive XP deltas appended to the ledger",
		},
		[]string{"source"},
	)

	EngagementPings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_engagement_pings_total",
			Help: "Heartbeat pings by outcome (new, duplicate)",
		},
		[]string{"result"},
	)

	ActivityEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_activity_events_total",
			Help: "Domain events accepted by the ingestor",
		},
		[]string{"kind"},
	)

	WeeklyAssignments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gamification_weekly_assignments_created_total",
			Help: "Weekly task assignments created",
		},
	)

	EvaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gamification_evaluation_duration_seconds",
			Help:    "Duration of badge / weekly task evaluation passes",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"evaluator"},
	)
)

var initOnce sync.Once

// Init 注册全部指标，可重复调用
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			BadgesAwarded,
			XPAccrued,
			EngagementPings,
			ActivityEvents,
			WeeklyAssignments,
			EvaluationDuration,
		)
	})
}

// ObserveEvaluation 记录一次评估耗时
func ObserveEvaluation(evaluator string, start time.Time) {
	EvaluationDuration.WithLabelValues(evaluator).Observe(time.Since(start).Seconds())
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
