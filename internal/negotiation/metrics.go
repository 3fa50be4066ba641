package negotiation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 协商引擎指标，nil 时所有方法为空操作
type Metrics struct {
	generations      *prometheus.CounterVec
	recommendations  prometheus.Histogram
	matchDuration    prometheus.Histogram
	decisions        *prometheus.CounterVec
	resolutions      *prometheus.CounterVec
	dependencyErrors *prometheus.CounterVec
	lockWait         prometheus.Histogram
}

// NewMetrics 在 reg 上注册协商指标
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		generations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "negotiation",
			Name:      "generations_total",
			Help:      "Total number of recommendation generations by result.",
		}, []string{"result"}),
		recommendations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "negotiation",
			Name:      "recommendations_per_generation",
			Help:      "Number of recommendations produced by one generation.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
		matchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "negotiation",
			Name:      "match_duration_seconds",
			Help:      "Latency distribution for the matcher.",
			Buckets: []float64{
				0.001, 0.005, 0.01,
				0.05, 0.1, 0.25,
				0.5, 1, 2.5, 5,
			},
		}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "negotiation",
			Name:      "decisions_total",
			Help:      "Total number of accept/reject decisions by role.",
		}, []string{"role", "decision"}),
		resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "negotiation",
			Name:      "resolutions_total",
			Help:      "Total number of negotiation outcomes after a mutation.",
		}, []string{"outcome"}),
		dependencyErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "negotiation",
			Name:      "dependency_errors_total",
			Help:      "Total number of failed or timed out dependency reads.",
		}, []string{"dependency"}),
		lockWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "negotiation",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the per-request lock.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observeGeneration(n int, d time.Duration) {
	if m == nil {
		return
	}
	result := "matched"
	if n == 0 {
		result = string(OutcomeNoEligibleMatch)
	}
	m.generations.WithLabelValues(result).Inc()
	m.recommendations.Observe(float64(n))
	m.matchDuration.Observe(d.Seconds())
}

func (m *Metrics) observeDependencyError(dep string) {
	if m == nil {
		return
	}
	m.dependencyErrors.WithLabelValues(dep).Inc()
}

// ObserveDecision 记录一次接受/拒绝
func (m *Metrics) ObserveDecision(r Role, d Decision) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(r), string(d)).Inc()
}

// ObserveResolution 记录一次结果评估
func (m *Metrics) ObserveResolution(o Outcome) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(string(o)).Inc()
}

// ObserveLockWait 记录等锁耗时
func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}
