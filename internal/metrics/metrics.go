package metrics

import (
	"errors"
	"time"

	"mention-bot/internal/mention"
	"mention-bot/internal/roster"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mention_bot"

// Metrics 机器人的 Prometheus 指标，nil 接收者上的方法都是空操作
type Metrics struct {
	mentions       prometheus.Counter
	noise          prometheus.Counter
	rosterFetches  *prometheus.CounterVec
	lookups        *prometheus.CounterVec
	generations    *prometheus.CounterVec
	generationTime *prometheus.HistogramVec
	replies        *prometheus.CounterVec
}

// MustNewMetrics 创建并注册指标，reg 为 nil 时使用默认注册表
// 同名指标已注册时复用已有的，其他注册错误直接 panic
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		mentions: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rewrite", Name: "mentions_total",
			Help: "Mention segments produced from well-formed tags.",
		})),
		noise: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rewrite", Name: "noise_total",
			Help: "Malformed tag fragments removed from model output.",
		})),
		rosterFetches: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "roster", Name: "fetch_total",
			Help: "Group roster fetches by result.",
		}, []string{"result"})),
		lookups: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "roster", Name: "lookup_total",
			Help: "Member searches requested by the model, by outcome.",
		}, []string{"outcome"})),
		generations: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "llm", Name: "generation_total",
			Help: "Model generations by stage and status.",
		}, []string{"stage", "status"})),
		generationTime: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "llm", Name: "request_duration_seconds",
			Help:    "End-to-end generation time per request, by mention mode.",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"})),
		replies: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reply", Name: "total",
			Help: "Replies by delivery status.",
		}, []string{"status"})),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveRosterFetch 实现 roster.Observer
func (m *Metrics) ObserveRosterFetch(result string) {
	if m == nil {
		return
	}
	m.rosterFetches.WithLabelValues(result).Inc()
}

// ObserveRewrite 记录一次改写的艾特数和噪声数
func (m *Metrics) ObserveRewrite(stats mention.Stats) {
	if m == nil {
		return
	}
	m.mentions.Add(float64(stats.Mentions))
	m.noise.Add(float64(stats.Noise))
}

// ObserveLookup 记录一次成员查询的结果
func (m *Metrics) ObserveLookup(r *roster.Result) {
	if m == nil || r == nil {
		return
	}
	m.lookups.WithLabelValues(LookupOutcome(r)).Inc()
}

// LookupOutcome found / not_found / 失败原因
func LookupOutcome(r *roster.Result) string {
	switch {
	case !r.Success:
		return string(r.Code)
	case r.Count == 0:
		return "not_found"
	}
	return "found"
}

// ObserveGeneration 记录一次模型调用
func (m *Metrics) ObserveGeneration(stage string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.generations.WithLabelValues(stage, status).Inc()
}

// ObserveRequestDuration 记录一次请求的生成耗时
func (m *Metrics) ObserveRequestDuration(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.generationTime.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveReply 记录回复结果：sent / send_failed / empty / generation_failed
func (m *Metrics) ObserveReply(status string) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(status).Inc()
}

var _ roster.Observer = (*Metrics)(nil)
