// Package observe 暴露 Prometheus 指标
package observe

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 指标定义
var (
	DispatchTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "framerelay_dispatch_total",
		Help: "查询分发总数",
	})
	DispatchFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "framerelay_dispatch_failed",
		Help: "查询分发失败数",
	})
	ExpressionBatches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "framerelay_expression_batches_total",
		Help: "走 transform 路径的批次数",
	})
	DispatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "framerelay_dispatch_duration_seconds",
		Help:    "后端调用耗时（按端点）",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
	HealthChecksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "framerelay_health_checks_total",
		Help: "健康检查调用总数",
	})
)

// Register 必须在 main 调用一次
func Register() {
	prometheus.MustRegister(DispatchTotal, DispatchFailed, ExpressionBatches, DispatchDuration, HealthChecksTotal)
}

// Handler 返回 HTTP 处理器
func Handler() http.Handler { return promhttp.Handler() }
