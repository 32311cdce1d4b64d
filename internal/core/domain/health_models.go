// Package domain file: internal/core/domain/health_models.go
package domain

// HealthStatus 是健康检查的三态结果。
type HealthStatus string

const (
	HealthStatusUnknown HealthStatus = "UNKNOWN"
	HealthStatusOK      HealthStatus = "OK"
	HealthStatusError   HealthStatus = "ERROR"
)

// HealthCheckResult 是一次健康检查的瞬时结果，每次调用返回，从不缓存。
type HealthCheckResult struct {
	Status  HealthStatus   `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// TestResult 是数据源连通性测试对外的固定形状，
// 供数据源配置界面消费，永远是一个完好的 {status, message} 值。
type TestResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// TestResult 的 Status 取值。
const (
	TestStatusSuccess = "success"
	TestStatusFail    = "fail"
)
