// Package port file: internal/core/port/transport.go
package port

import (
	"context"
	"errors"
	"fmt"
)

// 标准错误
var (
	// ErrUnknownDatasource 表示目标解析阶段在注册表中找不到指定名称。
	// 该错误在发起任何网络调用之前同步产生，并使整个批次失败。
	ErrUnknownDatasource = errors.New("指定的数据源未在注册表中找到")

	// ErrDatasourceNotConfigured 表示网关侧按名称查找宿主数据源失败。
	ErrDatasourceNotConfigured = errors.New("数据源尚未配置")
)

// RawResponse 是传输层返回的原始响应。
type RawResponse struct {
	Status int
	Body   []byte
}

// BackendError 携带一次失败的后端调用的结构化信息。
// Body 是后端附加在失败上的原始载荷（可能为空）。
// Handled 表示该失败已在下游被转化为正常返回值，上游不应再向用户重复展示。
type BackendError struct {
	Status  int
	Body    []byte
	Handled bool
	Err     error
}

func (e *BackendError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("后端调用失败 (HTTP %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("后端调用失败: %v", e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Transport 是注入的 HTTP 传输对象，负责真正的网络调用。
// 本核心不做重试与超时；取消语义完全委托给传输层：
// 调用方使用相同的 requestID 再次发起调用时，传输层负责中止前一个在途请求。
type Transport interface {
	// DatasourceRequest 发出一次携带关联 ID 的请求，返回原始响应体或传输失败。
	DatasourceRequest(ctx context.Context, method, path string, body any, requestID string) (*RawResponse, error)

	// Get 对指定路径发起 GET，params 编码为查询参数。
	Get(ctx context.Context, path string, params map[string]string) ([]byte, error)

	// Post 对指定路径发起 POST，body 序列化为 JSON。
	Post(ctx context.Context, path string, body any) ([]byte, error)
}
