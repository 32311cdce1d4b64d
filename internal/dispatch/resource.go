// Package dispatch file: internal/dispatch/resource.go
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"FrameRelay/internal/core/domain"
	"FrameRelay/internal/core/port"
	"FrameRelay/internal/observe"
)

// resourceURL 拼出宿主数据源资源命名空间下的完整路径。
func (d *Dispatcher) resourceURL(path string) string {
	return fmt.Sprintf("/api/datasources/%d/resources/%s", d.id, strings.TrimPrefix(path, "/"))
}

func (d *Dispatcher) healthURL() string {
	return fmt.Sprintf("/api/datasources/%d/health", d.id)
}

// resourceCacheKey 把路径与参数规整为确定的缓存键。
func resourceCacheKey(path string, params map[string]string) string {
	if len(params) == 0 {
		return path
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(path)
	for _, k := range keys {
		sb.WriteByte('&')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(params[k])
	}
	return sb.String()
}

// GetResource 对数据源资源命名空间发起 GET，返回解码后的 JSON 对象。
// 传输失败原样向上传播；成功结果进入短 TTL 缓存以吸收前端的高频资源调用。
func (d *Dispatcher) GetResource(ctx context.Context, path string, params map[string]string) (map[string]any, error) {
	key := resourceCacheKey(path, params)
	if cached, ok := d.resourceCache.Get(key); ok {
		return cached, nil
	}

	body, err := d.transport.Get(ctx, d.resourceURL(path), params)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("解码资源响应 '%s' 失败: %w", path, err)
	}
	d.resourceCache.Add(key, result)
	return result, nil
}

// PostResource 对数据源资源命名空间发起 POST。body 为 nil 时默认为空对象。
func (d *Dispatcher) PostResource(ctx context.Context, path string, body any) (map[string]any, error) {
	if body == nil {
		body = map[string]any{}
	}

	raw, err := d.transport.Post(ctx, d.resourceURL(path), body)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("解码资源响应 '%s' 失败: %w", path, err)
	}
	return result, nil
}

// CallHealthCheck 调用宿主数据源的健康检查端点。
// 携带结构化响应体的传输失败会被降级为一个正常的 HealthCheckResult 值，
// 并把失败标记为"已处理"，避免上游再弹一次通用错误提示；
// 没有附加响应体的失败原样向上传播。
func (d *Dispatcher) CallHealthCheck(ctx context.Context) (*domain.HealthCheckResult, error) {
	observe.HealthChecksTotal.Inc()
	body, err := d.transport.Get(ctx, d.healthURL(), nil)
	if err != nil {
		var backendErr *port.BackendError
		if errors.As(err, &backendErr) && len(backendErr.Body) > 0 {
			var result domain.HealthCheckResult
			if jsonErr := json.Unmarshal(backendErr.Body, &result); jsonErr == nil && result.Status != "" {
				backendErr.Handled = true
				return &result, nil
			}
		}
		return nil, err
	}

	var result domain.HealthCheckResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("解码健康检查响应失败: %w", err)
	}
	if result.Status == "" {
		result.Status = domain.HealthStatusUnknown
	}
	return &result, nil
}

// TestDatasource 是数据源配置界面消费的连通性测试契约:
// {status: OK} 映射为 success，其余一律 fail。
func (d *Dispatcher) TestDatasource(ctx context.Context) (*domain.TestResult, error) {
	result, err := d.CallHealthCheck(ctx)
	if err != nil {
		return nil, err
	}

	if result.Status == domain.HealthStatusOK {
		return &domain.TestResult{Status: domain.TestStatusSuccess, Message: result.Message}, nil
	}
	return &domain.TestResult{Status: domain.TestStatusFail, Message: result.Message}, nil
}
