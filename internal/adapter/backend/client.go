// Package backend file: internal/adapter/backend/client.go
package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"FrameRelay/internal/core/port"

	"github.com/carlmjohnson/requests"
)

// 编译期断言，确保 Client 实现了 port.Transport 接口
var _ port.Transport = (*Client)(nil)

type inflightEntry struct {
	cancel context.CancelFunc
}

// Client 是面向后端查询服务的 HTTP 传输适配器。
// 取消语义在这一层实现：携带相同 requestID 的新请求会中止前一个在途请求，
// 调用方也可以通过 CancelRequest 按关联 ID 主动中止。
type Client struct {
	baseURL    string
	apiToken   string
	username   string
	password   string
	httpClient *http.Client

	mu       sync.Mutex
	inflight map[string]*inflightEntry
}

// New 创建后端传输客户端。apiToken 与 username/password 按需留空。
func New(baseURL, apiToken, username, password string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiToken:   apiToken,
		username:   username,
		password:   password,
		httpClient: http.DefaultClient,
		inflight:   make(map[string]*inflightEntry),
	}
}

// builder 构造带公共头与认证的请求构造器。
func (c *Client) builder(path string) *requests.Builder {
	rb := requests.
		URL(c.baseURL + path).
		Client(c.httpClient).
		Header("Accept", "application/json")
	if c.apiToken != "" {
		rb = rb.Bearer(c.apiToken)
	}
	if c.username != "" && c.password != "" {
		rb = rb.BasicAuth(c.username, c.password)
	}
	return rb
}

// capture 读取整个响应体并记录状态码，替代默认的 2xx 校验。
func capture(raw *port.RawResponse) func(*http.Response) error {
	return func(res *http.Response) error {
		raw.Status = res.StatusCode
		body, err := io.ReadAll(res.Body)
		if err != nil {
			return fmt.Errorf("读取后端响应体失败: %w", err)
		}
		raw.Body = body
		return nil
	}
}

// track 登记一个在途请求；相同 requestID 的前一个请求被立即中止。
// 返回的 done 必须在请求结束后调用。
func (c *Client) track(ctx context.Context, requestID string) (context.Context, func()) {
	if requestID == "" {
		return ctx, func() {}
	}
	reqCtx, cancel := context.WithCancel(ctx)
	entry := &inflightEntry{cancel: cancel}

	c.mu.Lock()
	if prev, ok := c.inflight[requestID]; ok {
		prev.cancel()
	}
	c.inflight[requestID] = entry
	c.mu.Unlock()

	return reqCtx, func() {
		c.mu.Lock()
		if c.inflight[requestID] == entry {
			delete(c.inflight, requestID)
		}
		c.mu.Unlock()
		cancel()
	}
}

// CancelRequest 中止携带指定关联 ID 的在途请求（若有）。
func (c *Client) CancelRequest(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.inflight[requestID]; ok {
		entry.cancel()
		delete(c.inflight, requestID)
	}
}

// DatasourceRequest 发出一次携带关联 ID 的 JSON 请求并返回原始响应。
// 非 2xx 状态转换为携带响应体的 BackendError；网络层失败的 Body 为空。
func (c *Client) DatasourceRequest(ctx context.Context, method, path string, body any, requestID string) (*port.RawResponse, error) {
	reqCtx, done := c.track(ctx, requestID)
	defer done()

	var raw port.RawResponse
	rb := c.builder(path).
		Method(method).
		Header("X-Request-Id", requestID).
		AddValidator(nil).
		Handle(capture(&raw))
	if body != nil {
		rb = rb.BodyJSON(body)
	}

	if err := rb.Fetch(reqCtx); err != nil {
		return nil, &port.BackendError{Err: err}
	}
	if raw.Status >= http.StatusBadRequest {
		return nil, &port.BackendError{
			Status: raw.Status,
			Body:   raw.Body,
			Err:    fmt.Errorf("后端返回 HTTP %d", raw.Status),
		}
	}
	return &raw, nil
}

// Get 对指定路径发起 GET，params 编码为查询参数。
func (c *Client) Get(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	var raw port.RawResponse
	rb := c.builder(path).
		AddValidator(nil).
		Handle(capture(&raw))
	for key, value := range params {
		rb = rb.Param(key, value)
	}

	if err := rb.Fetch(ctx); err != nil {
		return nil, &port.BackendError{Err: err}
	}
	if raw.Status >= http.StatusBadRequest {
		return nil, &port.BackendError{
			Status: raw.Status,
			Body:   raw.Body,
			Err:    fmt.Errorf("后端返回 HTTP %d", raw.Status),
		}
	}
	return raw.Body, nil
}

// Post 对指定路径发起 JSON POST。
func (c *Client) Post(ctx context.Context, path string, body any) ([]byte, error) {
	var raw port.RawResponse
	rb := c.builder(path).
		Method(http.MethodPost).
		AddValidator(nil).
		Handle(capture(&raw)).
		BodyJSON(body)

	if err := rb.Fetch(ctx); err != nil {
		return nil, &port.BackendError{Err: err}
	}
	if raw.Status >= http.StatusBadRequest {
		return nil, &port.BackendError{
			Status: raw.Status,
			Body:   raw.Body,
			Err:    fmt.Errorf("后端返回 HTTP %d", raw.Status),
		}
	}
	return raw.Body, nil
}
