// file: internal/transport/http/router/router_test.go

package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"FrameRelay/internal/audit"
	"FrameRelay/internal/core/port"
	"FrameRelay/internal/dispatch"
	"FrameRelay/internal/frames"
	"FrameRelay/internal/registry"
	"FrameRelay/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport 用固定响应替代真实后端
type fakeTransport struct {
	calls        []string
	responseBody []byte
	err          error
}

func (f *fakeTransport) DatasourceRequest(_ context.Context, _, path string, _ any, _ string) (*port.RawResponse, error) {
	f.calls = append(f.calls, path)
	if f.err != nil {
		return nil, f.err
	}
	return &port.RawResponse{Status: 200, Body: f.responseBody}, nil
}

func (f *fakeTransport) Get(_ context.Context, path string, _ map[string]string) ([]byte, error) {
	f.calls = append(f.calls, path)
	if f.err != nil {
		return nil, f.err
	}
	return f.responseBody, nil
}

func (f *fakeTransport) Post(_ context.Context, path string, _ any) ([]byte, error) {
	f.calls = append(f.calls, path)
	if f.err != nil {
		return nil, f.err
	}
	return f.responseBody, nil
}

type testEnv struct {
	router    http.Handler
	transport *fakeTransport
	auth      *service.Authenticator
	audit     *audit.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	registryPath := filepath.Join(dir, "datasources.yaml")
	require.NoError(t, os.WriteFile(registryPath, []byte(`
default: prom-main
datasources:
  - name: prom-main
    id: 1
  - name: loki-aux
    id: 7
`), 0o644))

	reg := registry.New(registryPath)
	require.NoError(t, reg.Load())

	auditStore, err := audit.Open(filepath.Join(dir, "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = auditStore.Close() })

	transport := &fakeTransport{responseBody: []byte(`{"results":{}}`)}
	factory := dispatch.NewFactory(reg, transport, frames.NewDefault(), nil)
	auth := service.NewAuthenticator()

	return &testEnv{
		router:    New(Dependencies{Registry: reg, Factory: factory, Audit: auditStore, Auth: auth}),
		transport: transport,
		auth:      auth,
		audit:     auditStore,
	}
}

func (e *testEnv) do(t *testing.T, method, path, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		token, err := e.auth.Sign("tester", role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestRouter_AuthRequired(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/ds/query", "", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_Healthz(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_Query(t *testing.T) {
	t.Run("完整查询链路", func(t *testing.T) {
		env := newTestEnv(t)
		env.transport.responseBody = []byte(`{
			"results": {"A": {"status": 200, "frames": [{
				"schema": {"refId": "A", "fields": [{"name": "value", "type": "number"}]},
				"data": {"values": [[42]]}
			}]}}
		}`)

		w := env.do(t, http.MethodPost, "/api/v1/ds/query", "user", map[string]any{
			"requestId": "req-router-1",
			"targets": []map[string]any{
				{"refId": "A", "datasource": "loki-aux", "model": map[string]any{"expr": "up"}},
			},
			"range": map[string]int64{"from": 1000, "to": 2000},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp struct {
			Data []struct {
				RefID string `json:"refId"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 1)
		assert.Equal(t, "A", resp.Data[0].RefID)
		require.Len(t, env.transport.calls, 1)
		assert.Equal(t, "/api/ds/query", env.transport.calls[0])

		// 查询应留下审计记录
		records, err := env.audit.Recent(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "req-router-1", records[0].RequestID)
		assert.Equal(t, "/api/ds/query", records[0].Endpoint)
		assert.Equal(t, 1, records[0].TargetCount)
	})

	t.Run("含表达式目标的批次记录 transform 端点", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(t, http.MethodPost, "/api/v1/ds/query", "user", map[string]any{
			"targets": []map[string]any{
				{"refId": "A", "datasource": "prom-main"},
				{"refId": "B", "datasource": "__expr__"},
			},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "/api/ds/transform", env.transport.calls[0])

		records, err := env.audit.Recent(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "/api/ds/transform", records[0].Endpoint)
		assert.Equal(t, 1, records[0].ExpressionCount)
		// requestId 留空时服务端生成
		assert.NotEmpty(t, records[0].RequestID)
	})

	t.Run("未知数据源目标返回 400", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(t, http.MethodPost, "/api/v1/ds/query", "user", map[string]any{
			"targets": []map[string]any{{"refId": "A", "datasource": "ghost"}},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, env.transport.calls, "解析失败不应触达后端")
	})

	t.Run("未配置的宿主数据源返回 404", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(t, http.MethodPost, "/api/v1/ds/query", "user", map[string]any{
			"datasource": "ghost",
			"targets":    []map[string]any{},
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("后端失败返回 502", func(t *testing.T) {
		env := newTestEnv(t)
		env.transport.err = &port.BackendError{Status: 500, Err: assert.AnError}
		w := env.do(t, http.MethodPost, "/api/v1/ds/query", "user", map[string]any{
			"targets": []map[string]any{{"refId": "A"}},
		})
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestRouter_Datasources(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/datasources", "user", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data    []string `json:"data"`
		Default string   `json:"default"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"loki-aux", "prom-main"}, resp.Data)
	assert.Equal(t, "prom-main", resp.Default)
}

func TestRouter_HealthAndTest(t *testing.T) {
	env := newTestEnv(t)
	env.transport.responseBody = []byte(`{"status":"OK","message":"Data source is working"}`)

	w := env.do(t, http.MethodGet, "/api/v1/datasources/loki-aux/health", "user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"OK"`)
	assert.Equal(t, "/api/datasources/7/health", env.transport.calls[0])

	w = env.do(t, http.MethodPost, "/api/v1/datasources/loki-aux/test", "user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success"`)
}

func TestRouter_Resources(t *testing.T) {
	env := newTestEnv(t)
	env.transport.responseBody = []byte(`{"labels":["job"]}`)

	w := env.do(t, http.MethodGet, "/api/v1/datasources/prom-main/resources/labels?match=up", "user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/api/datasources/1/resources/labels", env.transport.calls[0])

	w = env.do(t, http.MethodPost, "/api/v1/datasources/prom-main/resources/admin/reload", "user",
		map[string]any{"force": true})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_AdminHistory(t *testing.T) {
	env := newTestEnv(t)

	t.Run("普通角色被拒绝", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/admin/history", "user", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("管理员可读历史", func(t *testing.T) {
		require.NoError(t, env.audit.Append(context.Background(), audit.Record{
			RequestID:  "req-h",
			Datasource: "prom-main",
			Endpoint:   "/api/ds/query",
		}))
		w := env.do(t, http.MethodGet, "/api/v1/admin/history", "admin", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "req-h")
	})
}
