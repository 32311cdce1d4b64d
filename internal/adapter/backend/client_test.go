// file: internal/adapter/backend/client_test.go

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"FrameRelay/internal/core/port"
)

func TestClient_DatasourceRequest(t *testing.T) {
	t.Run("请求头与请求体", func(t *testing.T) {
		var gotAuth, gotRequestID, gotAccept string
		var gotBody map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotRequestID = r.Header.Get("X-Request-Id")
			gotAccept = r.Header.Get("Accept")
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"results":{}}`))
		}))
		defer server.Close()

		client := New(server.URL, "secret-token", "", "")
		raw, err := client.DatasourceRequest(context.Background(), http.MethodPost, "/api/ds/query",
			map[string]any{"queries": []any{}}, "corr-1")
		if err != nil {
			t.Fatalf("DatasourceRequest 不应报错: %v", err)
		}
		if raw.Status != http.StatusOK {
			t.Errorf("状态码异常: %d", raw.Status)
		}
		if gotAuth != "Bearer secret-token" {
			t.Errorf("Bearer 认证头异常: %q", gotAuth)
		}
		if gotRequestID != "corr-1" {
			t.Errorf("关联 ID 头异常: %q", gotRequestID)
		}
		if gotAccept != "application/json" {
			t.Errorf("Accept 头异常: %q", gotAccept)
		}
		if _, ok := gotBody["queries"]; !ok {
			t.Errorf("请求体异常: %v", gotBody)
		}
	})

	t.Run("非 2xx 状态转换为携带响应体的 BackendError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"status":"ERROR","message":"bad query"}`))
		}))
		defer server.Close()

		client := New(server.URL, "", "", "")
		_, err := client.DatasourceRequest(context.Background(), http.MethodPost, "/api/ds/query", nil, "")
		var backendErr *port.BackendError
		if !errors.As(err, &backendErr) {
			t.Fatalf("应返回 BackendError: %v", err)
		}
		if backendErr.Status != http.StatusBadRequest {
			t.Errorf("状态码异常: %d", backendErr.Status)
		}
		if string(backendErr.Body) != `{"status":"ERROR","message":"bad query"}` {
			t.Errorf("失败响应体未保留: %q", backendErr.Body)
		}
	})

	t.Run("网络失败的 BackendError 无响应体", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		server.Close() // 直接关闭，制造连接失败

		client := New(server.URL, "", "", "")
		_, err := client.DatasourceRequest(context.Background(), http.MethodPost, "/api/ds/query", nil, "")
		var backendErr *port.BackendError
		if !errors.As(err, &backendErr) {
			t.Fatalf("应返回 BackendError: %v", err)
		}
		if backendErr.Status != 0 || len(backendErr.Body) != 0 {
			t.Errorf("网络失败不应携带状态码与响应体: %+v", backendErr)
		}
	})

	t.Run("相同关联 ID 的新请求中止前一个在途请求", func(t *testing.T) {
		release := make(chan struct{})
		firstArrived := make(chan struct{})
		var once sync.Once
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			first := false
			once.Do(func() { first = true })
			if first {
				close(firstArrived)
				select {
				case <-release:
				case <-r.Context().Done():
					return
				}
			}
			_, _ = w.Write([]byte(`{"results":{}}`))
		}))
		defer server.Close()
		defer close(release)

		client := New(server.URL, "", "", "")

		firstErr := make(chan error, 1)
		go func() {
			_, err := client.DatasourceRequest(context.Background(), http.MethodPost, "/api/ds/query", nil, "dup-id")
			firstErr <- err
		}()
		<-firstArrived

		if _, err := client.DatasourceRequest(context.Background(), http.MethodPost, "/api/ds/query", nil, "dup-id"); err != nil {
			t.Fatalf("第二个请求不应报错: %v", err)
		}

		select {
		case err := <-firstErr:
			if err == nil {
				t.Error("被顶替的首个请求应以取消错误结束")
			}
		case <-time.After(3 * time.Second):
			t.Fatal("首个请求未被中止")
		}
	})
}

func TestClient_Get(t *testing.T) {
	t.Run("查询参数编码", func(t *testing.T) {
		var gotQuery string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query().Get("match")
			_, _ = w.Write([]byte(`{"labels":[]}`))
		}))
		defer server.Close()

		client := New(server.URL, "", "", "")
		body, err := client.Get(context.Background(), "/api/datasources/1/resources/labels",
			map[string]string{"match": "up"})
		if err != nil {
			t.Fatalf("Get 不应报错: %v", err)
		}
		if gotQuery != "up" {
			t.Errorf("查询参数未编码: %q", gotQuery)
		}
		if string(body) != `{"labels":[]}` {
			t.Errorf("响应体异常: %q", body)
		}
	})

	t.Run("基本认证", func(t *testing.T) {
		var user, pass string
		var ok bool
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok = r.BasicAuth()
			_, _ = w.Write([]byte(`{}`))
		}))
		defer server.Close()

		client := New(server.URL, "", "relay", "hunter2")
		if _, err := client.Get(context.Background(), "/", nil); err != nil {
			t.Fatalf("Get 不应报错: %v", err)
		}
		if !ok || user != "relay" || pass != "hunter2" {
			t.Errorf("基本认证异常: %s/%s ok=%v", user, pass, ok)
		}
	})
}

func TestClient_Post(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("方法异常: %s", r.Method)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["force"] != true {
			t.Errorf("请求体异常: %v", body)
		}
		_, _ = w.Write([]byte(`{"accepted":true}`))
	}))
	defer server.Close()

	client := New(server.URL, "", "", "")
	body, err := client.Post(context.Background(), "/api/datasources/1/resources/reload",
		map[string]any{"force": true})
	if err != nil {
		t.Fatalf("Post 不应报错: %v", err)
	}
	if string(body) != `{"accepted":true}` {
		t.Errorf("响应体异常: %q", body)
	}
}

func TestClient_CancelRequest(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	client := New(server.URL, "", "", "")

	errCh := make(chan error, 1)
	go func() {
		_, err := client.DatasourceRequest(context.Background(), http.MethodPost, "/api/ds/query", nil, "to-cancel")
		errCh <- err
	}()
	<-started

	client.CancelRequest("to-cancel")

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("被主动中止的请求应以错误结束")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("CancelRequest 未中止在途请求")
	}
}
