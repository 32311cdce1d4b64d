// file: internal/transport/http/router/router.go
package router

import (
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"FrameRelay/internal/audit"
	"FrameRelay/internal/core/domain"
	"FrameRelay/internal/dispatch"
	"FrameRelay/internal/observe"
	"FrameRelay/internal/registry"
	"FrameRelay/internal/service"
	"FrameRelay/internal/transport/http/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Dependencies 结构体用于将所有依赖项注入到路由器中
type Dependencies struct {
	Registry *registry.Registry
	Factory  *dispatch.Factory
	Audit    *audit.Store
	Auth     *service.Authenticator
	Limiter  *middleware.IPRateLimiter
}

// New 创建并配置一个全新的、基于 Gin 的 HTTP 路由器
func New(deps Dependencies) http.Handler {
	router := gin.Default()

	// --- 配置全局中间件 ---
	router.Use(gzip.Gzip(gzip.DefaultCompression))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if deps.Limiter != nil {
		router.Use(deps.Limiter.Middleware())
	}

	router.GET("/metrics", gin.WrapH(observe.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(deps.Auth), middleware.ErrorHandlingMiddleware())
	{
		// --- 数据平面 (Data Plane) ---
		v1.POST("/ds/query", queryHandler(deps.Factory, deps.Audit))

		// --- 元数据/连通性平面 ---
		dsGroup := v1.Group("/datasources")
		{
			dsGroup.GET("", listDatasourcesHandler(deps.Registry))
			dsGroup.GET("/:name/health", healthHandler(deps.Factory))
			dsGroup.POST("/:name/test", testHandler(deps.Factory))
			dsGroup.GET("/:name/resources/*path", getResourceHandler(deps.Factory))
			dsGroup.POST("/:name/resources/*path", postResourceHandler(deps.Factory))
		}

		// --- 控制平面 (Control Plane) ---
		adminGroup := v1.Group("/admin")
		adminGroup.Use(middleware.RequireAdmin())
		{
			adminGroup.GET("/history", historyHandler(deps.Audit))
		}
	}

	return router
}

// =============================================================================
//  请求/响应形状
// =============================================================================

// rangeV1 是前端提交的时间范围，毫秒时间戳。
type rangeV1 struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// queryRequestV1 是前端批量查询的入站形状。
// Datasource 指定宿主数据源，留空时使用注册表默认值。
type queryRequestV1 struct {
	Datasource    string               `json:"datasource"`
	RequestID     string               `json:"requestId"`
	Targets       []domain.QueryTarget `json:"targets"`
	IntervalMs    int64                `json:"intervalMs"`
	MaxDataPoints int64                `json:"maxDataPoints"`
	Range         *rangeV1             `json:"range"`
}

// =============================================================================
//  处理器 (Handlers)
// =============================================================================

// listDatasourcesHandler 返回所有已注册的数据源名称
func listDatasourcesHandler(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		names := reg.Names()
		sort.Strings(names)
		c.JSON(http.StatusOK, gin.H{"data": names, "default": reg.DefaultDatasourceName()})
	}
}

// queryHandler 驱动分发器执行一次批量查询，并写入审计记录。
func queryHandler(factory *dispatch.Factory, auditStore *audit.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body queryRequestV1
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "请求体解析失败: " + err.Error()})
			return
		}

		dispatcher, err := factory.ForDatasource(body.Datasource)
		if err != nil {
			_ = c.Error(err)
			return
		}

		req := domain.QueryRequest{
			RequestID:     body.RequestID,
			Targets:       body.Targets,
			IntervalMs:    body.IntervalMs,
			MaxDataPoints: body.MaxDataPoints,
		}
		if req.RequestID == "" {
			req.RequestID = uuid.New().String()
		}
		if body.Range != nil {
			req.Range = &domain.TimeRange{
				From: time.UnixMilli(body.Range.From),
				To:   time.UnixMilli(body.Range.To),
			}
		}

		start := time.Now()
		response, err := dispatcher.Query(c.Request.Context(), req)

		if auditStore != nil {
			rec := audit.Record{
				RequestID:   req.RequestID,
				Datasource:  dispatcher.Name(),
				Endpoint:    "/api/ds/query",
				TargetCount: len(req.Targets),
				DurationMs:  time.Since(start).Milliseconds(),
			}
			for _, target := range req.Targets {
				if target.Datasource == domain.ExprDatasourceName {
					rec.ExpressionCount++
				}
			}
			if rec.ExpressionCount > 0 {
				rec.Endpoint = "/api/ds/transform"
			}
			if err != nil {
				rec.Error = err.Error()
			}
			if auditErr := auditStore.Append(c.Request.Context(), rec); auditErr != nil {
				// 审计失败不影响查询结果
				slog.Warn("写入分发审计记录失败", "request_id", rec.RequestID, "error", auditErr)
			}
		}

		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, response)
	}
}

// healthHandler 返回指定数据源的健康检查结果
func healthHandler(factory *dispatch.Factory) gin.HandlerFunc {
	return func(c *gin.Context) {
		dispatcher, err := factory.ForDatasource(c.Param("name"))
		if err != nil {
			_ = c.Error(err)
			return
		}
		result, err := dispatcher.CallHealthCheck(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// testHandler 是数据源配置界面消费的连通性测试入口
func testHandler(factory *dispatch.Factory) gin.HandlerFunc {
	return func(c *gin.Context) {
		dispatcher, err := factory.ForDatasource(c.Param("name"))
		if err != nil {
			_ = c.Error(err)
			return
		}
		result, err := dispatcher.TestDatasource(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// getResourceHandler 透传数据源资源命名空间下的 GET 调用
func getResourceHandler(factory *dispatch.Factory) gin.HandlerFunc {
	return func(c *gin.Context) {
		dispatcher, err := factory.ForDatasource(c.Param("name"))
		if err != nil {
			_ = c.Error(err)
			return
		}

		params := make(map[string]string)
		for key, values := range c.Request.URL.Query() {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}

		result, err := dispatcher.GetResource(c.Request.Context(), c.Param("path"), params)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// postResourceHandler 透传数据源资源命名空间下的 POST 调用
func postResourceHandler(factory *dispatch.Factory) gin.HandlerFunc {
	return func(c *gin.Context) {
		dispatcher, err := factory.ForDatasource(c.Param("name"))
		if err != nil {
			_ = c.Error(err)
			return
		}

		var payload any
		if c.Request.ContentLength > 0 {
			var body map[string]any
			if err := c.ShouldBindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "请求体解析失败: " + err.Error()})
				return
			}
			payload = body
		}

		result, err := dispatcher.PostResource(c.Request.Context(), c.Param("path"), payload)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// historyHandler 返回最近的分发审计记录
func historyHandler(auditStore *audit.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		records, err := auditStore.Recent(c.Request.Context(), limit)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": records})
	}
}
