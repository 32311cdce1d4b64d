// file: cmd/gateway/main.go

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FrameRelay/internal/adapter/backend"
	"FrameRelay/internal/audit"
	"FrameRelay/internal/dispatch"
	"FrameRelay/internal/frames"
	"FrameRelay/internal/observe"
	"FrameRelay/internal/registry"
	"FrameRelay/internal/service"
	"FrameRelay/internal/transport/http/middleware"
	"FrameRelay/internal/transport/http/router"

	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

const version = "v0.3.0"

type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	PprofAddr string `mapstructure:"pprof_addr"`
}

type BackendConfig struct {
	URL      string `mapstructure:"url"`
	APIToken string `mapstructure:"api_token"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

type AuditConfig struct {
	Path string `mapstructure:"path"`
}

type RateLimitConfig struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Audit     AuditConfig     `mapstructure:"audit"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

func main() {
	// 在日志系统完全初始化前，使用标准 log
	log.Printf("FrameRelay %s 正在启动...", version)

	configFilePath := os.Getenv("FRAMERELAY_CONFIG")
	if configFilePath == "" {
		configFilePath = "configs/config.yaml"
	}
	viper.SetConfigFile(configFilePath)

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("CRITICAL: 读取配置文件 '%s' 失败: %v", configFilePath, err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("CRITICAL: 解析配置到结构体失败: %v", err)
	}
	if config.Server.Port == 0 {
		config.Server.Port = 10424
	}
	if config.Backend.URL == "" {
		log.Fatal("CRITICAL: 配置缺少 backend.url")
	}
	if config.RateLimit.PerSecond <= 0 {
		config.RateLimit.PerSecond = 10
	}
	if config.RateLimit.Burst <= 0 {
		config.RateLimit.Burst = 30
	}

	observe.InitLogger(config.Server.LogLevel)
	slog.Info("FrameRelay starting up", "version", version)
	slog.Info("配置加载并解析成功", "path", configFilePath)

	// 数据源注册表: 加载 + 热重载
	reg := registry.New(config.Registry.Path)
	if err := reg.Load(); err != nil {
		slog.Error("加载数据源注册表失败", "error", err)
		os.Exit(1)
	}
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if err := reg.StartWatcher(watchCtx); err != nil {
		slog.Warn("注册表热重载不可用", "error", err)
	}

	// 后端传输与分发器工厂
	transport := backend.New(config.Backend.URL, config.Backend.APIToken, config.Backend.Username, config.Backend.Password)
	decoder := frames.NewDefault()
	factory := dispatch.NewFactory(reg, transport, decoder, nil)
	slog.Info("服务层: 分发器工厂初始化完成", "backend", config.Backend.URL)

	// 审计存储
	auditPath := config.Audit.Path
	if auditPath == "" {
		auditPath = "instance/audit.db"
	}
	auditStore, err := audit.Open(auditPath)
	if err != nil {
		slog.Error("初始化审计数据库失败", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := auditStore.Close(); err != nil {
			slog.Error("关闭审计数据库时发生错误", "error", err)
		}
	}()
	slog.Info("服务层: 审计存储初始化完成", "path", auditPath)

	limiter := middleware.NewIPRateLimiter(rate.Limit(config.RateLimit.PerSecond), config.RateLimit.Burst)

	httpRouter := router.New(router.Dependencies{
		Registry: reg,
		Factory:  factory,
		Audit:    auditStore,
		Auth:     service.NewAuthenticator(),
		Limiter:  limiter,
	})
	slog.Info("传输层: HTTP 路由器创建完成。")

	addr := fmt.Sprintf(":%d", config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: httpRouter,
	}

	go func() {
		slog.Info("FrameRelay 启动成功，开始监听HTTP请求...", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP服务启动失败", "error", err)
			os.Exit(1)
		}
	}()

	if config.Server.PprofAddr != "" {
		observe.EnablePprof(config.Server.PprofAddr)
	}
	observe.Register()
	slog.Info("监控: metrics 已注册。")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("收到停机信号，准备优雅关闭...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("HTTP服务优雅关闭失败", "error", err)
		os.Exit(1)
	}

	slog.Info("HTTP服务已成功关闭。")
	slog.Info("程序即将退出。")
}
