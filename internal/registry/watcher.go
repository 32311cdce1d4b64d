// Package registry file: internal/registry/watcher.go
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StartWatcher 启动文件系统监视器，实现注册表的热重载。
// 监视注册表文件所在目录（编辑器原子替换会产生 Create/Rename 事件），
// 事件经 200ms 去抖后触发 Load；加载失败只记日志，旧快照继续生效。
func (r *Registry) StartWatcher(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建 fsnotify watcher 失败: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("添加注册表目录 '%s' 到监视器失败: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		slog.Info("注册表文件监视 goroutine 已启动", "dir", dir)

		var debounce *time.Timer
		target := filepath.Clean(r.path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					slog.Warn("注册表监视器事件通道已关闭")
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(200*time.Millisecond, func() {
					if err := r.Load(); err != nil {
						slog.Error("注册表热重载失败，保留旧快照", "error", err)
						return
					}
					slog.Info("注册表热重载完成", "path", r.path)
				})
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					slog.Warn("注册表监视器错误通道已关闭")
					return
				}
				slog.Error("注册表监视器报告错误", "error", watchErr)
			}
		}
	}()

	return nil
}
