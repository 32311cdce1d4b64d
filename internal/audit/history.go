// Package audit file: internal/audit/history.go
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Record 是一次查询分发的审计记录。
type Record struct {
	ID              int64     `json:"id"`
	RequestID       string    `json:"request_id"`
	Datasource      string    `json:"datasource"`
	Endpoint        string    `json:"endpoint"`
	TargetCount     int       `json:"target_count"`
	ExpressionCount int       `json:"expression_count"`
	DurationMs      int64     `json:"duration_ms"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store 把分发审计记录持久化到 sqlite。
type Store struct {
	db *sql.DB
}

// Open 打开（必要时创建）审计数据库并确保表结构存在。
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开/创建审计数据库 '%s' 失败: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("连接审计数据库 '%s' (Ping) 失败: %w", path, err)
	}

	_, err = db.Exec(`
       CREATE TABLE IF NOT EXISTS dispatch_history(
          id INTEGER PRIMARY KEY AUTOINCREMENT,
          request_id TEXT NOT NULL,
          datasource TEXT NOT NULL,
          endpoint TEXT NOT NULL,
          target_count INTEGER NOT NULL,
          expression_count INTEGER NOT NULL,
          duration_ms INTEGER NOT NULL,
          error TEXT NOT NULL DEFAULT '',
          created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
       );
    `)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("创建 dispatch_history 表失败: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_dispatch_history_created_at ON dispatch_history (created_at);`)
	if err != nil {
		slog.Warn("为 dispatch_history 创建索引失败（可能已存在）", "error", err)
	}

	return &Store{db: db}, nil
}

// Append 写入一条审计记录。
func (s *Store) Append(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
       INSERT INTO dispatch_history(request_id, datasource, endpoint, target_count, expression_count, duration_ms, error)
       VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Datasource, rec.Endpoint, rec.TargetCount, rec.ExpressionCount, rec.DurationMs, rec.Error)
	if err != nil {
		return fmt.Errorf("写入审计记录失败: %w", err)
	}
	return nil
}

// Recent 按时间倒序返回最近的审计记录。
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
       SELECT id, request_id, datasource, endpoint, target_count, expression_count, duration_ms, error, created_at
       FROM dispatch_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询审计记录失败: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("关闭审计记录结果集失败", "error", err)
		}
	}()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.Datasource, &rec.Endpoint,
			&rec.TargetCount, &rec.ExpressionCount, &rec.DurationMs, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("扫描审计记录失败: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	return s.db.Close()
}
