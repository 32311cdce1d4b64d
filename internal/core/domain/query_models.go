// Package domain file: internal/core/domain/query_models.go
package domain

import "time"

// ExprDatasourceName 是表达式伪数据源的保留标识符。
// 带有该名称的查询目标不会被路由到任何真实数据源，
// 而是交由后端的表达式/变换引擎在宿主数据源的上下文中求值。
const ExprDatasourceName = "__expr__"

// DefaultDatasourceName 是"使用默认数据源"的占位名称。
// 目标未指定数据源名称、或显式填写该占位值时，解析时会替换为注册表中的默认名称。
const DefaultDatasourceName = "default"

// TimeRange 表示一次查询批次共享的时间范围。
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// QueryTarget 是调用方提交的单个查询目标。
// Model 是透传的查询载荷，本核心不理解其内部结构。
type QueryTarget struct {
	RefID      string         `json:"refId"`
	Datasource string         `json:"datasource,omitempty"`
	Model      map[string]any `json:"model,omitempty"`
}

// QueryRequest 是一次批量查询请求。
// 约定: Targets 内的 RefID 在同一批次中唯一（由调用方保证，此处不校验）。
type QueryRequest struct {
	RequestID     string        `json:"requestId"`
	Targets       []QueryTarget `json:"targets"`
	IntervalMs    int64         `json:"intervalMs"`
	MaxDataPoints int64         `json:"maxDataPoints"`
	Range         *TimeRange    `json:"range,omitempty"`
}

// WireQuery 是发往后端的规范化单目标记录。
// 字段名即线上协议字段名，不可随意更改。
// From/To 为十进制字符串形式的毫秒时间戳；请求未携带时间范围时两者缺省（而非零值）。
type WireQuery struct {
	DatasourceID   int64          `json:"datasourceId"`
	DatasourceName string         `json:"datasourceName"`
	RefID          string         `json:"refId"`
	From           string         `json:"from,omitempty"`
	To             string         `json:"to,omitempty"`
	IntervalMs     int64          `json:"intervalMs"`
	MaxDataPoints  int64          `json:"maxDataPoints"`
	Model          map[string]any `json:"model"`
}

// BatchRequestBody 是一次出站批量请求的请求体，每次调用构造一个。
type BatchRequestBody struct {
	Queries []WireQuery `json:"queries"`
}

// Field 描述 Frame 中一列的元数据。
type Field struct {
	Name   string            `json:"name"`
	Type   string            `json:"type,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
}

// Frame 是后端返回的列式结果结构。
// Values 按列组织，与 Fields 一一对应。
type Frame struct {
	RefID  string  `json:"refId"`
	Name   string  `json:"name,omitempty"`
	Fields []Field `json:"fields"`
	Values [][]any `json:"values"`
}

// QueryResponse 是本核心对调用方承诺的统一结果结构。
type QueryResponse struct {
	Data []Frame `json:"data"`
}

// DatasourceRef 是注册表中一个数据源的身份。
type DatasourceRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
