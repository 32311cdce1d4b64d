// Package port file: internal/core/port/decoder.go
package port

import (
	"context"

	"FrameRelay/internal/core/domain"
)

// FrameDecoder 把后端的原始响应体转换为列式 Frame 序列。
// 给定同一解码能力，映射是纯函数且确定的；不得修改输入。
type FrameDecoder func(body []byte) ([]domain.Frame, error)

// DecoderLoader 是延迟获取的解码能力。
// Acquire 必须可被多个在途查询并发调用而不产生重复或不一致的加载。
type DecoderLoader interface {
	Acquire(ctx context.Context) (FrameDecoder, error)
}

// RegistryView 是进程级数据源注册表的只读视图。
type RegistryView interface {
	// DefaultDatasourceName 返回默认数据源名称。
	DefaultDatasourceName() string

	// DatasourceByName 按名称查找数据源身份，未注册时 ok 为 false。
	DatasourceByName(name string) (domain.DatasourceRef, bool)
}
