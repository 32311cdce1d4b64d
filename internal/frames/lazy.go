// Package frames file: internal/frames/lazy.go
package frames

import (
	"context"
	"sync/atomic"

	"FrameRelay/internal/core/port"

	"golang.org/x/sync/singleflight"
)

// 编译期断言，确保 LazyDecoder 实现了 port.DecoderLoader 接口
var _ port.DecoderLoader = (*LazyDecoder)(nil)

// LazyDecoder 把解码能力的获取推迟到首次使用。
// 获取是一次性的异步操作：成功结果被记忆，多个在途查询并发触发首次
// 获取时由 singleflight 合并为一次加载；失败不被缓存，下次调用重新加载。
type LazyDecoder struct {
	load   func(ctx context.Context) (port.FrameDecoder, error)
	group  singleflight.Group
	cached atomic.Pointer[port.FrameDecoder]
}

// NewLazyDecoder 用给定的加载函数创建延迟解码器。
func NewLazyDecoder(load func(ctx context.Context) (port.FrameDecoder, error)) *LazyDecoder {
	return &LazyDecoder{load: load}
}

// NewDefault 返回使用内置 Decode 例程的延迟解码器。
func NewDefault() *LazyDecoder {
	return NewLazyDecoder(func(_ context.Context) (port.FrameDecoder, error) {
		return Decode, nil
	})
}

// Acquire 返回解码能力，必要时触发一次加载。
func (l *LazyDecoder) Acquire(ctx context.Context) (port.FrameDecoder, error) {
	if cached := l.cached.Load(); cached != nil {
		return *cached, nil
	}

	result, err, _ := l.group.Do("decoder", func() (any, error) {
		if cached := l.cached.Load(); cached != nil {
			return *cached, nil
		}
		decoder, err := l.load(ctx)
		if err != nil {
			return nil, err
		}
		l.cached.Store(&decoder)
		return decoder, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(port.FrameDecoder), nil
}
