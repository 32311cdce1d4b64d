// Package dispatch file: internal/dispatch/factory.go
package dispatch

import (
	"fmt"
	"sync"

	"FrameRelay/internal/core/domain"
	"FrameRelay/internal/core/port"
)

// Factory 按宿主数据源名称提供分发器实例。
// 传输、解码能力与替换钩子在所有分发器间共享；分发器按数据源 id 复用。
type Factory struct {
	registry   port.RegistryView
	transport  port.Transport
	decoder    port.DecoderLoader
	substitute SubstituteFunc

	mu          sync.Mutex
	dispatchers map[int64]*Dispatcher
}

// NewFactory 创建分发器工厂。
func NewFactory(registry port.RegistryView, transport port.Transport, decoder port.DecoderLoader, substitute SubstituteFunc) *Factory {
	return &Factory{
		registry:    registry,
		transport:   transport,
		decoder:     decoder,
		substitute:  substitute,
		dispatchers: make(map[int64]*Dispatcher),
	}
}

// ForDatasource 返回指定宿主数据源的分发器。
// name 为空或为默认占位名时使用注册表的默认数据源。
func (f *Factory) ForDatasource(name string) (*Dispatcher, error) {
	if name == "" || name == domain.DefaultDatasourceName {
		name = f.registry.DefaultDatasourceName()
	}
	ref, ok := f.registry.DatasourceByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", port.ErrDatasourceNotConfigured, name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.dispatchers[ref.ID]; ok {
		return d, nil
	}
	d := New(ref.ID, ref.Name, f.registry, f.transport, f.decoder, f.substitute)
	f.dispatchers[ref.ID] = d
	return d, nil
}
