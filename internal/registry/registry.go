// Package registry file: internal/registry/registry.go
package registry

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"FrameRelay/internal/core/domain"
	"FrameRelay/internal/core/port"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// 编译期断言，确保 Registry 实现了 port.RegistryView 接口
var _ port.RegistryView = (*Registry)(nil)

// Entry 是注册表文件中一条数据源记录。
type Entry struct {
	Name string `mapstructure:"name" validate:"required"`
	ID   int64  `mapstructure:"id" validate:"required,gt=0"`
}

type registryFile struct {
	Default     string  `mapstructure:"default"`
	Datasources []Entry `mapstructure:"datasources"`
}

// Snapshot 是某一时刻注册表的不可变视图。
type Snapshot struct {
	Default string
	ByName  map[string]domain.DatasourceRef
}

// Registry 维护名称到数据源身份的映射与默认数据源名称。
// 快照整体原子替换；读路径无锁。
type Registry struct {
	path     string
	validate *validator.Validate
	current  atomic.Pointer[Snapshot]
}

// New 创建一个尚未加载的注册表。
func New(path string) *Registry {
	r := &Registry{
		path:     path,
		validate: validator.New(),
	}
	r.current.Store(&Snapshot{ByName: map[string]domain.DatasourceRef{}})
	return r
}

// Load 从注册表文件读取并校验全部条目，成功后原子替换当前快照。
// 任一条目非法则整次加载失败，旧快照保持生效。
func (r *Registry) Load() error {
	v := viper.New()
	v.SetConfigFile(r.path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("读取注册表文件 '%s' 失败: %w", r.path, err)
	}

	var file registryFile
	if err := v.Unmarshal(&file); err != nil {
		return fmt.Errorf("解析注册表文件 '%s' 失败: %w", r.path, err)
	}

	byName := make(map[string]domain.DatasourceRef, len(file.Datasources))
	for _, entry := range file.Datasources {
		if err := r.validate.Struct(entry); err != nil {
			return fmt.Errorf("注册表条目 '%s' 校验失败: %w", entry.Name, err)
		}
		if _, exists := byName[entry.Name]; exists {
			return fmt.Errorf("注册表中存在重复的数据源名称: %q", entry.Name)
		}
		byName[entry.Name] = domain.DatasourceRef{ID: entry.ID, Name: entry.Name}
	}

	if file.Default != "" {
		if _, ok := byName[file.Default]; !ok {
			return fmt.Errorf("默认数据源 %q 未出现在注册表条目中", file.Default)
		}
	}

	r.current.Store(&Snapshot{Default: file.Default, ByName: byName})
	slog.Info("数据源注册表已加载", "path", r.path, "count", len(byName), "default", file.Default)
	return nil
}

// Snapshot 返回当前快照。
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// DefaultDatasourceName 返回默认数据源名称。
func (r *Registry) DefaultDatasourceName() string {
	return r.current.Load().Default
}

// DatasourceByName 按名称查找数据源身份。
func (r *Registry) DatasourceByName(name string) (domain.DatasourceRef, bool) {
	ref, ok := r.current.Load().ByName[name]
	return ref, ok
}

// Names 返回当前已注册的全部名称（无序）。
func (r *Registry) Names() []string {
	snapshot := r.current.Load()
	names := make([]string, 0, len(snapshot.ByName))
	for name := range snapshot.ByName {
		names = append(names, name)
	}
	return names
}
