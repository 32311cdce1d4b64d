// Package dispatch file: internal/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"FrameRelay/internal/core/domain"
	"FrameRelay/internal/core/port"
	"FrameRelay/internal/observe"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// 出站端点。批次中只要出现一个表达式目标，整个批次就走 transform 路径。
const (
	queryPath     = "/api/ds/query"
	transformPath = "/api/ds/transform"
)

// SubstituteFunc 是可覆盖的模板变量替换钩子。
// 默认恒等；实现方可以改写任意字段，但必须保留 refId。
// 表达式目标不经过该钩子（表达式在服务端针对已替换的兄弟结果求值）。
type SubstituteFunc func(model map[string]any) map[string]any

// Dispatcher 是面向单个宿主数据源的查询分发器。
// 唯一跨调用持久的状态是构造时注入的数据源身份（id），视为不可变。
type Dispatcher struct {
	id         int64
	name       string
	registry   port.RegistryView
	transport  port.Transport
	decoder    port.DecoderLoader
	substitute SubstituteFunc

	// GET 资源结果的短 TTL 缓存；健康检查结果从不缓存。
	resourceCache *lru.LRU[string, map[string]any]
}

// New 创建一个分发器。substitute 传 nil 时使用恒等替换。
func New(id int64, name string, registry port.RegistryView, transport port.Transport, decoder port.DecoderLoader, substitute SubstituteFunc) *Dispatcher {
	return &Dispatcher{
		id:            id,
		name:          name,
		registry:      registry,
		transport:     transport,
		decoder:       decoder,
		substitute:    substitute,
		resourceCache: lru.NewLRU[string, map[string]any](256, nil, 30*time.Second),
	}
}

// ID 返回宿主数据源的身份。
func (d *Dispatcher) ID() int64 { return d.id }

// Name 返回宿主数据源的名称。
func (d *Dispatcher) Name() string { return d.name }

// Query 执行一次批量查询：逐目标解析 → 组装批次 → 选择端点 → 发出请求 → 归一化响应。
// 任一目标解析失败都会在发起网络调用之前使整个批次失败（无部分结果）。
func (d *Dispatcher) Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResponse, error) {
	queries := make([]domain.WireQuery, 0, len(req.Targets))
	expressionCount := 0

	for _, target := range req.Targets {
		wire, isExpr, err := d.resolveTarget(target, req)
		if err != nil {
			return nil, err
		}
		if isExpr {
			expressionCount++
		}
		queries = append(queries, wire)
	}

	// 端点选择是请求级决策：哪怕只有一个表达式目标，整个批次也走 transform。
	endpoint := queryPath
	if expressionCount > 0 {
		endpoint = transformPath
		observe.ExpressionBatches.Inc()
	}

	observe.DispatchTotal.Inc()
	start := time.Now()

	raw, err := d.transport.DatasourceRequest(ctx, http.MethodPost, endpoint, domain.BatchRequestBody{Queries: queries}, req.RequestID)
	observe.DispatchDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		observe.DispatchFailed.Inc()
		return nil, err
	}

	decode, err := d.decoder.Acquire(ctx)
	if err != nil {
		observe.DispatchFailed.Inc()
		return nil, fmt.Errorf("获取帧解码能力失败: %w", err)
	}

	frames, err := decode(raw.Body)
	if err != nil {
		observe.DispatchFailed.Inc()
		return nil, err
	}

	return &domain.QueryResponse{Data: frames}, nil
}

// resolveTarget 把一个查询目标解析为一条 WireQuery。
// 表达式伪数据源解析为宿主数据源自身的 id；普通目标走注册表查找，
// 未命中时返回 ErrUnknownDatasource 并指明出错的名称。
func (d *Dispatcher) resolveTarget(target domain.QueryTarget, req domain.QueryRequest) (domain.WireQuery, bool, error) {
	wire := domain.WireQuery{
		RefID:         target.RefID,
		IntervalMs:    req.IntervalMs,
		MaxDataPoints: req.MaxDataPoints,
	}
	if req.Range != nil {
		wire.From = strconv.FormatInt(req.Range.From.UnixMilli(), 10)
		wire.To = strconv.FormatInt(req.Range.To.UnixMilli(), 10)
	}

	if target.Datasource == domain.ExprDatasourceName {
		// 表达式引擎总是在发起查询的数据源上下文中执行；不做模板替换。
		wire.DatasourceID = d.id
		wire.DatasourceName = domain.ExprDatasourceName
		wire.Model = mergeModel(target.Model, d.id, target.RefID)
		return wire, true, nil
	}

	name := target.Datasource
	if name == "" || name == domain.DefaultDatasourceName {
		name = d.registry.DefaultDatasourceName()
	}
	ref, ok := d.registry.DatasourceByName(name)
	if !ok {
		return domain.WireQuery{}, false, fmt.Errorf("%w: %q", port.ErrUnknownDatasource, name)
	}

	model := target.Model
	if d.substitute != nil {
		model = d.substitute(cloneModel(model))
	}

	wire.DatasourceID = ref.ID
	wire.DatasourceName = name
	wire.Model = mergeModel(model, ref.ID, target.RefID)
	return wire, false, nil
}

// mergeModel 返回载荷的副本，并合入解析出的 datasourceId 与 refId。
// 原始载荷只读，不被修改。
func mergeModel(model map[string]any, datasourceID int64, refID string) map[string]any {
	merged := cloneModel(model)
	merged["datasourceId"] = datasourceID
	merged["refId"] = refID
	return merged
}

func cloneModel(model map[string]any) map[string]any {
	cloned := make(map[string]any, len(model)+2)
	for k, v := range model {
		cloned[k] = v
	}
	return cloned
}
