// Package explorer — ядро обозревателя аудита.
//
// Explorer владеет снимком коллекции и двумя состояниями фильтров (по одному на вкладку).
// Любое изменение идет через явные операции, каждая возвращает пересчитанную проекцию своей вкладки.
// Загрузка коллекции единственная асинхронная граница: получение вне блокировки, фиксация одной подменой.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-audit-explorer/internal/audit"
	"github.com/xela07ax/spaceai-audit-explorer/internal/facet"
	"github.com/xela07ax/spaceai-audit-explorer/internal/filter"
	"github.com/xela07ax/spaceai-audit-explorer/internal/simulator"
)

var (
	ErrUnknownView   = errors.New("explorer: unknown view")
	ErrEventNotFound = errors.New("explorer: event not found")
)

// View — вкладка обозревателя.
type View string

const (
	ViewAgent    View = "agent"
	ViewRegistry View = "registry"
)

// Source — откуда берется коллекция событий (HTTP API логов, PostgreSQL).
type Source interface {
	FetchEvents(ctx context.Context) ([]audit.Event, error)
}

// SourceFunc адаптирует функцию к Source.
type SourceFunc func(ctx context.Context) ([]audit.Event, error)

func (f SourceFunc) FetchEvents(ctx context.Context) ([]audit.Event, error) { return f(ctx) }

// Origin — происхождение снимка.
type Origin string

const (
	OriginSource   Origin = "source"
	OriginFallback Origin = "fallback" // источник недоступен, события синтезированы
	OriginMock     Origin = "mock"
)

// Snapshot — метаданные загруженной коллекции.
type Snapshot struct {
	ID       string    `json:"id"`
	Origin   Origin    `json:"origin"`
	LoadedAt time.Time `json:"loaded_at"`
	Size     int       `json:"size"`
}

type Options struct {
	MockMode     bool
	FallbackSize int
	MockSize     int
	FetchTimeout time.Duration

	Simulator *simulator.Simulator
	Now       func() time.Time
}

func (o Options) withDefaults() Options {
	if o.FallbackSize <= 0 {
		o.FallbackSize = 30
	}
	if o.MockSize <= 0 {
		o.MockSize = 50
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 10 * time.Second
	}
	if o.Simulator == nil {
		o.Simulator = simulator.New()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type Explorer struct {
	mu sync.RWMutex

	src     Source
	opts    Options
	metrics *Metrics
	logger  *zap.Logger

	snap     Snapshot
	events   []audit.Event
	byID     map[string]int
	counts   map[audit.Source]int
	index    facet.Index
	agent    filter.AgentFilter
	registry filter.RegistryFilter
}

// New создает обозреватель с пустым снимком; данные появляются после первого Refresh.
// src == nil работает как режим mock.
func New(src Source, opts Options, metrics *Metrics, logger *zap.Logger) *Explorer {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Explorer{
		src:     src,
		opts:    opts.withDefaults(),
		metrics: metrics,
		logger:  logger.Named("explorer"),
		byID:    make(map[string]int),
		counts:  make(map[audit.Source]int),
		index:   facet.BuildIndex(nil, nil),
	}
}

// Refresh заново получает коллекцию, пересобирает фасеты и сбрасывает мультивыборы обеих вкладок.
// Даты и строка поиска переживают обновление до явного Reset.
func (x *Explorer) Refresh(ctx context.Context) (Snapshot, error) {
	// 1. Получение вне блокировки
	events, origin := x.acquire(ctx)
	if err := ctx.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("explorer: refresh cancelled: %w", err)
	}

	// 2. Уникальность id и порядок отображения
	kept, dropped := audit.Dedupe(events)
	if dropped > 0 {
		x.logger.Warn("duplicate event ids dropped", zap.Int("dropped", dropped))
		x.metrics.MalformedRecords.Add(float64(dropped))
	}
	audit.SortNewestFirst(kept)

	byID := make(map[string]int, len(kept))
	counts := make(map[audit.Source]int, 2)
	for i, e := range kept {
		byID[e.ID] = i
		counts[e.Source]++
	}

	snap := Snapshot{
		ID:       uuid.NewString(),
		Origin:   origin,
		LoadedAt: x.opts.Now(),
		Size:     len(kept),
	}

	// 3. Фиксация одной подменой
	x.mu.Lock()
	x.snap = snap
	x.events = kept
	x.byID = byID
	x.counts = counts
	x.agent = x.agent.ClearSelections()
	x.registry = x.registry.ClearSelections()
	x.index = facet.BuildIndex(kept, x.agent.AgentIDs)
	x.mu.Unlock()

	x.metrics.Refreshes.WithLabelValues(string(origin)).Inc()
	x.metrics.SnapshotEvents.Set(float64(len(kept)))

	x.logger.Info("snapshot loaded",
		zap.String("snapshot_id", snap.ID),
		zap.String("origin", string(origin)),
		zap.Int("events", snap.Size))
	return snap, nil
}

// acquire никогда не возвращает ошибку: отказ источника закрывается синтетическими событиями.
func (x *Explorer) acquire(ctx context.Context) ([]audit.Event, Origin) {
	if x.opts.MockMode || x.src == nil {
		return x.opts.Simulator.Generate(x.opts.MockSize, x.opts.Now()), OriginMock
	}

	fetchCtx, cancel := context.WithTimeout(ctx, x.opts.FetchTimeout)
	defer cancel()

	events, err := x.src.FetchEvents(fetchCtx)
	if err != nil {
		x.logger.Warn("source unavailable, using simulated events",
			zap.Int("count", x.opts.FallbackSize), zap.Error(err))
		x.metrics.SourceFallbacks.Inc()
		return x.opts.Simulator.Generate(x.opts.FallbackSize, x.opts.Now()), OriginFallback
	}
	return events, OriginSource
}

// Snapshot возвращает метаданные текущего снимка.
func (x *Explorer) Snapshot() Snapshot {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.snap
}

// Ready — был ли загружен хотя бы один снимок.
func (x *Explorer) Ready() bool {
	return x.Snapshot().ID != ""
}

// Event возвращает полную запись по id (детальный просмотр).
func (x *Explorer) Event(id string) (audit.Event, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	i, ok := x.byID[id]
	if !ok {
		return audit.Event{}, fmt.Errorf("%w: %q", ErrEventNotFound, id)
	}
	return x.events[i].Clone(), nil
}

// --- Вкладка агентов ---

func (x *Explorer) SetAgentDateRange(d filter.DateRange) AgentProjection {
	return x.updateAgent(func(f *filter.AgentFilter) { f.Dates = d })
}

// SetAgentIDs меняет выбор агентов и пересобирает зависимый фасет инструментов.
func (x *Explorer) SetAgentIDs(ids []string) AgentProjection {
	return x.updateAgent(func(f *filter.AgentFilter) { f.AgentIDs = filter.Selection(ids) })
}

// SetToolNames: без выбранных агентов выбор инструментов принудительно пуст.
func (x *Explorer) SetToolNames(names []string) AgentProjection {
	return x.updateAgent(func(f *filter.AgentFilter) { f.ToolNames = filter.Selection(names) })
}

func (x *Explorer) SetPolicies(policies []string) AgentProjection {
	return x.updateAgent(func(f *filter.AgentFilter) { f.Policies = filter.Selection(policies) })
}

func (x *Explorer) SetAgentQuery(q string) AgentProjection {
	return x.updateAgent(func(f *filter.AgentFilter) { f.Query = q })
}

// ResetAgent очищает все фильтры вкладки, включая даты и поиск.
func (x *Explorer) ResetAgent() AgentProjection {
	return x.updateAgent(func(f *filter.AgentFilter) { *f = filter.AgentFilter{} })
}

func (x *Explorer) AgentProjection() AgentProjection {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.agentProjection()
}

func (x *Explorer) updateAgent(mutate func(f *filter.AgentFilter)) AgentProjection {
	x.mu.Lock()
	defer x.mu.Unlock()

	mutate(&x.agent)
	if len(x.agent.AgentIDs) == 0 {
		x.agent.ToolNames = nil
	}
	x.index.Agent.ToolNames = facet.ToolNames(x.events, x.agent.AgentIDs)
	return x.agentProjection()
}

// --- Вкладка реестра ---

func (x *Explorer) SetRegistryDateRange(d filter.DateRange) RegistryProjection {
	return x.updateRegistry(func(f *filter.RegistryFilter) { f.Dates = d })
}

func (x *Explorer) SetMethods(methods []string) RegistryProjection {
	return x.updateRegistry(func(f *filter.RegistryFilter) { f.Methods = filter.Selection(methods) })
}

// SetStatuses принимает коды в десятичном строковом виде, как они приходят из выбора.
func (x *Explorer) SetStatuses(statuses []string) RegistryProjection {
	return x.updateRegistry(func(f *filter.RegistryFilter) { f.Statuses = filter.Selection(statuses) })
}

func (x *Explorer) SetStages(stages []string) RegistryProjection {
	return x.updateRegistry(func(f *filter.RegistryFilter) { f.Stages = filter.Selection(stages) })
}

func (x *Explorer) SetRegistryQuery(q string) RegistryProjection {
	return x.updateRegistry(func(f *filter.RegistryFilter) { f.Query = q })
}

func (x *Explorer) ResetRegistry() RegistryProjection {
	return x.updateRegistry(func(f *filter.RegistryFilter) { *f = filter.RegistryFilter{} })
}

func (x *Explorer) RegistryProjection() RegistryProjection {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.registryProjection()
}

func (x *Explorer) updateRegistry(mutate func(f *filter.RegistryFilter)) RegistryProjection {
	x.mu.Lock()
	defer x.mu.Unlock()

	mutate(&x.registry)
	return x.registryProjection()
}

// --- Операции по имени вкладки (для HTTP-консоли) ---

// Projection возвращает проекцию вкладки как значение для сериализации.
func (x *Explorer) Projection(v View) (any, error) {
	switch v {
	case ViewAgent:
		return x.AgentProjection(), nil
	case ViewRegistry:
		return x.RegistryProjection(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownView, v)
}

func (x *Explorer) SetDateRange(v View, d filter.DateRange) (any, error) {
	switch v {
	case ViewAgent:
		return x.SetAgentDateRange(d), nil
	case ViewRegistry:
		return x.SetRegistryDateRange(d), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownView, v)
}

func (x *Explorer) SetQuery(v View, q string) (any, error) {
	switch v {
	case ViewAgent:
		return x.SetAgentQuery(q), nil
	case ViewRegistry:
		return x.SetRegistryQuery(q), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownView, v)
}

func (x *Explorer) Reset(v View) (any, error) {
	switch v {
	case ViewAgent:
		return x.ResetAgent(), nil
	case ViewRegistry:
		return x.ResetRegistry(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownView, v)
}
