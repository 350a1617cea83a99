package explorer

import (
	"slices"
	"time"

	"github.com/xela07ax/spaceai-audit-explorer/internal/audit"
	"github.com/xela07ax/spaceai-audit-explorer/internal/facet"
	"github.com/xela07ax/spaceai-audit-explorer/internal/filter"
)

// Status — что показывать вместо таблицы.
type Status string

const (
	StatusOK        Status = "ok"
	StatusNoMatches Status = "no_matches" // данные есть, фильтры отсекли все
	StatusNoData    Status = "no_data"    // в снимке нет событий этой вкладки
)

type AgentSummaries struct {
	AgentIDs  string `json:"agent_ids"`
	ToolNames string `json:"tool_names"`
	Policies  string `json:"policies"`
}

// AgentProjection — все, что нужно отрисовщику вкладки агентов. Наружу отдаются только копии.
type AgentProjection struct {
	Snapshot  Snapshot           `json:"snapshot"`
	Filter    filter.AgentFilter `json:"filter"`
	Facets    facet.AgentIndex   `json:"facets"`
	Summaries AgentSummaries     `json:"summaries"`
	Events    []audit.Event      `json:"events"`
	Count     int                `json:"count"`
	Total     int                `json:"total"`
	Status    Status             `json:"status"`
}

type RegistrySummaries struct {
	Methods  string `json:"methods"`
	Statuses string `json:"statuses"`
	Stages   string `json:"stages"`
}

// RegistryRow — событие реестра с классом статуса для подсветки.
type RegistryRow struct {
	Event audit.Event       `json:"event"`
	Class audit.StatusClass `json:"status_class"`
}

type RegistryProjection struct {
	Snapshot  Snapshot              `json:"snapshot"`
	Filter    filter.RegistryFilter `json:"filter"`
	Facets    facet.RegistryIndex   `json:"facets"`
	Summaries RegistrySummaries     `json:"summaries"`
	Rows      []RegistryRow         `json:"events"`
	Count     int                   `json:"count"`
	Total     int                   `json:"total"`
	Status    Status                `json:"status"`
}

// agentProjection вызывается под блокировкой.
func (x *Explorer) agentProjection() AgentProjection {
	start := time.Now()
	res := filter.ReduceAgent(x.events, x.agent)
	x.metrics.ReduceDuration.WithLabelValues(string(ViewAgent)).Observe(time.Since(start).Seconds())

	events := make([]audit.Event, len(res.Events))
	for i, e := range res.Events {
		events[i] = e.Clone()
	}

	idx := x.index.Agent
	return AgentProjection{
		Snapshot: x.snap,
		Filter:   x.agent.Clone(),
		Facets: facet.AgentIndex{
			AgentIDs:  cloneSet(idx.AgentIDs),
			ToolNames: cloneSet(idx.ToolNames),
			Policies:  cloneSet(idx.Policies),
		},
		Summaries: AgentSummaries{
			AgentIDs:  idx.AgentIDs.Summarize(x.agent.AgentIDs),
			ToolNames: idx.ToolNames.Summarize(x.agent.ToolNames),
			Policies:  idx.Policies.Summarize(x.agent.Policies),
		},
		Events: events,
		Count:  len(events),
		Total:  x.counts[audit.SourceAgent],
		Status: status(x.counts[audit.SourceAgent], res),
	}
}

func (x *Explorer) registryProjection() RegistryProjection {
	start := time.Now()
	res := filter.ReduceRegistry(x.events, x.registry)
	x.metrics.ReduceDuration.WithLabelValues(string(ViewRegistry)).Observe(time.Since(start).Seconds())

	rows := make([]RegistryRow, len(res.Events))
	for i, e := range res.Events {
		rows[i] = RegistryRow{Event: e.Clone(), Class: audit.ClassifyStatus(e.Registry.Status)}
	}

	idx := x.index.Registry
	return RegistryProjection{
		Snapshot: x.snap,
		Filter:   x.registry.Clone(),
		Facets: facet.RegistryIndex{
			Methods:  cloneSet(idx.Methods),
			Statuses: cloneSet(idx.Statuses),
			Stages:   cloneSet(idx.Stages),
		},
		Summaries: RegistrySummaries{
			Methods:  idx.Methods.Summarize(x.registry.Methods),
			Statuses: idx.Statuses.Summarize(x.registry.Statuses),
			Stages:   idx.Stages.Summarize(x.registry.Stages),
		},
		Rows:   rows,
		Count:  len(rows),
		Total:  x.counts[audit.SourceRegistry],
		Status: status(x.counts[audit.SourceRegistry], res),
	}
}

func status(total int, res filter.Result) Status {
	switch {
	case total == 0:
		return StatusNoData
	case res.NoMatches:
		return StatusNoMatches
	default:
		return StatusOK
	}
}

func cloneSet(s facet.OptionSet) facet.OptionSet {
	s.Options = slices.Clone(s.Options)
	return s
}
