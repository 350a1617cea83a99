package filter

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/xela07ax/spaceai-audit-explorer/internal/audit"
	"github.com/xela07ax/spaceai-audit-explorer/internal/facet"
)

// Result — итог свертки. NoMatches: на входе были события нужного варианта, но фильтры отсекли все.
// Пустой вход дает NoMatches=false: это состояние «нет данных», а не «нет совпадений».
type Result struct {
	Events    []audit.Event
	NoMatches bool
}

// predicate — один критерий; свертка = И по всем активным критериям.
type predicate func(e audit.Event) bool

// ReduceAgent оставляет события доступа к агентам, прошедшие все активные фильтры.
// Относительный порядок входа сохраняется, пересортировки нет.
func ReduceAgent(events []audit.Event, f AgentFilter) Result {
	preds := []predicate{
		func(e audit.Event) bool { return e.Agent != nil },
		dateBounds(f.Dates),
		member(facet.DimAgentID, f.AgentIDs),
		member(facet.DimToolName, f.ToolNames),
		member(facet.DimPolicy, f.Policies),
		query(f.Query, func(e audit.Event) []string { return []string{e.Message, e.Agent.User} }),
	}
	return reduce(events, audit.SourceAgent, preds)
}

// ReduceRegistry — то же для событий реестра; статусы сравниваются в десятичном строковом виде.
func ReduceRegistry(events []audit.Event, f RegistryFilter) Result {
	preds := []predicate{
		func(e audit.Event) bool { return e.Registry != nil },
		dateBounds(f.Dates),
		member(facet.DimMethod, f.Methods),
		member(facet.DimStatus, f.Statuses),
		member(facet.DimFailStage, f.Stages),
		query(f.Query, func(e audit.Event) []string { return []string{e.Message, e.Registry.Actor} }),
	}
	return reduce(events, audit.SourceRegistry, preds)
}

func reduce(events []audit.Event, src audit.Source, preds []predicate) Result {
	// nil-критерии (неактивные фильтры) выкидываем заранее
	preds = slices.DeleteFunc(preds, func(p predicate) bool { return p == nil })

	out := make([]audit.Event, 0)
	var seen int
	for _, e := range events {
		if e.Source != src {
			continue
		}
		seen++
		if matchAll(e, preds) {
			out = append(out, e)
		}
	}
	return Result{Events: out, NoMatches: seen > 0 && len(out) == 0}
}

func matchAll(e audit.Event, preds []predicate) bool {
	for _, p := range preds {
		if !p(e) {
			return false
		}
	}
	return true
}

// dateBounds: включительное лексикографическое сравнение нормализованных строк.
func dateBounds(d DateRange) predicate {
	start := audit.NormalizeTimestamp(strings.TrimSpace(d.Start))
	end := audit.NormalizeTimestamp(strings.TrimSpace(d.End))
	if start == "" && end == "" {
		return nil
	}
	return func(e audit.Event) bool {
		ts := audit.NormalizeTimestamp(e.Timestamp)
		if start != "" && ts < start {
			return false
		}
		if end != "" && ts > end {
			return false
		}
		return true
	}
}

// member: пустой набор не ограничивает, иначе значение измерения должно входить в набор.
func member(dim facet.Dimension, selected []string) predicate {
	if len(selected) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(selected))
	for _, v := range selected {
		set[v] = struct{}{}
	}
	return func(e audit.Event) bool {
		v, ok := facet.Value(dim, e)
		if !ok {
			return false
		}
		_, in := set[v]
		return in
	}
}

// query — подстрока без учета регистра (Unicode case folding) хотя бы в одном из полей.
func query(q string, fields func(e audit.Event) []string) predicate {
	if q == "" {
		return nil
	}
	// Caser хранит состояние, поэтому свой экземпляр на каждую свертку
	fold := cases.Fold()
	needle := fold.String(q)
	return func(e audit.Event) bool {
		for _, field := range fields(e) {
			if strings.Contains(fold.String(field), needle) {
				return true
			}
		}
		return false
	}
}
