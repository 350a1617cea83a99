// Package facet строит наборы вариантов для фильтров обозревателя аудита.
//
// Независимый фасет: проекция одного поля по событиям своего варианта, без дублей, отсортированная.
// Зависимый фасет (инструменты) строится только по событиям выбранных агентов.
// Построение никогда не возвращает ошибку: пустые данные дают пустой набор с признаком NoData.
package facet

import (
	"cmp"
	"slices"
	"strconv"

	"github.com/xela07ax/spaceai-audit-explorer/internal/audit"
)

type Dimension string

const (
	// вкладка агентов
	DimAgentID  Dimension = "agent_id"
	DimToolName Dimension = "tool_name"
	DimPolicy   Dimension = "policy"

	// вкладка реестра
	DimMethod    Dimension = "method"
	DimStatus    Dimension = "status"
	DimFailStage Dimension = "fail_stage"
)

// Option — выбираемое значение фасета. Count — число событий с этим значением.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// OptionSet — упорядоченный набор вариантов одного измерения.
// Disabled — зависимый фасет без выбора в вышестоящем: вариантов нет и выбирать нечего.
type OptionSet struct {
	Dimension Dimension `json:"dimension"`
	Options   []Option  `json:"options"`
	Disabled  bool      `json:"disabled"`
}

// NoData — нечего показать; интерфейс должен отрисовать явное «нет данных», а не пустой список.
func (s OptionSet) NoData() bool { return len(s.Options) == 0 }

// Values возвращает значения вариантов в порядке набора.
func (s OptionSet) Values() []string {
	out := make([]string, len(s.Options))
	for i, o := range s.Options {
		out[i] = o.Value
	}
	return out
}

// Contains сообщает, есть ли значение среди вариантов.
func (s OptionSet) Contains(value string) bool {
	return slices.ContainsFunc(s.Options, func(o Option) bool { return o.Value == value })
}

// Labels возвращает подписи выбранных значений в порядке набора; значения вне набора пропускаются.
func (s OptionSet) Labels(selected []string) []string {
	var out []string
	for _, o := range s.Options {
		if slices.Contains(selected, o.Value) {
			out = append(out, o.Label)
		}
	}
	return out
}

// extractor достает значение измерения из события; при ok=false событие не участвует.
type extractor func(e audit.Event) (value string, ok bool)

var extractors = map[Dimension]extractor{
	DimAgentID: func(e audit.Event) (string, bool) {
		if e.Agent == nil || e.Agent.AgentID == "" {
			return "", false
		}
		return e.Agent.AgentID, true
	},
	DimToolName: func(e audit.Event) (string, bool) {
		if e.Agent == nil || e.Agent.ToolName == "" {
			return "", false
		}
		return e.Agent.ToolName, true
	},
	DimPolicy: func(e audit.Event) (string, bool) {
		if e.Agent == nil {
			return "", false
		}
		return string(e.Agent.Policy), true
	},
	DimMethod: func(e audit.Event) (string, bool) {
		if e.Registry == nil {
			return "", false
		}
		return string(e.Registry.Method), true
	},
	DimStatus: func(e audit.Event) (string, bool) {
		if e.Registry == nil {
			return "", false
		}
		return strconv.Itoa(e.Registry.Status), true
	},
	DimFailStage: func(e audit.Event) (string, bool) {
		if e.Registry == nil {
			return "", false
		}
		return e.Registry.FailStage, true
	},
}

// Value возвращает значение измерения у события (для фильтрации по тем же правилам, что и фасеты).
func Value(dim Dimension, e audit.Event) (string, bool) {
	ex, ok := extractors[dim]
	if !ok {
		return "", false
	}
	return ex(e)
}

// Build строит независимый фасет по всей коллекции.
func Build(events []audit.Event, dim Dimension) OptionSet {
	return build(events, dim, func(audit.Event) bool { return true })
}

// ToolNames — зависимый фасет: инструменты только тех событий, чей agent_id выбран выше.
// Пустой выбор агентов выключает фасет.
func ToolNames(events []audit.Event, selectedAgents []string) OptionSet {
	if len(selectedAgents) == 0 {
		return OptionSet{Dimension: DimToolName, Options: []Option{}, Disabled: true}
	}
	return build(events, DimToolName, func(e audit.Event) bool {
		return e.Agent != nil && slices.Contains(selectedAgents, e.Agent.AgentID)
	})
}

func build(events []audit.Event, dim Dimension, keep func(audit.Event) bool) OptionSet {
	set := OptionSet{Dimension: dim, Options: []Option{}}
	ex, ok := extractors[dim]
	if !ok {
		return set
	}

	counts := make(map[string]int)
	for _, e := range events {
		if !keep(e) {
			continue
		}
		if v, ok := ex(e); ok {
			counts[v]++
		}
	}

	for v, n := range counts {
		set.Options = append(set.Options, Option{Value: v, Label: v, Count: n})
	}
	slices.SortFunc(set.Options, compareFor(dim))
	return set
}

// compareFor: коды статусов по возрастанию числа, остальное лексикографически.
func compareFor(dim Dimension) func(a, b Option) int {
	if dim != DimStatus {
		return func(a, b Option) int { return cmp.Compare(a.Value, b.Value) }
	}
	return func(a, b Option) int {
		an, aerr := strconv.Atoi(a.Value)
		bn, berr := strconv.Atoi(b.Value)
		if aerr != nil || berr != nil {
			return cmp.Compare(a.Value, b.Value)
		}
		return cmp.Compare(an, bn)
	}
}
