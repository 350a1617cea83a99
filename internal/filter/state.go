// Package filter — композиция фильтров обозревателя аудита.
//
// Состояние фильтра хранится обычным значением: передается в Reduce и возвращается из операций обновления.
// Reduce — чистая функция, строгое И по всем активным (непустым) критериям.
package filter

import "slices"

// DateRange — включительные границы в виде "2006-01-02 15:04:05"; пустая граница не ограничивает.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// AgentFilter — фильтры вкладки агентов.
type AgentFilter struct {
	Dates     DateRange `json:"dates"`
	AgentIDs  []string  `json:"agent_ids"`
	ToolNames []string  `json:"tool_names"`
	Policies  []string  `json:"policies"`
	Query     string    `json:"query"`
}

// RegistryFilter — фильтры вкладки реестра. Статусы хранятся строками, как их присылает выбор в интерфейсе.
type RegistryFilter struct {
	Dates    DateRange `json:"dates"`
	Methods  []string  `json:"methods"`
	Statuses []string  `json:"statuses"`
	Stages   []string  `json:"stages"`
	Query    string    `json:"query"`
}

// Clone возвращает глубокую копию: наружу отдаются только копии наборов.
func (f AgentFilter) Clone() AgentFilter {
	f.AgentIDs = slices.Clone(f.AgentIDs)
	f.ToolNames = slices.Clone(f.ToolNames)
	f.Policies = slices.Clone(f.Policies)
	return f
}

func (f RegistryFilter) Clone() RegistryFilter {
	f.Methods = slices.Clone(f.Methods)
	f.Statuses = slices.Clone(f.Statuses)
	f.Stages = slices.Clone(f.Stages)
	return f
}

// ClearSelections сбрасывает мультивыборы, даты и запрос остаются (поведение при обновлении коллекции).
func (f AgentFilter) ClearSelections() AgentFilter {
	f.AgentIDs, f.ToolNames, f.Policies = nil, nil, nil
	return f
}

// ClearSelections сбрасывает мультивыборы вкладки реестра.
func (f RegistryFilter) ClearSelections() RegistryFilter {
	f.Methods, f.Statuses, f.Stages = nil, nil, nil
	return f
}

func (f AgentFilter) IsZero() bool {
	return f.Dates == DateRange{} && len(f.AgentIDs) == 0 && len(f.ToolNames) == 0 &&
		len(f.Policies) == 0 && f.Query == ""
}

func (f RegistryFilter) IsZero() bool {
	return f.Dates == DateRange{} && len(f.Methods) == 0 && len(f.Statuses) == 0 &&
		len(f.Stages) == 0 && f.Query == ""
}

// Selection нормализует выбор: без пустых строк и дублей, порядок первого вхождения.
func Selection(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
