package facet

import (
	"fmt"

	"github.com/xela07ax/spaceai-audit-explorer/internal/audit"
)

// Сентинелы подписи кнопки фасета.
const (
	SummaryNone     = "none selected"
	SummaryAll      = "all selected"
	SummaryDisabled = "select an agent first" // зависимый фасет без выбора агентов
	SummaryNoData   = "no data"
)

// Summary — подпись фасета по числу вариантов и подписям выбранных.
// Порядок правил важен: 0 → none, все → all, один → его подпись, иначе "<n> selected".
func Summary(total int, selectedLabels []string) string {
	n := len(selectedLabels)
	switch {
	case n == 0:
		return SummaryNone
	case n == total:
		return SummaryAll
	case n == 1:
		return selectedLabels[0]
	default:
		return fmt.Sprintf("%d selected", n)
	}
}

// Summarize учитывает состояние набора: выключенный и пустой фасет подписываются отдельно.
func (s OptionSet) Summarize(selected []string) string {
	switch {
	case s.Disabled:
		return SummaryDisabled
	case s.NoData():
		return SummaryNoData
	}
	return Summary(len(s.Options), s.Labels(selected))
}

// AgentIndex — варианты фасетов вкладки агентов.
type AgentIndex struct {
	AgentIDs  OptionSet `json:"agent_ids"`
	ToolNames OptionSet `json:"tool_names"`
	Policies  OptionSet `json:"policies"`
}

// RegistryIndex — варианты фасетов вкладки реестра.
type RegistryIndex struct {
	Methods  OptionSet `json:"methods"`
	Statuses OptionSet `json:"statuses"`
	Stages   OptionSet `json:"stages"`
}

// Index — все фасеты обеих вкладок для одного снимка коллекции.
type Index struct {
	Agent    AgentIndex    `json:"agent"`
	Registry RegistryIndex `json:"registry"`
}

// BuildIndex пересчитывает все фасеты; инструменты строятся от текущего выбора агентов.
func BuildIndex(events []audit.Event, selectedAgents []string) Index {
	return Index{
		Agent: AgentIndex{
			AgentIDs:  Build(events, DimAgentID),
			ToolNames: ToolNames(events, selectedAgents),
			Policies:  Build(events, DimPolicy),
		},
		Registry: RegistryIndex{
			Methods:  Build(events, DimMethod),
			Statuses: Build(events, DimStatus),
			Stages:   Build(events, DimFailStage),
		},
	}
}
