package explorer

import (
	"cmp"
	"slices"
	"time"

	"github.com/xela07ax/spaceai-audit-explorer/internal/audit"
)

const topToolsLimit = 5

// Stats — сводка по всему снимку, без учета фильтров вкладок.
type Stats struct {
	Snapshot      Snapshot                  `json:"snapshot"`
	Total         int                       `json:"total"`
	BySource      map[audit.Source]int      `json:"by_source"`
	ByStatusClass map[audit.StatusClass]int `json:"by_status_class"`
	DeniedRatio   float64                   `json:"denied_ratio"` // доля denied среди событий реестра
	TopTools      []ToolUsage               `json:"top_tools"`
	DailyActivity []ActivityPoint           `json:"daily_activity"`
}

type ToolUsage struct {
	Tool  string `json:"tool"`
	Count int    `json:"count"`
}

type ActivityPoint struct {
	Day   string `json:"day"` // 2006-01-02
	Count int    `json:"count"`
}

// Stats считает сводку за один проход по снимку.
func (x *Explorer) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()

	st := Stats{
		Snapshot:      x.snap,
		Total:         len(x.events),
		BySource:      make(map[audit.Source]int, len(x.counts)),
		ByStatusClass: make(map[audit.StatusClass]int, 4),
		TopTools:      make([]ToolUsage, 0, topToolsLimit),
		DailyActivity: make([]ActivityPoint, 0),
	}
	for src, n := range x.counts {
		st.BySource[src] = n
	}

	tools := make(map[string]int)
	days := make(map[string]int)
	for _, e := range x.events {
		days[e.Time().Format(time.DateOnly)]++

		switch {
		case e.Agent != nil && e.Agent.ToolName != "":
			tools[e.Agent.ToolName]++
		case e.Registry != nil:
			st.ByStatusClass[audit.ClassifyStatus(e.Registry.Status)]++
		}
	}

	if n := st.BySource[audit.SourceRegistry]; n > 0 {
		st.DeniedRatio = float64(st.ByStatusClass[audit.StatusClassDenied]) / float64(n)
	}

	for tool, n := range tools {
		st.TopTools = append(st.TopTools, ToolUsage{Tool: tool, Count: n})
	}
	slices.SortFunc(st.TopTools, func(a, b ToolUsage) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Tool, b.Tool)
	})
	if len(st.TopTools) > topToolsLimit {
		st.TopTools = st.TopTools[:topToolsLimit]
	}

	for day, n := range days {
		st.DailyActivity = append(st.DailyActivity, ActivityPoint{Day: day, Count: n})
	}
	slices.SortFunc(st.DailyActivity, func(a, b ActivityPoint) int { return cmp.Compare(a.Day, b.Day) })

	return st
}
