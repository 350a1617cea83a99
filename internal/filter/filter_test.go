package filter

import (
	"math/rand/v2"
	"slices"
	"testing"
	"testing/quick"
	"time"

	"github.com/xela07ax/spaceai-audit-explorer/internal/audit"
	"github.com/xela07ax/spaceai-audit-explorer/internal/simulator"
)

func agentEvent(t *testing.T, id, ts, agentID, user, tool, msg string) audit.Event {
	t.Helper()
	a := audit.AgentAccess{AgentID: agentID, User: user, Policy: audit.PolicyToolAccess, ToolName: tool}
	if tool == "" {
		a.Policy = audit.PolicyAgentAccess
		a.TargetName = "Backup-Server"
	}
	e, err := audit.NewAgentEvent(id, ts, msg, a)
	if err != nil {
		t.Fatalf("NewAgentEvent(%s): %v", id, err)
	}
	return e
}

func registryEvent(t *testing.T, id, ts, actor string, method audit.Method, status int, stage, msg string) audit.Event {
	t.Helper()
	e, err := audit.NewRegistryEvent(id, ts, msg, audit.RegistryOperation{
		Actor: actor, Method: method, Status: status, FailStage: stage,
	})
	if err != nil {
		t.Fatalf("NewRegistryEvent(%s): %v", id, err)
	}
	return e
}

func fixture(t *testing.T) []audit.Event {
	return []audit.Event{
		agentEvent(t, "1", "2025-03-03T09:15:00.000Z", "Dev-PC-01", "developer", "Git", "User 'developer' accessed Agent/Tool 'Git'"),
		registryEvent(t, "2", "2025-03-02T18:00:00.000Z", "Manager-Web", audit.MethodCreate, 291, audit.StageSuccess, "Agent Card Registered Successfully"),
		agentEvent(t, "3", "2025-03-02T12:00:00.000Z", "HQ-Server", "admin", "", "User 'admin' accessed Agent/Tool 'Backup-Server'"),
		registryEvent(t, "4", "2025-03-01T23:59:59.000Z", "Auth-Server", audit.MethodUpdate, 404, "resource check", "Resource Not Found"),
		agentEvent(t, "5", "2025-03-01T08:00:00.000Z", "Dev-PC-01", "guest", "Docker", "User 'guest' accessed Agent/Tool 'Docker'"),
		registryEvent(t, "6", "2025-03-01T00:00:00.000Z", "Unknown-User", audit.MethodCreate, 401, "authentication check", "Token Expired"),
	}
}

func ids(events []audit.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestReduceUnfilteredIsIdentity(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	identity := func(seed uint64, n uint8) bool {
		sim := simulator.New(simulator.WithRand(rand.New(rand.NewPCG(seed, seed^0x9e37))))
		events := sim.Generate(int(n%64), now)

		var wantAgent, wantRegistry []string
		for _, e := range events {
			if e.Source == audit.SourceAgent {
				wantAgent = append(wantAgent, e.ID)
			} else {
				wantRegistry = append(wantRegistry, e.ID)
			}
		}

		agent := ReduceAgent(events, AgentFilter{})
		registry := ReduceRegistry(events, RegistryFilter{})
		return slices.Equal(ids(agent.Events), wantAgent) && !agent.NoMatches &&
			slices.Equal(ids(registry.Events), wantRegistry) && !registry.NoMatches
	}

	if err := quick.Check(identity, &quick.Config{MaxCount: 200}); err != nil {
		t.Error(err)
	}
}

func TestReduceAgentSets(t *testing.T) {
	events := fixture(t)

	tests := []struct {
		name   string
		filter AgentFilter
		want   []string
	}{
		{"agent included", AgentFilter{AgentIDs: []string{"Dev-PC-01"}}, []string{"1", "5"}},
		{"agent excluded", AgentFilter{AgentIDs: []string{"Gateway-A"}}, []string{}},
		{"tool narrows agent", AgentFilter{AgentIDs: []string{"Dev-PC-01"}, ToolNames: []string{"Docker"}}, []string{"5"}},
		{"policy", AgentFilter{Policies: []string{"agent-access"}}, []string{"3"}},
		// инструмент есть только у tool-access, у agent-access событие выпадает
		{"tool excludes agent-access", AgentFilter{ToolNames: []string{"Git", "Docker"}}, []string{"1", "5"}},
		{"strict and", AgentFilter{AgentIDs: []string{"HQ-Server"}, Policies: []string{"tool-access"}}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReduceAgent(events, tt.filter)
			if !slices.Equal(ids(got.Events), tt.want) {
				t.Errorf("ReduceAgent = %v, want %v", ids(got.Events), tt.want)
			}
			if got.NoMatches != (len(tt.want) == 0) {
				t.Errorf("NoMatches = %v", got.NoMatches)
			}
		})
	}
}

func TestReduceRegistrySets(t *testing.T) {
	events := fixture(t)

	tests := []struct {
		name   string
		filter RegistryFilter
		want   []string
	}{
		{"method", RegistryFilter{Methods: []string{"Create"}}, []string{"2", "6"}},
		{"status as decimal string", RegistryFilter{Statuses: []string{"291"}}, []string{"2"}},
		{"two statuses", RegistryFilter{Statuses: []string{"401", "404"}}, []string{"4", "6"}},
		{"stage", RegistryFilter{Stages: []string{"resource check"}}, []string{"4"}},
		{"method and stage", RegistryFilter{Methods: []string{"Create"}, Stages: []string{audit.StageSuccess}}, []string{"2"}},
		{"selected value not present", RegistryFilter{Methods: []string{"Delete"}}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReduceRegistry(events, tt.filter)
			if !slices.Equal(ids(got.Events), tt.want) {
				t.Errorf("ReduceRegistry = %v, want %v", ids(got.Events), tt.want)
			}
		})
	}
}

func TestReduceDateBoundsInclusive(t *testing.T) {
	events := fixture(t)

	tests := []struct {
		name  string
		dates DateRange
		agent []string
		reg   []string
	}{
		{"exact bounds", DateRange{Start: "2025-03-01T08:00:00", End: "2025-03-03T09:15:00"}, []string{"1", "3", "5"}, []string{"2", "4"}},
		{"start only", DateRange{Start: "2025-03-02 00:00"}, []string{"1", "3"}, []string{"2"}},
		{"end only", DateRange{End: "2025-03-01T23:59:59.000Z"}, []string{"5"}, []string{"4", "6"}},
		{"timestamp equals start", DateRange{Start: "2025-03-01 00:00:00"}, []string{"1", "3", "5"}, []string{"2", "4", "6"}},
		{"empty window", DateRange{Start: "2025-04-01", End: "2025-04-02"}, []string{}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ids(ReduceAgent(events, AgentFilter{Dates: tt.dates}).Events); !slices.Equal(got, tt.agent) {
				t.Errorf("agent = %v, want %v", got, tt.agent)
			}
			if got := ids(ReduceRegistry(events, RegistryFilter{Dates: tt.dates}).Events); !slices.Equal(got, tt.reg) {
				t.Errorf("registry = %v, want %v", got, tt.reg)
			}
		})
	}
}

func TestReduceQuery(t *testing.T) {
	events := fixture(t)

	tests := []struct {
		name  string
		query string
		agent []string
		reg   []string
	}{
		{"user field, mixed case", "DEVeloper", []string{"1"}, []string{}},
		{"message substring", "docker", []string{"5"}, []string{}},
		{"actor field", "manager-web", []string{}, []string{"2"}},
		{"registry message", "token EXPIRED", []string{}, []string{"6"}},
		// agent_id не участвует в поиске
		{"agent id is not searched", "HQ-Server", []string{}, []string{}},
		{"shared substring", "e", []string{"1", "3", "5"}, []string{"2", "4", "6"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ids(ReduceAgent(events, AgentFilter{Query: tt.query}).Events); !slices.Equal(got, tt.agent) {
				t.Errorf("agent = %v, want %v", got, tt.agent)
			}
			if got := ids(ReduceRegistry(events, RegistryFilter{Query: tt.query}).Events); !slices.Equal(got, tt.reg) {
				t.Errorf("registry = %v, want %v", got, tt.reg)
			}
		})
	}
}

func TestReduceQueryUnicodeFolding(t *testing.T) {
	e := agentEvent(t, "1", "2025-03-01T10:00:00Z", "Finance-L02", "Straße", "Excel_Macro", "Отчёт ВЫГРУЖЕН")
	for _, q := range []string{"STRASSE", "выгружен", "отчёт"} {
		if got := ReduceAgent([]audit.Event{e}, AgentFilter{Query: q}); len(got.Events) != 1 {
			t.Errorf("query %q did not match", q)
		}
	}
}

func TestReduceNoDataIsNotNoMatches(t *testing.T) {
	got := ReduceAgent(nil, AgentFilter{AgentIDs: []string{"HQ-Server"}})
	if got.NoMatches || got.Events == nil || len(got.Events) != 0 {
		t.Errorf("empty input: got %+v", got)
	}

	// только события чужого варианта — тоже «нет данных»
	registryOnly := fixture(t)[1:2]
	if got := ReduceAgent(registryOnly, AgentFilter{}); got.NoMatches {
		t.Errorf("registry-only input reported NoMatches for agent view")
	}
}

func TestClearSelectionsKeepsDatesAndQuery(t *testing.T) {
	f := AgentFilter{
		Dates:     DateRange{Start: "2025-03-01"},
		AgentIDs:  []string{"HQ-Server"},
		ToolNames: []string{"Wireshark"},
		Policies:  []string{"tool-access"},
		Query:     "admin",
	}
	got := f.ClearSelections()
	if got.AgentIDs != nil || got.ToolNames != nil || got.Policies != nil {
		t.Errorf("selections not cleared: %+v", got)
	}
	if got.Dates != f.Dates || got.Query != f.Query {
		t.Errorf("dates/query lost: %+v", got)
	}

	r := RegistryFilter{Methods: []string{"Read"}, Query: "x"}.ClearSelections()
	if r.Methods != nil || r.Query != "x" || r.IsZero() {
		t.Errorf("registry ClearSelections = %+v", r)
	}
}

func TestCloneDoesNotShareSelections(t *testing.T) {
	f := AgentFilter{AgentIDs: []string{"HQ-Server"}}
	c := f.Clone()
	c.AgentIDs[0] = "Gateway-A"
	if f.AgentIDs[0] != "HQ-Server" {
		t.Errorf("clone shares backing array")
	}
}

func TestSelection(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{nil, nil},
		{[]string{""}, nil},
		{[]string{"b", "a", "b", ""}, []string{"b", "a"}},
	}
	for _, tt := range tests {
		if got := Selection(tt.in); !slices.Equal(got, tt.want) || (tt.want == nil) != (got == nil) {
			t.Errorf("Selection(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
