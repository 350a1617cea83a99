package simulator

import (
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/xela07ax/spaceai-audit-explorer/internal/audit"
)

// fixedRand отдает заранее заданные значения по очереди.
type fixedRand struct {
	floats []float64
	ints   []int
}

func (f *fixedRand) Float64() float64 {
	if len(f.floats) == 0 {
		return 0.99
	}
	v := f.floats[0]
	f.floats = f.floats[1:]
	return v
}

func (f *fixedRand) IntN(n int) int {
	if len(f.ints) == 0 {
		return 0
	}
	v := f.ints[0]
	f.ints = f.ints[1:]
	return v % n
}

func TestPipelineWalk(t *testing.T) {
	p := DefaultPipeline()
	first := func(int) int { return 0 }

	tests := []struct {
		name       string
		method     audit.Method
		r          float64
		wantStage  string
		wantStatus int
	}{
		{"create auth failure", audit.MethodCreate, 0.05, StageAuthentication, 401},
		{"create schema at auth boundary", audit.MethodCreate, 0.1, StageSchema, 400},
		{"create policy", audit.MethodCreate, 0.3, StagePolicy, 409},
		{"create node count", audit.MethodCreate, 0.45, StageNodeCount, 422},
		{"create success at boundary", audit.MethodCreate, 0.5, StageSuccess, 291},
		{"create success", audit.MethodCreate, 0.99, StageSuccess, 291},
		{"read auth failure", audit.MethodRead, 0.0, StageAuthentication, 401},
		{"read success", audit.MethodRead, 0.1, StageSuccess, 200},
		{"update schema", audit.MethodUpdate, 0.2, StageSchema, 422},
		{"update policy", audit.MethodUpdate, 0.35, StagePolicy, 409},
		{"update resource", audit.MethodUpdate, 0.45, StageResource, 404},
		{"update success", audit.MethodUpdate, 0.7, StageSuccess, 200},
		{"delete resource", audit.MethodDelete, 0.15, StageResource, 404},
		{"delete success", audit.MethodDelete, 0.2, StageSuccess, 200},
		{"unknown method", audit.Method("Patch"), 0.5, StageSuccess, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Walk(tt.method, tt.r, first)
			if got.Stage != tt.wantStage || got.Outcome.Status != tt.wantStatus {
				t.Errorf("Walk(%s, %v) = %s/%d, want %s/%d",
					tt.method, tt.r, got.Stage, got.Outcome.Status, tt.wantStage, tt.wantStatus)
			}
			if got.Succeeded() != (tt.wantStage == StageSuccess) {
				t.Errorf("Succeeded() = %v for stage %s", got.Succeeded(), got.Stage)
			}
		})
	}
}

func TestPipelineWalkPicksOutcome(t *testing.T) {
	p := DefaultPipeline()

	got := p.Walk(audit.MethodCreate, 0.05, func(n int) int { return n - 1 })
	if got.Outcome.Status != 403 || got.Outcome.Message != "Token Permission Mismatch" {
		t.Errorf("last auth outcome = %+v", got.Outcome)
	}

	// pick вне диапазона не должен ронять автомат
	got = p.Walk(audit.MethodCreate, 0.2, func(int) int { return 42 })
	if got.Stage != StageSchema || got.Outcome.Status != 400 {
		t.Errorf("out-of-range pick = %+v", got)
	}
}

func TestRegistryCreateAuthFailure(t *testing.T) {
	// метод Create, инициатор Manager-Web, бросок в диапазон отказа токена, третий вариант
	sim := New(WithRand(&fixedRand{floats: []float64{0.05}, ints: []int{0, 1, 2}}))

	ev := sim.Registry(7, "2025-03-01T10:00:00.000Z")
	if ev.Source != audit.SourceRegistry || ev.Registry == nil {
		t.Fatalf("expected registry event, got %+v", ev)
	}
	if ev.ID != "7" {
		t.Errorf("ID = %q, want 7", ev.ID)
	}
	op := ev.Registry
	if op.Method != audit.MethodCreate || op.Actor != "Manager-Web" {
		t.Errorf("method/actor = %s/%s", op.Method, op.Actor)
	}
	if op.FailStage != StageAuthentication {
		t.Errorf("FailStage = %q, want %q", op.FailStage, StageAuthentication)
	}
	if op.Status != 401 && op.Status != 403 {
		t.Errorf("Status = %d, want 401 or 403", op.Status)
	}
}

func TestRegistryCreateSuccess(t *testing.T) {
	sim := New(WithRand(&fixedRand{floats: []float64{0.75}, ints: []int{0, 0}}))

	ev := sim.Registry(1, "2025-03-01T10:00:00.000Z")
	if ev.Registry.Status != 291 || ev.Registry.FailStage != StageSuccess {
		t.Errorf("got %d/%s, want 291/Success", ev.Registry.Status, ev.Registry.FailStage)
	}
	if ev.Message != "Agent Card Registered Successfully" {
		t.Errorf("Message = %q", ev.Message)
	}
}

func TestRegistryReadAlwaysSucceedsPastAuth(t *testing.T) {
	for _, r := range []float64{0.1, 0.2, 0.3, 0.45, 0.5, 0.8, 0.999} {
		sim := New(WithRand(&fixedRand{floats: []float64{r}, ints: []int{1, 0}}))
		ev := sim.Registry(3, "2025-03-01T10:00:00Z")
		if ev.Registry.Method != audit.MethodRead {
			t.Fatalf("method = %s, want Read", ev.Registry.Method)
		}
		if ev.Registry.Status != 200 || ev.Registry.FailStage != StageSuccess {
			t.Errorf("r=%v: got %d/%s, want 200/Success", r, ev.Registry.Status, ev.Registry.FailStage)
		}
	}
}

func TestRegistryOutcomesStayInStageEnumeration(t *testing.T) {
	sim := New(WithRand(rand.New(rand.NewPCG(1, 2))))
	p := sim.Pipeline()

	for i := 0; i < 2000; i++ {
		ev := sim.Registry(i, "2025-03-01T10:00:00Z")
		op := ev.Registry
		allowed := p.StatusesFor(op.Method, op.FailStage)
		if !slices.Contains(allowed, op.Status) {
			t.Fatalf("event %d: status %d not allowed for %s/%s (allowed %v)",
				i, op.Status, op.Method, op.FailStage, allowed)
		}
		if (op.FailStage == StageSuccess) != op.Succeeded() {
			t.Fatalf("event %d: stage %s inconsistent with status %d", i, op.FailStage, op.Status)
		}
	}
}

func TestAgentEventVariantFields(t *testing.T) {
	tests := []struct {
		name   string
		ints   []int
		policy audit.AccessPolicy
	}{
		// user, profile, policy, target/tool
		{"agent access", []int{0, 1, 0, 2}, audit.PolicyAgentAccess},
		{"tool access", []int{3, 1, 1, 3}, audit.PolicyToolAccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := New(WithRand(&fixedRand{ints: tt.ints}))
			ev := sim.Agent(0, "2025-03-01T10:00:00Z")
			a := ev.Agent
			if a == nil || a.AgentID != "Dev-PC-01" || a.Policy != tt.policy {
				t.Fatalf("unexpected agent event %+v", a)
			}
			switch tt.policy {
			case audit.PolicyAgentAccess:
				if a.TargetName != "Backup-Server" || a.ToolName != "" {
					t.Errorf("target/tool = %q/%q", a.TargetName, a.ToolName)
				}
			case audit.PolicyToolAccess:
				if a.ToolName != "Docker" || a.TargetName != "" {
					t.Errorf("target/tool = %q/%q", a.TargetName, a.ToolName)
				}
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	sim := New(WithRand(rand.New(rand.NewPCG(7, 7))))

	events := sim.Generate(30, now)
	if len(events) != 30 {
		t.Fatalf("len = %d, want 30", len(events))
	}

	var agents, registry int
	ids := make(map[string]struct{})
	for i, ev := range events {
		switch ev.Source {
		case audit.SourceAgent:
			agents++
		case audit.SourceRegistry:
			registry++
		}
		ids[ev.ID] = struct{}{}

		if i > 0 && events[i-1].Time().Before(ev.Time()) {
			t.Errorf("events not sorted newest-first at %d", i)
		}
		if ev.Time().Before(now.AddDate(0, 0, -31)) || ev.Time().After(now.AddDate(0, 0, 1)) {
			t.Errorf("timestamp %s outside the 30 day window", ev.Timestamp)
		}
	}
	if agents != 15 || registry != 15 {
		t.Errorf("agents/registry = %d/%d, want 15/15", agents, registry)
	}
	if len(ids) != 30 {
		t.Errorf("ids not unique: %d distinct", len(ids))
	}
}

func TestWithUUIDs(t *testing.T) {
	sim := New(WithUUIDs())
	a := sim.Registry(1, "2025-03-01T10:00:00Z")
	b := sim.Registry(1, "2025-03-01T10:00:00Z")
	if a.ID == b.ID || len(a.ID) != 36 {
		t.Errorf("expected distinct uuids, got %q and %q", a.ID, b.ID)
	}
}
