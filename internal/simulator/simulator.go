package simulator

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/spaceai-audit-explorer/internal/audit"
)

// Rand — источник случайности. *rand.Rand из math/rand/v2 подходит как есть;
// в тестах подставляется фиксированный бросок.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// globalRand делегирует в пакетные функции math/rand/v2 (они потокобезопасны).
type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) IntN(n int) int   { return rand.IntN(n) }

// Профили агентов: агент → доступные ему инструменты. Порядок фиксирован ради воспроизводимости.
var agentProfiles = []struct {
	ID    string
	Tools []string
}{
	{"HQ-Server", []string{"Wireshark", "SysInternals", "ProcessHacker"}},
	{"Dev-PC-01", []string{"VSCode", "Git", "Postman", "Docker"}},
	{"Finance-L02", []string{"Excel_Macro", "SAP_Client"}},
	{"Gateway-A", []string{"Nmap", "Tcpdump", "NetCat"}},
}

var (
	targetAgents   = []string{"Agent-Team-A", "Agent-Team-B", "Backup-Server"}
	users          = []string{"admin", "guest", "developer", "manager"}
	accessPolicies = []audit.AccessPolicy{audit.PolicyAgentAccess, audit.PolicyToolAccess}
	actors         = []string{"Auth-Server", "Manager-Web", "Agent-Client", "Unknown-User"}
)

// Option настраивает Simulator.
type Option func(*Simulator)

// WithRand подменяет источник случайности.
func WithRand(r Rand) Option {
	return func(s *Simulator) { s.rng = r }
}

// WithPipeline подменяет таблицу стадий.
func WithPipeline(p Pipeline) Option {
	return func(s *Simulator) { s.pipeline = p }
}

// WithUUIDs — id событий как UUID вместо порядкового номера (для заливки в общее хранилище).
func WithUUIDs() Option {
	return func(s *Simulator) { s.idFor = func(int) string { return uuid.NewString() } }
}

// Simulator — генератор событий обоих потоков. Каждый вызов — независимый бросок.
type Simulator struct {
	rng      Rand
	pipeline Pipeline
	idFor    func(idx int) string
}

func New(opts ...Option) *Simulator {
	s := &Simulator{
		rng:      globalRand{},
		pipeline: DefaultPipeline(),
		idFor:    strconv.Itoa,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pipeline возвращает таблицу стадий, по которой работает генератор.
func (s *Simulator) Pipeline() Pipeline { return s.pipeline }

// Registry генерирует событие реестра для операции idx в момент timestamp.
// Порядок обращений к источнику: метод, инициатор, бросок пайплайна, вариант отказа.
func (s *Simulator) Registry(idx int, timestamp string) audit.Event {
	method := audit.Methods[s.rng.IntN(len(audit.Methods))]
	actor := actors[s.rng.IntN(len(actors))]
	res := s.pipeline.Walk(method, s.rng.Float64(), s.rng.IntN)

	return mustEvent(audit.NewRegistryEvent(s.idFor(idx), timestamp, res.Outcome.Message, audit.RegistryOperation{
		Actor:     actor,
		Method:    method,
		Status:    res.Outcome.Status,
		FailStage: res.Stage,
	}))
}

// Agent генерирует событие доступа пользователя к агенту или к инструменту агента.
func (s *Simulator) Agent(idx int, timestamp string) audit.Event {
	user := users[s.rng.IntN(len(users))]
	profile := agentProfiles[s.rng.IntN(len(agentProfiles))]
	policy := accessPolicies[s.rng.IntN(len(accessPolicies))]

	access := audit.AgentAccess{AgentID: profile.ID, User: user, Policy: policy}
	var message string
	if policy == audit.PolicyAgentAccess {
		access.TargetName = targetAgents[s.rng.IntN(len(targetAgents))]
		message = fmt.Sprintf("User '%s' accessed Agent '%s'", user, access.TargetName)
	} else {
		access.ToolName = profile.Tools[s.rng.IntN(len(profile.Tools))]
		message = fmt.Sprintf("User '%s' accessed Tool '%s'", user, access.ToolName)
	}

	return mustEvent(audit.NewAgentEvent(s.idFor(idx), timestamp, message, access))
}

// Timestamp — случайный момент в пределах последних 30 суток от now (дата и время суток независимо).
func (s *Simulator) Timestamp(now time.Time) string {
	day := now.AddDate(0, 0, -s.rng.IntN(30))
	t := time.Date(day.Year(), day.Month(), day.Day(),
		s.rng.IntN(24), s.rng.IntN(60), s.rng.IntN(60), 0, now.Location())
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// Generate собирает коллекцию из count событий: нечетные индексы дают реестр, четные агентов.
// Результат отсортирован от новых к старым.
func (s *Simulator) Generate(count int, now time.Time) []audit.Event {
	events := make([]audit.Event, 0, max(count, 0))
	for i := 0; i < count; i++ {
		ts := s.Timestamp(now)
		if i%2 != 0 {
			events = append(events, s.Registry(i, ts))
		} else {
			events = append(events, s.Agent(i, ts))
		}
	}
	audit.SortNewestFirst(events)
	return events
}

// mustEvent: таблицы генератора согласованы с инвариантами модели, ошибка здесь означает дефект таблицы.
func mustEvent(e audit.Event, err error) audit.Event {
	if err != nil {
		panic(fmt.Sprintf("simulator: generated invalid event: %v", err))
	}
	return e
}
