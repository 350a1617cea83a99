// Package simulator генерирует синтетические события аудита, когда живой телеметрии нет.
//
// Событие реестра получается проходом по пайплайну валидации карточки агента:
// проверка токена → схема → политика → ресурс/количество узлов → успех.
// Пайплайн описан явной таблицей шагов; один равномерный бросок r ∈ [0,1) на событие
// разбивается на упорядоченные поддиапазоны, последний остаток отдан успеху.
package simulator

import "github.com/xela07ax/spaceai-audit-explorer/internal/audit"

// Метки стадий пайплайна, попадают в fail_stage как есть.
const (
	StageAuthentication = "authentication check"
	StageSchema         = "schema check"
	StagePolicy         = "policy check"
	StageNodeCount      = "node count check"
	StageResource       = "resource check"
	StageSuccess        = audit.StageSuccess
)

// Коды успеха. Create отвечает 291: отдельный код пайплайна регистрации, не опечатка 200.
const (
	StatusOK      = 200
	StatusCreated = 291
)

// Outcome — код и сообщение терминального состояния.
type Outcome struct {
	Status  int
	Message string
}

// Step — стадия, которая срабатывает, если бросок меньше Upper.
// Outcomes — равновероятные варианты отказа на этой стадии.
type Step struct {
	Upper    float64
	Stage    string
	Outcomes []Outcome
}

// Branch — ветка метода после успешной проверки токена.
type Branch struct {
	Steps   []Step
	Success Outcome
}

// Result описывает, куда дошел запрос.
type Result struct {
	Stage   string
	Outcome Outcome
}

func (r Result) Succeeded() bool { return r.Stage == StageSuccess }

// Pipeline — конечный автомат: общий первый шаг и ветки по методам.
type Pipeline struct {
	Auth     Step
	Branches map[audit.Method]Branch
	Fallback Outcome // метод без ветки: токен прошел, дальше проверять нечего
}

// DefaultPipeline — пайплайн регистрации карточек агентов.
func DefaultPipeline() Pipeline {
	return Pipeline{
		Auth: Step{Upper: 0.1, Stage: StageAuthentication, Outcomes: []Outcome{
			{401, "Token Missing or Invalid Format"},
			{401, "Token Expired"},
			{403, "Token Permission Mismatch"},
		}},
		Branches: map[audit.Method]Branch{
			audit.MethodCreate: {
				Steps: []Step{
					{Upper: 0.3, Stage: StageSchema, Outcomes: []Outcome{
						{400, "JSON Syntax Error"},
						{422, "Required Field Missing"},
						{413, "Max Bytes Exceeded"},
						{498, "Signature Field JWS Mismatch"},
					}},
					{Upper: 0.4, Stage: StagePolicy, Outcomes: []Outcome{
						{409, "Conflict: Duplicate Name/URL"},
						{403, "Unknown URL Policy"},
					}},
					{Upper: 0.5, Stage: StageNodeCount, Outcomes: []Outcome{
						{422, "Node Count Exceeds Range"},
					}},
				},
				Success: Outcome{StatusCreated, "Agent Card Registered Successfully"},
			},
			audit.MethodRead: {
				Success: Outcome{StatusOK, "Agent Card Retrieved"},
			},
			audit.MethodUpdate: {
				Steps: []Step{
					{Upper: 0.3, Stage: StageSchema, Outcomes: []Outcome{{422, "Required Field Missing (Update)"}}},
					{Upper: 0.4, Stage: StagePolicy, Outcomes: []Outcome{{409, "Conflict: Name already exists"}}},
					{Upper: 0.5, Stage: StageResource, Outcomes: []Outcome{{404, "Target Agent Card Not Found"}}},
				},
				Success: Outcome{StatusOK, "Agent Card Updated"},
			},
			audit.MethodDelete: {
				Steps: []Step{
					{Upper: 0.2, Stage: StageResource, Outcomes: []Outcome{{404, "Target Agent Card Not Found"}}},
				},
				Success: Outcome{StatusOK, "Agent Card Deleted"},
			},
		},
		Fallback: Outcome{StatusOK, "Request processed successfully"},
	}
}

// Walk по одному броску r определяет стадию и исход.
// pick(n) выбирает вариант отказа из n равновероятных; состояние между вызовами не хранится.
func (p Pipeline) Walk(method audit.Method, r float64, pick func(n int) int) Result {
	if r < p.Auth.Upper {
		return p.Auth.resolve(pick)
	}

	branch, ok := p.Branches[method]
	if !ok {
		return Result{Stage: StageSuccess, Outcome: p.Fallback}
	}
	for _, step := range branch.Steps {
		if r < step.Upper {
			return step.resolve(pick)
		}
	}
	return Result{Stage: StageSuccess, Outcome: branch.Success}
}

func (s Step) resolve(pick func(n int) int) Result {
	i := 0
	if len(s.Outcomes) > 1 {
		i = pick(len(s.Outcomes))
		// pick из внешнего источника: за границы не выходим
		if i < 0 || i >= len(s.Outcomes) {
			i = 0
		}
	}
	return Result{Stage: s.Stage, Outcome: s.Outcomes[i]}
}

// StatusesFor перечисляет коды, которые может выдать стадия метода.
func (p Pipeline) StatusesFor(method audit.Method, stage string) []int {
	var steps []Step
	if stage == p.Auth.Stage {
		steps = append(steps, p.Auth)
	}
	for _, s := range p.Branches[method].Steps {
		if s.Stage == stage {
			steps = append(steps, s)
		}
	}

	var out []int
	for _, s := range steps {
		for _, o := range s.Outcomes {
			out = append(out, o.Status)
		}
	}
	if stage == StageSuccess {
		if b, ok := p.Branches[method]; ok {
			out = append(out, b.Success.Status)
		} else {
			out = append(out, p.Fallback.Status)
		}
	}
	return out
}
