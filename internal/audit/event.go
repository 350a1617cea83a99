package audit

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Source — дискриминант события: из какого потока аудита пришла запись.
type Source string

const (
	SourceAgent    Source = "agent"    // Доступ пользователя к агенту или его инструменту
	SourceRegistry Source = "registry" // Операции над карточками агентов в реестре
)

// AccessPolicy — какая политика сработала на доступ к агенту.
type AccessPolicy string

const (
	PolicyAgentAccess AccessPolicy = "agent-access" // Заполнен TargetName
	PolicyToolAccess  AccessPolicy = "tool-access"  // Заполнен ToolName
)

// Method — CRUD-операция над карточкой агента в реестре.
type Method string

const (
	MethodCreate Method = "Create"
	MethodRead   Method = "Read"
	MethodUpdate Method = "Update"
	MethodDelete Method = "Delete"
)

// Methods перечисляет операции реестра в порядке пайплайна.
var Methods = []Method{MethodCreate, MethodRead, MethodUpdate, MethodDelete}

// StageSuccess — метка fail_stage для операции, прошедшей все проверки.
const StageSuccess = "Success"

// TimestampLayout — нормализованный вид времени: одновременно лексикографический и хронологический порядок.
const TimestampLayout = "2006-01-02 15:04:05"

var (
	ErrUnknownSource = errors.New("audit: unknown event source")
	ErrInvalidRecord = errors.New("audit: invalid record")
	ErrDuplicateID   = errors.New("audit: duplicate event id")
)

// AgentAccess — поля, специфичные для событий доступа к агентам.
// Ровно одно из TargetName / ToolName заполнено в зависимости от Policy.
type AgentAccess struct {
	AgentID    string       `json:"agent_id" validate:"required"`
	User       string       `json:"user" validate:"required"`
	Policy     AccessPolicy `json:"policy" validate:"required,oneof=agent-access tool-access"`
	TargetName string       `json:"target_name,omitempty" validate:"required_if=Policy agent-access,excluded_if=Policy tool-access"`
	ToolName   string       `json:"tool_name,omitempty" validate:"required_if=Policy tool-access,excluded_if=Policy agent-access"`
}

// RegistryOperation — поля событий реестра (результат прохождения пайплайна валидации карточки).
type RegistryOperation struct {
	Actor     string `json:"actor" validate:"required"`
	Method    Method `json:"method" validate:"required,oneof=Create Read Update Delete"`
	Status    int    `json:"status" validate:"required,gte=100,lte=599"`
	FailStage string `json:"fail_stage" validate:"required"`
}

// Succeeded сообщает, завершилась ли операция без ошибки.
func (r RegistryOperation) Succeeded() bool {
	return r.Status < 400
}

// Event — запись аудита. Tagged union: Source определяет, какой из указателей Agent / Registry не nil.
// Создается только через NewAgentEvent / NewRegistryEvent или декодер, которые проверяют инварианты.
type Event struct {
	ID        string
	Source    Source
	Timestamp string
	Message   string

	Agent    *AgentAccess
	Registry *RegistryOperation
}

type header struct {
	ID        string `validate:"required"`
	Timestamp string `validate:"required,audit_timestamp"`
}

// NewAgentEvent собирает событие доступа к агенту и проверяет обязательные поля варианта.
func NewAgentEvent(id, timestamp, message string, a AgentAccess) (Event, error) {
	if err := validateStruct(header{ID: id, Timestamp: timestamp}); err != nil {
		return Event{}, err
	}
	if err := validateStruct(a); err != nil {
		return Event{}, err
	}
	return Event{ID: id, Source: SourceAgent, Timestamp: timestamp, Message: message, Agent: &a}, nil
}

// NewRegistryEvent собирает событие реестра.
// fail_stage = "Success" допустим тогда и только тогда, когда статус не является ошибкой.
func NewRegistryEvent(id, timestamp, message string, r RegistryOperation) (Event, error) {
	if err := validateStruct(header{ID: id, Timestamp: timestamp}); err != nil {
		return Event{}, err
	}
	if err := validateStruct(r); err != nil {
		return Event{}, err
	}
	if (r.FailStage == StageSuccess) != r.Succeeded() {
		return Event{}, fmt.Errorf("%w: fail_stage %q inconsistent with status %d", ErrInvalidRecord, r.FailStage, r.Status)
	}
	return Event{ID: id, Source: SourceRegistry, Timestamp: timestamp, Message: message, Registry: &r}, nil
}

// Time возвращает разобранное время события. Для событий, созданных конструкторами, ошибки не бывает.
func (e Event) Time() time.Time {
	t, _ := ParseTimestamp(e.Timestamp)
	return t
}

// Clone возвращает копию, не разделяющую память вариантов с оригиналом.
func (e Event) Clone() Event {
	if e.Agent != nil {
		a := *e.Agent
		e.Agent = &a
	}
	if e.Registry != nil {
		r := *e.Registry
		e.Registry = &r
	}
	return e
}

// NormalizeTimestamp приводит ISO-время к виду "2006-01-02 15:04:05":
// первый 'T' заменяется пробелом, остаток после секунд отбрасывается.
func NormalizeTimestamp(ts string) string {
	ts = strings.Replace(ts, "T", " ", 1)
	if len(ts) > len(TimestampLayout) {
		ts = ts[:len(TimestampLayout)]
	}
	return ts
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp разбирает абсолютное время в одном из допустимых форматов.
func ParseTimestamp(ts string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable timestamp %q", ErrInvalidRecord, ts)
}

// SortNewestFirst сортирует для отображения; вызывается один раз после загрузки.
func SortNewestFirst(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		return b.Time().Compare(a.Time())
	})
}

// StatusClass группирует коды ответа реестра для подсветки в интерфейсе.
type StatusClass string

const (
	StatusClassSuccess     StatusClass = "success"
	StatusClassDenied      StatusClass = "denied"
	StatusClassClientError StatusClass = "client_error"
	StatusClassOther       StatusClass = "other"
)

// ClassifyStatus: 291 здесь такой же успех, как 200 (отдельный код успешного Create).
func ClassifyStatus(status int) StatusClass {
	switch status {
	case 200, 291:
		return StatusClassSuccess
	case 401, 403, 409:
		return StatusClassDenied
	case 400, 404, 413, 422, 498:
		return StatusClassClientError
	default:
		return StatusClassOther
	}
}
