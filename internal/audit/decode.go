package audit

import (
	"fmt"

	"github.com/goccy/go-json"
)

// record — плоская форма события на проводе (ответ /api/logs, строки audit_events, JSON для консоли).
type record struct {
	ID        recordID `json:"id"`
	Source    Source   `json:"source"`
	Timestamp string   `json:"timestamp"`
	Message   string   `json:"message"`

	// agent
	AgentID    string       `json:"agent_id,omitempty"`
	User       string       `json:"user,omitempty"`
	Policy     AccessPolicy `json:"policy,omitempty"`
	TargetName string       `json:"target_name,omitempty"`
	ToolName   string       `json:"tool_name,omitempty"`

	// registry
	Actor     string `json:"actor,omitempty"`
	Method    Method `json:"method,omitempty"`
	Status    *int   `json:"status,omitempty"`
	FailStage string `json:"fail_stage,omitempty"`
}

// recordID принимает id и числом, и строкой: генераторы и бэкенды пишут его по-разному.
type recordID string

func (id *recordID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = recordID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*id = recordID(n.String())
	return nil
}

func (e Event) toRecord() record {
	r := record{
		ID:        recordID(e.ID),
		Source:    e.Source,
		Timestamp: e.Timestamp,
		Message:   e.Message,
	}
	if e.Agent != nil {
		r.AgentID = e.Agent.AgentID
		r.User = e.Agent.User
		r.Policy = e.Agent.Policy
		r.TargetName = e.Agent.TargetName
		r.ToolName = e.Agent.ToolName
	}
	if e.Registry != nil {
		status := e.Registry.Status
		r.Actor = e.Registry.Actor
		r.Method = e.Registry.Method
		r.Status = &status
		r.FailStage = e.Registry.FailStage
	}
	return r
}

func (r record) toEvent() (Event, error) {
	switch r.Source {
	case SourceAgent:
		return NewAgentEvent(string(r.ID), r.Timestamp, r.Message, AgentAccess{
			AgentID:    r.AgentID,
			User:       r.User,
			Policy:     r.Policy,
			TargetName: r.TargetName,
			ToolName:   r.ToolName,
		})
	case SourceRegistry:
		op := RegistryOperation{Actor: r.Actor, Method: r.Method, FailStage: r.FailStage}
		if r.Status != nil {
			op.Status = *r.Status
		}
		return NewRegistryEvent(string(r.ID), r.Timestamp, r.Message, op)
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownSource, r.Source)
	}
}

// MarshalJSON сериализует событие в плоскую форму с полем source.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.toRecord())
}

// UnmarshalJSON разбирает плоскую запись и проверяет ее через конструктор варианта.
func (e *Event) UnmarshalJSON(data []byte) error {
	ev, err := DecodeEvent(data)
	if err != nil {
		return err
	}
	*e = ev
	return nil
}

// DecodeEvent разбирает одну запись. Ошибки синтаксиса и типов тоже считаются ErrInvalidRecord.
func DecodeEvent(data []byte) (Event, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return r.toEvent()
}

// RecordError описывает отброшенную запись пачки.
type RecordError struct {
	Index int
	Err   error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e RecordError) Unwrap() error { return e.Err }

// DecodeRecords разбирает JSON-массив событий. Битые записи и повторные id отбрасываются
// поштучно и возвращаются в rejected; ошибка возвращается, только если сам ответ не массив.
func DecodeRecords(data []byte) (events []Event, rejected []RecordError, err error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, nil, fmt.Errorf("%w: response is not a record array: %v", ErrInvalidRecord, err)
	}

	events = make([]Event, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	for i, raw := range raws {
		ev, err := DecodeEvent(raw)
		if err != nil {
			rejected = append(rejected, RecordError{Index: i, Err: err})
			continue
		}
		if _, dup := seen[ev.ID]; dup {
			rejected = append(rejected, RecordError{Index: i, Err: fmt.Errorf("%w: %s", ErrDuplicateID, ev.ID)})
			continue
		}
		seen[ev.ID] = struct{}{}
		events = append(events, ev)
	}
	return events, rejected, nil
}

// Dedupe отбрасывает повторные id в уже собранной коллекции (первое вхождение побеждает).
func Dedupe(events []Event) (kept []Event, dropped int) {
	seen := make(map[string]struct{}, len(events))
	kept = make([]Event, 0, len(events))
	for _, e := range events {
		if _, dup := seen[e.ID]; dup {
			dropped++
			continue
		}
		seen[e.ID] = struct{}{}
		kept = append(kept, e)
	}
	return kept, dropped
}
