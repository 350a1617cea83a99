package postgres

/*
Файл audit_repo.go — хранилище событий аудита в PostgreSQL.
Обозреватель читает из него снимок коллекции (FetchEvents), seed-утилита пишет пачки (WriteBatch).
Таблица плоская: колонки обоих вариантов события, неиспользуемые остаются NULL.
*/

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-audit-explorer/internal/audit"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS audit_events (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	ts          TIMESTAMPTZ NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	agent_id    TEXT,
	username    TEXT,
	policy      TEXT,
	target_name TEXT,
	tool_name   TEXT,
	actor       TEXT,
	method      TEXT,
	status      INTEGER,
	fail_stage  TEXT
);
CREATE INDEX IF NOT EXISTS audit_events_ts_idx ON audit_events (ts DESC);`

const selectEventsSQL = `
	SELECT id, source, ts, message,
		COALESCE(agent_id, ''), COALESCE(username, ''), COALESCE(policy, ''),
		COALESCE(target_name, ''), COALESCE(tool_name, ''),
		COALESCE(actor, ''), COALESCE(method, ''), COALESCE(status, 0), COALESCE(fail_stage, '')
	FROM audit_events
	ORDER BY ts DESC
	LIMIT $1`

const insertEventSQL = `
	INSERT INTO audit_events (id, source, ts, message, agent_id, username, policy, target_name, tool_name,
		actor, method, status, fail_stage)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (id) DO NOTHING`

// Options — параметры пула и выборки.
type Options struct {
	MaxConns   int32
	MinConns   int32
	FetchLimit int
}

type AuditRepo struct {
	pool   *pgxpool.Pool
	limit  int
	logger *zap.Logger
}

// NewAuditRepo открывает пул и сразу проверяет доступность базы.
func NewAuditRepo(ctx context.Context, connString string, opts Options, logger *zap.Logger) (*AuditRepo, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: invalid connection string: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	cfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: database unreachable: %w", err)
	}

	if opts.FetchLimit <= 0 {
		opts.FetchLimit = 1000
	}
	return &AuditRepo{pool: pool, limit: opts.FetchLimit, logger: logger.With(zap.String("mod", "audit-repo"))}, nil
}

// EnsureSchema создает таблицу, если ее еще нет.
func (r *AuditRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: failed to ensure schema: %w", err)
	}
	return nil
}

func (r *AuditRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *AuditRepo) Close() {
	r.pool.Close()
}

// FetchEvents читает последние события. Строки, не прошедшие проверку модели, пропускаются.
func (r *AuditRepo) FetchEvents(ctx context.Context) ([]audit.Event, error) {
	rows, err := r.pool.Query(ctx, selectEventsSQL, r.limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]audit.Event, 0, r.limit)
	for rows.Next() {
		var row auditRow
		if err := rows.Scan(
			&row.ID, &row.Source, &row.TS, &row.Message,
			&row.AgentID, &row.User, &row.Policy, &row.TargetName, &row.ToolName,
			&row.Actor, &row.Method, &row.Status, &row.FailStage,
		); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan audit event: %w", err)
		}

		ev, err := row.toEvent()
		if err != nil {
			r.logger.Warn("audit row skipped", zap.String("id", row.ID), zap.Error(err))
			continue
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read audit events: %w", err)
	}
	return events, nil
}

// WriteBatch вставляет пачку одним round-trip; повторные id игнорируются.
func (r *AuditRepo) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		args, err := rowArgs(e)
		if err != nil {
			return err
		}
		batch.Queue(insertEventSQL, args...)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: failed to write audit batch: %w", err)
	}
	return nil
}

type auditRow struct {
	ID         string
	Source     string
	TS         time.Time
	Message    string
	AgentID    string
	User       string
	Policy     string
	TargetName string
	ToolName   string
	Actor      string
	Method     string
	Status     int
	FailStage  string
}

// eventTimeLayout — тот же вид, что у HTTP-источника: миллисекунды и Z.
const eventTimeLayout = "2006-01-02T15:04:05.000Z"

func (row auditRow) toEvent() (audit.Event, error) {
	ts := row.TS.UTC().Format(eventTimeLayout)
	switch audit.Source(row.Source) {
	case audit.SourceAgent:
		return audit.NewAgentEvent(row.ID, ts, row.Message, audit.AgentAccess{
			AgentID:    row.AgentID,
			User:       row.User,
			Policy:     audit.AccessPolicy(row.Policy),
			TargetName: row.TargetName,
			ToolName:   row.ToolName,
		})
	case audit.SourceRegistry:
		return audit.NewRegistryEvent(row.ID, ts, row.Message, audit.RegistryOperation{
			Actor:     row.Actor,
			Method:    audit.Method(row.Method),
			Status:    row.Status,
			FailStage: row.FailStage,
		})
	default:
		return audit.Event{}, fmt.Errorf("%w: %q", audit.ErrUnknownSource, row.Source)
	}
}

// rowArgs раскладывает событие по колонкам; поля чужого варианта уходят как NULL.
func rowArgs(e audit.Event) ([]any, error) {
	ts, err := audit.ParseTimestamp(e.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("postgres: event %s: %w", e.ID, err)
	}

	args := []any{e.ID, string(e.Source), ts, e.Message,
		nil, nil, nil, nil, nil, // agent
		nil, nil, nil, nil, // registry
	}
	switch {
	case e.Agent != nil:
		a := e.Agent
		args[4], args[5], args[6] = a.AgentID, a.User, string(a.Policy)
		args[7], args[8] = nullable(a.TargetName), nullable(a.ToolName)
	case e.Registry != nil:
		op := e.Registry
		args[9], args[10], args[11], args[12] = op.Actor, string(op.Method), op.Status, op.FailStage
	default:
		return nil, fmt.Errorf("postgres: event %s: %w", e.ID, audit.ErrUnknownSource)
	}
	return args, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
