package connectors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-audit-explorer/internal/audit"
)

const (
	logsPath        = "/api/logs"
	maxResponseSize = 32 << 20
	defaultThrottle = 2 * time.Second
)

// LogsAPI — HTTP-источник коллекции: GET {base}/api/logs отдает JSON-массив записей.
type LogsAPI struct {
	baseURL  string
	client   *http.Client
	logger   *zap.Logger
	onReject func(n int)
	now      func() time.Time
}

type LogsAPIOption func(*LogsAPI)

func WithHTTPClient(c *http.Client) LogsAPIOption {
	return func(a *LogsAPI) { a.client = c }
}

// WithRejectHook получает число отброшенных записей каждого ответа (для метрик).
func WithRejectHook(fn func(n int)) LogsAPIOption {
	return func(a *LogsAPI) { a.onReject = fn }
}

func NewLogsAPI(baseURL string, logger *zap.Logger, opts ...LogsAPIOption) *LogsAPI {
	a := &LogsAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger.With(zap.String("mod", "logs-api")),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FetchEvents загружает и декодирует коллекцию. Битые записи отбрасываются поштучно,
// ошибка только если недоступен сам источник или ответ не является массивом.
func (a *LogsAPI) FetchEvents(ctx context.Context) ([]audit.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+logsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("connectors: failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connectors: logs api unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("connectors: failed to read logs response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &ThrottleError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), a.now(), defaultThrottle),
			Cause:      &StatusError{Code: resp.StatusCode, Body: snippet(body)},
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{Code: resp.StatusCode, Body: snippet(body)}
	}

	events, rejected, err := audit.DecodeRecords(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if len(rejected) > 0 {
		for _, r := range rejected {
			a.logger.Warn("record dropped", zap.Int("index", r.Index), zap.Error(r.Err))
		}
		if a.onReject != nil {
			a.onReject(len(rejected))
		}
	}

	a.logger.Debug("logs fetched", zap.Int("events", len(events)), zap.Int("rejected", len(rejected)))
	return events, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
