package connectors

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrMalformedResponse — тело ответа не является JSON-массивом записей.
var ErrMalformedResponse = errors.New("connectors: malformed logs response")

type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }

// StatusError — источник ответил не-2xx.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("logs api responded %d: %s", e.Code, e.Body)
}

// Temporary: 5xx и 408 имеет смысл повторить, остальные 4xx нет.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusRequestTimeout
}

// parseRetryAfter понимает обе формы заголовка: секунды и HTTP-дату.
func parseRetryAfter(v string, now time.Time, fallback time.Duration) time.Duration {
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return fallback
}
