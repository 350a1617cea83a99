package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-audit-explorer/internal/console/handler"
	"github.com/xela07ax/spaceai-audit-explorer/internal/explorer"
	"github.com/xela07ax/spaceai-audit-explorer/internal/infra"
	"github.com/xela07ax/spaceai-audit-explorer/internal/infra/auth"
)

const issuer = "audit-console"

func newServer(t *testing.T, cfg infra.ServerConfig, v auth.TokenValidator) *ConsoleServer {
	t.Helper()
	reg := prometheus.NewRegistry()
	x := explorer.New(nil, explorer.Options{MockSize: 10}, explorer.NewMetrics(reg), zap.NewNop())
	if _, err := x.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	return NewConsoleServer(cfg, zap.NewNop(), v,
		handler.NewExplorerHandler(x, zap.NewNop()),
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}

func token(t *testing.T, key *rsa.PrivateKey, scopes map[string]bool) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, auth.Claims{
		UserID: "u-1",
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func get(s http.Handler, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestPublicRoutes(t *testing.T) {
	s := newServer(t, infra.ServerConfig{}, nil)

	if rec := get(s, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("/health = %d", rec.Code)
	}
	rec := get(s, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "explorer_snapshot_events 10") {
		t.Errorf("/metrics = %d\n%s", rec.Code, rec.Body)
	}
	if rec := get(s, "/v1/explorer/agent/", ""); rec.Code != http.StatusOK {
		t.Errorf("open API = %d", rec.Code)
	}
}

func TestExplorerRequiresToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	s := newServer(t, infra.ServerConfig{}, auth.NewBaseValidator(&key.PublicKey, issuer))

	tests := []struct {
		name   string
		bearer string
		want   int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
		{"missing scope", token(t, key, map[string]bool{"other": true}), http.StatusForbidden},
		{"audit reader", token(t, key, map[string]bool{auth.ScopeAuditRead: true}), http.StatusOK},
		{"admin", token(t, key, map[string]bool{auth.ScopeAdmin: true}), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := get(s, "/v1/explorer/registry/", tt.bearer); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	// health остается публичным
	if rec := get(s, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("/health behind auth: %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	s := newServer(t, infra.ServerConfig{RateLimit: 2}, nil)
	var last int
	for range 3 {
		last = get(s, "/health", "").Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", last)
	}
}

func TestRequestIDHeaderAllowedByCORS(t *testing.T) {
	s := newServer(t, infra.ServerConfig{CORSOrigins: []string{"http://console.local"}}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/v1/explorer/agent/", nil)
	req.Header.Set("Origin", "http://console.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://console.local" {
		t.Errorf("Allow-Origin = %q", got)
	}
}
