package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-audit-explorer/internal/console/handler"
	"github.com/xela07ax/spaceai-audit-explorer/internal/infra"
	"github.com/xela07ax/spaceai-audit-explorer/internal/infra/auth"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    infra.ServerConfig

	// Проверка токенов (RS256); nil — API открыт
	authValidator auth.TokenValidator

	explorerHandler *handler.ExplorerHandler // /v1/explorer
	metricsHandler  http.Handler             // /metrics
}

// NewConsoleServer собирает роутер консоли обозревателя
func NewConsoleServer(
	cfg infra.ServerConfig,
	logger *zap.Logger,
	validator auth.TokenValidator,
	explorerH *handler.ExplorerHandler,
	metrics http.Handler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("console-api"),
		cfg:             cfg,
		authValidator:   validator,
		explorerHandler: explorerH,
		metricsHandler:  metrics,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	if s.cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RateLimit, time.Minute))
	}

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		r.Get("/health", s.explorerHandler.Health)
		if s.metricsHandler != nil {
			r.Method(http.MethodGet, "/metrics", s.metricsHandler)
		}
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (RS256, если задан ключ) ---
	r.Group(func(r chi.Router) {
		if s.authValidator != nil {
			r.Use(auth.NewMiddleware(s.authValidator, auth.ScopeAuditRead, s.logger))
		}
		r.Mount("/v1/explorer", s.explorerHandler.Routes())
	})
}

// requestLogger — access-лог через zap вместо стандартного middleware.Logger.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
