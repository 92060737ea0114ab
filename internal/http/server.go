// Package http exposes the ledger as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"financas/internal/auth"
	"financas/internal/cache"
	"financas/internal/core"
	"financas/internal/ledger"
	"financas/internal/log"
	"financas/internal/middleware/ratelimit"
	"financas/internal/middleware/security"
	"financas/internal/middleware/trace"
)

const maxBodyBytes = 1 << 20

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the API server.
type Deps struct {
	Ledger *ledger.Service
	Auth   *auth.Service
	Pinger Pinger
	Logger *log.Logger

	RateLimitPerMinute int
	CacheTTL           time.Duration
	CacheSize          int
}

type Server struct {
	http.Server
	ledger *ledger.Service
	auth   *auth.Service
	pinger Pinger
	logger *log.Logger

	dashboardCache *cache.LRUCache[core.Summary]
	cacheManager   *cache.Manager

	// generations counts invalidations per user. A summary is cached only
	// if no invalidation happened while it was being computed.
	genMu       sync.Mutex
	generations map[string]uint64

	limiter        *ratelimit.Limiter
	detector       *security.Detector
	tracer         *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)
	if deps.CacheTTL <= 0 {
		deps.CacheTTL = 5 * time.Minute
	}
	if deps.CacheSize <= 0 {
		deps.CacheSize = 200
	}

	s := &Server{
		ledger:         deps.Ledger,
		auth:           deps.Auth,
		pinger:         deps.Pinger,
		logger:         logger,
		dashboardCache: cache.NewLRUCache[core.Summary](deps.CacheSize, deps.CacheTTL),
		generations:    make(map[string]uint64),
		cacheManager:   cache.NewManager(logger),
		limiter:        ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		detector:       security.NewDetector(),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)
	s.cacheManager.Register(s.dashboardCache)
	s.cacheManager.StartCleanup(time.Minute)

	mux := http.NewServeMux()
	s.routes(mux)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	var handler http.Handler = mux
	handler = s.limitMutations(handler)
	handler = s.detector.Middleware(logger, true)(handler)
	handler = headers.Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/auth/signup", s.handleSignUp)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	mux.Handle("GET /api/transactions", s.protected(s.handleListTransactions))
	mux.Handle("POST /api/transactions", s.protected(s.handleCreateTransaction))
	mux.Handle("GET /api/transactions/{id}", s.protected(s.handleGetTransaction))
	mux.Handle("PATCH /api/transactions/{id}", s.protected(s.handleUpdateTransaction))
	mux.Handle("DELETE /api/transactions/{id}", s.protected(s.handleDeleteTransaction))

	mux.Handle("GET /api/goals", s.protected(s.handleListGoals))
	mux.Handle("POST /api/goals", s.protected(s.handleCreateGoal))
	mux.Handle("GET /api/goals/{id}", s.protected(s.handleGetGoal))
	mux.Handle("PATCH /api/goals/{id}", s.protected(s.handleUpdateGoal))
	mux.Handle("DELETE /api/goals/{id}", s.protected(s.handleDeleteGoal))
	mux.Handle("POST /api/goals/{id}/contributions", s.protected(s.handleContribute))
	mux.Handle("POST /api/goals/{id}/withdrawals", s.protected(s.handleWithdraw))

	mux.Handle("GET /api/dashboard", s.protected(s.handleDashboard))
	mux.Handle("GET /api/statement.pdf", s.protected(s.handleStatement))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errRouteNotFound)
	})
}

// userHandler is an API handler that runs for an authenticated user.
type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (s *Server) protected(h userHandler) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, _ := auth.UserIDFromContext(r.Context())
		h(w, r.WithContext(log.NewContext(r.Context(), log.FromContext(r.Context()).With(log.FieldUserID, uid))), uid)
	})
	return s.auth.RequireUser(writeError)(inner)
}

// limitMutations applies the per-IP rate limit to state-changing requests.
func (s *Server) limitMutations(next http.Handler) http.Handler {
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		writeError(w, r, errRateLimited)
	})(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			limited.ServeHTTP(w, r)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// invalidate drops every cached view of userID's data.
func (s *Server) invalidate(userID string) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.generations[userID]++
	s.dashboardCache.DeletePrefix(dashboardPrefix(userID))
}

func (s *Server) generation(userID string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[userID]
}

// cacheSummary stores sum unless userID's data changed after gen was read.
func (s *Server) cacheSummary(userID, key string, gen uint64, sum core.Summary) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generations[userID] != gen {
		return
	}
	s.dashboardCache.Set(key, sum)
}

// Shutdown stops background goroutines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
