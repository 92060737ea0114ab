package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"financas/internal/cache"
	"financas/internal/core"
	"financas/internal/log"
	"financas/internal/middleware/ratelimit"
	"financas/internal/middleware/security"
	"financas/internal/middleware/trace"
	"financas/internal/report"
)

func dashboardPrefix(userID string) string {
	return "dashboard:" + userID + ":"
}

func dashboardKey(userID string, year, month int) string {
	return dashboardPrefix(userID) + fmt.Sprintf("%04d-%02d", year, month)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, userID string) {
	year, month, err := parseYearMonth(r, time.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := dashboardKey(userID, year, month)
	if sum, ok := s.dashboardCache.Get(key); ok {
		w.Header().Set("X-Cache", "HIT")
		writeJSON(w, http.StatusOK, sum)
		return
	}

	gen := s.generation(userID)
	sum, err := s.ledger.Summary(r.Context(), userID, year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.cacheSummary(userID, key, gen, sum)
	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()
	year, month, err := parseYearMonth(r, time.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}

	account, err := s.auth.Account(ctx, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sum, err := s.ledger.Summary(ctx, userID, year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	txs, err := s.ledger.ListTransactions(ctx, userID, core.TransactionFilter{Year: year, Month: month})
	if err != nil {
		writeError(w, r, err)
		return
	}

	start := time.Now()
	pdf, err := report.BuildStatementPDF(report.Statement{
		Owner:        account.Email,
		Summary:      sum,
		Transactions: txs,
		GeneratedAt:  start,
	})
	if err != nil {
		writeError(w, r, fmt.Errorf("render statement: %w", err))
		return
	}
	log.FromContext(ctx).InfoContext(ctx, "Statement rendered",
		log.FieldOperation, log.OpRender,
		log.FieldYear, year,
		log.FieldMonth, month,
		log.FieldDuration, time.Since(start).Milliseconds())

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="extrato-%04d-%02d.pdf"`, year, month))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type metricsResponse struct {
	Requests  trace.Metrics             `json:"requests"`
	RateLimit ratelimit.Metrics         `json:"rateLimit"`
	Security  security.DetectionMetrics `json:"security"`
	Dashboard cache.Stats               `json:"dashboardCache"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metricsResponse{
		Requests:  s.tracer.GetMetrics(),
		RateLimit: s.limiter.GetMetrics(),
		Security:  s.detector.GetMetrics(),
		Dashboard: s.dashboardCache.Stats(),
	})
}
