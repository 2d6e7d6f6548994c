// Package httphealth serves /health, grounded on original_source/src/
// app.py's plain `{"status": "ok"}` liveness endpoint plus a richer
// /api/v1/health/metrics JSON surface backed by
// payments_repo.get_payments_metrics. Intentionally kept on net/http's
// ServeMux rather than the gin framework the pack otherwise favors —
// see SPEC_FULL.md §2.1 for why HTTP framing stays out of scope here.
package httphealth

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/carlosSepher/ninja-payments-reconciler/internal/repository"
)

type Server struct {
	payments  *repository.PaymentsRepo
	startedAt time.Time
}

func New(payments *repository.PaymentsRepo) *Server {
	return &Server{payments: payments, startedAt: time.Now()}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/health/metrics", s.handleMetrics)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.payments.GetPaymentsMetrics(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	body := map[string]any{
		"uptime_seconds":        time.Since(s.startedAt).Seconds(),
		"total_payments":        m.TotalPayments,
		"authorized_payments":   m.AuthorizedPayments,
		"total_amount_minor":    m.TotalAmountMinor,
		"total_amount_currency": m.TotalAmountCurrency,
		"last_payment_at":       m.LastPaymentAt,
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
