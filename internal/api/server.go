// Package api exposes the history facade over HTTP for the rest of the
// platform. It is a thin JSON layer; all policy lives in the facade.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/chainhist/chainhist/internal/health"
	"github.com/chainhist/chainhist/internal/history"
	"github.com/chainhist/chainhist/internal/metrics"
	"github.com/chainhist/chainhist/internal/model"
)

// Server serves the history API plus health and metrics endpoints.
type Server struct {
	svc *history.Service
	log *slog.Logger
	srv *http.Server
}

// New builds the server. checker handles /healthz; pass a zero Checker to
// report ok unconditionally.
func New(addr string, svc *history.Service, checker health.Checker, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{svc: svc, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/history", s.handleHistory)
	mux.HandleFunc("GET /v1/pending", s.handlePending)
	mux.HandleFunc("/healthz", checker.Handler())
	mux.Handle("/metrics", metrics.Handler())

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving requests until Shutdown or failure.
func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	address := q.Get("address")
	network := q.Get("network")
	if address == "" || network == "" {
		writeError(w, http.StatusBadRequest, "address and network are required")
		return
	}

	opts := history.Options{
		Page:                  intParam(q.Get("page"), 1),
		PageSize:              intParam(q.Get("pageSize"), 10),
		IncludeTokenTransfers: q.Get("includeTokenTransfers") != "false",
		Ascending:             q.Get("sortOrder") == "asc",
	}

	page, err := s.svc.GetTransactionHistory(r.Context(), address, network, opts)
	if err != nil {
		if errors.Is(err, history.ErrInvalidAddress) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		// The facade degrades instead of erroring; anything else is a bug.
		s.log.Error("history query failed", "address", address, "network", network, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	page.Items = refine(page.Items, q)
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	txs, err := s.svc.Pending(r.Context(), address)
	if err != nil {
		if errors.Is(err, history.ErrInvalidAddress) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("pending query failed", "address", address, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": txs})
}

// refine applies the optional search and filter params to page items.
func refine(items []model.Transaction, q map[string][]string) []model.Transaction {
	get := func(k string) string {
		if v, ok := q[k]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}

	if query := get("q"); query != "" {
		items = history.Search(items, query)
	}

	crit := history.Criteria{
		Type:      model.Type(get("type")),
		Status:    model.Status(get("status")),
		AmountMin: get("amountMin"),
		AmountMax: get("amountMax"),
	}
	if from := get("dateFrom"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			crit.DateFrom = &t
		}
	}
	if to := get("dateTo"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			crit.DateTo = &t
		}
	}
	if crit != (history.Criteria{}) {
		items = history.Filter(items, crit)
	}
	return items
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
