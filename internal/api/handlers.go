package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mhalloway/circops/internal/domain"
	"github.com/mhalloway/circops/internal/ledger"
	"github.com/mhalloway/circops/internal/service"
	"github.com/mhalloway/circops/internal/store"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circ_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "circ_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})

	checkoutOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circ_checkout_outcomes_total",
		Help: "Checkout attempts by outcome",
	}, []string{"outcome"})
)

// Extension days applied when the caller omits them.
const defaultExtendDays = 7

const dateLayout = "2006-01-02"

type Handler struct {
	service *service.LendingService
	clock   domain.Clock

	dueSoonDays   int
	dailyFineRate float64
}

func NewHandler(svc *service.LendingService, clock domain.Clock, dueSoonDays int, dailyFineRate float64) *Handler {
	return &Handler{
		service:       svc,
		clock:         clock,
		dueSoonDays:   dueSoonDays,
		dailyFineRate: dailyFineRate,
	}
}

// Router wires all endpoints, including /health and /metrics.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/copies", h.CreateCopyHandler).Methods("POST")
	v1.HandleFunc("/copies/{id}", h.GetCopyHandler).Methods("GET")
	v1.HandleFunc("/copies/{id}/status", h.SetCopyStatusHandler).Methods("PUT")

	v1.HandleFunc("/loans", h.CheckoutHandler).Methods("POST")
	v1.HandleFunc("/loans/overdue", h.ListOverdueHandler).Methods("GET")
	v1.HandleFunc("/loans/due-soon", h.ListDueSoonHandler).Methods("GET")
	v1.HandleFunc("/loans/{id}", h.GetLoanHandler).Methods("GET")
	v1.HandleFunc("/loans/{id}", h.CheckinHandler).Methods("DELETE")
	v1.HandleFunc("/loans/{id}/extend", h.ExtendHandler).Methods("PATCH")
	v1.HandleFunc("/loans/{id}/fine", h.FineHandler).Methods("GET")

	return r
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createCopyRequest struct {
	Barcode         string `json:"barcode"`
	Status          string `json:"status"`
	PublicationDate string `json:"publication_date"`
}

func (h *Handler) CreateCopyHandler(w http.ResponseWriter, r *http.Request) {
	var req createCopyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, "/copies", http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.Barcode == "" {
		h.respondError(w, r, "/copies", http.StatusUnprocessableEntity, "Barcode is required")
		return
	}

	copy := &domain.Copy{Barcode: req.Barcode}
	if req.Status != "" {
		status, err := domain.ParseCopyStatus(req.Status)
		if err != nil {
			h.respondError(w, r, "/copies", http.StatusUnprocessableEntity, "Unknown status value")
			return
		}
		copy.Status = status
	}
	if req.PublicationDate != "" {
		pub, err := time.Parse(dateLayout, req.PublicationDate)
		if err != nil {
			h.respondError(w, r, "/copies", http.StatusUnprocessableEntity, "publication_date must be YYYY-MM-DD")
			return
		}
		copy.PublicationDate = pub
	}

	created, err := h.service.CreateCopy(r.Context(), copy)
	if err != nil {
		if errors.Is(err, store.ErrBarcodeTaken) {
			h.respondError(w, r, "/copies", http.StatusConflict, "Barcode already registered")
			return
		}
		h.respondError(w, r, "/copies", http.StatusInternalServerError, "Internal Server Error")
		return
	}
	h.respondJSON(w, r, "/copies", http.StatusCreated, created)
}

func (h *Handler) GetCopyHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "/copies/{id}")
	if !ok {
		return
	}

	copy, err := h.service.GetCopy(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrCopyNotFound) {
			h.respondError(w, r, "/copies/{id}", http.StatusNotFound, "Copy not found")
			return
		}
		h.respondError(w, r, "/copies/{id}", http.StatusInternalServerError, "Internal Server Error")
		return
	}
	h.respondJSON(w, r, "/copies/{id}", http.StatusOK, copy)
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) SetCopyStatusHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/copies/{id}/status"
	id, ok := h.pathID(w, r, endpoint)
	if !ok {
		return
	}

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, endpoint, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	copy, err := h.service.SetCopyStatus(r.Context(), id, domain.CopyStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidState):
			h.respondError(w, r, endpoint, http.StatusUnprocessableEntity, "Unknown status value")
		case errors.Is(err, store.ErrCopyNotFound):
			h.respondError(w, r, endpoint, http.StatusNotFound, "Copy not found")
		default:
			h.respondError(w, r, endpoint, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}
	h.respondJSON(w, r, endpoint, http.StatusOK, copy)
}

type checkoutRequest struct {
	CopyID     uuid.UUID `json:"copy_id"`
	BorrowerID uuid.UUID `json:"borrower_id"`
	DueAt      string    `json:"due_at"`
}

func (h *Handler) CheckoutHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/loans"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		checkoutOutcomes.WithLabelValues("invalid").Inc()
		h.respondError(w, r, endpoint, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.CopyID == uuid.Nil || req.BorrowerID == uuid.Nil {
		checkoutOutcomes.WithLabelValues("invalid").Inc()
		h.respondError(w, r, endpoint, http.StatusUnprocessableEntity, "copy_id and borrower_id are required")
		return
	}
	dueAt, err := time.Parse(dateLayout, req.DueAt)
	if err != nil {
		checkoutOutcomes.WithLabelValues("invalid").Inc()
		h.respondError(w, r, endpoint, http.StatusUnprocessableEntity, "due_at must be YYYY-MM-DD")
		return
	}

	loan, err := h.service.Checkout(r.Context(), req.CopyID, req.BorrowerID, dueAt)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrCopyNotFound):
			checkoutOutcomes.WithLabelValues("not_found").Inc()
			h.respondError(w, r, endpoint, http.StatusNotFound, "Copy not found")
		case errors.Is(err, service.ErrCopyUnavailable):
			checkoutOutcomes.WithLabelValues("unavailable").Inc()
			h.respondError(w, r, endpoint, http.StatusConflict, "Copy unavailable for checkout")
		case errors.Is(err, store.ErrCopyOnLoan):
			checkoutOutcomes.WithLabelValues("conflict").Inc()
			h.respondError(w, r, endpoint, http.StatusConflict, "Copy already on loan")
		case errors.Is(err, ledger.ErrInvalidDueDate):
			checkoutOutcomes.WithLabelValues("invalid").Inc()
			h.respondError(w, r, endpoint, http.StatusUnprocessableEntity, "Due date out of policy")
		default:
			checkoutOutcomes.WithLabelValues("error").Inc()
			h.respondError(w, r, endpoint, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}

	checkoutOutcomes.WithLabelValues("success").Inc()
	w.Header().Set("Location", "/api/v1/loans/"+loan.ID.String())
	h.respondJSON(w, r, endpoint, http.StatusCreated, loan)
}

func (h *Handler) CheckinHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/loans/{id}"
	id, ok := h.pathID(w, r, endpoint)
	if !ok {
		return
	}

	if err := h.service.Checkin(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrLoanNotFound) {
			h.respondError(w, r, endpoint, http.StatusNotFound, "Loan not found")
			return
		}
		h.respondError(w, r, endpoint, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	h.respondJSON(w, r, endpoint, http.StatusNoContent, nil)
}

type extendRequest struct {
	Days *int `json:"days"`
}

func (h *Handler) ExtendHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/loans/{id}/extend"
	id, ok := h.pathID(w, r, endpoint)
	if !ok {
		return
	}

	// An absent body means "use the default", same as {}.
	var req extendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(w, r, endpoint, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	days := defaultExtendDays
	if req.Days != nil {
		days = *req.Days
	}

	loan, err := h.service.Extend(r.Context(), id, days)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrLoanNotFound):
			h.respondError(w, r, endpoint, http.StatusNotFound, "Loan not found")
		case errors.Is(err, ledger.ErrInvalidExtension):
			h.respondError(w, r, endpoint, http.StatusUnprocessableEntity, "Extension days out of policy")
		default:
			h.respondError(w, r, endpoint, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}
	h.respondJSON(w, r, endpoint, http.StatusOK, loan)
}

func (h *Handler) GetLoanHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/loans/{id}"
	id, ok := h.pathID(w, r, endpoint)
	if !ok {
		return
	}

	loan, err := h.service.GetLoan(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrLoanNotFound) {
			h.respondError(w, r, endpoint, http.StatusNotFound, "Loan not found")
			return
		}
		h.respondError(w, r, endpoint, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	h.respondJSON(w, r, endpoint, http.StatusOK, loan)
}

func (h *Handler) ListOverdueHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/loans/overdue"
	today, ok := h.queryToday(w, r, endpoint)
	if !ok {
		return
	}

	loans, err := h.service.ListOverdue(r.Context(), today)
	if err != nil {
		h.respondError(w, r, endpoint, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	h.respondJSON(w, r, endpoint, http.StatusOK, map[string]any{
		"count":   len(loans),
		"results": loans,
	})
}

func (h *Handler) ListDueSoonHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/loans/due-soon"
	today, ok := h.queryToday(w, r, endpoint)
	if !ok {
		return
	}

	loans, err := h.service.ListDueSoon(r.Context(), today, h.dueSoonDays)
	if err != nil {
		h.respondError(w, r, endpoint, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	h.respondJSON(w, r, endpoint, http.StatusOK, map[string]any{
		"count":   len(loans),
		"results": loans,
	})
}

func (h *Handler) FineHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/loans/{id}/fine"
	id, ok := h.pathID(w, r, endpoint)
	if !ok {
		return
	}
	today, ok := h.queryToday(w, r, endpoint)
	if !ok {
		return
	}

	rate := h.dailyFineRate
	if raw := r.URL.Query().Get("rate"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 {
			h.respondError(w, r, endpoint, http.StatusUnprocessableEntity, "rate must be a non-negative number")
			return
		}
		rate = parsed
	}

	amount, err := h.service.FineAmount(r.Context(), id, today, rate)
	if err != nil {
		if errors.Is(err, store.ErrLoanNotFound) {
			h.respondError(w, r, endpoint, http.StatusNotFound, "Loan not found")
			return
		}
		h.respondError(w, r, endpoint, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	h.respondJSON(w, r, endpoint, http.StatusOK, map[string]any{
		"loan_id":     id,
		"fine_amount": amount,
	})
}

// Helpers

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, endpoint string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, r, endpoint, http.StatusBadRequest, "Invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// queryToday reads the optional ?today=YYYY-MM-DD override, falling
// back to the clock. The override keeps overdue reads reproducible.
func (h *Handler) queryToday(w http.ResponseWriter, r *http.Request, endpoint string) (time.Time, bool) {
	raw := r.URL.Query().Get("today")
	if raw == "" {
		return h.clock.Today(), true
	}
	today, err := time.Parse(dateLayout, raw)
	if err != nil {
		h.respondError(w, r, endpoint, http.StatusUnprocessableEntity, "today must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return today, true
}

func (h *Handler) respondJSON(w http.ResponseWriter, r *http.Request, endpoint string, code int, payload any) {
	httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(code)).Inc()
	respondWithJSON(w, code, payload)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, endpoint string, code int, message string) {
	h.respondJSON(w, r, endpoint, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
