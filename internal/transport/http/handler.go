package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"hostbill/internal/billing"
	"hostbill/internal/metrics"
	"hostbill/internal/model"
)

type Handler struct {
	svc     *billing.Service
	sampler *metrics.Sampler
	agg     *metrics.Aggregator
}

func NewHandler(svc *billing.Service, sampler *metrics.Sampler, agg *metrics.Aggregator) *Handler {
	return &Handler{svc: svc, sampler: sampler, agg: agg}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/accounts", h.CreateAccount)
		r.Route("/accounts/{accountID}", func(r chi.Router) {
			r.Get("/", h.GetAccount)
			r.Get("/balance", h.GetBalance)
			r.Get("/transactions", h.ListTransactions)
			r.Post("/deposits", h.InitiateDeposit)
			r.Post("/deposits/{orderID}/capture", h.CaptureDeposit)

			r.Get("/servers", h.ListServers)
			r.Post("/servers", h.CreateServer)
			r.Route("/servers/{serverID}", func(r chi.Router) {
				r.Delete("/", h.DeleteServer)
				r.Post("/resize", h.ResizeServer)
				r.Get("/metrics", h.LatestMetrics)
				r.Get("/metrics/history", h.MetricsHistory)
				r.Get("/usage", h.Usage)
			})
		})
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	account, err := h.svc.CreateAccount(r.Context(), req.Email)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, account)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathUUID(w, r, "accountID")
	if !ok {
		return
	}
	account, err := h.svc.Account(r.Context(), accountID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, account)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathUUID(w, r, "accountID")
	if !ok {
		return
	}
	balance, err := h.svc.Balance(r.Context(), accountID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"balance_cents": balance})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathUUID(w, r, "accountID")
	if !ok {
		return
	}

	opts := model.ListOptions{
		Page:     queryInt(r, "page"),
		PageSize: queryInt(r, "page_size"),
	}
	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		opts.From = t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		opts.To = t
	}

	page, err := h.svc.Transactions(r.Context(), accountID, opts)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *Handler) InitiateDeposit(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathUUID(w, r, "accountID")
	if !ok {
		return
	}
	var req struct {
		AmountCents int64 `json:"amount_cents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	intent, err := h.svc.InitiateDeposit(r.Context(), accountID, req.AmountCents)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, intent)
}

func (h *Handler) CaptureDeposit(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathUUID(w, r, "accountID")
	if !ok {
		return
	}
	entry, err := h.svc.CaptureDeposit(r.Context(), accountID, chi.URLParam(r, "orderID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (h *Handler) ListServers(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathUUID(w, r, "accountID")
	if !ok {
		return
	}
	servers, err := h.svc.Servers(r.Context(), accountID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, servers)
}

func (h *Handler) CreateServer(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathUUID(w, r, "accountID")
	if !ok {
		return
	}
	var req struct {
		Name   string `json:"name"`
		Size   string `json:"size"`
		Region string `json:"region"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	server, err := h.svc.ProvisionServer(r.Context(), accountID, req.Name, req.Size, req.Region)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, server)
}

func (h *Handler) DeleteServer(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathUUID(w, r, "accountID")
	if !ok {
		return
	}
	serverID, ok := pathUUID(w, r, "serverID")
	if !ok {
		return
	}
	if err := h.svc.DestroyServer(r.Context(), accountID, serverID); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ResizeServer(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathUUID(w, r, "accountID")
	if !ok {
		return
	}
	serverID, ok := pathUUID(w, r, "serverID")
	if !ok {
		return
	}
	var req struct {
		Size string `json:"size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	server, err := h.svc.ResizeServer(r.Context(), accountID, serverID, req.Size)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, server)
}

func (h *Handler) LatestMetrics(w http.ResponseWriter, r *http.Request) {
	server, ok := h.ownedServer(w, r)
	if !ok {
		return
	}
	sample, err := h.sampler.Latest(r.Context(), server)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sample)
}

func (h *Handler) MetricsHistory(w http.ResponseWriter, r *http.Request) {
	server, ok := h.ownedServer(w, r)
	if !ok {
		return
	}
	samples, err := h.sampler.History(r.Context(), server.ID, queryInt(r, "limit"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, samples)
}

func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	server, ok := h.ownedServer(w, r)
	if !ok {
		return
	}
	summary, err := h.agg.Summary(r.Context(), server)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *Handler) ownedServer(w http.ResponseWriter, r *http.Request) (*model.Server, bool) {
	accountID, ok := pathUUID(w, r, "accountID")
	if !ok {
		return nil, false
	}
	serverID, ok := pathUUID(w, r, "serverID")
	if !ok {
		return nil, false
	}
	server, err := h.svc.Server(r.Context(), accountID, serverID)
	if err != nil {
		respondServiceError(w, err)
		return nil, false
	}
	return server, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps the error taxonomy onto HTTP statuses. The error
// text is surfaced verbatim: user-correctable conditions carry their own
// description (e.g. "insufficient balance, required $2.00").
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInsufficientBalance), errors.Is(err, model.ErrPayment):
		respondError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, model.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrDuplicateDeposit):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrProvider), errors.Is(err, model.ErrMetricFetch):
		respondError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, model.ErrPersistence):
		respondError(w, http.StatusInternalServerError, "storage temporarily unavailable")
	default:
		respondError(w, http.StatusBadRequest, err.Error())
	}
}
