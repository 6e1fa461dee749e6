// Package handler содержит HTTP-обработчики API сервиса бонусов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ametelin/bonus-system/internal/middleware"
	"github.com/ametelin/bonus-system/internal/model"
	"github.com/ametelin/bonus-system/internal/repository"
	"github.com/ametelin/bonus-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password, referredByKey string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)
	CreateDeal(ctx context.Context, deal model.Deal) (int64, error)
	UpdateDealTerms(ctx context.Context, dealID int64, amountCents *int64, agentPct, curatorPct float64) error
	SetDealActive(ctx context.Context, dealID int64, active bool) error
	SetDealStatus(ctx context.Context, dealID int64, status string) error
	SetPartnerPaymentStatus(ctx context.Context, dealID int64, status model.PartnerPaymentStatus) error
	GetBalance(ctx context.Context, userID int64) (*model.Balance, error)
	GetAvailableBonuses(ctx context.Context, userID int64) ([]model.Bonus, error)
	CreatePaymentRequest(ctx context.Context, userID int64, sum float64, method string) (*model.PaymentRequest, error)
	UpdatePaymentRequestStatus(ctx context.Context, requestID int64, status model.RequestStatus) error
	GetPaymentRequestsByUser(ctx context.Context, userID int64) ([]model.PaymentRequest, error)
}

// Handler реализует HTTP-обработчики API сервиса бонусов.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type credentialsRequest struct {
	Login         string `json:"login"`
	Password      string `json:"password"`
	ReferredByKey string `json:"referred_by_key,omitempty"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password, req.ReferredByKey)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || err.Error() == "invalid credentials" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// GetBalance возвращает баланс текущего пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.logger.Error("get balance error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, balance)
}

type bonusResponse struct {
	ID          int64   `json:"id"`
	ContractID  *int64  `json:"contract_id,omitempty"`
	OrderID     *int64  `json:"order_id,omitempty"`
	Role        string  `json:"role"`
	Amount      float64 `json:"amount"`
	Percentage  float64 `json:"percentage"`
	AccruedAt   string  `json:"accrued_at"`
	AvailableAt *string `json:"available_at,omitempty"`
}

// GetAvailableBonuses возвращает бонусы текущего пользователя, доступные к выплате.
func (h *Handler) GetAvailableBonuses(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	bonuses, err := h.service.GetAvailableBonuses(r.Context(), userID)
	if err != nil {
		h.logger.Error("get bonuses error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(bonuses) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]bonusResponse, 0, len(bonuses))
	for _, b := range bonuses {
		br := bonusResponse{
			ID:         b.ID,
			ContractID: b.ContractID,
			OrderID:    b.OrderID,
			Role:       string(b.Role),
			Amount:     float64(b.AmountCents) / 100,
			Percentage: b.Percentage,
			AccruedAt:  b.AccruedAt.Format(time.RFC3339),
		}
		if b.AvailableAt != nil {
			at := b.AvailableAt.Format(time.RFC3339)
			br.AvailableAt = &at
		}
		resp = append(resp, br)
	}

	writeJSON(w, resp)
}

type paymentCreateRequest struct {
	Sum    float64 `json:"sum"`
	Method string  `json:"method"`
}

type paymentResponse struct {
	ID        int64   `json:"id"`
	Reference string  `json:"reference"`
	Sum       float64 `json:"sum"`
	Method    string  `json:"method"`
	Status    string  `json:"status"`
	PaidAt    *string `json:"paid_at,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// CreatePayment создаёт заявку на выплату для текущего пользователя.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req paymentCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	created, err := h.service.CreatePaymentRequest(r.Context(), userID, req.Sum, req.Method)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrUnknownMethod):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, repository.ErrInsufficientBalance):
			http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
		default:
			h.logger.Error("create payment error", zap.Error(err), zap.Int64("userID", userID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toPaymentResponse(*created))
}

// GetPayments возвращает историю заявок текущего пользователя.
func (h *Handler) GetPayments(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	payments, err := h.service.GetPaymentRequestsByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get payments error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(payments) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, toPaymentResponse(p))
	}

	writeJSON(w, resp)
}

type paymentStatusRequest struct {
	Status string `json:"status"`
}

// UpdatePaymentStatus переводит заявку на выплату в новый статус.
// Перевод в "paid" погашает привязанные бонусы, перевод из "paid" —
// откатывает погашение.
func (h *Handler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	requestID, ok := idParam(r, "requestID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req paymentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.service.UpdatePaymentRequestStatus(r.Context(), requestID, model.RequestStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownStatus):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, repository.ErrRequestNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("update payment status error", zap.Error(err), zap.Int64("requestID", requestID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

func toPaymentResponse(p model.PaymentRequest) paymentResponse {
	resp := paymentResponse{
		ID:        p.ID,
		Reference: p.Reference,
		Sum:       float64(p.AmountCents) / 100,
		Method:    p.Method,
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
	if p.PaidAt != nil {
		at := p.PaidAt.Format(time.RFC3339)
		resp.PaidAt = &at
	}
	return resp
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
