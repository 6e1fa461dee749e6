package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ametelin/bonus-system/internal/model"
	"github.com/ametelin/bonus-system/internal/repository"
	"github.com/ametelin/bonus-system/internal/service"
)

// Обработчики сделок образуют интеграционную поверхность для системы
// проектов: создание сделки и каждое изменение её состояния приходят сюда
// и транслируются в события жизненного цикла для реестра бонусов.

type dealRequest struct {
	ProjectID         int64    `json:"project_id"`
	Kind              string   `json:"kind"`
	Amount            *float64 `json:"amount"`
	AgentPercentage   float64  `json:"agent_percentage"`
	CuratorPercentage float64  `json:"curator_percentage"`
	IsActive          *bool    `json:"is_active"`
	Status            string   `json:"status"`
}

type dealCreatedResponse struct {
	ID int64 `json:"id"`
}

// CreateDeal регистрирует новую сделку и запускает начисление бонусов.
func (h *Handler) CreateDeal(w http.ResponseWriter, r *http.Request) {
	var req dealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.ProjectID == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	deal := model.Deal{
		ProjectID:         req.ProjectID,
		Kind:              model.DealKind(req.Kind),
		AmountCents:       amountToCents(req.Amount),
		AgentPercentage:   req.AgentPercentage,
		CuratorPercentage: req.CuratorPercentage,
		IsActive:          true,
		Status:            req.Status,
	}
	if req.IsActive != nil {
		deal.IsActive = *req.IsActive
	}

	id, err := h.service.CreateDeal(r.Context(), deal)
	if err != nil {
		if errors.Is(err, service.ErrUnknownKind) || errors.Is(err, service.ErrUnknownStatus) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("create deal error", zap.Error(err), zap.Int64("projectID", req.ProjectID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(dealCreatedResponse{ID: id})
}

type dealTermsRequest struct {
	Amount            *float64 `json:"amount"`
	AgentPercentage   float64  `json:"agent_percentage"`
	CuratorPercentage float64  `json:"curator_percentage"`
}

// UpdateDealTerms обновляет сумму и проценты сделки с пересчётом бонусов.
func (h *Handler) UpdateDealTerms(w http.ResponseWriter, r *http.Request) {
	dealID, ok := idParam(r, "dealID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req dealTermsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.service.UpdateDealTerms(r.Context(), dealID, amountToCents(req.Amount), req.AgentPercentage, req.CuratorPercentage)
	if err != nil {
		h.dealError(w, err, dealID, "update deal terms error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

type dealActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// SetDealActive переключает признак активности сделки.
func (h *Handler) SetDealActive(w http.ResponseWriter, r *http.Request) {
	dealID, ok := idParam(r, "dealID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req dealActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SetDealActive(r.Context(), dealID, req.IsActive); err != nil {
		h.dealError(w, err, dealID, "set deal active error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

type dealStatusRequest struct {
	Status string `json:"status"`
}

// SetDealStatus переводит сделку в новый статус.
func (h *Handler) SetDealStatus(w http.ResponseWriter, r *http.Request) {
	dealID, ok := idParam(r, "dealID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req dealStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SetDealStatus(r.Context(), dealID, req.Status); err != nil {
		h.dealError(w, err, dealID, "set deal status error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// SetPartnerPayment обновляет статус оплаты партнёра по договору.
func (h *Handler) SetPartnerPayment(w http.ResponseWriter, r *http.Request) {
	dealID, ok := idParam(r, "dealID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req dealStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.service.SetPartnerPaymentStatus(r.Context(), dealID, model.PartnerPaymentStatus(req.Status))
	if err != nil {
		h.dealError(w, err, dealID, "set partner payment error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) dealError(w http.ResponseWriter, err error, dealID int64, msg string) {
	switch {
	case errors.Is(err, service.ErrUnknownStatus):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, repository.ErrDealNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	default:
		h.logger.Error(msg, zap.Error(err), zap.Int64("dealID", dealID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// amountToCents переводит сумму в рублях в копейки с округлением до копейки.
func amountToCents(amount *float64) *int64 {
	if amount == nil {
		return nil
	}
	cents := decimal.NewFromFloat(*amount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	return &cents
}
