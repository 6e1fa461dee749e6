package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/ametelin/bonus-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса бонусов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/balance", h.GetBalance)
			r.Get("/bonuses", h.GetAvailableBonuses)

			r.Post("/payments", h.CreatePayment)
			r.Get("/payments", h.GetPayments)
		})
	})

	// Интеграционная поверхность для системы проектов и операторов выплат.
	r.Route("/api/deals", func(r chi.Router) {
		r.Post("/", h.CreateDeal)
		r.Patch("/{dealID}/terms", h.UpdateDealTerms)
		r.Patch("/{dealID}/active", h.SetDealActive)
		r.Patch("/{dealID}/status", h.SetDealStatus)
		r.Patch("/{dealID}/partner-payment", h.SetPartnerPayment)
	})

	r.Patch("/api/payments/{requestID}/status", h.UpdatePaymentStatus)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
