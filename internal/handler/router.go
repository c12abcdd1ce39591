package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/delivery-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса доставки.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Use(custommiddleware.RequireActor)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.CreateOrder)
			r.Get("/{orderID}", h.GetOrder)

			r.Post("/{orderID}/accept", h.transitionHandler(h.service.AcceptOrder))
			r.Post("/{orderID}/reject", h.transitionHandler(h.service.RejectOrder))
			r.Post("/{orderID}/cancel", h.transitionHandler(h.service.CancelOrder))
			r.Post("/{orderID}/take", h.transitionHandler(h.service.TakeOrder))

			r.Post("/{orderID}/verify-pickup", h.verifyHandler(h.service.VerifyPickup))
			r.Post("/{orderID}/verify-delivery", h.verifyHandler(h.service.VerifyDelivery))

			r.Post("/{orderID}/archive", h.ArchiveOrder)
		})

		r.Get("/restaurant/orders/pending", h.PendingForRestaurant)
		r.Get("/restaurant/orders/active", h.ActiveForRestaurant)

		r.Get("/driver/orders/pending", h.PendingForDrivers)
		r.Get("/driver/orders/active", h.ActiveForDriver)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
