// Package handler содержит HTTP-обработчики API сервиса доставки.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/delivery-system/internal/middleware"
	"github.com/mmeshcher/delivery-system/internal/model"
	"github.com/mmeshcher/delivery-system/internal/repository"
	"github.com/mmeshcher/delivery-system/internal/service"
	"github.com/mmeshcher/delivery-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateOrder(ctx context.Context, clientRef, restaurantRef uuid.UUID, lines []service.LineInput) (*model.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
	AcceptOrder(ctx context.Context, restaurantRef, orderID uuid.UUID) error
	RejectOrder(ctx context.Context, restaurantRef, orderID uuid.UUID) error
	CancelOrder(ctx context.Context, clientRef, orderID uuid.UUID) error
	TakeOrder(ctx context.Context, driverRef, orderID uuid.UUID) error
	VerifyPickup(ctx context.Context, restaurantRef, orderID uuid.UUID, code string) error
	VerifyDelivery(ctx context.Context, clientRef, orderID uuid.UUID, code string) error
	ArchiveOrder(ctx context.Context, clientRef, orderID uuid.UUID, rating int) error
	PendingForRestaurant(ctx context.Context, restaurantRef uuid.UUID) ([]model.Order, error)
	ActiveForRestaurant(ctx context.Context, restaurantRef uuid.UUID) ([]model.Order, error)
	PendingForDrivers(ctx context.Context) ([]model.FeedOrder, error)
	ActiveForDriver(ctx context.Context, driverRef uuid.UUID) (*model.FeedOrder, error)
}

// Handler реализует HTTP-обработчики API сервиса доставки.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

// writeServiceError переводит доменные ошибки в HTTP-статусы. Нарушенное
// предусловие возвращается в теле ответа.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrRestaurantNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrWrongRestaurant),
		errors.Is(err, service.ErrWrongClient):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, service.ErrNotAllowed),
		errors.Is(err, service.ErrOrderTaken),
		errors.Is(err, service.ErrDriverBusy),
		errors.Is(err, service.ErrCodeMismatch):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, validation.ErrInvalidCode):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, service.ErrEmptyOrder),
		errors.Is(err, service.ErrInvalidLine),
		errors.Is(err, service.ErrInvalidRating):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("internal error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func actorFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return uuid.Nil, false
	}
	return actor, true
}

func orderIDFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

type createOrderLineRequest struct {
	ProductID string  `json:"product_id"`
	Quantity  int32   `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type createOrderRequest struct {
	RestaurantID string                   `json:"restaurant_id"`
	Lines        []createOrderLineRequest `json:"lines"`
}

type orderLineResponse struct {
	ID        string  `json:"id"`
	ProductID string  `json:"product_id"`
	Quantity  int32   `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Subtotal  float64 `json:"subtotal"`
}

type orderResponse struct {
	ID             string              `json:"id"`
	ClientID       string              `json:"client_id"`
	RestaurantID   string              `json:"restaurant_id"`
	DriverID       *string             `json:"driver_id,omitempty"`
	TotalAmount    float64             `json:"total_amount"`
	Status         string              `json:"status"`
	CodeRestaurant string              `json:"code_restaurant"`
	CodeClient     string              `json:"code_client"`
	CreatedAt      string              `json:"created_at"`
	Lines          []orderLineResponse `json:"lines,omitempty"`
}

type feedOrderResponse struct {
	orderResponse
	RestaurantName    string `json:"restaurant_name"`
	RestaurantAddress string `json:"restaurant_address"`
	DeliveryAddress   string `json:"delivery_address"`
}

func toOrderResponse(o *model.Order) orderResponse {
	resp := orderResponse{
		ID:             o.ID.String(),
		ClientID:       o.ClientRef.String(),
		RestaurantID:   o.RestaurantRef.String(),
		TotalAmount:    float64(o.TotalCents) / 100,
		Status:         string(o.Status),
		CodeRestaurant: o.CodeRestaurant,
		CodeClient:     o.CodeClient,
		CreatedAt:      o.CreatedAt.Format(time.RFC3339),
	}
	if o.DriverRef != nil {
		id := o.DriverRef.String()
		resp.DriverID = &id
	}
	for _, line := range o.Lines {
		resp.Lines = append(resp.Lines, orderLineResponse{
			ID:        line.ID.String(),
			ProductID: line.ProductRef.String(),
			Quantity:  line.Quantity,
			UnitPrice: float64(line.UnitPriceCents) / 100,
			Subtotal:  float64(line.SubtotalCents) / 100,
		})
	}
	return resp
}

func toFeedOrderResponse(fo *model.FeedOrder) feedOrderResponse {
	return feedOrderResponse{
		orderResponse:     toOrderResponse(&fo.Order),
		RestaurantName:    fo.RestaurantName,
		RestaurantAddress: fo.RestaurantAddress,
		DeliveryAddress:   fo.DeliveryAddress,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

// CreateOrder оформляет новый заказ от имени клиента.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	client, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	restaurant, err := uuid.Parse(req.RestaurantID)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	lines := make([]service.LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		product, err := uuid.Parse(l.ProductID)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		lines = append(lines, service.LineInput{
			ProductRef:     product,
			Quantity:       l.Quantity,
			UnitPriceCents: int64(math.Round(l.UnitPrice * 100)),
		})
	}

	order, err := h.service.CreateOrder(r.Context(), client, restaurant, lines)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// GetOrder возвращает заказ по идентификатору.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDFromRequest(w, r)
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) transitionHandler(fn func(ctx context.Context, actor, orderID uuid.UUID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFromRequest(w, r)
		if !ok {
			return
		}
		orderID, ok := orderIDFromRequest(w, r)
		if !ok {
			return
		}

		if err := fn(r.Context(), actor, orderID); err != nil {
			h.writeServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}

type verifyRequest struct {
	Code string `json:"code"`
}

func (h *Handler) verifyHandler(fn func(ctx context.Context, actor, orderID uuid.UUID, code string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFromRequest(w, r)
		if !ok {
			return
		}
		orderID, ok := orderIDFromRequest(w, r)
		if !ok {
			return
		}

		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}

		if err := fn(r.Context(), actor, orderID, req.Code); err != nil {
			h.writeServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}

type archiveRequest struct {
	Rating int `json:"rating"`
}

// ArchiveOrder выставляет оценку ресторану и удаляет доставленный заказ.
func (h *Handler) ArchiveOrder(w http.ResponseWriter, r *http.Request) {
	client, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	orderID, ok := orderIDFromRequest(w, r)
	if !ok {
		return
	}

	var req archiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.ArchiveOrder(r.Context(), client, orderID, req.Rating); err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// PendingForRestaurant возвращает заказы ресторана, ожидающие его решения.
func (h *Handler) PendingForRestaurant(w http.ResponseWriter, r *http.Request) {
	restaurant, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	orders, err := h.service.PendingForRestaurant(r.Context(), restaurant)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeOrderList(w, orders)
}

// ActiveForRestaurant возвращает операционно видимые ресторану заказы.
func (h *Handler) ActiveForRestaurant(w http.ResponseWriter, r *http.Request) {
	restaurant, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ActiveForRestaurant(r.Context(), restaurant)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeOrderList(w, orders)
}

func (h *Handler) writeOrderList(w http.ResponseWriter, orders []model.Order) {
	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// PendingForDrivers возвращает заказы, доступные курьерам.
func (h *Handler) PendingForDrivers(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFromRequest(w, r); !ok {
		return
	}

	orders, err := h.service.PendingForDrivers(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]feedOrderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toFeedOrderResponse(&orders[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// ActiveForDriver возвращает текущую доставку курьера.
func (h *Handler) ActiveForDriver(w http.ResponseWriter, r *http.Request) {
	driver, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	order, err := h.service.ActiveForDriver(r.Context(), driver)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if order == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, toFeedOrderResponse(order))
}
