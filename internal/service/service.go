// Package service реализует бизнес-логику сервиса доставки: оформление
// заказов, переходы статусов и сверку кодов подтверждения.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/delivery-system/internal/model"
	"github.com/mmeshcher/delivery-system/internal/notify"
	"github.com/mmeshcher/delivery-system/internal/validation"
)

// ErrEmptyOrder возвращается при попытке оформить заказ без позиций.
var (
	ErrEmptyOrder = errors.New("order must contain at least one line")
	// ErrInvalidLine возвращается для позиции с нулевым количеством или отрицательной ценой.
	ErrInvalidLine = errors.New("order line must have positive quantity and non-negative price")
	// ErrInvalidRating возвращается для оценки вне диапазона 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	// ErrWrongRestaurant возвращается, если заказ принадлежит другому ресторану.
	ErrWrongRestaurant = errors.New("order belongs to another restaurant")
	// ErrWrongClient возвращается, если заказ принадлежит другому клиенту.
	ErrWrongClient = errors.New("order belongs to another client")
	// ErrOrderTaken возвращается, если заказ уже взят другим курьером или недоступен.
	ErrOrderTaken = errors.New("order is no longer available")
	// ErrDriverBusy возвращается, если у курьера уже есть активная доставка.
	ErrDriverBusy = errors.New("driver already has an active order")
	// ErrNotAllowed возвращается, если текущий статус заказа не допускает операцию.
	ErrNotAllowed = errors.New("order status does not permit this action")
	// ErrCodeMismatch возвращается при несовпадении кода подтверждения.
	ErrCodeMismatch = errors.New("verification code mismatch")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateOrder(ctx context.Context, order *model.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
	TransitionForRestaurant(ctx context.Context, orderID, restaurantRef uuid.UUID, from, to model.OrderStatus) (bool, error)
	Transition(ctx context.Context, orderID uuid.UUID, from, to model.OrderStatus) (bool, error)
	CancelForClient(ctx context.Context, orderID, clientRef uuid.UUID) (bool, error)
	AssignDriver(ctx context.Context, orderID, driverRef uuid.UUID) (bool, error)
	HasActiveOrder(ctx context.Context, driverRef uuid.UUID) (bool, error)
	ArchiveOrder(ctx context.Context, orderID, restaurantRef uuid.UUID, rating int) error
	PendingForRestaurant(ctx context.Context, restaurantRef uuid.UUID) ([]model.Order, error)
	ActiveForRestaurant(ctx context.Context, restaurantRef uuid.UUID) ([]model.Order, error)
	PendingForDrivers(ctx context.Context) ([]model.FeedOrder, error)
	ActiveForDriver(ctx context.Context, driverRef uuid.UUID) (*model.FeedOrder, error)
}

// LineInput описывает позицию оформляемого заказа.
type LineInput struct {
	ProductRef     uuid.UUID
	Quantity       int32
	UnitPriceCents int64
}

// Service содержит бизнес-логику сервиса доставки.
type Service struct {
	repo     Repository
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewService создаёт новый сервис с указанным репозиторием и издателем уведомлений.
func NewService(repo Repository, notifier notify.Notifier, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// newVerificationCode возвращает код, равномерно распределённый в [1000, 9999].
func newVerificationCode() string {
	return fmt.Sprintf("%04d", 1000+rand.Intn(9000))
}

// CreateOrder оформляет заказ: считает сумму по позициям, генерирует два
// независимых кода подтверждения и атомарно сохраняет заказ с позициями.
// Уведомление ресторану отправляется после сохранения; сбой уведомления
// логируется и не отменяет заказ.
func (s *Service) CreateOrder(ctx context.Context, clientRef, restaurantRef uuid.UUID, lines []LineInput) (*model.Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}

	orderID := uuid.New()
	order := &model.Order{
		ID:             orderID,
		ClientRef:      clientRef,
		RestaurantRef:  restaurantRef,
		Status:         model.StatusAwaitingRestaurant,
		CodeRestaurant: newVerificationCode(),
		CodeClient:     newVerificationCode(),
		CreatedAt:      time.Now().UTC(),
	}

	for _, in := range lines {
		if in.Quantity <= 0 || in.UnitPriceCents < 0 {
			return nil, ErrInvalidLine
		}
		subtotal := int64(in.Quantity) * in.UnitPriceCents
		order.Lines = append(order.Lines, model.OrderLine{
			ID:             uuid.New(),
			OrderRef:       orderID,
			ProductRef:     in.ProductRef,
			Quantity:       in.Quantity,
			UnitPriceCents: in.UnitPriceCents,
			SubtotalCents:  subtotal,
		})
		order.TotalCents += subtotal
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	s.notifyRestaurant(ctx, order)

	return order, nil
}

func (s *Service) notifyRestaurant(ctx context.Context, order *model.Order) {
	if s.notifier == nil {
		return
	}

	n := notify.Notification{
		Title: "New order",
		Body:  fmt.Sprintf("You have a new order for %.2f", float64(order.TotalCents)/100),
		URL:   "/restaurant/orders",
	}
	if err := s.notifier.Notify(ctx, order.RestaurantRef, n); err != nil {
		s.logger.Warn("notify restaurant failed",
			zap.Error(err),
			zap.String("order", order.ID.String()))
	}
}

// GetOrder возвращает заказ по идентификатору.
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// AcceptOrder переводит заказ собственного ресторана в ожидание курьера.
func (s *Service) AcceptOrder(ctx context.Context, restaurantRef, orderID uuid.UUID) error {
	ok, err := s.repo.TransitionForRestaurant(ctx, orderID, restaurantRef,
		model.StatusAwaitingRestaurant, model.StatusAwaitingDriver)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return s.explainRestaurantFailure(ctx, orderID, restaurantRef)
}

// RejectOrder отклоняет ещё не принятый заказ собственного ресторана.
func (s *Service) RejectOrder(ctx context.Context, restaurantRef, orderID uuid.UUID) error {
	ok, err := s.repo.TransitionForRestaurant(ctx, orderID, restaurantRef,
		model.StatusAwaitingRestaurant, model.StatusCancelled)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return s.explainRestaurantFailure(ctx, orderID, restaurantRef)
}

// Условный UPDATE не сообщает, какое из условий не выполнилось: перечитываем
// заказ, чтобы назвать нарушенное предусловие. Состояние при этом не меняется.
func (s *Service) explainRestaurantFailure(ctx context.Context, orderID, restaurantRef uuid.UUID) error {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.RestaurantRef != restaurantRef {
		return ErrWrongRestaurant
	}
	return ErrNotAllowed
}

// CancelOrder отменяет заказ клиента, пока курьер не забрал его в ресторане.
func (s *Service) CancelOrder(ctx context.Context, clientRef, orderID uuid.UUID) error {
	ok, err := s.repo.CancelForClient(ctx, orderID, clientRef)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.ClientRef != clientRef {
		return ErrWrongClient
	}
	return ErrNotAllowed
}

// TakeOrder назначает курьера на заказ. У курьера может быть не более одной
// активной доставки; гонку за заказ выигрывает ровно один курьер.
func (s *Service) TakeOrder(ctx context.Context, driverRef, orderID uuid.UUID) error {
	ok, err := s.repo.AssignDriver(ctx, orderID, driverRef)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != model.StatusAwaitingDriver || order.DriverRef != nil {
		return ErrOrderTaken
	}

	busy, err := s.repo.HasActiveOrder(ctx, driverRef)
	if err != nil {
		return err
	}
	if busy {
		return ErrDriverBusy
	}

	return ErrOrderTaken
}

// VerifyPickup сверяет код ресторана и подтверждает передачу заказа курьеру.
// Коды сравниваются по числовому значению. Повторная сверка уже переданного
// заказа завершается ErrNotAllowed, а не дублирующим переходом.
func (s *Service) VerifyPickup(ctx context.Context, restaurantRef, orderID uuid.UUID, code string) error {
	supplied, err := validation.ParseVerificationCode(code)
	if err != nil {
		return err
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.RestaurantRef != restaurantRef {
		return ErrWrongRestaurant
	}

	stored, err := validation.ParseVerificationCode(order.CodeRestaurant)
	if err != nil {
		return fmt.Errorf("stored restaurant code corrupted: %w", err)
	}
	if supplied != stored {
		return ErrCodeMismatch
	}

	ok, err := s.repo.Transition(ctx, orderID, model.StatusEnRoute, model.StatusPickedUp)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAllowed
	}
	return nil
}

// VerifyDelivery сверяет код клиента и подтверждает вручение заказа.
func (s *Service) VerifyDelivery(ctx context.Context, clientRef, orderID uuid.UUID, code string) error {
	supplied, err := validation.ParseVerificationCode(code)
	if err != nil {
		return err
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.ClientRef != clientRef {
		return ErrWrongClient
	}

	stored, err := validation.ParseVerificationCode(order.CodeClient)
	if err != nil {
		return fmt.Errorf("stored client code corrupted: %w", err)
	}
	if supplied != stored {
		return ErrCodeMismatch
	}

	ok, err := s.repo.Transition(ctx, orderID, model.StatusPickedUp, model.StatusDelivered)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAllowed
	}
	return nil
}

// ArchiveOrder выставляет оценку ресторану и удаляет доставленный заказ
// клиента вместе с позициями.
func (s *Service) ArchiveOrder(ctx context.Context, clientRef, orderID uuid.UUID, rating int) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.ClientRef != clientRef {
		return ErrWrongClient
	}
	if order.Status != model.StatusDelivered {
		return ErrNotAllowed
	}

	return s.repo.ArchiveOrder(ctx, orderID, order.RestaurantRef, rating)
}

// PendingForRestaurant возвращает заказы ресторана, ожидающие его решения.
func (s *Service) PendingForRestaurant(ctx context.Context, restaurantRef uuid.UUID) ([]model.Order, error) {
	return s.repo.PendingForRestaurant(ctx, restaurantRef)
}

// ActiveForRestaurant возвращает операционно видимые ресторану заказы.
func (s *Service) ActiveForRestaurant(ctx context.Context, restaurantRef uuid.UUID) ([]model.Order, error) {
	return s.repo.ActiveForRestaurant(ctx, restaurantRef)
}

// PendingForDrivers возвращает заказы, доступные курьерам.
func (s *Service) PendingForDrivers(ctx context.Context) ([]model.FeedOrder, error) {
	return s.repo.PendingForDrivers(ctx)
}

// ActiveForDriver возвращает текущую доставку курьера либо nil.
func (s *Service) ActiveForDriver(ctx context.Context, driverRef uuid.UUID) (*model.FeedOrder, error) {
	return s.repo.ActiveForDriver(ctx, driverRef)
}
