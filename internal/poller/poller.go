// Package poller реализует фоновую синхронизацию лент заказов опросом API.
package poller

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/delivery-system/internal/geocode"
	"github.com/mmeshcher/delivery-system/internal/model"
)

// DefaultInterval — период опроса, используемый когда интервал не задан.
const DefaultInterval = 5 * time.Second

// DriverFeed определяет контракт источника данных для наблюдателя курьера.
type DriverFeed interface {
	ActiveForDriver(ctx context.Context, driverRef uuid.UUID) (*model.FeedOrder, error)
}

// RestaurantFeed определяет контракт источника данных для наблюдателя ресторана.
type RestaurantFeed interface {
	PendingForRestaurant(ctx context.Context, restaurantRef uuid.UUID) ([]model.Order, error)
	ActiveForRestaurant(ctx context.Context, restaurantRef uuid.UUID) ([]model.Order, error)
}

// Geocoder переводит адрес в координаты точки маршрута.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*geocode.Coordinates, error)
}

// DriverUpdate описывает изменение активной доставки курьера.
// Order равен nil, когда активная доставка завершилась. Target равен nil,
// когда адрес точки маршрута не удалось геокодировать.
type DriverUpdate struct {
	Order  *model.FeedOrder
	Target *geocode.Coordinates
}

// DriverWatcher периодически опрашивает активную доставку курьера и
// сообщает об изменениях статуса вместе с координатами текущей точки
// маршрута: адрес ресторана пока заказ в пути к нему, адрес клиента
// после передачи заказа курьеру.
type DriverWatcher struct {
	feed     DriverFeed
	geocoder Geocoder
	driver   uuid.UUID
	interval time.Duration
	logger   *zap.Logger
	onUpdate func(DriverUpdate)

	lastOrder  uuid.UUID
	lastStatus model.OrderStatus
}

// NewDriverWatcher создаёт наблюдателя активной доставки курьера.
func NewDriverWatcher(feed DriverFeed, geocoder Geocoder, driver uuid.UUID, interval time.Duration, logger *zap.Logger, onUpdate func(DriverUpdate)) *DriverWatcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &DriverWatcher{
		feed:     feed,
		geocoder: geocoder,
		driver:   driver,
		interval: interval,
		logger:   logger,
		onUpdate: onUpdate,
	}
}

// Run опрашивает ленту до отмены контекста. Первый опрос выполняется
// сразу, без ожидания тика.
func (w *DriverWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *DriverWatcher) poll(ctx context.Context) {
	order, err := w.feed.ActiveForDriver(ctx, w.driver)
	if err != nil {
		w.logger.Warn("poll active order", zap.Error(err))
		return
	}

	if order == nil {
		if w.lastOrder != uuid.Nil {
			w.lastOrder = uuid.Nil
			w.lastStatus = ""
			w.onUpdate(DriverUpdate{})
		}
		return
	}

	if order.ID == w.lastOrder && order.Status == w.lastStatus {
		return
	}

	w.lastOrder = order.ID
	w.lastStatus = order.Status
	w.onUpdate(DriverUpdate{Order: order, Target: w.routeTarget(ctx, order)})
}

// routeTarget выбирает адрес текущей точки маршрута по статусу заказа.
func (w *DriverWatcher) routeTarget(ctx context.Context, order *model.FeedOrder) *geocode.Coordinates {
	var address string
	switch order.Status {
	case model.StatusEnRoute:
		address = order.RestaurantAddress
	case model.StatusPickedUp:
		address = order.DeliveryAddress
	default:
		return nil
	}

	if address == "" {
		return nil
	}

	coords, err := w.geocoder.Geocode(ctx, address)
	if err != nil {
		w.logger.Warn("geocode route target",
			zap.String("address", address),
			zap.Error(err),
		)
		return nil
	}
	return coords
}

// RestaurantWatcher периодически опрашивает входящие и операционные
// заказы ресторана и сообщает о новых заказах и сменах статуса.
type RestaurantWatcher struct {
	feed       RestaurantFeed
	restaurant uuid.UUID
	interval   time.Duration
	logger     *zap.Logger
	onNew      func(model.Order)
	onChanged  func(order model.Order, previous model.OrderStatus)

	known map[uuid.UUID]model.OrderStatus
}

// NewRestaurantWatcher создаёт наблюдателя заказов ресторана.
func NewRestaurantWatcher(feed RestaurantFeed, restaurant uuid.UUID, interval time.Duration, logger *zap.Logger, onNew func(model.Order), onChanged func(model.Order, model.OrderStatus)) *RestaurantWatcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &RestaurantWatcher{
		feed:       feed,
		restaurant: restaurant,
		interval:   interval,
		logger:     logger,
		onNew:      onNew,
		onChanged:  onChanged,
		known:      make(map[uuid.UUID]model.OrderStatus),
	}
}

// Run опрашивает ленты до отмены контекста. Первый опрос выполняется
// сразу, без ожидания тика.
func (w *RestaurantWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *RestaurantWatcher) poll(ctx context.Context) {
	pending, err := w.feed.PendingForRestaurant(ctx, w.restaurant)
	if err != nil {
		w.logger.Warn("poll pending orders", zap.Error(err))
		return
	}

	active, err := w.feed.ActiveForRestaurant(ctx, w.restaurant)
	if err != nil {
		w.logger.Warn("poll active orders", zap.Error(err))
		return
	}

	seen := make(map[uuid.UUID]model.OrderStatus, len(pending)+len(active))
	for _, o := range append(pending, active...) {
		seen[o.ID] = o.Status

		previous, ok := w.known[o.ID]
		switch {
		case !ok:
			w.onNew(o)
		case previous != o.Status:
			w.onChanged(o, previous)
		}
	}

	// Заказы, пропавшие из обеих лент, завершились или отменены.
	for id := range w.known {
		if _, ok := seen[id]; !ok {
			delete(w.known, id)
		}
	}
	for id, status := range seen {
		w.known[id] = status
	}
}
