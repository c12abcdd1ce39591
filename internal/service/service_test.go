package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/delivery-system/internal/model"
	"github.com/mmeshcher/delivery-system/internal/notify"
	"github.com/mmeshcher/delivery-system/internal/repository"
	"github.com/mmeshcher/delivery-system/internal/validation"
)

// memRepo воспроизводит семантику условных UPDATE репозитория в памяти.
type memRepo struct {
	orders map[uuid.UUID]*model.Order
}

func newMemRepo() *memRepo {
	return &memRepo{orders: make(map[uuid.UUID]*model.Order)}
}

func (m *memRepo) Close() error { return nil }

func (m *memRepo) CreateOrder(ctx context.Context, order *model.Order) error {
	cp := *order
	cp.Lines = append([]model.OrderLine(nil), order.Lines...)
	m.orders[order.ID] = &cp
	return nil
}

func (m *memRepo) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	cp.Lines = append([]model.OrderLine(nil), o.Lines...)
	return &cp, nil
}

func (m *memRepo) TransitionForRestaurant(ctx context.Context, orderID, restaurantRef uuid.UUID, from, to model.OrderStatus) (bool, error) {
	o, ok := m.orders[orderID]
	if !ok || o.RestaurantRef != restaurantRef || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (m *memRepo) Transition(ctx context.Context, orderID uuid.UUID, from, to model.OrderStatus) (bool, error) {
	o, ok := m.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (m *memRepo) CancelForClient(ctx context.Context, orderID, clientRef uuid.UUID) (bool, error) {
	o, ok := m.orders[orderID]
	if !ok || o.ClientRef != clientRef || !model.ClientMayCancel(o.Status) {
		return false, nil
	}
	o.Status = model.StatusCancelled
	return true, nil
}

func (m *memRepo) AssignDriver(ctx context.Context, orderID, driverRef uuid.UUID) (bool, error) {
	o, ok := m.orders[orderID]
	if !ok || o.Status != model.StatusAwaitingDriver || o.DriverRef != nil {
		return false, nil
	}
	busy, _ := m.HasActiveOrder(ctx, driverRef)
	if busy {
		return false, nil
	}
	ref := driverRef
	o.DriverRef = &ref
	o.Status = model.StatusEnRoute
	return true, nil
}

func (m *memRepo) HasActiveOrder(ctx context.Context, driverRef uuid.UUID) (bool, error) {
	for _, o := range m.orders {
		if o.DriverRef != nil && *o.DriverRef == driverRef &&
			(o.Status == model.StatusEnRoute || o.Status == model.StatusPickedUp) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) ArchiveOrder(ctx context.Context, orderID, restaurantRef uuid.UUID, rating int) error {
	if _, ok := m.orders[orderID]; !ok {
		return repository.ErrOrderNotFound
	}
	delete(m.orders, orderID)
	return nil
}

func (m *memRepo) PendingForRestaurant(ctx context.Context, restaurantRef uuid.UUID) ([]model.Order, error) {
	var res []model.Order
	for _, o := range m.orders {
		if o.RestaurantRef == restaurantRef && o.Status == model.StatusAwaitingRestaurant {
			res = append(res, *o)
		}
	}
	return res, nil
}

func (m *memRepo) ActiveForRestaurant(ctx context.Context, restaurantRef uuid.UUID) ([]model.Order, error) {
	var res []model.Order
	for _, o := range m.orders {
		if o.RestaurantRef == restaurantRef &&
			(o.Status == model.StatusAwaitingDriver || o.Status == model.StatusEnRoute) {
			res = append(res, *o)
		}
	}
	return res, nil
}

func (m *memRepo) PendingForDrivers(ctx context.Context) ([]model.FeedOrder, error) {
	var res []model.FeedOrder
	for _, o := range m.orders {
		if o.Status == model.StatusAwaitingDriver {
			res = append(res, model.FeedOrder{Order: *o})
		}
	}
	return res, nil
}

func (m *memRepo) ActiveForDriver(ctx context.Context, driverRef uuid.UUID) (*model.FeedOrder, error) {
	for _, o := range m.orders {
		if o.DriverRef != nil && *o.DriverRef == driverRef &&
			(o.Status == model.StatusEnRoute || o.Status == model.StatusPickedUp) {
			return &model.FeedOrder{Order: *o}, nil
		}
	}
	return nil, nil
}

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) Notify(ctx context.Context, recipient uuid.UUID, n notify.Notification) error {
	s.calls++
	return s.err
}

func newTestService(repo Repository, notifier notify.Notifier) *Service {
	return NewService(repo, notifier, zap.NewNop())
}

func TestCreateOrder_TotalAndInitialState(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, nil)

	client := uuid.New()
	restaurant := uuid.New()

	// 2 шт. по 5.00 и 1 шт. по 3.50 → 13.50
	order, err := svc.CreateOrder(context.Background(), client, restaurant, []LineInput{
		{ProductRef: uuid.New(), Quantity: 2, UnitPriceCents: 500},
		{ProductRef: uuid.New(), Quantity: 1, UnitPriceCents: 350},
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}

	if order.TotalCents != 1350 {
		t.Fatalf("TotalCents = %d, want 1350", order.TotalCents)
	}
	if order.Status != model.StatusAwaitingRestaurant {
		t.Fatalf("Status = %s, want %s", order.Status, model.StatusAwaitingRestaurant)
	}
	if order.DriverRef != nil {
		t.Fatalf("DriverRef must be nil at creation")
	}
	if len(order.Lines) != 2 {
		t.Fatalf("len(Lines) = %d, want 2", len(order.Lines))
	}
	if order.Lines[0].SubtotalCents != 1000 || order.Lines[1].SubtotalCents != 350 {
		t.Fatalf("unexpected subtotals: %d, %d", order.Lines[0].SubtotalCents, order.Lines[1].SubtotalCents)
	}

	stored, err := repo.GetOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("order not persisted: %v", err)
	}
	if stored.TotalCents != 1350 {
		t.Fatalf("persisted TotalCents = %d, want 1350", stored.TotalCents)
	}
}

func TestCreateOrder_CodesWithinRange(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, nil)

	distinct := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		order, err := svc.CreateOrder(context.Background(), uuid.New(), uuid.New(), []LineInput{
			{ProductRef: uuid.New(), Quantity: 1, UnitPriceCents: 100},
		})
		if err != nil {
			t.Fatalf("CreateOrder error: %v", err)
		}

		for _, code := range []string{order.CodeRestaurant, order.CodeClient} {
			value, err := validation.ParseVerificationCode(code)
			if err != nil {
				t.Fatalf("code %q malformed: %v", code, err)
			}
			if value < 1000 || value > 9999 {
				t.Fatalf("code %d out of [1000, 9999]", value)
			}
			distinct[code] = struct{}{}
		}
	}

	if len(distinct) < 2 {
		t.Fatalf("codes are not random: %d distinct values over 200 draws", len(distinct))
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	svc := newTestService(newMemRepo(), nil)

	if _, err := svc.CreateOrder(context.Background(), uuid.New(), uuid.New(), nil); !errors.Is(err, ErrEmptyOrder) {
		t.Fatalf("err = %v, want ErrEmptyOrder", err)
	}

	_, err := svc.CreateOrder(context.Background(), uuid.New(), uuid.New(), []LineInput{
		{ProductRef: uuid.New(), Quantity: 0, UnitPriceCents: 100},
	})
	if !errors.Is(err, ErrInvalidLine) {
		t.Fatalf("err = %v, want ErrInvalidLine for zero quantity", err)
	}

	_, err = svc.CreateOrder(context.Background(), uuid.New(), uuid.New(), []LineInput{
		{ProductRef: uuid.New(), Quantity: 1, UnitPriceCents: -1},
	})
	if !errors.Is(err, ErrInvalidLine) {
		t.Fatalf("err = %v, want ErrInvalidLine for negative price", err)
	}
}

func TestCreateOrder_NotifierFailureDoesNotBlock(t *testing.T) {
	notifier := &stubNotifier{err: errors.New("broker down")}
	svc := newTestService(newMemRepo(), notifier)

	_, err := svc.CreateOrder(context.Background(), uuid.New(), uuid.New(), []LineInput{
		{ProductRef: uuid.New(), Quantity: 1, UnitPriceCents: 100},
	})
	if err != nil {
		t.Fatalf("CreateOrder must not fail on notifier error, got %v", err)
	}
	if notifier.calls != 1 {
		t.Fatalf("notifier calls = %d, want 1", notifier.calls)
	}
}

func mustCreateOrder(t *testing.T, svc *Service, client, restaurant uuid.UUID) *model.Order {
	t.Helper()

	order, err := svc.CreateOrder(context.Background(), client, restaurant, []LineInput{
		{ProductRef: uuid.New(), Quantity: 2, UnitPriceCents: 500},
		{ProductRef: uuid.New(), Quantity: 1, UnitPriceCents: 350},
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	return order
}

func TestAcceptOrder(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, nil)

	client := uuid.New()
	restaurant := uuid.New()
	order := mustCreateOrder(t, svc, client, restaurant)

	if err := svc.AcceptOrder(context.Background(), uuid.New(), order.ID); !errors.Is(err, ErrWrongRestaurant) {
		t.Fatalf("foreign restaurant err = %v, want ErrWrongRestaurant", err)
	}

	if err := svc.AcceptOrder(context.Background(), restaurant, order.ID); err != nil {
		t.Fatalf("AcceptOrder error: %v", err)
	}

	stored, _ := repo.GetOrder(context.Background(), order.ID)
	if stored.Status != model.StatusAwaitingDriver {
		t.Fatalf("Status = %s, want %s", stored.Status, model.StatusAwaitingDriver)
	}

	if err := svc.AcceptOrder(context.Background(), restaurant, order.ID); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("second accept err = %v, want ErrNotAllowed", err)
	}

	if err := svc.AcceptOrder(context.Background(), restaurant, uuid.New()); !errors.Is(err, repository.ErrOrderNotFound) {
		t.Fatalf("missing order err = %v, want ErrOrderNotFound", err)
	}
}

func TestRejectOrder(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, nil)

	restaurant := uuid.New()
	order := mustCreateOrder(t, svc, uuid.New(), restaurant)

	if err := svc.RejectOrder(context.Background(), restaurant, order.ID); err != nil {
		t.Fatalf("RejectOrder error: %v", err)
	}

	stored, _ := repo.GetOrder(context.Background(), order.ID)
	if stored.Status != model.StatusCancelled {
		t.Fatalf("Status = %s, want %s", stored.Status, model.StatusCancelled)
	}

	if err := svc.RejectOrder(context.Background(), restaurant, order.ID); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("reject of cancelled err = %v, want ErrNotAllowed", err)
	}
}

func TestCancelOrder(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, nil)

	client := uuid.New()
	restaurant := uuid.New()

	early := mustCreateOrder(t, svc, client, restaurant)
	if err := svc.CancelOrder(context.Background(), client, early.ID); err != nil {
		t.Fatalf("cancel while awaiting restaurant: %v", err)
	}

	accepted := mustCreateOrder(t, svc, client, restaurant)
	if err := svc.AcceptOrder(context.Background(), restaurant, accepted.ID); err != nil {
		t.Fatalf("AcceptOrder error: %v", err)
	}
	if err := svc.CancelOrder(context.Background(), client, accepted.ID); err != nil {
		t.Fatalf("cancel while awaiting driver: %v", err)
	}

	taken := mustCreateOrder(t, svc, client, restaurant)
	if err := svc.AcceptOrder(context.Background(), restaurant, taken.ID); err != nil {
		t.Fatalf("AcceptOrder error: %v", err)
	}
	if err := svc.TakeOrder(context.Background(), uuid.New(), taken.ID); err != nil {
		t.Fatalf("TakeOrder error: %v", err)
	}
	if err := svc.CancelOrder(context.Background(), client, taken.ID); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("cancel en_route err = %v, want ErrNotAllowed", err)
	}

	other := mustCreateOrder(t, svc, client, restaurant)
	if err := svc.CancelOrder(context.Background(), uuid.New(), other.ID); !errors.Is(err, ErrWrongClient) {
		t.Fatalf("foreign client err = %v, want ErrWrongClient", err)
	}
}

func TestTakeOrder_DriverExclusivity(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, nil)

	client := uuid.New()
	restaurant := uuid.New()
	driverA := uuid.New()
	driverB := uuid.New()

	orderA := mustCreateOrder(t, svc, client, restaurant)
	if err := svc.AcceptOrder(context.Background(), restaurant, orderA.ID); err != nil {
		t.Fatalf("AcceptOrder error: %v", err)
	}

	if err := svc.TakeOrder(context.Background(), driverA, orderA.ID); err != nil {
		t.Fatalf("TakeOrder error: %v", err)
	}

	stored, _ := repo.GetOrder(context.Background(), orderA.ID)
	if stored.Status != model.StatusEnRoute {
		t.Fatalf("Status = %s, want %s", stored.Status, model.StatusEnRoute)
	}
	if stored.DriverRef == nil || *stored.DriverRef != driverA {
		t.Fatalf("DriverRef = %v, want %s", stored.DriverRef, driverA)
	}

	// Второй курьер не может взять уже назначенный заказ.
	if err := svc.TakeOrder(context.Background(), driverB, orderA.ID); !errors.Is(err, ErrOrderTaken) {
		t.Fatalf("second driver err = %v, want ErrOrderTaken", err)
	}

	// Курьер с активной доставкой не может взять второй заказ.
	orderB := mustCreateOrder(t, svc, client, restaurant)
	if err := svc.AcceptOrder(context.Background(), restaurant, orderB.ID); err != nil {
		t.Fatalf("AcceptOrder error: %v", err)
	}
	if err := svc.TakeOrder(context.Background(), driverA, orderB.ID); !errors.Is(err, ErrDriverBusy) {
		t.Fatalf("busy driver err = %v, want ErrDriverBusy", err)
	}

	// Назначение при этом не изменилось.
	stored, _ = repo.GetOrder(context.Background(), orderB.ID)
	if stored.DriverRef != nil || stored.Status != model.StatusAwaitingDriver {
		t.Fatalf("order B must stay unassigned, got %s / %v", stored.Status, stored.DriverRef)
	}
}

func TestTakeOrder_NeverFromTerminalState(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, nil)

	client := uuid.New()
	restaurant := uuid.New()
	order := mustCreateOrder(t, svc, client, restaurant)
	advanceToDelivered(t, svc, repo, order.ID, restaurant, client)

	// delivered → en_route недостижим ни при каких условиях.
	if err := svc.TakeOrder(context.Background(), uuid.New(), order.ID); !errors.Is(err, ErrOrderTaken) {
		t.Fatalf("take of delivered order err = %v, want ErrOrderTaken", err)
	}

	stored, _ := repo.GetOrder(context.Background(), order.ID)
	if stored.Status != model.StatusDelivered {
		t.Fatalf("Status = %s, want %s", stored.Status, model.StatusDelivered)
	}
}

func advanceToDelivered(t *testing.T, svc *Service, repo *memRepo, orderID, restaurant, client uuid.UUID) {
	t.Helper()

	ctx := context.Background()
	if err := svc.AcceptOrder(ctx, restaurant, orderID); err != nil {
		t.Fatalf("AcceptOrder error: %v", err)
	}
	if err := svc.TakeOrder(ctx, uuid.New(), orderID); err != nil {
		t.Fatalf("TakeOrder error: %v", err)
	}

	stored, _ := repo.GetOrder(ctx, orderID)
	if err := svc.VerifyPickup(ctx, restaurant, orderID, stored.CodeRestaurant); err != nil {
		t.Fatalf("VerifyPickup error: %v", err)
	}
	if err := svc.VerifyDelivery(ctx, client, orderID, stored.CodeClient); err != nil {
		t.Fatalf("VerifyDelivery error: %v", err)
	}
}

func TestVerifyPickup(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, nil)

	ctx := context.Background()
	client := uuid.New()
	restaurant := uuid.New()
	order := mustCreateOrder(t, svc, client, restaurant)

	if err := svc.AcceptOrder(ctx, restaurant, order.ID); err != nil {
		t.Fatalf("AcceptOrder error: %v", err)
	}
	if err := svc.TakeOrder(ctx, uuid.New(), order.ID); err != nil {
		t.Fatalf("TakeOrder error: %v", err)
	}

	stored, _ := repo.GetOrder(ctx, order.ID)

	if err := svc.VerifyPickup(ctx, restaurant, order.ID, "12x4"); !errors.Is(err, validation.ErrInvalidCode) {
		t.Fatalf("malformed code err = %v, want ErrInvalidCode", err)
	}

	wrong := "1000"
	if stored.CodeRestaurant == wrong {
		wrong = "1001"
	}
	if err := svc.VerifyPickup(ctx, restaurant, order.ID, wrong); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("wrong code err = %v, want ErrCodeMismatch", err)
	}

	after, _ := repo.GetOrder(ctx, order.ID)
	if after.Status != model.StatusEnRoute {
		t.Fatalf("status after mismatch = %s, want %s", after.Status, model.StatusEnRoute)
	}

	if err := svc.VerifyPickup(ctx, uuid.New(), order.ID, stored.CodeRestaurant); !errors.Is(err, ErrWrongRestaurant) {
		t.Fatalf("foreign restaurant err = %v, want ErrWrongRestaurant", err)
	}

	if err := svc.VerifyPickup(ctx, restaurant, order.ID, stored.CodeRestaurant); err != nil {
		t.Fatalf("VerifyPickup error: %v", err)
	}

	after, _ = repo.GetOrder(ctx, order.ID)
	if after.Status != model.StatusPickedUp {
		t.Fatalf("status = %s, want %s", after.Status, model.StatusPickedUp)
	}

	// Повторная сверка корректного кода — нарушение предусловия, не дубль перехода.
	if err := svc.VerifyPickup(ctx, restaurant, order.ID, stored.CodeRestaurant); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("repeated verify err = %v, want ErrNotAllowed", err)
	}
}

func TestVerifyDelivery(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, nil)

	ctx := context.Background()
	client := uuid.New()
	restaurant := uuid.New()
	order := mustCreateOrder(t, svc, client, restaurant)

	if err := svc.AcceptOrder(ctx, restaurant, order.ID); err != nil {
		t.Fatalf("AcceptOrder error: %v", err)
	}
	if err := svc.TakeOrder(ctx, uuid.New(), order.ID); err != nil {
		t.Fatalf("TakeOrder error: %v", err)
	}

	stored, _ := repo.GetOrder(ctx, order.ID)

	// Код клиента не срабатывает до передачи заказа курьеру.
	if err := svc.VerifyDelivery(ctx, client, order.ID, stored.CodeClient); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("delivery before pickup err = %v, want ErrNotAllowed", err)
	}

	if err := svc.VerifyPickup(ctx, restaurant, order.ID, stored.CodeRestaurant); err != nil {
		t.Fatalf("VerifyPickup error: %v", err)
	}

	if err := svc.VerifyDelivery(ctx, uuid.New(), order.ID, stored.CodeClient); !errors.Is(err, ErrWrongClient) {
		t.Fatalf("foreign client err = %v, want ErrWrongClient", err)
	}

	if err := svc.VerifyDelivery(ctx, client, order.ID, stored.CodeClient); err != nil {
		t.Fatalf("VerifyDelivery error: %v", err)
	}

	after, _ := repo.GetOrder(ctx, order.ID)
	if after.Status != model.StatusDelivered {
		t.Fatalf("status = %s, want %s", after.Status, model.StatusDelivered)
	}

	if err := svc.VerifyDelivery(ctx, client, order.ID, stored.CodeClient); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("repeated verify err = %v, want ErrNotAllowed", err)
	}
}

func TestArchiveOrder(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, nil)

	ctx := context.Background()
	client := uuid.New()
	restaurant := uuid.New()
	order := mustCreateOrder(t, svc, client, restaurant)

	if err := svc.ArchiveOrder(ctx, client, order.ID, 0); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("rating 0 err = %v, want ErrInvalidRating", err)
	}
	if err := svc.ArchiveOrder(ctx, client, order.ID, 6); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("rating 6 err = %v, want ErrInvalidRating", err)
	}

	if err := svc.ArchiveOrder(ctx, client, order.ID, 5); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("archive of undelivered err = %v, want ErrNotAllowed", err)
	}

	advanceToDelivered(t, svc, repo, order.ID, restaurant, client)

	if err := svc.ArchiveOrder(ctx, uuid.New(), order.ID, 5); !errors.Is(err, ErrWrongClient) {
		t.Fatalf("foreign client err = %v, want ErrWrongClient", err)
	}

	if err := svc.ArchiveOrder(ctx, client, order.ID, 5); err != nil {
		t.Fatalf("ArchiveOrder error: %v", err)
	}

	if _, err := repo.GetOrder(ctx, order.ID); !errors.Is(err, repository.ErrOrderNotFound) {
		t.Fatalf("archived order err = %v, want ErrOrderNotFound", err)
	}
}

func TestFullLifecycle(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, nil)

	ctx := context.Background()
	client := uuid.New()
	restaurant := uuid.New()
	driver := uuid.New()

	order := mustCreateOrder(t, svc, client, restaurant)

	pending, err := svc.PendingForRestaurant(ctx, restaurant)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending for restaurant = %d (%v), want 1", len(pending), err)
	}

	if err := svc.AcceptOrder(ctx, restaurant, order.ID); err != nil {
		t.Fatalf("AcceptOrder error: %v", err)
	}

	forDrivers, err := svc.PendingForDrivers(ctx)
	if err != nil || len(forDrivers) != 1 {
		t.Fatalf("pending for drivers = %d (%v), want 1", len(forDrivers), err)
	}

	if err := svc.TakeOrder(ctx, driver, order.ID); err != nil {
		t.Fatalf("TakeOrder error: %v", err)
	}

	active, err := svc.ActiveForDriver(ctx, driver)
	if err != nil || active == nil || active.ID != order.ID {
		t.Fatalf("active for driver = %v (%v), want order", active, err)
	}

	stored, _ := repo.GetOrder(ctx, order.ID)
	if err := svc.VerifyPickup(ctx, restaurant, order.ID, stored.CodeRestaurant); err != nil {
		t.Fatalf("VerifyPickup error: %v", err)
	}
	if err := svc.VerifyDelivery(ctx, client, order.ID, stored.CodeClient); err != nil {
		t.Fatalf("VerifyDelivery error: %v", err)
	}

	active, err = svc.ActiveForDriver(ctx, driver)
	if err != nil || active != nil {
		t.Fatalf("active after delivery = %v (%v), want nil", active, err)
	}

	final, _ := repo.GetOrder(ctx, order.ID)
	if final.Status != model.StatusDelivered {
		t.Fatalf("final status = %s, want %s", final.Status, model.StatusDelivered)
	}
}
