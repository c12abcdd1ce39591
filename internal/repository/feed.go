package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/delivery-system/internal/model"
)

// Ленты диспетчеризации: запросы только на чтение, всегда отражают
// последнее зафиксированное состояние заказов.

const feedColumns = `o.id, o.client_ref, o.restaurant_ref, o.driver_ref, o.total_amount, o.status,
	       o.code_restaurant, o.code_client, o.created_at,
	       COALESCE(r.display_name, ''), COALESCE(r.address, ''), COALESCE(c.delivery_address, '')`

const feedJoins = ` FROM orders o
	 LEFT JOIN restaurants r ON r.id = o.restaurant_ref
	 LEFT JOIN clients c ON c.id = o.client_ref`

func scanFeedOrder(row pgx.Row) (*model.FeedOrder, error) {
	var (
		fo     model.FeedOrder
		status string
	)
	err := row.Scan(&fo.ID, &fo.ClientRef, &fo.RestaurantRef, &fo.DriverRef,
		&fo.TotalCents, &status, &fo.CodeRestaurant, &fo.CodeClient, &fo.CreatedAt,
		&fo.RestaurantName, &fo.RestaurantAddress, &fo.DeliveryAddress)
	if err != nil {
		return nil, err
	}
	fo.Status = model.OrderStatus(status)
	return &fo, nil
}

// PendingForRestaurant возвращает заказы ресторана, ожидающие его решения.
// Позиции загружаются сразу: ресторану нужен состав заказа.
func (r *PostgresRepository) PendingForRestaurant(ctx context.Context, restaurantRef uuid.UUID) ([]model.Order, error) {
	return r.ordersWithLines(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE restaurant_ref = $1 AND status = $2
		 ORDER BY created_at DESC`,
		restaurantRef, string(model.StatusAwaitingRestaurant),
	)
}

// ActiveForRestaurant возвращает операционно видимые ресторану заказы:
// принятые и ожидающие курьера либо уже в пути к ресторану.
func (r *PostgresRepository) ActiveForRestaurant(ctx context.Context, restaurantRef uuid.UUID) ([]model.Order, error) {
	return r.ordersWithLines(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE restaurant_ref = $1 AND status = ANY($2)
		 ORDER BY created_at DESC`,
		restaurantRef, []string{string(model.StatusAwaitingDriver), string(model.StatusEnRoute)},
	)
}

func (r *PostgresRepository) ordersWithLines(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	var ids []uuid.UUID
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
		ids = append(ids, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	lines, err := r.loadLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
	}

	return orders, nil
}

// PendingForDrivers возвращает заказы, ожидающие курьера, обогащённые
// названием ресторана и адресом доставки для выбора заказа.
func (r *PostgresRepository) PendingForDrivers(ctx context.Context) ([]model.FeedOrder, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+feedColumns+feedJoins+`
		 WHERE o.status = $1
		 ORDER BY o.created_at DESC`,
		string(model.StatusAwaitingDriver),
	)
	if err != nil {
		return nil, fmt.Errorf("select pending orders: %w", err)
	}
	defer rows.Close()

	var res []model.FeedOrder
	for rows.Next() {
		fo, err := scanFeedOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feed order: %w", err)
		}
		res = append(res, *fo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ActiveForDriver возвращает текущую доставку курьера либо nil, если её нет.
func (r *PostgresRepository) ActiveForDriver(ctx context.Context, driverRef uuid.UUID) (*model.FeedOrder, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+feedColumns+feedJoins+`
		 WHERE o.driver_ref = $1 AND o.status = ANY($2)
		 LIMIT 1`,
		driverRef, activeStatuses,
	)

	fo, err := scanFeedOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select active order: %w", err)
	}

	return fo, nil
}
