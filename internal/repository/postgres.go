// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/delivery-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrOrderNotFound возвращается, если заказ не найден.
var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrRestaurantNotFound возвращается, если ресторан заказа не найден при выставлении оценки.
	ErrRestaurantNotFound = errors.New("restaurant not found")
)

// Статусы активной доставки: у курьера может быть не более одного заказа в этих статусах.
var activeStatuses = []string{
	string(model.StatusEnRoute),
	string(model.StatusPickedUp),
}

// PostgresRepository предоставляет доступ к хранилищу заказов в PostgreSQL.
// Все смены статусов выполняются одним условным UPDATE: успех определяется
// количеством затронутых строк, что исключает гонки read-then-write.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при Serialization Failure, Deadlock и сетевых сбоях.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const orderColumns = `id, client_ref, restaurant_ref, driver_ref, total_amount, status, code_restaurant, code_client, created_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o      model.Order
		status string
	)
	err := row.Scan(&o.ID, &o.ClientRef, &o.RestaurantRef, &o.DriverRef,
		&o.TotalCents, &status, &o.CodeRestaurant, &o.CodeClient, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	return &o, nil
}

// CreateOrder сохраняет заказ вместе с позициями в одной транзакции.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order *model.Order) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx,
			`INSERT INTO orders (id, client_ref, restaurant_ref, driver_ref, total_amount, status, code_restaurant, code_client, created_at)
			 VALUES ($1, $2, $3, NULL, $4, $5, $6, $7, $8)`,
			order.ID, order.ClientRef, order.RestaurantRef,
			order.TotalCents, string(order.Status), order.CodeRestaurant, order.CodeClient, order.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for _, line := range order.Lines {
			_, err = tx.Exec(ctx,
				`INSERT INTO order_lines (id, order_ref, product_ref, quantity, unit_price, subtotal)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				line.ID, line.OrderRef, line.ProductRef, line.Quantity, line.UnitPriceCents, line.SubtotalCents,
			)
			if err != nil {
				return fmt.Errorf("insert order line: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// GetOrder возвращает заказ с позициями по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	lines, err := r.loadLines(ctx, []uuid.UUID{order.ID})
	if err != nil {
		return nil, err
	}
	order.Lines = lines[order.ID]

	return order, nil
}

func (r *PostgresRepository) loadLines(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]model.OrderLine, error) {
	if len(orderIDs) == 0 {
		return map[uuid.UUID][]model.OrderLine{}, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, order_ref, product_ref, quantity, unit_price, subtotal
		 FROM order_lines
		 WHERE order_ref = ANY($1)`,
		orderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("select order lines: %w", err)
	}
	defer rows.Close()

	res := make(map[uuid.UUID][]model.OrderLine)
	for rows.Next() {
		var line model.OrderLine
		if err := rows.Scan(&line.ID, &line.OrderRef, &line.ProductRef, &line.Quantity, &line.UnitPriceCents, &line.SubtotalCents); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		res[line.OrderRef] = append(res[line.OrderRef], line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// TransitionForRestaurant выполняет условный переход статуса заказа, принадлежащего
// указанному ресторану. Возвращает false, если условие не выполнилось.
func (r *PostgresRepository) TransitionForRestaurant(ctx context.Context, orderID, restaurantRef uuid.UUID, from, to model.OrderStatus) (bool, error) {
	var tag pgconn.CommandTag
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		tag, err = r.pool.Exec(ctx,
			`UPDATE orders SET status = $4 WHERE id = $1 AND restaurant_ref = $2 AND status = $3`,
			orderID, restaurantRef, string(from), string(to),
		)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("transition order: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Transition выполняет условный переход статуса без проверки принадлежности.
// Используется воротами верификации после успешной сверки кода.
func (r *PostgresRepository) Transition(ctx context.Context, orderID uuid.UUID, from, to model.OrderStatus) (bool, error) {
	var tag pgconn.CommandTag
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		tag, err = r.pool.Exec(ctx,
			`UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`,
			orderID, string(from), string(to),
		)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("transition order: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CancelForClient отменяет заказ клиента, пока курьер не забрал его в ресторане.
func (r *PostgresRepository) CancelForClient(ctx context.Context, orderID, clientRef uuid.UUID) (bool, error) {
	var tag pgconn.CommandTag
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		tag, err = r.pool.Exec(ctx,
			`UPDATE orders SET status = $3
			 WHERE id = $1 AND client_ref = $2 AND status = ANY($4)`,
			orderID, clientRef, string(model.StatusCancelled),
			[]string{string(model.StatusAwaitingRestaurant), string(model.StatusAwaitingDriver)},
		)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("cancel order: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// AssignDriver назначает курьера на заказ одним условным UPDATE: заказ должен
// ждать курьера, а у курьера не должно быть другой активной доставки. Гонку
// двух курьеров за один заказ выигрывает ровно один.
func (r *PostgresRepository) AssignDriver(ctx context.Context, orderID, driverRef uuid.UUID) (bool, error) {
	var tag pgconn.CommandTag
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		tag, err = r.pool.Exec(ctx,
			`UPDATE orders SET status = $3, driver_ref = $2
			 WHERE id = $1 AND status = $4 AND driver_ref IS NULL
			   AND NOT EXISTS (
			       SELECT 1 FROM orders active
			       WHERE active.driver_ref = $2 AND active.status = ANY($5)
			   )`,
			orderID, driverRef, string(model.StatusEnRoute), string(model.StatusAwaitingDriver),
			activeStatuses,
		)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("assign driver: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// HasActiveOrder сообщает, есть ли у курьера незавершённая доставка.
func (r *PostgresRepository) HasActiveOrder(ctx context.Context, driverRef uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE driver_ref = $1 AND status = ANY($2))`,
		driverRef, activeStatuses,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active order: %w", err)
	}
	return exists, nil
}

// ArchiveOrder применяет оценку к ресторану и удаляет заказ с позициями
// в одной транзакции. Оценка учитывается как скользящее среднее.
func (r *PostgresRepository) ArchiveOrder(ctx context.Context, orderID, restaurantRef uuid.UUID, rating int) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		tag, err := tx.Exec(ctx,
			`UPDATE restaurants
			 SET rating = ((rating * rating_count) + $2) / (rating_count + 1),
			     rating_count = rating_count + 1
			 WHERE id = $1`,
			restaurantRef, float64(rating),
		)
		if err != nil {
			return fmt.Errorf("rate restaurant: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrRestaurantNotFound
		}

		if _, err := tx.Exec(ctx, `DELETE FROM order_lines WHERE order_ref = $1`, orderID); err != nil {
			return fmt.Errorf("delete order lines: %w", err)
		}

		tag, err = tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
		if err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrOrderNotFound
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}
