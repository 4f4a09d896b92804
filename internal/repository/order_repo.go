package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/onstechno/storefront/internal/domain"
	"github.com/onstechno/storefront/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OrderRepository interface {
	Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	GetStatus(ctx context.Context, tx pgx.Tx, orderID int64) (domain.OrderStatus, error)
	GetItems(ctx context.Context, tx pgx.Tx, orderID int64) ([]domain.OrderItem, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, orderID int64, from, to domain.OrderStatus, paymentStatus *domain.PaymentStatus, notes *string) error
	MarkCancelledIfPending(ctx context.Context, tx pgx.Tx, orderID int64) (bool, error)
	ListByUser(ctx context.Context, userID int64, filter domain.OrderFilter) ([]domain.Order, int64, error)
	ListAdmin(ctx context.Context, filter domain.OrderFilter) ([]domain.AdminOrderRow, int64, error)
}

type orderRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderRepository(pool *pgxpool.Pool, logger *zap.Logger) OrderRepository {
	return &orderRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("order_repository"),
	}
}

func (r *orderRepo) Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_number", order.OrderNumber),
		attribute.Int("items_count", len(order.Items)),
	)

	queryOrder := `
		INSERT INTO orders (order_number, user_id, status, payment_method, payment_status,
			shipping_address, billing_address, currency, total_amount, customer_info, notes,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING id, created_at, updated_at;
	`

	if err := tx.QueryRow(
		ctx,
		queryOrder,
		order.OrderNumber,
		order.UserID,
		string(order.Status),
		string(order.PaymentMethod),
		string(order.PaymentStatus),
		order.ShippingAddress,
		order.BillingAddress,
		string(order.Currency),
		order.TotalAmount,
		order.CustomerInfo,
		order.Notes,
	).Scan(
		&order.ID,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert order",
			zap.String("order_number", order.OrderNumber),
			zap.Error(err),
		)

		return fmt.Errorf("failed to insert order: %w", err)
	}

	queryItem := `
		INSERT INTO order_items (order_id, product_id, name, price, quantity, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id;
	`

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID

		if err := tx.QueryRow(
			ctx,
			queryItem,
			item.OrderID,
			item.ProductID,
			item.Name,
			item.Price,
			item.Quantity,
			item.Subtotal,
		).Scan(&item.ID); err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Failed to insert order item",
				zap.Int64("order_id", order.ID),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err),
			)

			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return nil
}

const orderColumns = `id, order_number, user_id, status, payment_method, payment_status,
	shipping_address, billing_address, currency, total_amount, customer_info, notes,
	created_at, updated_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var status, paymentMethod, paymentStatus, currency string
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.UserID,
		&status,
		&paymentMethod,
		&paymentStatus,
		&o.ShippingAddress,
		&o.BillingAddress,
		&currency,
		&o.TotalAmount,
		&o.CustomerInfo,
		&o.Notes,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	o.PaymentMethod = domain.PaymentMethod(paymentMethod)
	o.PaymentStatus = domain.PaymentStatus(paymentStatus)
	o.Currency = domain.Currency(currency)
	return &o, nil
}

func (r *orderRepo) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByID")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", id),
	)

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE id = $1;
	`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query order",
			zap.Int64("order_id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	itemsQuery := `
		SELECT id, order_id, product_id, name, price, quantity, subtotal
		FROM order_items
		WHERE order_id = $1
		ORDER BY id;
	`

	rows, err := r.pool.Query(ctx, itemsQuery, id)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query order items",
			zap.Int64("order_id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Name,
			&item.Price,
			&item.Quantity,
			&item.Subtotal,
		); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return order, nil
}

func (r *orderRepo) GetStatus(ctx context.Context, tx pgx.Tx, orderID int64) (domain.OrderStatus, error) {
	query := `
		SELECT status
		FROM orders
		WHERE id = $1;
	`

	var status string
	if err := tx.QueryRow(ctx, query, orderID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrOrderNotFound
		}

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query order status",
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)

		return "", fmt.Errorf("failed to query order status: %w", err)
	}

	return domain.OrderStatus(status), nil
}

func (r *orderRepo) GetItems(ctx context.Context, tx pgx.Tx, orderID int64) ([]domain.OrderItem, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetItems")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
	)

	query := `
		SELECT id, order_id, product_id, name, price, quantity, subtotal
		FROM order_items
		WHERE order_id = $1
		ORDER BY id;
	`

	rows, err := tx.Query(ctx, query, orderID)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query order_items",
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var result []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Name,
			&item.Price,
			&item.Quantity,
			&item.Subtotal,
		); err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Failed to scan order item row",
				zap.Error(err),
			)

			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}

		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		mylogger.Error(
			ctx,
			r.logger,
			"Rows error",
			zap.Error(err),
		)

		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

// UpdateStatus moves an order from one status to another. The WHERE clause
// carries the expected current status, so a concurrent writer that changed it
// first (a cancellation in particular) makes this update match zero rows
// instead of overwriting the newer state.
func (r *orderRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, orderID int64, from, to domain.OrderStatus, paymentStatus *domain.PaymentStatus, notes *string) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.UpdateStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("status", string(to)),
	)

	updates := []string{"status = $1"}
	args := []interface{}{string(to)}
	argID := 2

	if paymentStatus != nil {
		updates = append(updates, fmt.Sprintf("payment_status = $%d", argID))
		args = append(args, string(*paymentStatus))
		argID++
	}

	if notes != nil {
		updates = append(updates, fmt.Sprintf("notes = $%d", argID))
		args = append(args, *notes)
		argID++
	}

	updates = append(updates, "updated_at = NOW()")

	query := fmt.Sprintf(
		"UPDATE orders SET %s WHERE id = $%d AND status = $%d",
		strings.Join(updates, ", "),
		argID,
		argID+1,
	)
	args = append(args, orderID, string(from))

	commandTag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to update order",
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to update order: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		mylogger.Warn(
			ctx,
			r.logger,
			"Order status moved under a concurrent writer",
			zap.Int64("order_id", orderID),
			zap.String("expected_status", string(from)),
		)

		return ErrStaleOrderStatus
	}

	return nil
}

// MarkCancelledIfPending flips a pending order to cancelled and reports
// whether this call performed the flip. The conditional WHERE is the guard
// that keeps stock from being restored twice for the same order.
func (r *orderRepo) MarkCancelledIfPending(ctx context.Context, tx pgx.Tx, orderID int64) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.MarkCancelledIfPending")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
	)

	query := `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2
			AND status = $3;
	`

	commandTag, err := tx.Exec(ctx, query, string(domain.OrderStatusCancelled), orderID, string(domain.OrderStatusPending))
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to cancel order",
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)

		return false, fmt.Errorf("failed to cancel order: %w", err)
	}

	return commandTag.RowsAffected() > 0, nil
}

var sortableOrderColumns = map[string]string{
	"created_at":   "created_at",
	"total_amount": "total_amount",
}

func (r *orderRepo) ListByUser(ctx context.Context, userID int64, filter domain.OrderFilter) ([]domain.Order, int64, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.ListByUser")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.Int64("page", filter.Page),
	)

	baseQuery := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1`
	countQuery := `SELECT COUNT(*) FROM orders WHERE user_id = $1`

	args := []interface{}{userID}
	argID := 2

	if filter.Status != "" {
		cond := fmt.Sprintf(" AND status = $%d", argID)
		baseQuery += cond
		countQuery += cond
		args = append(args, string(filter.Status))
		argID++
	}

	if filter.PaymentStatus != "" {
		cond := fmt.Sprintf(" AND payment_status = $%d", argID)
		baseQuery += cond
		countQuery += cond
		args = append(args, string(filter.PaymentStatus))
		argID++
	}

	orderBy := "created_at"
	if col, ok := sortableOrderColumns[filter.SortBy]; ok {
		orderBy = col
	}

	direction := "DESC"
	if filter.SortDir == domain.SortAsc {
		direction = "ASC"
	}

	baseQuery += fmt.Sprintf(" ORDER BY %s %s LIMIT $%d OFFSET $%d", orderBy, direction, argID, argID+1)
	offset := (filter.Page - 1) * filter.PageSize
	listArgs := append(append([]interface{}{}, args...), filter.PageSize, offset)

	rows, err := r.pool.Query(ctx, baseQuery, listArgs...)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to list orders",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)

		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			span.RecordError(err)
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}

	var totalCount int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to count orders",
			zap.Error(err),
		)

		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	return orders, totalCount, nil
}

func (r *orderRepo) ListAdmin(ctx context.Context, filter domain.OrderFilter) ([]domain.AdminOrderRow, int64, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.ListAdmin")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("page", filter.Page),
		attribute.String("search", filter.Search),
	)

	baseQuery := `
		SELECT o.id, o.order_number,
			COALESCE(o.customer_info->>'full_name', 'user #' || o.user_id::text, 'guest') AS customer_name,
			o.total_amount, o.currency, o.status, o.created_at,
			COUNT(i.id) AS products_count
		FROM orders o
		LEFT JOIN order_items i ON i.order_id = o.id`
	countQuery := `SELECT COUNT(*) FROM orders o`

	var conditions []string
	var args []interface{}
	argID := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("o.status = $%d", argID))
		args = append(args, string(filter.Status))
		argID++
	}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(o.order_number ILIKE $%d OR o.customer_info->>'full_name' ILIKE $%d)", argID, argID))
		args = append(args, "%"+filter.Search+"%")
		argID++
	}

	if len(conditions) > 0 {
		where := " WHERE " + strings.Join(conditions, " AND ")
		baseQuery += where
		countQuery += where
	}

	baseQuery += fmt.Sprintf(`
		GROUP BY o.id
		ORDER BY o.created_at DESC
		LIMIT $%d OFFSET $%d`, argID, argID+1)
	offset := (filter.Page - 1) * filter.PageSize
	listArgs := append(append([]interface{}{}, args...), filter.PageSize, offset)

	rows, err := r.pool.Query(ctx, baseQuery, listArgs...)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to list orders for admin",
			zap.Error(err),
		)

		return nil, 0, fmt.Errorf("failed to list admin orders: %w", err)
	}
	defer rows.Close()

	var result []domain.AdminOrderRow
	for rows.Next() {
		var row domain.AdminOrderRow
		var status, currency string
		if err := rows.Scan(
			&row.ID,
			&row.OrderNumber,
			&row.CustomerName,
			&row.TotalAmount,
			&currency,
			&status,
			&row.CreatedAt,
			&row.ProductsCount,
		); err != nil {
			span.RecordError(err)
			return nil, 0, fmt.Errorf("failed to scan admin order row: %w", err)
		}
		row.Status = domain.OrderStatus(status)
		row.Currency = domain.Currency(currency)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}

	var totalCount int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to count admin orders",
			zap.Error(err),
		)

		return nil, 0, fmt.Errorf("failed to count admin orders: %w", err)
	}

	return result, totalCount, nil
}
