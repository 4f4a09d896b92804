package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/onstechno/storefront/internal/auth"
	"github.com/onstechno/storefront/internal/domain"
	"github.com/onstechno/storefront/internal/metrics"
	outboxDomain "github.com/onstechno/storefront/internal/outbox/domain"
	"github.com/onstechno/storefront/internal/outbox/worker"
	"github.com/onstechno/storefront/internal/repository"
	"github.com/onstechno/storefront/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const orderEventsTopic = "order-events"

type PlaceOrderInput struct {
	Lines           []domain.CartLine
	PaymentMethod   domain.PaymentMethod
	ShippingAddress domain.Address
	BillingAddress  domain.Address
	Currency        domain.Currency
	UserID          *int64
	CustomerInfo    *domain.CustomerInfo
}

type UpdateStatusInput struct {
	Status        domain.OrderStatus
	PaymentStatus *domain.PaymentStatus
	Notes         *string
}

type OrderService interface {
	PlaceOrder(ctx context.Context, input *PlaceOrderInput) (*domain.Order, error)
	GetOrder(ctx context.Context, id int64, caller *auth.Identity) (*domain.Order, error)
	ListOrders(ctx context.Context, userID int64, filter domain.OrderFilter) ([]domain.Order, int64, error)
	ListAdminOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.AdminOrderRow, int64, error)
	UpdateStatus(ctx context.Context, id int64, input *UpdateStatusInput, caller *auth.Identity) (*domain.Order, error)
	Cancel(ctx context.Context, id int64, caller *auth.Identity) error
}

type orderService struct {
	pool        *pgxpool.Pool
	logger      *zap.Logger
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	outboxRepo  worker.OutboxRepository
	tracer      trace.Tracer
}

func NewOrderService(
	pool *pgxpool.Pool,
	logger *zap.Logger,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	outboxRepo worker.OutboxRepository,
) OrderService {
	return &orderService{
		pool:        pool,
		logger:      logger,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		outboxRepo:  outboxRepo,
		tracer:      otel.Tracer("order_service"),
	}
}

const orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func newOrderNumber() string {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		// rand.Read only fails when the OS entropy source is broken; fall
		// back to a uuid-derived token rather than a predictable one.
		return "ORD-" + uuid.NewString()[:10]
	}
	for i, b := range buf {
		buf[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}
	return "ORD-" + string(buf)
}

// PlaceOrder turns a validated cart into a persisted order inside a single
// transaction. Lines are processed strictly in caller order; the first line
// that fails aborts everything, so no order, no items and no stock decrement
// survive a failure.
func (s *orderService) PlaceOrder(ctx context.Context, input *PlaceOrderInput) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.PlaceOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Int("lines", len(input.Lines)),
		attribute.String("payment_method", string(input.PaymentMethod)),
	)

	if len(input.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	if input.UserID == nil && input.CustomerInfo == nil {
		return nil, ErrMissingCustomer
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		if err := tx.Rollback(cleanupCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				cleanupCtx,
				s.logger,
				"Error rolling back transaction",
				zap.Error(err),
			)
		}
	}()

	order := &domain.Order{
		OrderNumber:     newOrderNumber(),
		UserID:          input.UserID,
		Status:          domain.OrderStatusPending,
		PaymentMethod:   input.PaymentMethod,
		PaymentStatus:   domain.PaymentStatusPending,
		ShippingAddress: input.ShippingAddress,
		BillingAddress:  input.BillingAddress,
		Currency:        input.Currency,
		CustomerInfo:    input.CustomerInfo,
	}

	for _, line := range input.Lines {
		name, price, err := s.productRepo.GetForSale(ctx, tx, line.ProductID)
		if err != nil {
			if errors.Is(err, repository.ErrProductNotFound) {
				mylogger.Warn(
					ctx,
					s.logger,
					"Cart references unknown product",
					zap.Int64("product_id", line.ProductID),
				)

				return nil, fmt.Errorf("%w: product %d", repository.ErrProductNotFound, line.ProductID)
			}

			return nil, err
		}

		if err := s.productRepo.DecreaseStock(ctx, tx, line.ProductID, line.Quantity); err != nil {
			if errors.Is(err, repository.ErrInsufficientStock) {
				span.SetAttributes(attribute.Int64("rejected_product_id", line.ProductID))
				metrics.InsufficientStockRejections.Inc()

				mylogger.Warn(
					ctx,
					s.logger,
					"Insufficient stock",
					zap.Int64("product_id", line.ProductID),
					zap.Int32("quantity", line.Quantity),
				)

				return nil, fmt.Errorf("%w for product: %s", repository.ErrInsufficientStock, name)
			}

			return nil, err
		}

		item := domain.OrderItem{
			ProductID: line.ProductID,
			Name:      name,
			Price:     price,
			Quantity:  line.Quantity,
		}
		item.RecalculateSubtotal()
		order.Items = append(order.Items, item)
	}

	order.CalculateTotal()

	if err := s.orderRepo.Create(ctx, tx, order); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to create order",
			zap.Error(err),
		)

		return nil, err
	}

	if err := s.emitEvent(ctx, tx, "Order", order.ID, "order.placed", &domain.OrderPlacedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount.StringFixed(2),
		Currency:    order.Currency,
		Items:       eventItems(order.Items),
		PlacedAt:    time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	metrics.OrdersPlaced.Inc()

	mylogger.Info(
		ctx,
		s.logger,
		"Order placed",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.TotalAmount.StringFixed(2)),
	)

	return order, nil
}

func eventItems(items []domain.OrderItem) []domain.OrderEventItem {
	result := make([]domain.OrderEventItem, len(items))
	for i, item := range items {
		result[i] = domain.OrderEventItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
		}
	}
	return result
}

func (s *orderService) GetOrder(ctx context.Context, id int64, caller *auth.Identity) (*domain.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !caller.CanAccessOrder(order.UserID) {
		return nil, ErrForbidden
	}

	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, userID int64, filter domain.OrderFilter) ([]domain.Order, int64, error) {
	clampOrderFilter(&filter)
	return s.orderRepo.ListByUser(ctx, userID, filter)
}

func (s *orderService) ListAdminOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.AdminOrderRow, int64, error) {
	clampOrderFilter(&filter)
	return s.orderRepo.ListAdmin(ctx, filter)
}

func clampOrderFilter(filter *domain.OrderFilter) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 10
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}
}

// UpdateStatus mutates status (and optionally payment status and notes)
// through the generic path. It refuses cancelled as a target: stock
// restoration belongs to Cancel alone, so routing cancellation through here
// could never double-restore or skip restoration.
func (s *orderService) UpdateStatus(ctx context.Context, id int64, input *UpdateStatusInput, caller *auth.Identity) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.UpdateStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", id),
		attribute.String("status", string(input.Status)),
	)

	if input.Status == domain.OrderStatusCancelled {
		return nil, fmt.Errorf("%w: use the cancel operation to cancel an order", ErrInvalidTransition)
	}

	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !caller.CanAccessOrder(order.UserID) {
		return nil, ErrForbidden
	}

	if !order.Status.CanTransitionTo(input.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, input.Status)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		if err := tx.Rollback(cleanupCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(cleanupCtx, s.logger, "Failed to rollback transaction", zap.Error(err))
		}
	}()

	// Re-check under the transaction. The read alone does not close the race
	// with a concurrent cancellation: the conditional write below carries the
	// status it read, and matching zero rows means someone moved it first.
	currentStatus, err := s.orderRepo.GetStatus(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !currentStatus.CanTransitionTo(input.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, currentStatus, input.Status)
	}

	if err := s.orderRepo.UpdateStatus(ctx, tx, id, currentStatus, input.Status, input.PaymentStatus, input.Notes); err != nil {
		if errors.Is(err, repository.ErrStaleOrderStatus) {
			return nil, fmt.Errorf("%w: order status changed concurrently", ErrInvalidTransition)
		}

		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.orderRepo.GetByID(ctx, id)
}

// Cancel is the compensating transaction for PlaceOrder: it restores every
// line's stock and marks the order cancelled, atomically. The conditional
// status flip is what makes the operation safe to call twice; the second
// call finds the order no longer pending and restores nothing.
func (s *orderService) Cancel(ctx context.Context, id int64, caller *auth.Identity) error {
	ctx, span := s.tracer.Start(ctx, "OrderService.Cancel")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", id),
	)

	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if !caller.CanAccessOrder(order.UserID) {
		return ErrForbidden
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		if err := tx.Rollback(cleanupCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(cleanupCtx, s.logger, "Failed to rollback transaction", zap.Error(err))
		}
	}()

	flipped, err := s.orderRepo.MarkCancelledIfPending(ctx, tx, id)
	if err != nil {
		return err
	}
	if !flipped {
		mylogger.Warn(
			ctx,
			s.logger,
			"Order not cancellable",
			zap.Int64("order_id", id),
			zap.String("status", string(order.Status)),
		)

		return ErrOrderNotCancellable
	}

	items, err := s.orderRepo.GetItems(ctx, tx, id)
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := s.productRepo.IncreaseStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			// A missing product row means the catalog entry was physically
			// removed; restoration for that line is impossible but the
			// cancellation itself must not be lost.
			if errors.Is(err, repository.ErrProductNotFound) {
				mylogger.Warn(
					ctx,
					s.logger,
					"Skipping stock restoration for removed product",
					zap.Int64("product_id", item.ProductID),
				)

				continue
			}

			return err
		}
	}

	if err := s.emitEvent(ctx, tx, "Order", id, "order.cancelled", &domain.OrderCancelledEvent{
		OrderID:     id,
		OrderNumber: order.OrderNumber,
		Items:       eventItems(items),
		CancelledAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	metrics.OrdersCancelled.Inc()

	mylogger.Info(
		ctx,
		s.logger,
		"Order cancelled",
		zap.Int64("order_id", id),
		zap.String("order_number", order.OrderNumber),
	)

	return nil
}

func (s *orderService) emitEvent(ctx context.Context, tx pgx.Tx, aggregateType string, aggregateID int64, eventType string, payload any) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Failed to marshal event payload", zap.Error(err))
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	outboxEvent := &outboxDomain.OutboxEvent{
		EventID:       uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   fmt.Sprintf("%d", aggregateID),
		EventType:     eventType,
		Payload:       payloadBytes,
		Topic:         orderEventsTopic,
	}

	if err := s.outboxRepo.SaveOutboxEvent(ctx, tx, outboxEvent); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to save outbox event", zap.Error(err))
		return fmt.Errorf("failed to save outbox event: %w", err)
	}

	return nil
}
