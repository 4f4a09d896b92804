package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/onstechno/storefront/internal/domain"
	"github.com/onstechno/storefront/internal/service"
	"github.com/onstechno/storefront/internal/transport/http/middleware"
	"github.com/onstechno/storefront/pkg/mylogger"
	"github.com/onstechno/storefront/pkg/utils"
	"go.uber.org/zap"
)

type OrderHandler struct {
	orders   service.OrderService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewOrderHandler(orders service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		validate: validator.New(),
		logger:   logger,
	}
}

type PlaceOrderInput struct {
	Items           []domain.CartLine    `json:"items" validate:"required,min=1,dive"`
	PaymentMethod   string               `json:"payment_method" validate:"required"`
	Currency        string               `json:"currency" validate:"required"`
	ShippingAddress domain.Address       `json:"shipping_address" validate:"required"`
	BillingAddress  *domain.Address      `json:"billing_address"`
	CustomerInfo    *domain.CustomerInfo `json:"customer_info"`
}

func (h *OrderHandler) Create(c *fiber.Ctx) error {
	ctx := c.UserContext()

	input := new(PlaceOrderInput)
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"body parsing failed",
			zap.Error(err),
		)

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": utils.FormatValidationError(err),
		})
	}

	if err := h.validate.Struct(input.ShippingAddress); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": utils.FormatValidationError(err),
		})
	}

	paymentMethod := domain.PaymentMethod(input.PaymentMethod)
	if !paymentMethod.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "payment_method is invalid",
		})
	}

	currency := domain.Currency(input.Currency)
	if !currency.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "currency is invalid",
		})
	}

	// Billing defaults to the shipping address when absent.
	billing := input.ShippingAddress
	if input.BillingAddress != nil {
		if err := h.validate.Struct(input.BillingAddress); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": utils.FormatValidationError(err),
			})
		}
		billing = *input.BillingAddress
	}

	placeInput := &service.PlaceOrderInput{
		Lines:           input.Items,
		PaymentMethod:   paymentMethod,
		ShippingAddress: input.ShippingAddress,
		BillingAddress:  billing,
		Currency:        currency,
	}

	if identity := middleware.Identity(c); identity != nil {
		placeInput.UserID = &identity.UserID
	} else {
		if input.CustomerInfo == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "customer_info is required for guest checkout",
			})
		}
		if err := h.validate.Struct(input.CustomerInfo); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": utils.FormatValidationError(err),
			})
		}
		placeInput.CustomerInfo = input.CustomerInfo
	}

	order, err := h.orders.PlaceOrder(ctx, placeInput)
	if err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"place order failed",
			zap.Error(err),
		)

		return errorResponse(c, err)
	}

	mylogger.Info(
		ctx,
		h.logger,
		"order placed",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
	)

	return c.Status(fiber.StatusCreated).JSON(order)
}

func (h *OrderHandler) FindByID(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid order id",
		})
	}

	order, err := h.orders.GetOrder(ctx, int64(id), middleware.Identity(c))
	if err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"find order failed",
			zap.Int("order_id", id),
			zap.Error(err),
		)

		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(order)
}

func (h *OrderHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()

	identity := middleware.Identity(c)
	if identity == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	filter := domain.OrderFilter{
		Status:        domain.OrderStatus(c.Query("status")),
		PaymentStatus: domain.PaymentStatus(c.Query("payment_status")),
		SortBy:        c.Query("sort_by"),
		Page:          int64(c.QueryInt("page", 1)),
		PageSize:      int64(c.QueryInt("page_size")),
	}
	if c.Query("sort_dir") == "asc" {
		filter.SortDir = domain.SortAsc
	}

	orders, total, err := h.orders.ListOrders(ctx, identity.UserID, filter)
	if err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"list orders failed",
			zap.Int64("user_id", identity.UserID),
			zap.Error(err),
		)

		return errorResponse(c, err)
	}

	if orders == nil {
		orders = []domain.Order{}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"orders":      orders,
		"total_count": total,
		"page":        filter.Page,
		"page_size":   filter.PageSize,
	})
}

func (h *OrderHandler) ListAdmin(c *fiber.Ctx) error {
	ctx := c.UserContext()

	filter := domain.OrderFilter{
		Status:   domain.OrderStatus(c.Query("status")),
		Search:   c.Query("search"),
		Page:     int64(c.QueryInt("page", 1)),
		PageSize: int64(c.QueryInt("page_size")),
	}

	orders, total, err := h.orders.ListAdminOrders(ctx, filter)
	if err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"list admin orders failed",
			zap.Error(err),
		)

		return errorResponse(c, err)
	}

	if orders == nil {
		orders = []domain.AdminOrderRow{}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"orders":      orders,
		"total_count": total,
		"page":        filter.Page,
		"page_size":   filter.PageSize,
	})
}

type UpdateOrderStatusInput struct {
	Status        string  `json:"status" validate:"required"`
	PaymentStatus *string `json:"payment_status"`
	Notes         *string `json:"notes" validate:"omitempty,max=2000"`
}

func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid order id",
		})
	}

	input := new(UpdateOrderStatusInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": utils.FormatValidationError(err),
		})
	}

	status := domain.OrderStatus(input.Status)
	if !status.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "status is invalid",
		})
	}

	update := &service.UpdateStatusInput{
		Status: status,
		Notes:  input.Notes,
	}
	if input.PaymentStatus != nil {
		paymentStatus := domain.PaymentStatus(*input.PaymentStatus)
		if !paymentStatus.Valid() {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "payment_status is invalid",
			})
		}
		update.PaymentStatus = &paymentStatus
	}

	order, err := h.orders.UpdateStatus(ctx, int64(id), update, middleware.Identity(c))
	if err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"update order status failed",
			zap.Int("order_id", id),
			zap.String("status", input.Status),
			zap.Error(err),
		)

		return errorResponse(c, err)
	}

	mylogger.Info(
		ctx,
		h.logger,
		"order status updated",
		zap.Int("order_id", id),
		zap.String("status", input.Status),
	)

	return c.Status(fiber.StatusOK).JSON(order)
}

func (h *OrderHandler) Cancel(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid order id",
		})
	}

	if err := h.orders.Cancel(ctx, int64(id), middleware.Identity(c)); err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"cancel order failed",
			zap.Int("order_id", id),
			zap.Error(err),
		)

		return errorResponse(c, err)
	}

	mylogger.Info(
		ctx,
		h.logger,
		"order cancelled",
		zap.Int("order_id", id),
	)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "order cancelled",
	})
}
