package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/onstechno/storefront/internal/domain"
	"github.com/onstechno/storefront/internal/service"
	"github.com/onstechno/storefront/pkg/mylogger"
	"github.com/onstechno/storefront/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ProductHandler struct {
	products service.ProductService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewProductHandler(products service.ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		products: products,
		validate: validator.New(),
		logger:   logger,
	}
}

type CreateProductInput struct {
	Name        string          `json:"name" validate:"required,min=2,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	Price       decimal.Decimal `json:"price"`
	Type        string          `json:"type" validate:"required,oneof=accessory digital service"`
	Stock       int64           `json:"stock" validate:"gte=0"`
	ImageURL    string          `json:"image_url" validate:"omitempty,url"`
}

func (h *ProductHandler) Create(c *fiber.Ctx) error {
	ctx := c.UserContext()

	input := new(CreateProductInput)
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

	if !input.Price.IsPositive() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "price must be greater than 0",
		})
	}

	product := &domain.Product{
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		Type:        domain.ProductType(input.Type),
		Stock:       input.Stock,
		ImageURL:    input.ImageURL,
		IsActive:    true,
	}

	id, err := h.products.Create(ctx, product)
	if err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"create product failed",
			zap.String("name", input.Name),
			zap.Error(err),
		)

		return errorResponse(c, err)
	}

	mylogger.Info(
		ctx,
		h.logger,
		"product created",
		zap.Int64("product_id", id),
		zap.String("slug", product.Slug),
	)

	return c.Status(fiber.StatusCreated).JSON(product)
}

func (h *ProductHandler) FindByIDOrSlug(c *fiber.Ctx) error {
	ctx := c.UserContext()

	idOrSlug := c.Params("id")
	if idOrSlug == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "id is required",
		})
	}

	product, err := h.products.FindByIDOrSlug(ctx, idOrSlug)
	if err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"find product failed",
			zap.String("id", idOrSlug),
			zap.Error(err),
		)

		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(product)
}

func (h *ProductHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()

	filter := domain.ProductFilter{
		Type:        domain.ProductType(c.Query("type")),
		Search:      c.Query("search"),
		InStockOnly: c.QueryBool("in_stock"),
		SortBy:      c.Query("sort_by"),
		Page:        int64(c.QueryInt("page", 1)),
		PageSize:    int64(c.QueryInt("page_size")),
	}

	if c.Query("sort_dir") == "asc" {
		filter.SortDir = domain.SortAsc
	}

	// The public catalog only lists active products; admins may pass
	// active=false to inspect deactivated ones.
	active := true
	if c.Query("active") == "false" {
		active = false
	}
	filter.Active = &active

	products, total, err := h.products.List(ctx, filter)
	if err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"list products failed",
			zap.Error(err),
		)

		return errorResponse(c, err)
	}

	if products == nil {
		products = []domain.Product{}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"products":    products,
		"total_count": total,
		"page":        filter.Page,
		"page_size":   filter.PageSize,
	})
}

type UpdateProductInput struct {
	Name        *string          `json:"name" validate:"omitempty,min=2,max=200"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	Price       *decimal.Decimal `json:"price"`
	Type        *string          `json:"type" validate:"omitempty,oneof=accessory digital service"`
	Stock       *int64           `json:"stock" validate:"omitempty,gte=0"`
	ImageURL    *string          `json:"image_url" validate:"omitempty,url"`
	IsActive    *bool            `json:"is_active"`
}

func (h *ProductHandler) Update(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid product id",
		})
	}

	input := new(UpdateProductInput)
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

	if input.Price != nil && !input.Price.IsPositive() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "price must be greater than 0",
		})
	}

	update := &domain.UpdateProductInput{
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		Stock:       input.Stock,
		ImageURL:    input.ImageURL,
		IsActive:    input.IsActive,
	}
	if input.Type != nil {
		productType := domain.ProductType(*input.Type)
		update.Type = &productType
	}

	product, err := h.products.Update(ctx, int64(id), update)
	if err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"update product failed",
			zap.Int("product_id", id),
			zap.Error(err),
		)

		return errorResponse(c, err)
	}

	mylogger.Info(
		ctx,
		h.logger,
		"product updated",
		zap.Int("product_id", id),
	)

	return c.Status(fiber.StatusOK).JSON(product)
}

func (h *ProductHandler) Delete(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid product id",
		})
	}

	if err := h.products.Deactivate(ctx, int64(id)); err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"deactivate product failed",
			zap.Int("product_id", id),
			zap.Error(err),
		)

		return errorResponse(c, err)
	}

	mylogger.Info(
		ctx,
		h.logger,
		"product deactivated",
		zap.Int("product_id", id),
	)

	return c.SendStatus(fiber.StatusNoContent)
}
