package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/onstechno/storefront/internal/domain"
	"github.com/onstechno/storefront/internal/repository"
	"github.com/onstechno/storefront/pkg/mylogger"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 12
	maxPageSize     = 100

	// maxSlugProbes bounds the suffix probe loop so a pathological catalog
	// cannot spin the create transaction forever.
	maxSlugProbes = 50

	// slugRetries bounds retries when a concurrent create wins the unique
	// index race after the probe found the slug free.
	slugRetries = 3
)

type ProductService interface {
	Create(ctx context.Context, product *domain.Product) (int64, error)
	FindByID(ctx context.Context, id int64) (*domain.Product, error)
	FindByIDOrSlug(ctx context.Context, idOrSlug string) (*domain.Product, error)
	List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int64, error)
	Update(ctx context.Context, id int64, input *domain.UpdateProductInput) (*domain.Product, error)
	Deactivate(ctx context.Context, id int64) error
}

type productService struct {
	productRepo repository.ProductRepository
	pool        *pgxpool.Pool
	logger      *zap.Logger
}

func NewProductService(
	productRepo repository.ProductRepository,
	pool *pgxpool.Pool,
	logger *zap.Logger,
) ProductService {
	return &productService{
		productRepo: productRepo,
		pool:        pool,
		logger:      logger,
	}
}

// Create inserts the product with a unique slug derived from its name. The
// probe loop appends -2, -3, ... until a free slug is found; the unique index
// on products.slug is the backstop for two concurrent creates probing the
// same candidate, and losing that race retries the whole assignment.
func (s *productService) Create(ctx context.Context, product *domain.Product) (int64, error) {
	base := slugBase(product.Name)

	for attempt := 0; attempt < slugRetries; attempt++ {
		id, err := s.createWithSlug(ctx, product, base)
		if err != nil {
			if errors.Is(err, repository.ErrSlugTaken) {
				mylogger.Warn(
					ctx,
					s.logger,
					"Slug race lost, retrying",
					zap.String("base", base),
					zap.Int("attempt", attempt+1),
				)

				continue
			}

			return 0, err
		}

		return id, nil
	}

	return 0, fmt.Errorf("could not assign a unique slug for %q", product.Name)
}

func (s *productService) createWithSlug(ctx context.Context, product *domain.Product, base string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		if err := tx.Rollback(cleanupCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(cleanupCtx, s.logger, "Failed to rollback transaction", zap.Error(err))
		}
	}()

	slug := base
	for probe := 2; ; probe++ {
		exists, err := s.productRepo.SlugExists(ctx, tx, slug)
		if err != nil {
			return 0, err
		}
		if !exists {
			break
		}
		if probe > maxSlugProbes {
			return 0, fmt.Errorf("no free slug after %d probes for %q", maxSlugProbes, base)
		}
		slug = fmt.Sprintf("%s-%d", base, probe)
	}
	product.Slug = slug

	id, err := s.productRepo.Create(ctx, tx, product)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return id, nil
}

func (s *productService) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, err
		}

		mylogger.Error(
			ctx,
			s.logger,
			"Error finding product",
			zap.Int64("product_id", id),
			zap.Error(err),
		)

		return nil, err
	}

	return product, nil
}

func (s *productService) FindByIDOrSlug(ctx context.Context, idOrSlug string) (*domain.Product, error) {
	if id, err := strconv.ParseInt(idOrSlug, 10, 64); err == nil {
		return s.FindByID(ctx, id)
	}

	return s.productRepo.GetBySlug(ctx, idOrSlug)
}

func (s *productService) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}

	return s.productRepo.List(ctx, filter)
}

// Update applies the partial input. A rename recomputes the slug with the
// same probe loop used on create, inside the transaction that carries the
// write, and losing the unique-index race retries the whole assignment.
func (s *productService) Update(ctx context.Context, id int64, input *domain.UpdateProductInput) (*domain.Product, error) {
	for attempt := 0; attempt < slugRetries; attempt++ {
		if err := s.updateOnce(ctx, id, input); err != nil {
			if errors.Is(err, repository.ErrSlugTaken) {
				mylogger.Warn(
					ctx,
					s.logger,
					"Slug race lost, retrying",
					zap.Int64("product_id", id),
					zap.Int("attempt", attempt+1),
				)

				continue
			}
			if errors.Is(err, repository.ErrProductNotFound) {
				return nil, err
			}

			mylogger.Error(
				ctx,
				s.logger,
				"Error updating product",
				zap.Int64("product_id", id),
				zap.Error(err),
			)

			return nil, err
		}

		return s.productRepo.GetByID(ctx, id)
	}

	return nil, fmt.Errorf("could not assign a unique slug for product %d", id)
}

func (s *productService) updateOnce(ctx context.Context, id int64, input *domain.UpdateProductInput) error {
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

	var newSlug *string
	if input.Name != nil {
		base := slugBase(*input.Name)

		slug := base
		for probe := 2; ; probe++ {
			exists, err := s.productRepo.SlugExists(ctx, tx, slug)
			if err != nil {
				return err
			}
			if !exists {
				break
			}

			// The current product may already hold the probed slug; keeping
			// it is not a conflict.
			if current, err := s.productRepo.GetBySlug(ctx, slug); err == nil && current.ID == id {
				break
			}

			if probe > maxSlugProbes {
				return fmt.Errorf("no free slug after %d probes for %q", maxSlugProbes, base)
			}
			slug = fmt.Sprintf("%s-%d", base, probe)
		}

		newSlug = &slug
	}

	if err := s.productRepo.Update(ctx, tx, id, input, newSlug); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *productService) Deactivate(ctx context.Context, id int64) error {
	if err := s.productRepo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			mylogger.Warn(ctx, s.logger, "Product not found", zap.Int64("product_id", id))
			return err
		}

		mylogger.Error(ctx, s.logger, "Error deactivating product", zap.Error(err))
		return err
	}

	return nil
}
