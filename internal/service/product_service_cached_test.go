package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/onstechno/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// countingCatalog records which read path the decorator delegated to.
type countingCatalog struct {
	product        *domain.Product
	findByID       int
	findByIDOrSlug int
}

func (c *countingCatalog) Create(ctx context.Context, product *domain.Product) (int64, error) {
	return c.product.ID, nil
}

func (c *countingCatalog) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	c.findByID++
	return c.product, nil
}

func (c *countingCatalog) FindByIDOrSlug(ctx context.Context, idOrSlug string) (*domain.Product, error) {
	c.findByIDOrSlug++
	return c.product, nil
}

func (c *countingCatalog) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int64, error) {
	return []domain.Product{*c.product}, 1, nil
}

func (c *countingCatalog) Update(ctx context.Context, id int64, input *domain.UpdateProductInput) (*domain.Product, error) {
	return c.product, nil
}

func (c *countingCatalog) Deactivate(ctx context.Context, id int64) error {
	return nil
}

func TestCachedFindByIDOrSlug_NumericIDGoesThroughCache(t *testing.T) {
	product := &domain.Product{
		ID:       42,
		Name:     "Desk Lamp",
		Slug:     "desk-lamp",
		Price:    decimal.RequireFromString("35.00"),
		Type:     domain.ProductTypeAccessory,
		IsActive: true,
		Stock:    3,
	}
	inner := &countingCatalog{product: product}

	db, mock := redismock.NewClientMock()
	cached := NewCachedProductService(inner, db)

	data, err := json.Marshal(product)
	require.NoError(t, err)

	// Miss: the catalog is hit once and the result is stored.
	mock.ExpectGet("product:42").RedisNil()
	mock.Regexp().ExpectSet("product:42", `.*`, 10*time.Minute).SetVal("OK")

	got, err := cached.FindByIDOrSlug(context.Background(), "42")
	require.NoError(t, err)
	require.EqualValues(t, 42, got.ID)
	require.Equal(t, 1, inner.findByID)
	require.Zero(t, inner.findByIDOrSlug)

	// Hit: served from the cache, the catalog is not touched again.
	mock.ExpectGet("product:42").SetVal(string(data))

	got, err = cached.FindByIDOrSlug(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, "desk-lamp", got.Slug)
	require.Equal(t, 1, inner.findByID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedFindByIDOrSlug_SlugDelegates(t *testing.T) {
	inner := &countingCatalog{product: &domain.Product{ID: 7, Slug: "desk-lamp"}}

	db, mock := redismock.NewClientMock()
	cached := NewCachedProductService(inner, db)

	got, err := cached.FindByIDOrSlug(context.Background(), "desk-lamp")
	require.NoError(t, err)
	require.EqualValues(t, 7, got.ID)
	require.Equal(t, 1, inner.findByIDOrSlug)
	require.Zero(t, inner.findByID)
	require.NoError(t, mock.ExpectationsWereMet())
}
