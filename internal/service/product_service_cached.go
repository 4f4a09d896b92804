package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/onstechno/storefront/internal/domain"
	"github.com/redis/go-redis/v9"
)

// cachedProductService is a read-through cache in front of the catalog.
// Single-product reads are cached; every write path drops the key so stock
// and price changes become visible immediately.
type cachedProductService struct {
	next        ProductService
	redisClient *redis.Client
	cacheTTL    time.Duration
}

func NewCachedProductService(next ProductService, redisClient *redis.Client) ProductService {
	return &cachedProductService{
		next:        next,
		redisClient: redisClient,
		cacheTTL:    10 * time.Minute,
	}
}

func productCacheKey(id int64) string {
	return fmt.Sprintf("product:%d", id)
}

func (s *cachedProductService) Create(ctx context.Context, product *domain.Product) (int64, error) {
	return s.next.Create(ctx, product)
}

func (s *cachedProductService) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	key := productCacheKey(id)

	if val, err := s.redisClient.Get(ctx, key).Result(); err == nil {
		var product domain.Product
		if err := json.Unmarshal([]byte(val), &product); err == nil {
			return &product, nil
		}
	}

	product, err := s.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(product); err == nil {
		s.redisClient.Set(ctx, key, data, s.cacheTTL)
	}

	return product, nil
}

// FindByIDOrSlug resolves numeric ids through the cached FindByID so detail
// reads by id are actually served from the cache; slug lookups go straight to
// the catalog.
func (s *cachedProductService) FindByIDOrSlug(ctx context.Context, idOrSlug string) (*domain.Product, error) {
	if id, err := strconv.ParseInt(idOrSlug, 10, 64); err == nil {
		return s.FindByID(ctx, id)
	}

	return s.next.FindByIDOrSlug(ctx, idOrSlug)
}

func (s *cachedProductService) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int64, error) {
	return s.next.List(ctx, filter)
}

func (s *cachedProductService) Update(ctx context.Context, id int64, input *domain.UpdateProductInput) (*domain.Product, error) {
	product, err := s.next.Update(ctx, id, input)
	if err != nil {
		return nil, err
	}

	s.redisClient.Del(ctx, productCacheKey(id))
	return product, nil
}

func (s *cachedProductService) Deactivate(ctx context.Context, id int64) error {
	if err := s.next.Deactivate(ctx, id); err != nil {
		return err
	}

	s.redisClient.Del(ctx, productCacheKey(id))
	return nil
}
