package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"craftchain/internal/apperr"
	"craftchain/internal/cache"
	"craftchain/internal/model"
	"craftchain/internal/repository"

	"go.uber.org/zap"
)

const productListCacheKey = "products:all"

type ProductService interface {
	List(ctx context.Context) ([]*model.Product, error)
	Get(ctx context.Context, productID string) (*model.Product, error)
	// ListByIDs reads the named products from the store, skipping the cache.
	ListByIDs(ctx context.Context, productIDs []string) ([]*model.Product, error)
	Seed(ctx context.Context) error
	Invalidate(ctx context.Context) error
}

type productServiceImpl struct {
	productRepo repository.ProductRepository
	cache       cache.Cache
	ttl         time.Duration
	log         *zap.Logger
}

func NewProductService(productRepo repository.ProductRepository, c cache.Cache, ttl time.Duration, log *zap.Logger) ProductService {
	if c == nil {
		c = cache.NewMemory()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &productServiceImpl{
		productRepo: productRepo,
		cache:       c,
		ttl:         ttl,
		log:         log,
	}
}

// List serves the catalog from cache. A broken cache is logged and bypassed.
func (s *productServiceImpl) List(ctx context.Context) ([]*model.Product, error) {
	raw, ok, err := s.cache.Get(ctx, productListCacheKey)
	if err != nil {
		s.log.Warn("product cache read failed", zap.Error(err))
	}
	if ok {
		var products []*model.Product
		if err := json.Unmarshal(raw, &products); err == nil {
			return products, nil
		}
		s.log.Warn("discarding undecodable product cache entry")
	}

	products, err := s.productRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	raw, err = json.Marshal(products)
	if err != nil {
		return nil, fmt.Errorf("encode products: %w", err)
	}
	if err := s.cache.Set(ctx, productListCacheKey, raw, s.ttl); err != nil {
		s.log.Warn("product cache write failed", zap.Error(err))
	}
	return products, nil
}

func (s *productServiceImpl) Get(ctx context.Context, productID string) (*model.Product, error) {
	if productID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "get product", "product id is required")
	}

	products, err := s.List(ctx)
	if err == nil {
		for _, p := range products {
			if p.ID == productID {
				return p, nil
			}
		}
	}
	return s.productRepo.FindByID(ctx, productID)
}

func (s *productServiceImpl) ListByIDs(ctx context.Context, productIDs []string) ([]*model.Product, error) {
	if len(productIDs) == 0 {
		return nil, apperr.New(apperr.InvalidArgument, "list products", "at least one product id is required")
	}
	products, err := s.productRepo.FindByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("list products by ids: %w", err)
	}
	return products, nil
}

func (s *productServiceImpl) Seed(ctx context.Context) error {
	if err := s.productRepo.Seed(ctx); err != nil {
		return fmt.Errorf("seed products: %w", err)
	}
	s.log.Info("product catalog seeded", zap.Int("products", len(repository.SeedProducts())))
	return s.Invalidate(ctx)
}

func (s *productServiceImpl) Invalidate(ctx context.Context) error {
	if err := s.cache.Delete(ctx, productListCacheKey); err != nil {
		return fmt.Errorf("invalidate product cache: %w", err)
	}
	return nil
}
