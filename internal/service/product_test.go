package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"craftchain/internal/apperr"
	"craftchain/internal/cache"
	"craftchain/internal/model"
	"craftchain/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingProductRepo struct {
	repository.ProductRepository
	lists int32
}

func (r *countingProductRepo) List(ctx context.Context) ([]*model.Product, error) {
	atomic.AddInt32(&r.lists, 1)
	return r.ProductRepository.List(ctx)
}

func newCountingProducts(t *testing.T, ttl time.Duration) (ProductService, *countingProductRepo) {
	t.Helper()
	repo := &countingProductRepo{ProductRepository: repository.NewProductRepository(newTestDB(t))}
	svc := NewProductService(repo, cache.NewMemory(), ttl, zap.NewNop())
	require.NoError(t, svc.Seed(context.Background()))
	return svc, repo
}

func TestProductService_ListIsCached(t *testing.T) {
	svc, repo := newCountingProducts(t, time.Minute)
	ctx := context.Background()

	first, err := svc.List(ctx)
	require.NoError(t, err)
	second, err := svc.List(ctx)
	require.NoError(t, err)

	assert.Len(t, first, len(repository.SeedProducts()))
	assert.Equal(t, len(first), len(second))
	assert.Equal(t, int32(1), atomic.LoadInt32(&repo.lists))

	require.NoError(t, svc.Invalidate(ctx))
	_, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&repo.lists))

	// seeding drops the cached list
	require.NoError(t, svc.Seed(ctx))
	_, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&repo.lists))
}

func TestProductService_ListExpires(t *testing.T) {
	svc, repo := newCountingProducts(t, 10*time.Millisecond)
	ctx := context.Background()

	_, err := svc.List(ctx)
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	_, err = svc.List(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&repo.lists))
}

func TestProductService_Get(t *testing.T) {
	svc, _ := newCountingProducts(t, time.Minute)
	ctx := context.Background()

	p, err := svc.Get(ctx, testProductID)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), p.Price)
	assert.Equal(t, "INR", p.Currency)

	_, err = svc.Get(ctx, "craft_nope")
	assert.ErrorIs(t, err, apperr.NotFound)

	_, err = svc.Get(ctx, "")
	assert.ErrorIs(t, err, apperr.InvalidArgument)
}

func TestProductService_ListByIDs(t *testing.T) {
	svc, repo := newCountingProducts(t, time.Minute)
	ctx := context.Background()

	products, err := svc.ListByIDs(ctx, []string{testProductID, "craft_bidri_003", "craft_nope"})
	require.NoError(t, err)
	require.Len(t, products, 2)
	ids := []string{products[0].ID, products[1].ID}
	assert.ElementsMatch(t, []string{testProductID, "craft_bidri_003"}, ids)
	assert.Zero(t, atomic.LoadInt32(&repo.lists))

	_, err = svc.ListByIDs(ctx, nil)
	assert.ErrorIs(t, err, apperr.InvalidArgument)
}
