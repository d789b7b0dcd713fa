package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"craftchain/internal/cache"
	"craftchain/internal/client"
	"craftchain/internal/config"
	"craftchain/internal/lock"
	"craftchain/internal/model"
	"craftchain/internal/payment"
	"craftchain/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testKeySecret     = "rzp_test_secret"
	testWebhookSecret = "whsec_test"
	testPlatformAddr  = "0xPlatformWallet"
	testProductID     = "craft_blue_pottery_004"
)

type fakeRazorpay struct {
	mu    sync.Mutex
	next  int
	err   error
	calls []client.CreateOrderParams
}

func (f *fakeRazorpay) CreateOrder(_ context.Context, params client.CreateOrderParams) (*client.GatewayOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, params)
	if f.err != nil {
		return nil, f.err
	}
	f.next++
	return &client.GatewayOrder{
		ID:       fmt.Sprintf("order_test_%d", f.next),
		Amount:   params.Amount,
		Currency: params.Currency,
		Receipt:  params.Receipt,
		Status:   "created",
	}, nil
}

type fixture struct {
	cfg          *config.Config
	gateway      *fakeRazorpay
	ledger       *client.LedgerStub
	orders       repository.OrderRepository
	certs        repository.CertificateRepository
	products     ProductService
	certificates CertificateService
	payments     PaymentService
	users        UserService
}

func testConfig() *config.Config {
	return &config.Config{
		BaseURL: "https://craftchain.test",
		Razorpay: config.Razorpay{
			KeyID:         "rzp_test_key",
			KeySecret:     testKeySecret,
			WebhookSecret: testWebhookSecret,
			Currency:      "INR",
		},
		Platform: config.Platform{
			Name:       "CraftChain",
			FeePercent: decimal.NewFromInt(5),
		},
		Ledger: config.Ledger{
			ContractAddress: "0xContract",
			Network:         "polygon-amoy",
			IssuerIdentity:  "CraftChain Platform",
			PlatformAddress: testPlatformAddr,
			OwnerPolicy:     OwnerPolicyPlatform,
			ExplorerURL:     "https://amoy.polygonscan.com",
			MintTimeout:     time.Second,
		},
		Cache: config.Cache{ProductTTL: time.Minute},
		Auth:  config.Auth{BcryptCost: bcrypt.MinCost},
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, client.Migrate(db))
	return db
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	db := newTestDB(t)
	log := zap.NewNop()
	locker := lock.NewLocal()

	f := &fixture{
		cfg:     cfg,
		gateway: &fakeRazorpay{},
		ledger:  client.NewLedgerStub(""),
		orders:  repository.NewOrderRepository(db),
		certs:   repository.NewCertificateRepository(db),
	}
	f.products = NewProductService(repository.NewProductRepository(db), cache.NewMemory(), cfg.Cache.ProductTTL, log)
	require.NoError(t, f.products.Seed(context.Background()))

	f.certificates = NewCertificateService(cfg, f.ledger, f.certs, f.orders, f.products, locker, nil, log)
	f.payments = NewPaymentService(cfg, f.gateway, f.products, f.certificates, f.orders, f.certs,
		repository.NewWebhookEventRepository(db), locker, nil, log)
	f.users = NewUserService(cfg, repository.NewUserRepository(db), log)
	return f
}

func (f *fixture) createOrder(t *testing.T) *model.Order {
	t.Helper()
	res, err := f.payments.CreateOrder(context.Background(), CreateOrderRequest{ProductID: testProductID})
	require.NoError(t, err)
	return res.Order
}

func (f *fixture) settleRequest(orderID, paymentID string) SettleRequest {
	return SettleRequest{
		OrderID:   orderID,
		PaymentID: paymentID,
		Signature: payment.Sign(orderID, paymentID, testKeySecret),
	}
}
