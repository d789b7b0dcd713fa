package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"craftchain/internal/cache"
	"craftchain/internal/certificate"
	"craftchain/internal/client"
	"craftchain/internal/config"
	"craftchain/internal/dto"
	"craftchain/internal/lock"
	"craftchain/internal/metrics"
	"craftchain/internal/payment"
	"craftchain/internal/repository"
	"craftchain/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testJWTSecret = "jwt_test_secret"
	testKeySecret = "rzp_test_secret"
	testProductID = "craft_blue_pottery_004"
)

type testServer struct {
	handler http.Handler
	ledger  *client.LedgerStub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	var orders int32
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params client.CreateOrderParams
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		n := atomic.AddInt32(&orders, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"order_http_%d","amount":%d,"currency":%q,"receipt":%q,"status":"created"}`,
			n, params.Amount, params.Currency, params.Receipt)
	}))
	t.Cleanup(gateway.Close)

	cfg := &config.Config{
		BaseURL: "https://craftchain.test",
		Razorpay: config.Razorpay{
			BaseApiURL: gateway.URL,
			KeyID:      "rzp_test_key",
			KeySecret:  testKeySecret,
			Currency:   "INR",
			Timeout:    time.Second,
		},
		Platform: config.Platform{Name: "CraftChain", FeePercent: decimal.NewFromInt(5)},
		Ledger: config.Ledger{
			ContractAddress: "0xContract",
			Network:         "polygon-amoy",
			IssuerIdentity:  "CraftChain Platform",
			PlatformAddress: "0xPlatformWallet",
			OwnerPolicy:     service.OwnerPolicyPlatform,
			ExplorerURL:     "https://amoy.polygonscan.com",
			MintTimeout:     time.Second,
		},
		RateLimit: config.RateLimit{RPS: 100, Burst: 100},
		Cache:     config.Cache{ProductTTL: time.Minute},
		Auth:      config.Auth{JWTSecret: testJWTSecret, TokenTTL: time.Hour, BcryptCost: bcrypt.MinCost},
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, client.Migrate(db))

	log := zap.NewNop()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	locker := lock.NewLocal()
	ledger := client.NewLedgerStub("")

	orderRepo := repository.NewOrderRepository(db)
	certRepo := repository.NewCertificateRepository(db)
	products := service.NewProductService(repository.NewProductRepository(db), cache.NewMemory(), cfg.Cache.ProductTTL, log)
	require.NoError(t, products.Seed(context.Background()))
	certificates := service.NewCertificateService(cfg, ledger, certRepo, orderRepo, products, locker, m, log)
	payments := service.NewPaymentService(cfg, client.NewRazorpayClient(&cfg.Razorpay, m), products, certificates,
		orderRepo, certRepo, repository.NewWebhookEventRepository(db), locker, m, log)

	users := service.NewUserService(cfg, repository.NewUserRepository(db), log)

	srv := NewServer(cfg, log, reg, payments, certificates, products, users)
	return &testServer{handler: srv.Handler(), ledger: ledger}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return s.doAs(t, "", method, path, body)
}

// doAs sends the request with token as its bearer credential when set.
func (s *testServer) doAs(t *testing.T, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) createOrder(t *testing.T) dto.CreateOrderResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/payment/create-order", dto.CreateOrderRequest{ProductID: testProductID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[dto.CreateOrderResponse](t, rec)
}

func TestHealthAndProducts(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[dto.ProductsResponse](t, rec)
	assert.True(t, list.Success)
	assert.Len(t, list.Products, len(repository.SeedProducts()))

	rec = s.do(t, http.MethodGet, "/api/products?ids="+testProductID+",%20craft_pashmina_002,", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	subset := decode[dto.ProductsResponse](t, rec)
	require.Len(t, subset.Products, 2)
	assert.ElementsMatch(t, []string{testProductID, "craft_pashmina_002"},
		[]string{subset.Products[0].ID, subset.Products[1].ID})

	rec = s.do(t, http.MethodGet, "/api/products/"+testProductID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1250), decode[dto.ProductResponse](t, rec).Product.Price)

	rec = s.do(t, http.MethodGet, "/api/products/craft_nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckoutFlow(t *testing.T) {
	s := newTestServer(t)

	created := s.createOrder(t)
	assert.True(t, created.Success)
	assert.Equal(t, "order_http_1", created.Order.ID)
	assert.Equal(t, int64(1250), created.Order.Amount)
	assert.Equal(t, "created", created.Order.Status)
	assert.Equal(t, testProductID, created.Product.ID)

	verifyReq := dto.VerifyPaymentRequest{
		RazorpayOrderID:   created.Order.ID,
		RazorpayPaymentID: "pay_1",
		RazorpaySignature: payment.Sign(created.Order.ID, "pay_1", testKeySecret),
	}
	rec := s.do(t, http.MethodPost, "/api/payment/verify", verifyReq)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[dto.VerifyPaymentResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "Payment successful! Your authenticity certificate has been minted on the blockchain.", resp.Message)
	assert.Equal(t, "completed", resp.Transaction.Status)
	assert.Equal(t, int64(63), resp.Transaction.PlatformFee)
	assert.Equal(t, int64(1187), resp.Transaction.ArtisanAmount)
	assert.True(t, resp.Transaction.Certificate.CertificateCreated)
	assert.Equal(t, "1", resp.Transaction.Certificate.NFTTokenID)
	assert.Contains(t, resp.Transaction.Certificate.ExplorerURL, "https://amoy.polygonscan.com/tx/0x")

	// replay answers with the same body
	again := s.do(t, http.MethodPost, "/api/payment/verify", verifyReq)
	require.Equal(t, http.StatusOK, again.Code)
	assert.JSONEq(t, rec.Body.String(), again.Body.String())

	rec = s.do(t, http.MethodGet, "/api/certificate?paymentId=pay_1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cert := decode[dto.CertificateResponse](t, rec)
	assert.Equal(t, "1", cert.Certificate.TokenID)

	rec = s.do(t, http.MethodGet, "/api/certificate?tokenId=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pay_1", decode[dto.CertificateResponse](t, rec).Certificate.PaymentID)

	rec = s.do(t, http.MethodGet, "/api/certificate/verify/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[dto.VerifyCertificateResponse](t, rec).Valid)

	rec = s.do(t, http.MethodGet, "/api/certificate/pay_1/pdf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))

	rec = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "craftchain_duplicate_settlements_total 1")
}

func TestVerify_CertificateKeepsOrderBuyer(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/payment/create-order", dto.CreateOrderRequest{
		ProductID:   testProductID,
		BuyerID:     "alice",
		BuyerWallet: "0xAlice",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decode[dto.CreateOrderResponse](t, rec)

	// the callback carries no identity of its own
	rec = s.do(t, http.MethodPost, "/api/payment/verify", dto.VerifyPaymentRequest{
		RazorpayOrderID:   created.Order.ID,
		RazorpayPaymentID: "pay_alice",
		RazorpaySignature: payment.Sign(created.Order.ID, "pay_alice", testKeySecret),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[dto.VerifyPaymentResponse](t, rec)
	require.True(t, resp.Transaction.Certificate.CertificateCreated)

	rec = s.do(t, http.MethodGet, "/api/certificate?paymentId=pay_alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cert := decode[dto.CertificateResponse](t, rec)
	assert.Equal(t, "alice", cert.Certificate.BuyerID)

	meta, err := certificate.DecodeMetadataURI(resp.Transaction.Certificate.MetadataURI)
	require.NoError(t, err)
	assert.Equal(t, "alice", meta.Certificate.BuyerID)
}

func TestVerify_BadSignature(t *testing.T) {
	s := newTestServer(t)
	created := s.createOrder(t)

	rec := s.do(t, http.MethodPost, "/api/payment/verify", dto.VerifyPaymentRequest{
		RazorpayOrderID:   created.Order.ID,
		RazorpayPaymentID: "pay_1",
		RazorpaySignature: strings.Repeat("0", 64),
	})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "Payment verification failed", decode[dto.ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodGet, "/api/certificate?paymentId=pay_1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerify_PendingCertificateThenRetry(t *testing.T) {
	s := newTestServer(t)
	created := s.createOrder(t)

	s.ledger.SetFault(func(client.LedgerSubmission) error {
		return fmt.Errorf("ledger unreachable")
	})
	rec := s.do(t, http.MethodPost, "/api/payment/verify", dto.VerifyPaymentRequest{
		RazorpayOrderID:   created.Order.ID,
		RazorpayPaymentID: "pay_1",
		RazorpaySignature: payment.Sign(created.Order.ID, "pay_1", testKeySecret),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[dto.VerifyPaymentResponse](t, rec)
	assert.Equal(t, "Payment successful! Certificate creation is in progress and will be delivered shortly.", resp.Message)
	assert.Equal(t, "completed", resp.Transaction.Status)
	assert.Equal(t, "pending", resp.Transaction.Certificate.Status)
	assert.False(t, resp.Transaction.Certificate.CertificateCreated)
	assert.Contains(t, resp.Transaction.Certificate.Error, "ledger unreachable")

	s.ledger.SetFault(nil)
	rec = s.do(t, http.MethodPost, "/api/certificate/pay_1/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	retried := decode[dto.VerifyPaymentResponse](t, rec)
	assert.True(t, retried.Transaction.Certificate.CertificateCreated)
	assert.Equal(t, "1", retried.Transaction.Certificate.NFTTokenID)
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
		wantErr  string
	}{
		{name: "certificate lookup without ids", method: http.MethodGet, path: "/api/certificate", wantCode: http.StatusBadRequest, wantErr: "Token ID or Payment ID required"},
		{name: "create order without product", method: http.MethodPost, path: "/api/payment/create-order", body: dto.CreateOrderRequest{}, wantCode: http.StatusBadRequest, wantErr: "Product ID is required"},
		{name: "create order out of stock", method: http.MethodPost, path: "/api/payment/create-order", body: dto.CreateOrderRequest{ProductID: "craft_dhokra_005"}, wantCode: http.StatusBadRequest},
		{name: "verify missing fields", method: http.MethodPost, path: "/api/payment/verify", body: dto.VerifyPaymentRequest{RazorpayOrderID: "order_1"}, wantCode: http.StatusBadRequest, wantErr: "Missing payment verification fields"},
		{name: "verify unknown order", method: http.MethodPost, path: "/api/payment/verify", body: dto.VerifyPaymentRequest{RazorpayOrderID: "order_x", RazorpayPaymentID: "pay_x", RazorpaySignature: "ab"}, wantCode: http.StatusNotFound},
		{name: "retry unknown payment", method: http.MethodPost, path: "/api/certificate/pay_x/retry", wantCode: http.StatusNotFound},
		{name: "webhook bad signature", method: http.MethodPost, path: "/api/payment/webhook", body: map[string]string{"event": "payment.captured"}, wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decode[dto.ErrorResponse](t, rec).Error)
			}
		})
	}
}

func TestAuth_RegisterLoginAndCheckout(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/auth/register", dto.RegisterRequest{
		Method:   "email",
		Name:     "Asha",
		Email:    "asha@example.com",
		Password: "s3cret",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	registered := decode[dto.AuthResponse](t, rec)
	require.NotNil(t, registered.User)
	assert.NotEmpty(t, registered.Token)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = s.do(t, http.MethodPost, "/api/auth/register", dto.RegisterRequest{
		Method: "email", Name: "Asha", Email: "asha@example.com", Password: "other",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", dto.LoginRequest{
		Method: "email", Email: "asha@example.com", Password: "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", dto.LoginRequest{
		Method: "email", Email: "asha@example.com", Password: "s3cret",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decode[dto.AuthResponse](t, rec)
	require.NotEmpty(t, login.Token)
	assert.Equal(t, registered.User.ID, login.User.ID)
	assert.NotNil(t, login.User.LastLoginAt)

	rec = s.doAs(t, login.Token, http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	me := decode[dto.UserResponse](t, rec)
	assert.Equal(t, registered.User.ID, me.User.ID)

	rec = s.do(t, http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// the token identity wins over the body buyer
	rec = s.doAs(t, login.Token, http.MethodPost, "/api/payment/create-order", dto.CreateOrderRequest{
		ProductID: testProductID,
		BuyerID:   "someone_else",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decode[dto.CreateOrderResponse](t, rec)

	rec = s.do(t, http.MethodPost, "/api/payment/verify", dto.VerifyPaymentRequest{
		RazorpayOrderID:   created.Order.ID,
		RazorpayPaymentID: "pay_asha",
		RazorpaySignature: payment.Sign(created.Order.ID, "pay_asha", testKeySecret),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/certificate?paymentId=pay_asha", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cert := decode[dto.CertificateResponse](t, rec)
	assert.Equal(t, registered.User.ID, cert.Certificate.BuyerID)
}

func TestAuth_WalletAndPhoneLogin(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/auth/register", dto.RegisterRequest{
		Name: "Ravi", WalletAddress: "0xRavi", UserType: "artisan",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	artisan := decode[dto.AuthResponse](t, rec)
	assert.Equal(t, "artisan", string(artisan.User.UserType))

	rec = s.do(t, http.MethodPost, "/api/auth/login", dto.LoginRequest{Method: "wallet", WalletAddress: "0xravi"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, artisan.User.ID, decode[dto.AuthResponse](t, rec).User.ID)

	rec = s.do(t, http.MethodPost, "/api/auth/register", dto.RegisterRequest{Name: "Meera", Phone: "+919800000000"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/auth/login", dto.LoginRequest{Phone: "+919800000000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[dto.AuthResponse](t, rec).User.PhoneVerified)

	rec = s.do(t, http.MethodPost, "/api/auth/login", dto.LoginRequest{Phone: "+910000000000"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", dto.LoginRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
