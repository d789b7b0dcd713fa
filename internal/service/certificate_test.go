package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"craftchain/internal/apperr"
	"craftchain/internal/certificate"
	"craftchain/internal/client"
	"craftchain/internal/config"
	"craftchain/internal/lock"
	"craftchain/internal/model"
	"craftchain/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type blockingLedger struct{}

func (blockingLedger) SubmitCertificate(ctx context.Context, _ client.LedgerSubmission) (*client.LedgerReceipt, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingLedger) VerifyCertificate(context.Context, string) (bool, error) {
	return false, nil
}

func orderPending(paymentID string) repository.OrderTransition {
	return repository.OrderTransition{
		From:      []model.OrderStatus{model.OrderStatusCreated},
		To:        model.OrderStatusPaidPending,
		PaymentID: paymentID,
	}
}

func testMintRequest(paymentID string) MintRequest {
	return MintRequest{
		Product: certificate.Product{
			ID:          testProductID,
			Name:        "Jaipur Blue Pottery Bowl",
			ArtisanName: "Kamla Devi",
			Location:    "Jaipur, Rajasthan",
			Price:       1250,
			Currency:    "INR",
		},
		Buyer: certificate.Buyer{ID: "guest", WalletAddress: "0xBuyerWallet"},
		Payment: certificate.Payment{
			PaymentID: paymentID,
			OrderID:   "order_" + paymentID,
			IssuedAt:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		},
	}
}

func TestMint_SecondCallReturnsExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.certificates.Mint(ctx, testMintRequest("pay_1"))
	require.NoError(t, err)
	second, err := f.certificates.Mint(ctx, testMintRequest("pay_1"))
	require.NoError(t, err)

	assert.Equal(t, first.TokenID, second.TokenID)
	assert.Equal(t, first.TransactionHash, second.TransactionHash)
	assert.Equal(t, 1, f.ledger.Calls())

	count, err := f.certs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	other, err := f.certificates.Mint(ctx, testMintRequest("pay_2"))
	require.NoError(t, err)
	assert.NotEqual(t, first.TokenID, other.TokenID)
}

func TestMint_Metadata(t *testing.T) {
	f := newFixture(t)

	rec, err := f.certificates.Mint(context.Background(), testMintRequest("pay_1"))
	require.NoError(t, err)

	meta, err := certificate.DecodeMetadataURI(rec.MetadataURI)
	require.NoError(t, err)
	assert.Equal(t, "Authenticity Certificate - Jaipur Blue Pottery Bowl", meta.Name)
	assert.Equal(t, "https://craftchain.test/certificate/pay_1", meta.ExternalURL)
	assert.Equal(t, "12.50", meta.Attribute("Purchase Price (INR)"))
	assert.Equal(t, "2026-03-01", meta.Attribute("Certificate Date"))
	assert.Equal(t, "polygon-amoy", meta.Certificate.BlockchainNetwork)
	assert.Equal(t, testPlatformAddr, rec.OwnerAddress)
	assert.Equal(t, "0xContract", rec.ContractAddress)
}

func TestMint_OwnerPolicyBuyer(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Ledger.OwnerPolicy = OwnerPolicyBuyer
	})

	rec, err := f.certificates.Mint(context.Background(), testMintRequest("pay_1"))
	require.NoError(t, err)
	assert.Equal(t, "0xBuyerWallet", rec.OwnerAddress)

	req := testMintRequest("pay_2")
	req.Buyer.WalletAddress = ""
	rec, err = f.certificates.Mint(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, testPlatformAddr, rec.OwnerAddress)
}

func TestMint_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.certificates.Mint(ctx, MintRequest{})
	assert.ErrorIs(t, err, apperr.InvalidArgument)

	f.ledger.SetFault(func(client.LedgerSubmission) error {
		return apperr.New(apperr.MintFailed, "ledger stub submit", "rpc unavailable")
	})
	_, err = f.certificates.Mint(ctx, testMintRequest("pay_1"))
	assert.ErrorIs(t, err, apperr.MintFailed)

	count, err := f.certs.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMint_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.Ledger.MintTimeout = 20 * time.Millisecond
	f := newFixture(t)
	svc := NewCertificateService(cfg, blockingLedger{}, f.certs, f.orders, f.products, lock.NewLocal(), nil, zap.NewNop())

	_, err := svc.Mint(context.Background(), testMintRequest("pay_1"))
	assert.ErrorIs(t, err, apperr.MintTimeout)
}

func TestCertificateLookupAndVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t)

	res, err := f.payments.VerifyAndSettle(ctx, f.settleRequest(order.OrderID, "pay_1"))
	require.NoError(t, err)
	tokenID := res.Certificate.TokenID

	byPayment, err := f.certificates.GetByPaymentID(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, tokenID, byPayment.TokenID)

	byToken, err := f.certificates.GetByTokenID(ctx, tokenID)
	require.NoError(t, err)
	assert.Equal(t, "pay_1", byToken.PaymentID)
	assert.Equal(t, order.OrderID, byToken.OrderID)

	_, err = f.certificates.GetByTokenID(ctx, "")
	assert.ErrorIs(t, err, apperr.InvalidArgument)
	_, err = f.certificates.GetByPaymentID(ctx, "pay_missing")
	assert.ErrorIs(t, err, apperr.NotFound)

	verified, err := f.certificates.Verify(ctx, tokenID)
	require.NoError(t, err)
	assert.True(t, verified.Valid)
	assert.Equal(t, "pay_1", verified.Certificate.PaymentID)

	unknown, err := f.certificates.Verify(ctx, "999")
	require.NoError(t, err)
	assert.False(t, unknown.Valid)
	assert.Nil(t, unknown.Certificate)

	pdf, err := f.certificates.RenderPDF(ctx, "pay_1")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
}

func TestRetryPending_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t)

	_, err := f.certificates.RetryPending(ctx, "")
	assert.ErrorIs(t, err, apperr.InvalidArgument)

	_, err = f.certificates.RetryPending(ctx, "pay_unknown")
	assert.ErrorIs(t, err, apperr.NotFound)

	// bound to the payment but not verified yet
	_, err = f.orders.Transition(ctx, order.OrderID, orderPending("pay_1"))
	require.NoError(t, err)
	_, err = f.certificates.RetryPending(ctx, "pay_1")
	assert.ErrorIs(t, err, apperr.Conflict)

	stored, err := f.orders.FindByOrderID(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaidPending, stored.Status)
}
