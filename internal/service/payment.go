package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"craftchain/internal/apperr"
	"craftchain/internal/certificate"
	"craftchain/internal/client"
	"craftchain/internal/config"
	"craftchain/internal/lock"
	"craftchain/internal/metrics"
	"craftchain/internal/model"
	"craftchain/internal/payment"
	"craftchain/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	HeaderWebhookSignature = "X-Razorpay-Signature"
	HeaderWebhookEventID   = "X-Razorpay-Event-Id"

	GuestBuyerID = "guest"
)

// webhookEventNamespace derives stable ids for deliveries without an event id header.
var webhookEventNamespace = uuid.MustParse("5b8a2f44-6c1e-4f0e-9d7a-3e2c1b0a9f88")

type CreateOrderRequest struct {
	ProductID   string
	BuyerID     string
	BuyerWallet string
	// GrossAmount is optional; when set it must equal the catalog price.
	GrossAmount int64
}

type CreateOrderResult struct {
	Order   *model.Order
	Product *model.Product
	KeyID   string
}

type SettleRequest struct {
	OrderID   string
	PaymentID string
	Signature string
	// Product overrides the catalog snapshot put on the certificate.
	Product *certificate.Product
	Buyer   certificate.Buyer
}

type PaymentService interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error)
	VerifyAndSettle(ctx context.Context, req SettleRequest) (*SettlementResult, error)
	HandleWebhook(ctx context.Context, headers http.Header, body []byte) error
}

type paymentServiceImpl struct {
	razorpayClient   client.RazorpayClient
	products         ProductService
	certificates     CertificateService
	orderRepo        repository.OrderRepository
	certRepo         repository.CertificateRepository
	webhookEventRepo repository.WebhookEventRepository
	locker           lock.Locker
	razorpayCfg      config.Razorpay
	platformCfg      config.Platform
	explorerURL      string
	metrics          *metrics.Metrics
	log              *zap.Logger
	now              func() time.Time
}

func NewPaymentService(
	cfg *config.Config,
	razorpayClient client.RazorpayClient,
	products ProductService,
	certificates CertificateService,
	orderRepo repository.OrderRepository,
	certRepo repository.CertificateRepository,
	webhookEventRepo repository.WebhookEventRepository,
	locker lock.Locker,
	m *metrics.Metrics,
	log *zap.Logger,
) PaymentService {
	return &paymentServiceImpl{
		razorpayClient:   razorpayClient,
		products:         products,
		certificates:     certificates,
		orderRepo:        orderRepo,
		certRepo:         certRepo,
		webhookEventRepo: webhookEventRepo,
		locker:           locker,
		razorpayCfg:      cfg.Razorpay,
		platformCfg:      cfg.Platform,
		explorerURL:      cfg.Ledger.ExplorerURL,
		metrics:          m,
		log:              log,
		now:              time.Now,
	}
}

func (s *paymentServiceImpl) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if req.ProductID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "create order", "product id is required")
	}
	if req.GrossAmount < 0 {
		return nil, apperr.New(apperr.InvalidArgument, "create order", "amount must not be negative")
	}
	buyerID := req.BuyerID
	if buyerID == "" {
		buyerID = GuestBuyerID
	}

	product, err := s.products.Get(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.InStock {
		return nil, apperr.New(apperr.InvalidArgument, "create order", "product %s is out of stock", product.ID)
	}

	amount := product.Price
	if req.GrossAmount != 0 && req.GrossAmount != amount {
		return nil, apperr.New(apperr.InvalidArgument, "create order",
			"amount %d does not match the price of %s", req.GrossAmount, product.ID)
	}
	if amount <= 0 {
		return nil, apperr.New(apperr.InvalidArgument, "create order", "product %s has no price", product.ID)
	}
	currency := product.Currency
	if currency == "" {
		currency = s.razorpayCfg.Currency
	}

	now := s.now()
	receipt := buildReceipt(product.ID, now)
	gwOrder, err := s.razorpayClient.CreateOrder(ctx, client.CreateOrderParams{
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Notes: map[string]string{
			"productId":      product.ID,
			"buyerId":        buyerID,
			"platform":       s.platformCfg.Name,
			"shortProductId": shortProductID(product.ID),
			"timestamp":      now.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		s.log.Error("razorpay create order failed", zap.String("productId", product.ID), zap.Error(err))
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}

	order := &model.Order{
		OrderID:     gwOrder.ID,
		ProductID:   product.ID,
		BuyerID:     buyerID,
		BuyerWallet: req.BuyerWallet,
		GrossAmount: amount,
		Currency:    currency,
		Receipt:     receipt,
		Status:      model.OrderStatusCreated,
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("store order in db: %w", err)
	}

	s.metrics.OrderCreated()
	s.log.Info("order created",
		zap.String("orderId", order.OrderID),
		zap.String("productId", product.ID),
		zap.String("buyerId", buyerID),
		zap.Int64("amount", amount))

	return &CreateOrderResult{
		Order:   order,
		Product: product,
		KeyID:   s.razorpayCfg.KeyID,
	}, nil
}

func (s *paymentServiceImpl) VerifyAndSettle(ctx context.Context, req SettleRequest) (*SettlementResult, error) {
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return nil, apperr.New(apperr.InvalidArgument, "verify payment", "order id, payment id and signature are required")
	}

	unlock, err := s.locker.Lock(ctx, "settle:"+req.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("acquire settlement lock: %w", err)
	}
	defer unlock()

	order, err := s.orderRepo.FindByOrderID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case model.OrderStatusPaidVerified:
		if order.PaymentID != req.PaymentID {
			return nil, apperr.New(apperr.Conflict, "verify payment",
				"order %s is settled by another payment", order.OrderID)
		}
		s.metrics.DuplicateSettlement()
		s.log.Info("duplicate settlement replayed",
			zap.String("orderId", order.OrderID),
			zap.String("paymentId", req.PaymentID))
		return settlementFromStore(ctx, order, s.certRepo, s.explorerURL)
	case model.OrderStatusVerificationFailed:
		return nil, apperr.New(apperr.PaymentVerificationFailed, "verify payment",
			"order %s failed verification", order.OrderID)
	}

	order, err = s.orderRepo.Transition(ctx, order.OrderID, repository.OrderTransition{
		From:      []model.OrderStatus{model.OrderStatusCreated, model.OrderStatusPaidPending},
		To:        model.OrderStatusPaidPending,
		PaymentID: req.PaymentID,
	})
	if err != nil {
		return nil, err
	}

	if !payment.Verify(order.OrderID, req.PaymentID, req.Signature, s.razorpayCfg.KeySecret) {
		s.log.Warn("payment signature mismatch",
			zap.String("orderId", order.OrderID),
			zap.String("paymentId", req.PaymentID),
			zap.String("buyerId", order.BuyerID))
		s.metrics.SignatureFailure("checkout")
		s.failVerification(ctx, order.OrderID, "signature mismatch")
		return nil, apperr.New(apperr.PaymentVerificationFailed, "verify payment",
			"signature mismatch for order %s", order.OrderID)
	}

	return s.settle(ctx, order, req.PaymentID, req.Product, orderBuyer(order, req.Buyer))
}

// orderBuyer returns the identity the order was created for. The caller's
// identity only fills in orders stored without one.
func orderBuyer(order *model.Order, fallback certificate.Buyer) certificate.Buyer {
	if order.BuyerID == "" {
		return fallback
	}
	return certificate.Buyer{ID: order.BuyerID, WalletAddress: order.BuyerWallet}
}

func (s *paymentServiceImpl) failVerification(ctx context.Context, orderID, reason string) {
	_, err := s.orderRepo.Transition(context.WithoutCancel(ctx), orderID, repository.OrderTransition{
		From:          []model.OrderStatus{model.OrderStatusPaidPending},
		To:            model.OrderStatusVerificationFailed,
		FailureReason: reason,
	})
	if err != nil {
		s.log.Error("marking order verification failed", zap.String("orderId", orderID), zap.Error(err))
	}
	s.metrics.Settlement("verification_failed")
}

// settle records the verified payment and its fee split, then attempts the
// certificate. A certificate failure leaves the payment verified.
func (s *paymentServiceImpl) settle(
	ctx context.Context,
	order *model.Order,
	paymentID string,
	product *certificate.Product,
	buyer certificate.Buyer,
) (*SettlementResult, error) {
	fees, err := payment.Split(order.GrossAmount, s.platformCfg.FeePercent)
	if err != nil {
		return nil, err
	}

	durable := context.WithoutCancel(ctx)
	verifiedAt := s.now().UTC().Truncate(time.Millisecond)
	verified, err := s.orderRepo.Transition(durable, order.OrderID, repository.OrderTransition{
		From:              []model.OrderStatus{model.OrderStatusPaidPending},
		To:                model.OrderStatusPaidVerified,
		PaymentID:         paymentID,
		PlatformFeeAmount: fees.PlatformFeeAmount,
		ArtisanAmount:     fees.ArtisanAmount,
		VerifiedAt:        &verifiedAt,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("payment verified",
		zap.String("orderId", verified.OrderID),
		zap.String("paymentId", paymentID),
		zap.Int64("platformFee", fees.PlatformFeeAmount),
		zap.Int64("artisanAmount", fees.ArtisanAmount))

	if product == nil {
		p, err := s.products.Get(ctx, verified.ProductID)
		if err == nil {
			snap := productSnapshot(p)
			product = &snap
		} else {
			s.log.Error("product snapshot unavailable", zap.String("productId", verified.ProductID), zap.Error(err))
			if serr := s.orderRepo.SetCertificateError(durable, verified.OrderID, "product snapshot unavailable"); serr != nil {
				s.log.Error("recording certificate error failed", zap.String("orderId", verified.OrderID), zap.Error(serr))
			}
		}
	}
	if product != nil {
		if _, err := s.certificates.IssueForOrder(ctx, verified, *product, buyer); err != nil {
			s.log.Warn("certificate pending after settlement",
				zap.String("orderId", verified.OrderID),
				zap.String("paymentId", paymentID),
				zap.Error(err))
		}
	}

	current, err := s.orderRepo.FindByOrderID(durable, verified.OrderID)
	if err != nil {
		return nil, err
	}
	result, err := settlementFromStore(durable, current, s.certRepo, s.explorerURL)
	if err != nil {
		return nil, err
	}
	s.metrics.Settlement(strings.ToLower(string(result.Status)))
	return result, nil
}

// HandleWebhook authenticates and applies one gateway delivery. A nil error
// acknowledges the delivery; an error asks the gateway to redeliver.
func (s *paymentServiceImpl) HandleWebhook(ctx context.Context, headers http.Header, body []byte) error {
	if !payment.VerifyWebhook(body, headers.Get(HeaderWebhookSignature), s.razorpayCfg.WebhookSecret) {
		s.metrics.SignatureFailure("webhook")
		s.log.Warn("webhook signature mismatch", zap.Int("bodyBytes", len(body)))
		return apperr.New(apperr.InvalidArgument, "handle webhook", "invalid webhook signature")
	}

	var event model.RazorpayWebhook
	if err := json.Unmarshal(body, &event); err != nil {
		return apperr.Wrap(apperr.InvalidArgument, "decode webhook", err)
	}

	eventID := headers.Get(HeaderWebhookEventID)
	if eventID == "" {
		eventID = uuid.NewSHA1(webhookEventNamespace, body).String()
	}

	seen, err := s.webhookEventRepo.Exists(ctx, eventID)
	if err != nil {
		return fmt.Errorf("check webhook event: %w", err)
	}
	if seen {
		s.log.Info("webhook event already processed", zap.String("eventId", eventID), zap.String("event", event.Event))
		return nil
	}

	switch event.Event {
	case model.RazorpayEventPaymentCaptured, model.RazorpayEventOrderPaid:
		err = s.handlePaymentCaptured(ctx, event)
	default:
		s.log.Info("ignoring webhook event", zap.String("eventId", eventID), zap.String("event", event.Event))
	}
	if err != nil {
		return err
	}

	if _, err := s.webhookEventRepo.MarkProcessed(ctx, eventID, event.Event); err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	return nil
}

func (s *paymentServiceImpl) handlePaymentCaptured(ctx context.Context, event model.RazorpayWebhook) error {
	if event.Payload.Payment == nil {
		s.log.Warn("webhook without payment entity", zap.String("event", event.Event))
		return nil
	}
	entity := event.Payload.Payment.Entity
	if entity.ID == "" || entity.OrderID == "" {
		s.log.Warn("webhook payment without ids", zap.String("event", event.Event))
		return nil
	}
	logFields := []zap.Field{zap.String("orderId", entity.OrderID), zap.String("paymentId", entity.ID)}

	unlock, err := s.locker.Lock(ctx, "settle:"+entity.ID)
	if err != nil {
		return fmt.Errorf("acquire settlement lock: %w", err)
	}
	defer unlock()

	order, err := s.orderRepo.FindByOrderID(ctx, entity.OrderID)
	if errors.Is(err, apperr.NotFound) {
		s.log.Warn("webhook for unknown order", logFields...)
		return nil
	}
	if err != nil {
		return err
	}

	switch order.Status {
	case model.OrderStatusPaidVerified:
		if order.PaymentID == entity.ID {
			s.metrics.DuplicateSettlement()
			s.log.Info("webhook for settled payment", logFields...)
		} else {
			s.log.Warn("webhook for order settled by another payment", append(logFields, zap.String("settledBy", order.PaymentID))...)
		}
		return nil
	case model.OrderStatusVerificationFailed:
		s.log.Warn("webhook for failed order", logFields...)
		return nil
	}

	order, err = s.orderRepo.Transition(ctx, order.OrderID, repository.OrderTransition{
		From:      []model.OrderStatus{model.OrderStatusCreated, model.OrderStatusPaidPending},
		To:        model.OrderStatusPaidPending,
		PaymentID: entity.ID,
	})
	if errors.Is(err, apperr.Conflict) {
		s.log.Warn("webhook payment conflicts with order", append(logFields, zap.Error(err))...)
		return nil
	}
	if err != nil {
		return err
	}

	if entity.Amount != order.GrossAmount ||
		(entity.Currency != "" && !strings.EqualFold(entity.Currency, order.Currency)) {
		s.log.Warn("webhook amount mismatch",
			append(logFields,
				zap.Int64("expected", order.GrossAmount),
				zap.Int64("received", entity.Amount),
				zap.String("currency", entity.Currency))...)
		s.failVerification(ctx, order.OrderID, "amount mismatch")
		return nil
	}

	_, err = s.settle(ctx, order, entity.ID, nil, orderBuyer(order, certificate.Buyer{}))
	return err
}

func shortProductID(productID string) string {
	if len(productID) > 12 {
		return productID[len(productID)-8:]
	}
	return productID
}

// buildReceipt follows the gateway's 40 character receipt limit.
func buildReceipt(productID string, now time.Time) string {
	millis := strconv.FormatInt(now.UnixMilli(), 10)
	if len(millis) > 6 {
		millis = millis[len(millis)-6:]
	}
	receipt := "craft_" + shortProductID(productID) + "_" + millis
	if len(receipt) > 40 {
		receipt = receipt[:40]
	}
	return receipt
}
