package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"craftchain/internal/apperr"
	"craftchain/internal/certificate"
	"craftchain/internal/client"
	"craftchain/internal/config"
	"craftchain/internal/lock"
	"craftchain/internal/metrics"
	"craftchain/internal/model"
	"craftchain/internal/repository"

	"go.uber.org/zap"
)

const (
	OwnerPolicyPlatform = "platform"
	OwnerPolicyBuyer    = "buyer"
)

type MintRequest struct {
	Product certificate.Product
	Buyer   certificate.Buyer
	Payment certificate.Payment
}

type VerifyResult struct {
	TokenID     string
	Valid       bool
	Certificate *model.CertificateRecord
}

type CertificateService interface {
	// Mint issues at most one certificate per payment id. A second call for
	// the same payment returns the stored record without touching the ledger.
	Mint(ctx context.Context, req MintRequest) (*model.CertificateRecord, error)
	IssueForOrder(ctx context.Context, order *model.Order, product certificate.Product, buyer certificate.Buyer) (*model.CertificateRecord, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*model.CertificateRecord, error)
	GetByTokenID(ctx context.Context, tokenID string) (*model.CertificateRecord, error)
	Verify(ctx context.Context, tokenID string) (*VerifyResult, error)
	RetryPending(ctx context.Context, paymentID string) (*SettlementResult, error)
	RenderPDF(ctx context.Context, paymentID string) ([]byte, error)
}

type certificateServiceImpl struct {
	ledger      client.LedgerClient
	certRepo    repository.CertificateRepository
	orderRepo   repository.OrderRepository
	products    ProductService
	locker      lock.Locker
	ledgerCfg   config.Ledger
	issuer      certificate.Issuer
	baseURL     string
	metrics     *metrics.Metrics
	log         *zap.Logger
	mintTimeout time.Duration
}

func NewCertificateService(
	cfg *config.Config,
	ledger client.LedgerClient,
	certRepo repository.CertificateRepository,
	orderRepo repository.OrderRepository,
	products ProductService,
	locker lock.Locker,
	m *metrics.Metrics,
	log *zap.Logger,
) CertificateService {
	mintTimeout := cfg.Ledger.MintTimeout
	if mintTimeout <= 0 {
		mintTimeout = 30 * time.Second
	}
	return &certificateServiceImpl{
		ledger:    ledger,
		certRepo:  certRepo,
		orderRepo: orderRepo,
		products:  products,
		locker:    locker,
		ledgerCfg: cfg.Ledger,
		issuer: certificate.Issuer{
			Identity: cfg.Ledger.IssuerIdentity,
			Platform: cfg.Platform.Name,
			Network:  cfg.Ledger.Network,
			BaseURL:  cfg.BaseURL,
		},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		metrics:     m,
		log:         log,
		mintTimeout: mintTimeout,
	}
}

func (s *certificateServiceImpl) Mint(ctx context.Context, req MintRequest) (*model.CertificateRecord, error) {
	pid := req.Payment.PaymentID
	if pid == "" {
		return nil, apperr.New(apperr.InvalidArgument, "mint certificate", "payment id is required")
	}

	unlock, err := s.locker.Lock(ctx, "mint:"+pid)
	if err != nil {
		return nil, classifyMintError("lock mint "+pid, err)
	}
	defer unlock()

	existing, err := s.certRepo.FindByPaymentID(ctx, pid)
	if err == nil {
		s.metrics.CertificateMint("existing")
		return existing, nil
	}
	if !errors.Is(err, apperr.NotFound) {
		return nil, fmt.Errorf("lookup certificate for payment %s: %w", pid, err)
	}

	meta, err := certificate.BuildMetadata(req.Product, req.Buyer, req.Payment, s.issuer)
	if err != nil {
		return nil, err
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal certificate metadata: %w", err)
	}
	metaURI, err := certificate.EncodeMetadataURI(meta)
	if err != nil {
		return nil, err
	}

	owner := s.ownerAddress(req.Buyer)
	mintCtx, cancel := context.WithTimeout(ctx, s.mintTimeout)
	defer cancel()

	receipt, err := s.ledger.SubmitCertificate(mintCtx, client.LedgerSubmission{
		PaymentID:       pid,
		Metadata:        metaJSON,
		MetadataURI:     metaURI,
		OwnerAddress:    owner,
		ContractAddress: s.ledgerCfg.ContractAddress,
		Network:         s.ledgerCfg.Network,
	})
	if err != nil {
		err = classifyMintError("submit certificate", err)
		if errors.Is(err, apperr.MintTimeout) {
			s.metrics.CertificateMint("timeout")
		} else {
			s.metrics.CertificateMint("failed")
		}
		s.log.Error("certificate mint failed",
			zap.String("paymentId", pid),
			zap.String("orderId", req.Payment.OrderID),
			zap.Error(err))
		return nil, err
	}

	if receipt.OwnerAddress != "" {
		owner = receipt.OwnerAddress
	}
	rec := &model.CertificateRecord{
		PaymentID:       pid,
		TokenID:         receipt.TokenID,
		OrderID:         req.Payment.OrderID,
		ProductID:       req.Product.ID,
		BuyerID:         req.Buyer.ID,
		ContractAddress: s.ledgerCfg.ContractAddress,
		Network:         s.ledgerCfg.Network,
		OwnerAddress:    owner,
		TransactionHash: receipt.TransactionHash,
		BlockNumber:     receipt.BlockNumber,
		MetadataURI:     metaURI,
		IssuedAt:        req.Payment.IssuedAt.UTC(),
	}

	// the ledger is idempotent on payment id, so a failed store is safe to retry
	stored, created, err := s.certRepo.CreateIfAbsent(context.WithoutCancel(ctx), rec)
	if err != nil {
		s.metrics.CertificateMint("failed")
		return nil, apperr.Wrap(apperr.MintFailed, "store certificate "+pid, err)
	}
	if created {
		s.metrics.CertificateMint("minted")
		s.log.Info("certificate minted",
			zap.String("paymentId", pid),
			zap.String("tokenId", stored.TokenID),
			zap.String("transactionHash", stored.TransactionHash))
	} else {
		s.metrics.CertificateMint("existing")
	}
	return stored, nil
}

func (s *certificateServiceImpl) ownerAddress(buyer certificate.Buyer) string {
	if s.ledgerCfg.OwnerPolicy == OwnerPolicyBuyer && buyer.WalletAddress != "" {
		return buyer.WalletAddress
	}
	return s.ledgerCfg.PlatformAddress
}

// IssueForOrder mints the certificate of a verified order and records the
// outcome on the order. The order's status is never changed.
func (s *certificateServiceImpl) IssueForOrder(ctx context.Context, order *model.Order, product certificate.Product, buyer certificate.Buyer) (*model.CertificateRecord, error) {
	issuedAt := order.UpdatedAt
	if order.VerifiedAt != nil {
		issuedAt = *order.VerifiedAt
	}

	rec, err := s.Mint(ctx, MintRequest{
		Product: product,
		Buyer:   buyer,
		Payment: certificate.Payment{
			PaymentID: order.PaymentID,
			OrderID:   order.OrderID,
			IssuedAt:  issuedAt,
		},
	})

	durable := context.WithoutCancel(ctx)
	if err != nil {
		if serr := s.orderRepo.SetCertificateError(durable, order.OrderID, err.Error()); serr != nil {
			s.log.Error("recording certificate error failed", zap.String("orderId", order.OrderID), zap.Error(serr))
		}
		return nil, err
	}

	if err := s.orderRepo.AttachCertificate(durable, order.OrderID, rec.TokenID); err != nil {
		err = fmt.Errorf("link certificate %s to order %s: %w", rec.TokenID, order.OrderID, err)
		s.log.Error("certificate minted but not linked",
			zap.String("orderId", order.OrderID),
			zap.String("tokenId", rec.TokenID),
			zap.Error(err))
		if serr := s.orderRepo.SetCertificateError(durable, order.OrderID, err.Error()); serr != nil {
			s.log.Error("recording certificate error failed", zap.String("orderId", order.OrderID), zap.Error(serr))
		}
		return rec, err
	}
	return rec, nil
}

func (s *certificateServiceImpl) GetByPaymentID(ctx context.Context, paymentID string) (*model.CertificateRecord, error) {
	if paymentID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "get certificate", "payment id is required")
	}
	return s.certRepo.FindByPaymentID(ctx, paymentID)
}

func (s *certificateServiceImpl) GetByTokenID(ctx context.Context, tokenID string) (*model.CertificateRecord, error) {
	if tokenID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "get certificate", "token id is required")
	}
	return s.certRepo.FindByTokenID(ctx, tokenID)
}

func (s *certificateServiceImpl) Verify(ctx context.Context, tokenID string) (*VerifyResult, error) {
	rec, err := s.GetByTokenID(ctx, tokenID)
	if errors.Is(err, apperr.NotFound) {
		return &VerifyResult{TokenID: tokenID}, nil
	}
	if err != nil {
		return nil, err
	}

	valid, err := s.ledger.VerifyCertificate(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("verify certificate %s on ledger: %w", tokenID, err)
	}
	return &VerifyResult{TokenID: tokenID, Valid: valid, Certificate: rec}, nil
}

func (s *certificateServiceImpl) RetryPending(ctx context.Context, paymentID string) (*SettlementResult, error) {
	if paymentID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "retry certificate", "payment id is required")
	}

	order, err := s.orderRepo.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderStatusPaidVerified {
		return nil, apperr.New(apperr.Conflict, "retry certificate", "order %s is %s", order.OrderID, order.Status)
	}

	if order.CertificateTokenID == "" {
		product, err := s.products.Get(ctx, order.ProductID)
		if err != nil {
			return nil, fmt.Errorf("load product %s: %w", order.ProductID, err)
		}

		buyer := certificate.Buyer{ID: order.BuyerID, WalletAddress: order.BuyerWallet}
		if _, err := s.IssueForOrder(ctx, order, productSnapshot(product), buyer); err != nil {
			return nil, err
		}
		s.log.Info("pending certificate issued", zap.String("paymentId", paymentID), zap.String("orderId", order.OrderID))

		order, err = s.orderRepo.FindByOrderID(ctx, order.OrderID)
		if err != nil {
			return nil, err
		}
	}

	return settlementFromStore(ctx, order, s.certRepo, s.ledgerCfg.ExplorerURL)
}

func (s *certificateServiceImpl) RenderPDF(ctx context.Context, paymentID string) ([]byte, error) {
	rec, err := s.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	meta, err := certificate.DecodeMetadataURI(rec.MetadataURI)
	if err != nil {
		return nil, fmt.Errorf("decode stored metadata for %s: %w", paymentID, err)
	}
	return certificate.RenderPDF(rec, meta, s.baseURL+"/api/certificate/verify/"+rec.TokenID)
}

func productSnapshot(p *model.Product) certificate.Product {
	return certificate.Product{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		ArtisanName:    p.ArtisanName,
		ArtisanAddress: p.ArtisanAddress,
		Location:       p.Location,
		Category:       p.Category,
		ImageURL:       p.ImageURL,
		Price:          p.Price,
		Currency:       p.Currency,
	}
}

func classifyMintError(op string, err error) error {
	switch {
	case errors.Is(err, apperr.MintFailed), errors.Is(err, apperr.MintTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.MintTimeout, op, err)
	default:
		return apperr.Wrap(apperr.MintFailed, op, err)
	}
}
