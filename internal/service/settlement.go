package service

import (
	"context"
	"errors"

	"craftchain/internal/apperr"
	"craftchain/internal/certificate"
	"craftchain/internal/model"
	"craftchain/internal/payment"
	"craftchain/internal/repository"
)

type SettlementStatus string

const (
	SettlementCompleted                   SettlementStatus = "COMPLETED"
	SettlementCompletedCertificatePending SettlementStatus = "COMPLETED_CERTIFICATE_PENDING"
)

// SettlementResult reports the payment outcome and the certificate outcome
// as two separate fields. Certificate is nil while the certificate is pending.
type SettlementResult struct {
	OrderID          string
	PaymentID        string
	Status           SettlementStatus
	Fees             payment.FeeSplit
	Currency         string
	Certificate      *model.CertificateRecord
	CertificateError string
	ExplorerURL      string
}

// settlementFromStore builds the result of a verified order from what is
// persisted, so a first settlement and every replay of it read the same way.
func settlementFromStore(
	ctx context.Context,
	order *model.Order,
	certRepo repository.CertificateRepository,
	explorerBase string,
) (*SettlementResult, error) {
	if order.Status != model.OrderStatusPaidVerified {
		return nil, apperr.New(apperr.Conflict, "settlement result", "order %s is %s", order.OrderID, order.Status)
	}

	result := &SettlementResult{
		OrderID:   order.OrderID,
		PaymentID: order.PaymentID,
		Status:    SettlementCompletedCertificatePending,
		Fees: payment.FeeSplit{
			GrossAmount:       order.GrossAmount,
			PlatformFeeAmount: order.PlatformFeeAmount,
			ArtisanAmount:     order.ArtisanAmount,
		},
		Currency:         order.Currency,
		CertificateError: order.CertificateError,
	}
	if order.CertificateTokenID == "" {
		if result.CertificateError == "" {
			result.CertificateError = "certificate issuance in progress"
		}
		return result, nil
	}

	rec, err := certRepo.FindByTokenID(ctx, order.CertificateTokenID)
	if errors.Is(err, apperr.NotFound) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	result.Status = SettlementCompleted
	result.Certificate = rec
	result.CertificateError = ""
	result.ExplorerURL = certificate.ExplorerURL(explorerBase, rec.TransactionHash)
	return result, nil
}
