package repository

import (
	"context"
	"errors"
	"fmt"

	"craftchain/internal/apperr"
	"craftchain/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CertificateRepository interface {
	FindByPaymentID(ctx context.Context, paymentID string) (*model.CertificateRecord, error)
	FindByTokenID(ctx context.Context, tokenID string) (*model.CertificateRecord, error)
	// CreateIfAbsent stores rec unless a certificate for rec.PaymentID exists,
	// and returns whichever record is stored. created is false on the latter.
	CreateIfAbsent(ctx context.Context, rec *model.CertificateRecord) (stored *model.CertificateRecord, created bool, err error)
	Count(ctx context.Context) (int64, error)
}

type certificateRepoImpl struct {
	db *gorm.DB
}

func NewCertificateRepository(db *gorm.DB) CertificateRepository {
	return &certificateRepoImpl{db: db}
}

func (r *certificateRepoImpl) FindByPaymentID(ctx context.Context, paymentID string) (*model.CertificateRecord, error) {
	var rec model.CertificateRecord
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		First(&rec).Error

	if err != nil {
		return nil, notFoundOr(err, "find certificate by payment "+paymentID)
	}
	return &rec, nil
}

func (r *certificateRepoImpl) FindByTokenID(ctx context.Context, tokenID string) (*model.CertificateRecord, error) {
	var rec model.CertificateRecord
	err := r.db.WithContext(ctx).
		Where("token_id = ?", tokenID).
		First(&rec).Error

	if err != nil {
		return nil, notFoundOr(err, "find certificate by token "+tokenID)
	}
	return &rec, nil
}

// CreateIfAbsent skips the insert on a payment_id conflict. MySQL renders
// DO NOTHING as ON DUPLICATE KEY UPDATE, which hides any unique violation, so
// a skipped insert with no row for the payment is a token id collision.
func (r *certificateRepoImpl) CreateIfAbsent(ctx context.Context, rec *model.CertificateRecord) (*model.CertificateRecord, bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payment_id"}},
			DoNothing: true,
		}).
		Create(rec)

	if result.Error != nil {
		if r.tokenTaken(ctx, rec) {
			return nil, false, tokenCollision(rec)
		}
		return nil, false, fmt.Errorf("insert certificate for payment %s: %w", rec.PaymentID, result.Error)
	}
	if result.RowsAffected == 1 {
		return rec, true, nil
	}

	stored, err := r.FindByPaymentID(ctx, rec.PaymentID)
	if errors.Is(err, apperr.NotFound) {
		return nil, false, tokenCollision(rec)
	}
	if err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

func (r *certificateRepoImpl) tokenTaken(ctx context.Context, rec *model.CertificateRecord) bool {
	other, err := r.FindByTokenID(ctx, rec.TokenID)
	return err == nil && other.PaymentID != rec.PaymentID
}

func tokenCollision(rec *model.CertificateRecord) error {
	return apperr.New(apperr.Conflict, "insert certificate for payment "+rec.PaymentID,
		"token id %s is already issued to another payment", rec.TokenID)
}

func (r *certificateRepoImpl) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.CertificateRecord{}).Count(&count).Error
	return count, err
}
