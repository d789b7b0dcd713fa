package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"craftchain/internal/apperr"
	"craftchain/internal/model"

	"gorm.io/gorm"
)

// OrderTransition moves an order to To, but only while its current status is
// one of From. When PaymentID is set the order must not already be bound to
// a different payment.
type OrderTransition struct {
	From      []model.OrderStatus
	To        model.OrderStatus
	PaymentID string

	// written on PAID_VERIFIED
	PlatformFeeAmount int64
	ArtisanAmount     int64
	VerifiedAt        *time.Time

	FailureReason string
}

type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	FindByOrderID(ctx context.Context, orderID string) (*model.Order, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*model.Order, error)
	Transition(ctx context.Context, orderID string, t OrderTransition) (*model.Order, error)
	AttachCertificate(ctx context.Context, orderID, tokenID string) error
	SetCertificateError(ctx context.Context, orderID, message string) error
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{
		db: db,
	}
}

func (r *orderRepoImpl) Create(ctx context.Context, order *model.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("insert order %s: %w", order.OrderID, err)
	}
	return nil
}

func (r *orderRepoImpl) FindByOrderID(ctx context.Context, orderID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&order).Error

	if err != nil {
		return nil, notFoundOr(err, "find order "+orderID)
	}

	return &order, nil
}

func (r *orderRepoImpl) FindByPaymentID(ctx context.Context, paymentID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("updated_at DESC").
		First(&order).Error

	if err != nil {
		return nil, notFoundOr(err, "find order by payment "+paymentID)
	}

	return &order, nil
}

func (r *orderRepoImpl) Transition(ctx context.Context, orderID string, t OrderTransition) (*model.Order, error) {
	updates := map[string]interface{}{
		"status":     t.To,
		"updated_at": time.Now(),
	}

	q := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_id = ? AND status IN ?", orderID, t.From)

	if t.PaymentID != "" {
		updates["payment_id"] = t.PaymentID
		q = q.Where("payment_id IN ?", []string{"", t.PaymentID})
	}
	if t.To == model.OrderStatusPaidVerified {
		updates["platform_fee_amount"] = t.PlatformFeeAmount
		updates["artisan_amount"] = t.ArtisanAmount
		if t.VerifiedAt != nil {
			updates["verified_at"] = *t.VerifiedAt
		}
	}
	if t.FailureReason != "" {
		updates["failure_reason"] = t.FailureReason
	}

	result := q.Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("transition order %s to %s: %w", orderID, t.To, result.Error)
	}

	current, err := r.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return current, transitionConflict(current, t)
	}

	return current, nil
}

func (r *orderRepoImpl) AttachCertificate(ctx context.Context, orderID, tokenID string) error {
	result := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_id = ? AND status = ?", orderID, model.OrderStatusPaidVerified).
		Where("(certificate_token_id = '' OR certificate_token_id = ?)", tokenID).
		Updates(map[string]interface{}{
			"certificate_token_id": tokenID,
			"certificate_error":    "",
			"updated_at":           time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("attach certificate to order %s: %w", orderID, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.New(apperr.Conflict, "attach certificate", "order %s is not awaiting a certificate", orderID)
	}
	return nil
}

func (r *orderRepoImpl) SetCertificateError(ctx context.Context, orderID, message string) error {
	err := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_id = ? AND status = ? AND certificate_token_id = ''", orderID, model.OrderStatusPaidVerified).
		Updates(map[string]interface{}{
			"certificate_error": truncate(message, 512),
			"updated_at":        time.Now(),
		}).Error

	if err != nil {
		return fmt.Errorf("record certificate error on order %s: %w", orderID, err)
	}
	return nil
}

func transitionConflict(current *model.Order, t OrderTransition) error {
	if t.PaymentID != "" && current.PaymentID != "" && current.PaymentID != t.PaymentID {
		return apperr.New(apperr.Conflict, "transition order",
			"order %s is bound to payment %s", current.OrderID, current.PaymentID)
	}
	return apperr.New(apperr.Conflict, "transition order",
		"order %s cannot move from %s to %s", current.OrderID, current.Status, t.To)
}

func notFoundOr(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Wrap(apperr.NotFound, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
