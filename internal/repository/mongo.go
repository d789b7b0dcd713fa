package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"craftchain/internal/apperr"
	"craftchain/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ordersCollection        = "orders"
	certificatesCollection  = "certificates"
	productsCollection      = "products"
	webhookEventsCollection = "webhook_events"
	usersCollection         = "users"
)

// EnsureMongoIndexes creates the indexes the mongo repositories rely on for
// uniqueness. It is safe to call on every start.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(certificatesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "payment_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_payment_id"),
		},
		{
			Keys:    bson.D{{Key: "token_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_token_id"),
		},
	})
	if err != nil {
		return fmt.Errorf("create certificate indexes: %w", err)
	}

	_, err = db.Collection(ordersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "payment_id", Value: 1}}, Options: options.Index().SetName("payment_id")},
		{Keys: bson.D{{Key: "status", Value: 1}}, Options: options.Index().SetName("status")},
	})
	if err != nil {
		return fmt.Errorf("create order indexes: %w", err)
	}

	// sparse so accounts without an identifier do not collide on the missing field
	_, err = db.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("unique_email"),
		},
		{
			Keys:    bson.D{{Key: "phone", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("unique_phone"),
		},
		{
			Keys:    bson.D{{Key: "wallet_address", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("unique_wallet_address"),
		},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

func mongoNotFoundOr(err error, op string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.Wrap(apperr.NotFound, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ---- orders ----

type mongoOrderRepo struct {
	coll *mongo.Collection
}

func NewMongoOrderRepository(db *mongo.Database) OrderRepository {
	return &mongoOrderRepo{coll: db.Collection(ordersCollection)}
}

func (r *mongoOrderRepo) Create(ctx context.Context, order *model.Order) error {
	now := time.Now()
	order.CreatedAt, order.UpdatedAt = now, now
	if _, err := r.coll.InsertOne(ctx, order); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.Wrap(apperr.Conflict, "insert order "+order.OrderID, err)
		}
		return fmt.Errorf("insert order %s: %w", order.OrderID, err)
	}
	return nil
}

func (r *mongoOrderRepo) FindByOrderID(ctx context.Context, orderID string) (*model.Order, error) {
	var order model.Order
	if err := r.coll.FindOne(ctx, bson.M{"_id": orderID}).Decode(&order); err != nil {
		return nil, mongoNotFoundOr(err, "find order "+orderID)
	}
	return &order, nil
}

func (r *mongoOrderRepo) FindByPaymentID(ctx context.Context, paymentID string) (*model.Order, error) {
	var order model.Order
	opts := options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	if err := r.coll.FindOne(ctx, bson.M{"payment_id": paymentID}, opts).Decode(&order); err != nil {
		return nil, mongoNotFoundOr(err, "find order by payment "+paymentID)
	}
	return &order, nil
}

func (r *mongoOrderRepo) Transition(ctx context.Context, orderID string, t OrderTransition) (*model.Order, error) {
	filter := bson.M{
		"_id":    orderID,
		"status": bson.M{"$in": t.From},
	}
	set := bson.M{
		"status":     t.To,
		"updated_at": time.Now(),
	}

	if t.PaymentID != "" {
		filter["payment_id"] = bson.M{"$in": []string{"", t.PaymentID}}
		set["payment_id"] = t.PaymentID
	}
	if t.To == model.OrderStatusPaidVerified {
		set["platform_fee_amount"] = t.PlatformFeeAmount
		set["artisan_amount"] = t.ArtisanAmount
		if t.VerifiedAt != nil {
			set["verified_at"] = *t.VerifiedAt
		}
	}
	if t.FailureReason != "" {
		set["failure_reason"] = t.FailureReason
	}

	var order model.Order
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&order)
	if err == nil {
		return &order, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("transition order %s to %s: %w", orderID, t.To, err)
	}

	current, err := r.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return current, transitionConflict(current, t)
}

func (r *mongoOrderRepo) AttachCertificate(ctx context.Context, orderID, tokenID string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{
			"_id":                  orderID,
			"status":               model.OrderStatusPaidVerified,
			"certificate_token_id": bson.M{"$in": []string{"", tokenID}},
		},
		bson.M{"$set": bson.M{
			"certificate_token_id": tokenID,
			"certificate_error":    "",
			"updated_at":           time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("attach certificate to order %s: %w", orderID, err)
	}
	if res.MatchedCount == 0 {
		return apperr.New(apperr.Conflict, "attach certificate", "order %s is not awaiting a certificate", orderID)
	}
	return nil
}

func (r *mongoOrderRepo) SetCertificateError(ctx context.Context, orderID, message string) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{
			"_id":                  orderID,
			"status":               model.OrderStatusPaidVerified,
			"certificate_token_id": "",
		},
		bson.M{"$set": bson.M{
			"certificate_error": truncate(message, 512),
			"updated_at":        time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("record certificate error on order %s: %w", orderID, err)
	}
	return nil
}

// ---- certificates ----

type mongoCertificateRepo struct {
	coll *mongo.Collection
}

func NewMongoCertificateRepository(db *mongo.Database) CertificateRepository {
	return &mongoCertificateRepo{coll: db.Collection(certificatesCollection)}
}

func (r *mongoCertificateRepo) FindByPaymentID(ctx context.Context, paymentID string) (*model.CertificateRecord, error) {
	var rec model.CertificateRecord
	if err := r.coll.FindOne(ctx, bson.M{"payment_id": paymentID}).Decode(&rec); err != nil {
		return nil, mongoNotFoundOr(err, "find certificate by payment "+paymentID)
	}
	return &rec, nil
}

func (r *mongoCertificateRepo) FindByTokenID(ctx context.Context, tokenID string) (*model.CertificateRecord, error) {
	var rec model.CertificateRecord
	if err := r.coll.FindOne(ctx, bson.M{"token_id": tokenID}).Decode(&rec); err != nil {
		return nil, mongoNotFoundOr(err, "find certificate by token "+tokenID)
	}
	return &rec, nil
}

// CreateIfAbsent relies on the unique payment_id index: a duplicate key
// error means another writer got there first.
func (r *mongoCertificateRepo) CreateIfAbsent(ctx context.Context, rec *model.CertificateRecord) (*model.CertificateRecord, bool, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := r.coll.InsertOne(ctx, rec)
	if err == nil {
		return rec, true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, false, fmt.Errorf("insert certificate for payment %s: %w", rec.PaymentID, err)
	}

	// the duplicate may be on token_id rather than payment_id
	stored, err := r.FindByPaymentID(ctx, rec.PaymentID)
	if errors.Is(err, apperr.NotFound) {
		return nil, false, tokenCollision(rec)
	}
	if err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

func (r *mongoCertificateRepo) Count(ctx context.Context) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{})
}

// ---- products ----

type mongoProductRepo struct {
	coll *mongo.Collection
}

func NewMongoProductRepository(db *mongo.Database) ProductRepository {
	return &mongoProductRepo{coll: db.Collection(productsCollection)}
}

func (r *mongoProductRepo) Seed(ctx context.Context) error {
	now := time.Now()
	for _, p := range SeedProducts() {
		p.CreatedAt = now
		_, err := r.coll.UpdateOne(ctx,
			bson.M{"_id": p.ID},
			bson.M{"$setOnInsert": p},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("seed product %s: %w", p.ID, err)
		}
	}
	return nil
}

func (r *mongoProductRepo) FindByID(ctx context.Context, productID string) (*model.Product, error) {
	var product model.Product
	if err := r.coll.FindOne(ctx, bson.M{"_id": productID}).Decode(&product); err != nil {
		return nil, mongoNotFoundOr(err, "find product "+productID)
	}
	return &product, nil
}

func (r *mongoProductRepo) List(ctx context.Context) ([]*model.Product, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer cursor.Close(ctx)

	var products []*model.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return products, nil
}

func (r *mongoProductRepo) FindByIDs(ctx context.Context, productIDs []string) ([]*model.Product, error) {
	var products []*model.Product
	if len(productIDs) == 0 {
		return products, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": productIDs}}, opts)
	if err != nil {
		return nil, fmt.Errorf("find products by ids: %w", err)
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return products, nil
}

// ---- webhook events ----

type mongoWebhookEventRepo struct {
	coll *mongo.Collection
}

func NewMongoWebhookEventRepository(db *mongo.Database) WebhookEventRepository {
	return &mongoWebhookEventRepo{coll: db.Collection(webhookEventsCollection)}
}

func (r *mongoWebhookEventRepo) Exists(ctx context.Context, eventID string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": eventID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("lookup webhook event %s: %w", eventID, err)
	}
	return n > 0, nil
}

func (r *mongoWebhookEventRepo) MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	now := time.Now()
	_, err := r.coll.InsertOne(ctx, model.WebhookEvent{
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: now,
		CreatedAt:   now,
	})
	if err == nil {
		return true, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	return false, fmt.Errorf("mark webhook event %s: %w", eventID, err)
}

// ---- users ----

type mongoUserRepo struct {
	coll *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) UserRepository {
	return &mongoUserRepo{coll: db.Collection(usersCollection)}
}

func (r *mongoUserRepo) Create(ctx context.Context, user *model.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	if _, err := r.coll.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.New(apperr.Conflict, "insert user "+user.ID, "account already registered")
		}
		return fmt.Errorf("insert user %s: %w", user.ID, err)
	}
	return nil
}

func (r *mongoUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, "_id", id)
}

func (r *mongoUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, "email", email)
}

func (r *mongoUserRepo) FindByPhone(ctx context.Context, phone string) (*model.User, error) {
	return r.findOne(ctx, "phone", phone)
}

func (r *mongoUserRepo) FindByWallet(ctx context.Context, address string) (*model.User, error) {
	return r.findOne(ctx, "wallet_address", address)
}

func (r *mongoUserRepo) findOne(ctx context.Context, field, value string) (*model.User, error) {
	var user model.User
	if err := r.coll.FindOne(ctx, bson.M{field: value}).Decode(&user); err != nil {
		return nil, mongoNotFoundOr(err, "find user by "+field)
	}
	return &user, nil
}

func (r *mongoUserRepo) RecordLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{"last_login_at": at}})
	if err != nil {
		return fmt.Errorf("record login for user %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return apperr.New(apperr.NotFound, "record login", "user %s not found", id)
	}
	return nil
}
