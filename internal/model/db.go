package model

import "time"

type OrderStatus string

const (
	OrderStatusCreated            OrderStatus = "CREATED"
	OrderStatusPaidPending        OrderStatus = "PAID_PENDING"
	OrderStatusPaidVerified       OrderStatus = "PAID_VERIFIED"
	OrderStatusVerificationFailed OrderStatus = "VERIFICATION_FAILED"
)

// Terminal reports whether no further status transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusPaidVerified || s == OrderStatusVerificationFailed
}

type Product struct {
	ID             string    `gorm:"primaryKey;size:64;not null" bson:"_id" json:"id"`
	Name           string    `gorm:"size:255;not null" bson:"name" json:"name"`
	Description    string    `gorm:"type:text" bson:"description" json:"description"`
	Price          int64     `gorm:"not null" bson:"price" json:"price"` // minor units
	Currency       string    `gorm:"size:8;not null" bson:"currency" json:"currency"`
	Category       string    `gorm:"size:64;index" bson:"category" json:"category"`
	ImageURL       string    `gorm:"size:512" bson:"image_url" json:"imageUrl"`
	ArtisanName    string    `gorm:"size:128;not null" bson:"artisan_name" json:"artisanName"`
	ArtisanAddress string    `gorm:"size:64" bson:"artisan_address" json:"artisanAddress"`
	Location       string    `gorm:"size:128" bson:"location" json:"location"`
	InStock        bool      `gorm:"not null" bson:"in_stock" json:"inStock"`
	CreatedAt      time.Time `bson:"created_at" json:"createdAt"`
}

type Order struct {
	OrderID     string      `gorm:"primaryKey;size:64;not null" bson:"_id" json:"orderId"` // gateway order id
	ProductID   string      `gorm:"size:64;index;not null" bson:"product_id" json:"productId"`
	BuyerID     string      `gorm:"size:64;index;not null" bson:"buyer_id" json:"buyerId"`
	BuyerWallet string      `gorm:"size:64" bson:"buyer_wallet,omitempty" json:"buyerWallet,omitempty"`
	GrossAmount int64       `gorm:"not null" bson:"gross_amount" json:"grossAmount"` // minor units
	Currency    string      `gorm:"size:8;not null" bson:"currency" json:"currency"`
	Receipt     string      `gorm:"size:40" bson:"receipt" json:"receipt"`
	Status      OrderStatus `gorm:"size:32;index;not null" bson:"status" json:"status"`

	// set once the gateway calls back
	PaymentID string `gorm:"size:64;index" bson:"payment_id" json:"paymentId,omitempty"`

	PlatformFeeAmount int64      `bson:"platform_fee_amount" json:"platformFeeAmount"`
	ArtisanAmount     int64      `bson:"artisan_amount" json:"artisanAmount"`
	VerifiedAt        *time.Time `bson:"verified_at,omitempty" json:"verifiedAt,omitempty"`
	FailureReason     string     `gorm:"size:255" bson:"failure_reason,omitempty" json:"failureReason,omitempty"`

	CertificateTokenID string `gorm:"size:128" bson:"certificate_token_id" json:"certificateTokenId,omitempty"`
	CertificateError   string `gorm:"size:512" bson:"certificate_error,omitempty" json:"certificateError,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// CertificateRecord is written once per verified payment and never updated.
type CertificateRecord struct {
	PaymentID       string    `gorm:"primaryKey;size:64;not null" bson:"payment_id" json:"paymentId"`
	TokenID         string    `gorm:"size:128;uniqueIndex;not null" bson:"token_id" json:"tokenId"`
	OrderID         string    `gorm:"size:64;index;not null" bson:"order_id" json:"orderId"`
	ProductID       string    `gorm:"size:64;index" bson:"product_id" json:"productId"`
	BuyerID         string    `gorm:"size:64;index" bson:"buyer_id" json:"buyerId"`
	ContractAddress string    `gorm:"size:64;not null" bson:"contract_address" json:"contractAddress"`
	Network         string    `gorm:"size:64;not null" bson:"network" json:"network"`
	OwnerAddress    string    `gorm:"size:64;not null" bson:"owner_address" json:"ownerAddress"`
	TransactionHash string    `gorm:"size:128;not null" bson:"transaction_hash" json:"transactionHash"`
	BlockNumber     uint64    `bson:"block_number" json:"blockNumber"`
	MetadataURI     string    `gorm:"type:text;not null" bson:"metadata_uri" json:"metadataUri"`
	IssuedAt        time.Time `gorm:"not null" bson:"issued_at" json:"issuedAt"`
	CreatedAt       time.Time `bson:"created_at" json:"createdAt"`
}

type UserType string

const (
	UserTypeBuyer   UserType = "buyer"
	UserTypeArtisan UserType = "artisan"
)

// User carries at least one of Email, Phone or WalletAddress. Absent
// identifiers stay NULL (gorm) or missing (mongo) so the unique indexes skip them.
type User struct {
	ID            string     `gorm:"primaryKey;size:36;not null" bson:"_id" json:"id"`
	Name          string     `gorm:"size:128;not null" bson:"name" json:"name"`
	Email         *string    `gorm:"size:255;uniqueIndex" bson:"email,omitempty" json:"email,omitempty"`
	Phone         *string    `gorm:"size:32;uniqueIndex" bson:"phone,omitempty" json:"phone,omitempty"`
	WalletAddress *string    `gorm:"size:64;uniqueIndex" bson:"wallet_address,omitempty" json:"walletAddress,omitempty"`
	PasswordHash  string     `gorm:"size:72" bson:"password_hash,omitempty" json:"-"`
	UserType      UserType   `gorm:"size:16;not null" bson:"user_type" json:"userType"`
	Bio           string     `gorm:"type:text" bson:"bio,omitempty" json:"bio,omitempty"`
	EmailVerified bool       `bson:"email_verified" json:"emailVerified"`
	PhoneVerified bool       `bson:"phone_verified" json:"phoneVerified"`
	LastLoginAt   *time.Time `bson:"last_login_at,omitempty" json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `bson:"created_at" json:"createdAt"`
}

// Wallet returns the wallet address or "".
func (u *User) Wallet() string {
	if u.WalletAddress == nil {
		return ""
	}
	return *u.WalletAddress
}

type WebhookEvent struct {
	EventID     string    `gorm:"primaryKey;size:128;not null" bson:"_id"`
	EventType   string    `gorm:"size:64;index" bson:"event_type"`
	ProcessedAt time.Time `bson:"processed_at"`
	CreatedAt   time.Time `bson:"created_at"`
}
