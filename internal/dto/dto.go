package dto

import (
	"time"

	"craftchain/internal/model"
)

type CreateOrderRequest struct {
	ProductID   string `json:"productId"`
	BuyerID     string `json:"buyerId"`
	BuyerWallet string `json:"buyerWallet"`
	// Amount in minor units; optional, must match the catalog price when set.
	Amount int64 `json:"amount"`
}

type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type ProductSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type CreateOrderResponse struct {
	Success bool           `json:"success"`
	Order   Order          `json:"order"`
	Product ProductSummary `json:"product"`
	KeyID   string         `json:"keyId,omitempty"`
}

type VerifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
	BuyerID           string `json:"buyerId"`
	BuyerWallet       string `json:"buyerWallet"`
}

// Certificate is either an issued certificate (CertificateCreated) or a
// pending one carrying Status and Error.
type Certificate struct {
	NFTTokenID         string `json:"nftTokenId,omitempty"`
	ContractAddress    string `json:"contractAddress,omitempty"`
	BlockchainNetwork  string `json:"blockchainNetwork,omitempty"`
	TransactionHash    string `json:"transactionHash,omitempty"`
	ExplorerURL        string `json:"explorerUrl,omitempty"`
	OwnerAddress       string `json:"ownerAddress,omitempty"`
	MetadataURI        string `json:"metadataURI,omitempty"`
	CertificateCreated bool   `json:"certificateCreated"`
	Status             string `json:"status,omitempty"`
	Error              string `json:"error,omitempty"`
}

type Transaction struct {
	OrderID       string      `json:"orderId"`
	PaymentID     string      `json:"paymentId"`
	Amount        int64       `json:"amount"`
	Currency      string      `json:"currency"`
	PlatformFee   int64       `json:"platformFee"`
	ArtisanAmount int64       `json:"artisanAmount"`
	Status        string      `json:"status"`
	Certificate   Certificate `json:"certificate"`
}

type VerifyPaymentResponse struct {
	Success     bool        `json:"success"`
	Message     string      `json:"message"`
	Transaction Transaction `json:"transaction"`
}

type CertificateResponse struct {
	Success     bool                     `json:"success"`
	Certificate *model.CertificateRecord `json:"certificate"`
	ExplorerURL string                   `json:"explorerUrl,omitempty"`
}

type VerifyCertificateResponse struct {
	TokenID     string                   `json:"tokenId"`
	Valid       bool                     `json:"valid"`
	Certificate *model.CertificateRecord `json:"certificate,omitempty"`
}

type ProductsResponse struct {
	Success  bool             `json:"success"`
	Products []*model.Product `json:"products"`
}

type ProductResponse struct {
	Success bool           `json:"success"`
	Product *model.Product `json:"product"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// RegisterRequest picks a credential by Method ("email", "phone" or
// "wallet"). With no Method the first non-empty of phone and wallet is used.
type RegisterRequest struct {
	Method        string `json:"method"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	Phone         string `json:"phone"`
	WalletAddress string `json:"walletAddress"`
	UserType      string `json:"userType"`
	Bio           string `json:"bio"`
}

type LoginRequest struct {
	Method        string `json:"method"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	Phone         string `json:"phone"`
	WalletAddress string `json:"walletAddress"`
}

type AuthResponse struct {
	Success   bool        `json:"success"`
	User      *model.User `json:"user"`
	Token     string      `json:"token,omitempty"`
	ExpiresAt *time.Time  `json:"expiresAt,omitempty"`
}

type UserResponse struct {
	Success bool        `json:"success"`
	User    *model.User `json:"user"`
}
