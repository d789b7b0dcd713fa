// Package certificate builds the authenticity certificate payload that is
// submitted to the ledger, and renders issued certificates for download.
package certificate

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"craftchain/internal/apperr"
	"craftchain/internal/payment"
)

const (
	metadataURIPrefix  = "data:application/json;base64,"
	certificateVersion = "1.0"
	defaultCategory    = "Handcraft"
)

// Product is the snapshot of the purchased item that goes on the certificate.
type Product struct {
	ID             string
	Name           string
	Description    string
	ArtisanName    string
	ArtisanAddress string
	Location       string
	Category       string
	ImageURL       string
	Price          int64 // minor units
	Currency       string
}

type Buyer struct {
	ID            string
	WalletAddress string
}

// Payment identifies the verified payment. IssuedAt is the verification time
// of the order, not the time of the mint call, so retries reproduce the same
// metadata.
type Payment struct {
	PaymentID string
	OrderID   string
	IssuedAt  time.Time
}

// Issuer is the fixed, configuration-derived part of every certificate.
type Issuer struct {
	Identity string
	Platform string
	Network  string
	BaseURL  string
}

type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

type Details struct {
	ProductID            string `json:"product_id"`
	ArtisanName          string `json:"artisan_name"`
	ArtisanLocation      string `json:"artisan_location"`
	PurchaseDate         string `json:"purchase_date"`
	PaymentID            string `json:"payment_id"`
	BuyerID              string `json:"buyer_id"`
	AuthenticityVerified bool   `json:"authenticity_verified"`
	BlockchainNetwork    string `json:"blockchain_network"`
	Platform             string `json:"platform"`
	CertificateVersion   string `json:"certificate_version"`
}

type Metadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	ExternalURL string      `json:"external_url"`
	Attributes  []Attribute `json:"attributes"`
	Certificate Details     `json:"certificate"`
}

func BuildMetadata(p Product, b Buyer, pay Payment, iss Issuer) (Metadata, error) {
	switch {
	case p.ID == "" || p.Name == "":
		return Metadata{}, apperr.New(apperr.InvalidArgument, "build metadata", "product id and name are required")
	case pay.PaymentID == "":
		return Metadata{}, apperr.New(apperr.InvalidArgument, "build metadata", "payment id is required")
	case pay.IssuedAt.IsZero():
		return Metadata{}, apperr.New(apperr.InvalidArgument, "build metadata", "issue time is required")
	}

	category := p.Category
	if category == "" {
		category = defaultCategory
	}
	currency := p.Currency
	if currency == "" {
		currency = "INR"
	}
	issued := pay.IssuedAt.UTC()

	return Metadata{
		Name: "Authenticity Certificate - " + p.Name,
		Description: fmt.Sprintf(
			"Official authenticity certificate for %s by %s. This certificate serves as proof of authenticity and ownership for this handcrafted item.",
			p.Name, p.ArtisanName),
		Image:       p.ImageURL,
		ExternalURL: CertificateURL(iss.BaseURL, pay.PaymentID),
		Attributes: []Attribute{
			{TraitType: "Product Name", Value: p.Name},
			{TraitType: "Artisan", Value: p.ArtisanName},
			{TraitType: "Location", Value: p.Location},
			{TraitType: "Category", Value: category},
			{TraitType: fmt.Sprintf("Purchase Price (%s)", currency), Value: payment.MajorUnits(p.Price)},
			{TraitType: "Payment ID", Value: pay.PaymentID},
			{TraitType: "Certificate Date", Value: issued.Format("2006-01-02")},
			{TraitType: "Verified By", Value: iss.Identity},
		},
		Certificate: Details{
			ProductID:            p.ID,
			ArtisanName:          p.ArtisanName,
			ArtisanLocation:      p.Location,
			PurchaseDate:         issued.Format(time.RFC3339),
			PaymentID:            pay.PaymentID,
			BuyerID:              b.ID,
			AuthenticityVerified: true,
			BlockchainNetwork:    iss.Network,
			Platform:             iss.Platform,
			CertificateVersion:   certificateVersion,
		},
	}, nil
}

func EncodeMetadataURI(meta Metadata) (string, error) {
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return metadataURIPrefix + base64.StdEncoding.EncodeToString(raw), nil
}

func DecodeMetadataURI(uri string) (Metadata, error) {
	encoded, ok := strings.CutPrefix(uri, metadataURIPrefix)
	if !ok {
		return Metadata{}, apperr.New(apperr.InvalidArgument, "decode metadata", "unsupported metadata uri")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Metadata{}, apperr.Wrap(apperr.InvalidArgument, "decode metadata", err)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, apperr.Wrap(apperr.InvalidArgument, "decode metadata", err)
	}
	return meta, nil
}

// Attribute returns the value of the named trait, or "".
func (m Metadata) Attribute(traitType string) string {
	for _, a := range m.Attributes {
		if a.TraitType == traitType {
			return a.Value
		}
	}
	return ""
}

func CertificateURL(baseURL, paymentID string) string {
	return strings.TrimRight(baseURL, "/") + "/certificate/" + paymentID
}

func ExplorerURL(explorerBase, txHash string) string {
	if explorerBase == "" || txHash == "" {
		return ""
	}
	return strings.TrimRight(explorerBase, "/") + "/tx/" + txHash
}
