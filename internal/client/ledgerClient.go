package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"craftchain/internal/apperr"
	"craftchain/internal/config"
	"craftchain/internal/metrics"
)

// LedgerClient submits certificates to the ledger. Implementations must be
// idempotent on PaymentID.
type LedgerClient interface {
	SubmitCertificate(ctx context.Context, sub LedgerSubmission) (*LedgerReceipt, error)
	VerifyCertificate(ctx context.Context, tokenID string) (bool, error)
}

type LedgerSubmission struct {
	PaymentID       string          `json:"paymentId"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	MetadataURI     string          `json:"metadataUri"`
	OwnerAddress    string          `json:"ownerAddress"`
	ContractAddress string          `json:"contractAddress"`
	Network         string          `json:"network"`
}

type LedgerReceipt struct {
	TokenID         string `json:"tokenId"`
	TransactionHash string `json:"transactionHash"`
	OwnerAddress    string `json:"ownerAddress"`
	BlockNumber     uint64 `json:"blockNumber"`
}

const (
	ledgerTxPending   = "pending"
	ledgerTxConfirmed = "confirmed"
	ledgerTxFailed    = "failed"
	ledgerTxReverted  = "reverted"
)

type ledgerTxStatus struct {
	TransactionHash string `json:"transactionHash"`
	Status          string `json:"status"`
	TokenID         string `json:"tokenId"`
	OwnerAddress    string `json:"ownerAddress"`
	BlockNumber     uint64 `json:"blockNumber"`
	Error           string `json:"error"`
}

type ledgerClientImpl struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	metrics      *metrics.Metrics
}

// NewLedgerClient returns the HTTP ledger adapter: submit, then poll the
// transaction until it is confirmed or rejected. The caller's context bounds
// the whole exchange.
func NewLedgerClient(ledgerCfg *config.Ledger, m *metrics.Metrics) LedgerClient {
	poll := ledgerCfg.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &ledgerClientImpl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:      ledgerCfg.BaseURL,
		apiKey:       ledgerCfg.APIKey,
		pollInterval: poll,
		metrics:      m,
	}
}

func (c *ledgerClientImpl) SubmitCertificate(ctx context.Context, sub LedgerSubmission) (*LedgerReceipt, error) {
	const op = "ledger submit certificate"
	defer c.metrics.ObserveUpstream("ledger", "submit", time.Now())

	body, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("marshal submission: %w", err)
	}

	var status ledgerTxStatus
	err = c.do(ctx, http.MethodPost, "/v1/certificates", body, sub.PaymentID, &status)
	if err != nil {
		return nil, mintError(op, err)
	}
	if status.TransactionHash == "" {
		return nil, apperr.New(apperr.MintFailed, op, "ledger accepted submission without a transaction hash")
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		switch status.Status {
		case ledgerTxConfirmed:
			if status.TokenID == "" {
				return nil, apperr.New(apperr.MintFailed, op, "transaction %s confirmed without a token id", status.TransactionHash)
			}
			owner := status.OwnerAddress
			if owner == "" {
				owner = sub.OwnerAddress
			}
			return &LedgerReceipt{
				TokenID:         status.TokenID,
				TransactionHash: status.TransactionHash,
				OwnerAddress:    owner,
				BlockNumber:     status.BlockNumber,
			}, nil
		case ledgerTxFailed, ledgerTxReverted:
			return nil, apperr.New(apperr.MintFailed, op, "transaction %s %s: %s", status.TransactionHash, status.Status, status.Error)
		case ledgerTxPending, "":
		default:
			return nil, apperr.New(apperr.MintFailed, op, "unknown transaction status %q", status.Status)
		}

		select {
		case <-ctx.Done():
			return nil, mintError(op, fmt.Errorf("await transaction %s: %w", status.TransactionHash, ctx.Err()))
		case <-ticker.C:
		}

		hash := status.TransactionHash
		status = ledgerTxStatus{}
		if err := c.do(ctx, http.MethodGet, "/v1/transactions/"+url.PathEscape(hash), nil, "", &status); err != nil {
			return nil, mintError(op, err)
		}
		if status.TransactionHash == "" {
			status.TransactionHash = hash
		}
	}
}

func (c *ledgerClientImpl) VerifyCertificate(ctx context.Context, tokenID string) (bool, error) {
	var res struct {
		Valid bool `json:"valid"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/certificates/"+url.PathEscape(tokenID), nil, "", &res)
	var statusErr *ledgerStatusError
	if errors.As(err, &statusErr) && statusErr.code == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger verify certificate %s: %w", tokenID, err)
	}
	return res.Valid, nil
}

type ledgerStatusError struct {
	code int
	body string
}

func (e *ledgerStatusError) Error() string {
	return fmt.Sprintf("ledger error %d: %s", e.code, e.body)
}

func (c *ledgerClientImpl) do(ctx context.Context, method, path string, body []byte, idempotencyKey string, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &ledgerStatusError{code: resp.StatusCode, body: string(b)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode ledger response: %w", err)
	}
	return nil
}

func mintError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.MintTimeout, op, err)
	}
	return apperr.Wrap(apperr.MintFailed, op, err)
}
