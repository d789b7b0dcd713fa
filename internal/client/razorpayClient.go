package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"craftchain/internal/apperr"
	"craftchain/internal/config"
	"craftchain/internal/metrics"
)

type RazorpayClient interface {
	CreateOrder(ctx context.Context, params CreateOrderParams) (*GatewayOrder, error)
}

type CreateOrderParams struct {
	Amount   int64             `json:"amount"` // minor units
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type razorpayClientImpl struct {
	httpClient *http.Client
	baseApiURL string
	keyID      string
	keySecret  string
	metrics    *metrics.Metrics
}

func NewRazorpayClient(razorpayCfg *config.Razorpay, m *metrics.Metrics) RazorpayClient {
	timeout := razorpayCfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &razorpayClientImpl{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseApiURL: razorpayCfg.BaseApiURL,
		keyID:      razorpayCfg.KeyID,
		keySecret:  razorpayCfg.KeySecret,
		metrics:    m,
	}
}

func (c *razorpayClientImpl) CreateOrder(ctx context.Context, params CreateOrderParams) (*GatewayOrder, error) {
	const op = "razorpay create order"
	defer c.metrics.ObserveUpstream("razorpay", "create_order", time.Now())

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal req payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseApiURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperr.New(apperr.GatewayError, op, "razorpay error %d: %s", resp.StatusCode, string(b))
	}

	var order GatewayOrder
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, apperr.Wrap(apperr.GatewayError, op, fmt.Errorf("decode razorpay response: %w", err))
	}
	if order.ID == "" {
		return nil, apperr.New(apperr.GatewayError, op, "razorpay response has no order id")
	}

	return &order, nil
}

// transportError classifies a failed round trip: deadlines become
// GatewayTimeout, everything else GatewayError.
func transportError(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperr.Wrap(apperr.GatewayTimeout, op, err)
	}
	return apperr.Wrap(apperr.GatewayError, op, err)
}
