package handler

import (
	"io"
	"net/http"
	"strings"

	"craftchain/internal/certificate"
	"craftchain/internal/dto"
	"craftchain/internal/middleware"
	"craftchain/internal/service"

	"github.com/labstack/echo/v4"
)

const (
	msgSettlementCompleted = "Payment successful! Your authenticity certificate has been minted on the blockchain."
	msgSettlementPending   = "Payment successful! Certificate creation is in progress and will be delivered shortly."

	maxWebhookBody = 1 << 20
)

type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

func (h *PaymentHandler) CreateOrder(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if req.ProductID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Product ID is required")
	}

	buyerID, wallet := buyerFromRequest(c, req.BuyerID, req.BuyerWallet)
	result, err := h.paymentService.CreateOrder(ctx, service.CreateOrderRequest{
		ProductID:   req.ProductID,
		BuyerID:     buyerID,
		BuyerWallet: wallet,
		GrossAmount: req.Amount,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &dto.CreateOrderResponse{
		Success: true,
		Order: dto.Order{
			ID:       result.Order.OrderID,
			Amount:   result.Order.GrossAmount,
			Currency: result.Order.Currency,
			Receipt:  result.Order.Receipt,
			Status:   strings.ToLower(string(result.Order.Status)),
		},
		Product: dto.ProductSummary{
			ID:    result.Product.ID,
			Name:  result.Product.Name,
			Price: result.Product.Price,
		},
		KeyID: result.KeyID,
	})
}

func (h *PaymentHandler) Verify(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.VerifyPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if req.RazorpayOrderID == "" || req.RazorpayPaymentID == "" || req.RazorpaySignature == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing payment verification fields")
	}

	buyerID, wallet := buyerFromRequest(c, req.BuyerID, req.BuyerWallet)
	result, err := h.paymentService.VerifyAndSettle(ctx, service.SettleRequest{
		OrderID:   req.RazorpayOrderID,
		PaymentID: req.RazorpayPaymentID,
		Signature: req.RazorpaySignature,
		Buyer:     certificate.Buyer{ID: buyerID, WalletAddress: wallet},
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, settlementResponse(result))
}

func (h *PaymentHandler) Webhook(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	if err := h.paymentService.HandleWebhook(ctx, c.Request().Header, body); err != nil {
		return err
	}

	return c.NoContent(http.StatusOK)
}

// buyerFromRequest prefers the authenticated identity over body fields. An
// empty id is left for the service to resolve.
func buyerFromRequest(c echo.Context, bodyBuyerID, bodyWallet string) (string, string) {
	buyerID := middleware.UserID(c)
	if buyerID == "" {
		buyerID = bodyBuyerID
	}
	wallet := middleware.Wallet(c)
	if wallet == "" {
		wallet = bodyWallet
	}
	return buyerID, wallet
}

func settlementResponse(res *service.SettlementResult) *dto.VerifyPaymentResponse {
	resp := &dto.VerifyPaymentResponse{
		Success: true,
		Message: msgSettlementPending,
		Transaction: dto.Transaction{
			OrderID:       res.OrderID,
			PaymentID:     res.PaymentID,
			Amount:        res.Fees.GrossAmount,
			Currency:      res.Currency,
			PlatformFee:   res.Fees.PlatformFeeAmount,
			ArtisanAmount: res.Fees.ArtisanAmount,
			Status:        "completed",
			Certificate: dto.Certificate{
				Status: "pending",
				Error:  res.CertificateError,
			},
		},
	}

	if res.Status == service.SettlementCompleted && res.Certificate != nil {
		rec := res.Certificate
		resp.Message = msgSettlementCompleted
		resp.Transaction.Certificate = dto.Certificate{
			NFTTokenID:         rec.TokenID,
			ContractAddress:    rec.ContractAddress,
			BlockchainNetwork:  rec.Network,
			TransactionHash:    rec.TransactionHash,
			ExplorerURL:        res.ExplorerURL,
			OwnerAddress:       rec.OwnerAddress,
			MetadataURI:        rec.MetadataURI,
			CertificateCreated: true,
		}
	}
	return resp
}
