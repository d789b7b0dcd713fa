package handler

import (
	"fmt"
	"net/http"

	"craftchain/internal/certificate"
	"craftchain/internal/dto"
	"craftchain/internal/model"
	"craftchain/internal/service"

	"github.com/labstack/echo/v4"
)

type CertificateHandler struct {
	certificateService service.CertificateService
	explorerURL        string
}

func NewCertificateHandler(certificateService service.CertificateService, explorerURL string) *CertificateHandler {
	return &CertificateHandler{
		certificateService: certificateService,
		explorerURL:        explorerURL,
	}
}

func (h *CertificateHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	tokenID := c.QueryParam("tokenId")
	paymentID := c.QueryParam("paymentId")

	if tokenID == "" && paymentID == "" {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Token ID or Payment ID required"})
	}

	var (
		rec *model.CertificateRecord
		err error
	)
	if tokenID != "" {
		rec, err = h.certificateService.GetByTokenID(ctx, tokenID)
	} else {
		rec, err = h.certificateService.GetByPaymentID(ctx, paymentID)
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &dto.CertificateResponse{
		Success:     true,
		Certificate: rec,
		ExplorerURL: certificate.ExplorerURL(h.explorerURL, rec.TransactionHash),
	})
}

func (h *CertificateHandler) PDF(c echo.Context) error {
	ctx := c.Request().Context()
	paymentID := c.Param("paymentId")

	pdf, err := h.certificateService.RenderPDF(ctx, paymentID)
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", "certificate-"+paymentID+".pdf"))
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}

func (h *CertificateHandler) Retry(c echo.Context) error {
	ctx := c.Request().Context()

	result, err := h.certificateService.RetryPending(ctx, c.Param("paymentId"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, settlementResponse(result))
}

func (h *CertificateHandler) Verify(c echo.Context) error {
	ctx := c.Request().Context()

	result, err := h.certificateService.Verify(ctx, c.Param("tokenId"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &dto.VerifyCertificateResponse{
		TokenID:     result.TokenID,
		Valid:       result.Valid,
		Certificate: result.Certificate,
	})
}
