package handler

import (
	"net/http"
	"strings"

	"craftchain/internal/dto"
	"craftchain/internal/model"
	"craftchain/internal/service"

	"github.com/labstack/echo/v4"
)

type ProductHandler struct {
	productService service.ProductService
}

func NewProductHandler(productService service.ProductService) *ProductHandler {
	return &ProductHandler{
		productService: productService,
	}
}

func (h *ProductHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	var (
		products []*model.Product
		err      error
	)
	if ids := splitIDs(c.QueryParam("ids")); len(ids) > 0 {
		products, err = h.productService.ListByIDs(ctx, ids)
	} else {
		products, err = h.productService.List(ctx)
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &dto.ProductsResponse{Success: true, Products: products})
}

func (h *ProductHandler) Get(c echo.Context) error {
	product, err := h.productService.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &dto.ProductResponse{Success: true, Product: product})
}

func (h *ProductHandler) Seed(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.productService.Seed(ctx); err != nil {
		return err
	}
	products, err := h.productService.List(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &dto.ProductsResponse{Success: true, Products: products})
}

// splitIDs parses a comma separated id list, dropping blanks.
func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
