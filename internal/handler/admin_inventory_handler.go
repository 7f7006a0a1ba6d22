package handler

import (
	"net/http"
	"strconv"

	"checkout-engine/internal/config"
	"checkout-engine/internal/middleware"
	"checkout-engine/internal/usecase"

	"github.com/labstack/echo/v4"
)

// InventoryUpdateRequest は在庫更新の入力です。
type InventoryUpdateRequest struct {
	Stock  int64  `json:"stock"`
	Reason string `json:"reason"`
}

// /admin/inventory
type AdminInventoryHandler struct {
	uc *usecase.InventoryUsecase
}

// DI
func NewAdminInventoryHandler(uc *usecase.InventoryUsecase) *AdminInventoryHandler {
	return &AdminInventoryHandler{uc: uc}
}

// adminを登録
func (h *AdminInventoryHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	admin := e.Group("/admin")

	admin.Use(middleware.AuthJWT(cfg))
	admin.Use(middleware.AdminRoleGuard())

	admin.PUT("/inventory/:product_id", h.updateInventory)
}

func (h *AdminInventoryHandler) updateInventory(c echo.Context) error {
	productID, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid product_id"})
	}

	var req InventoryUpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	adj, err := h.uc.SetStock(c.Request().Context(), adminID, productID, usecase.SetStockInput{
		Stock:  req.Stock,
		Reason: req.Reason,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, adj)
}
