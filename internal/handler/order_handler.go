package handler

import (
	"net/http"
	"strconv"

	"checkout-engine/internal/config"
	"checkout-engine/internal/domain/model"
	"checkout-engine/internal/middleware"
	"checkout-engine/internal/usecase"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	checkout *usecase.CheckoutCoordinator
	uc       *usecase.OrderUsecase
}

func NewOrderHandler(checkout *usecase.CheckoutCoordinator, uc *usecase.OrderUsecase) *OrderHandler {
	return &OrderHandler{checkout: checkout, uc: uc}
}

type OrderCreateRequest struct {
	City        string `json:"city"`
	Street      string `json:"street"`
	HouseNumber string `json:"house_number"`
}

type OrderCreateResponse struct {
	usecase.OrderOutput
	ClearedProductIDs []int64 `json:"cleared_product_ids"`
	Replayed          bool    `json:"replayed"`
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/orders")
	g.Use(middleware.AuthJWT(cfg))

	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.detail)
}

func (h *OrderHandler) create(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req OrderCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	//二重送信防止キーはヘッダーから受け取る（bodyには入れない）
	idemKey := c.Request().Header.Get("X-Idempotency-Key")

	r, err := h.checkout.PlaceOrder(c.Request().Context(), userID, model.ShippingAddress{
		City:        req.City,
		Street:      req.Street,
		HouseNumber: req.HouseNumber,
	}, usecase.PlaceOrderOptions{IdempotencyKey: idemKey})
	if err != nil {
		return writeError(c, err)
	}

	status := http.StatusCreated
	if r.Replayed {
		status = http.StatusOK
	}
	return c.JSON(status, OrderCreateResponse{
		OrderOutput:       usecase.ToOrderOutput(r.Order, r.Lines),
		ClearedProductIDs: r.ClearedProductIDs,
		Replayed:          r.Replayed,
	})
}

func (h *OrderHandler) list(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	page, err := intQuery(c, "page", 1)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid page"})
	}
	limit, err := intQuery(c, "limit", 50)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
	}

	out, err := h.uc.ListMyOrders(c.Request().Context(), userID, page, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) detail(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	out, err := h.uc.GetMyOrder(c.Request().Context(), userID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func intQuery(c echo.Context, name string, def int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
