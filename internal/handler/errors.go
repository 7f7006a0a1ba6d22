package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"checkout-engine/internal/domain/model"
	"checkout-engine/internal/middleware"
	repo "checkout-engine/internal/repository"
	"checkout-engine/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// 409の本文。availableは0でも返す
type InsufficientStockResponse struct {
	Error     string `json:"error"`
	ProductID int64  `json:"product_id"`
	Requested int64  `json:"requested"`
	Available int64  `json:"available"`
}

// usecaseのエラーをHTTPに変換
func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: ve.Reason, Field: ve.Field})
	}

	var ie *model.InsufficientStockError
	if errors.As(err, &ie) {
		return c.JSON(http.StatusConflict, InsufficientStockResponse{
			Error:     "insufficient stock",
			ProductID: ie.ProductID,
			Requested: ie.Requested,
			Available: ie.Available,
		})
	}

	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, ErrorResponse{Error: he.Message})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	}

	logger := middleware.LoggerFrom(c)
	var se *model.StorageError
	if errors.As(err, &se) && se.Transient {
		//再試行で通る可能性がある
		logger.Warn("transient storage error", slog.String("error", err.Error()))
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "temporarily unavailable"})
	}

	//500
	logger.Error("internal error", slog.String("error", err.Error()))
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

//middleware.AuthJWT が c.Set("user_id", int64) した値を取り出す
func getUserIDFromContext(c echo.Context) (int64, bool) {
	v := c.Get(middleware.CtxUserIDKey)
	if v == nil {
		return 0, false
	}

	id, ok := v.(int64)
	if !ok {
		return 0, false
	}

	return id, true
}
