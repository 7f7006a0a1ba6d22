package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"checkout-engine/internal/config"
	"checkout-engine/internal/handler"
	"checkout-engine/internal/metrics"
	"checkout-engine/internal/middleware"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// ルート登録に必要なもの一式
type Deps struct {
	Config   config.Config
	Logger   *slog.Logger
	Gatherer prometheus.Gatherer
	Metrics  *metrics.ServerMetrics

	Health    *handler.HealthHandler
	Orders    *handler.OrderHandler
	Carts     *handler.CartHandler
	Inventory *handler.AdminInventoryHandler
}

func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	//panicもアクセスログに残すためRecoverは内側
	e.Use(middleware.RequestLogger(d.Logger, d.Metrics))
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit("1M"))

	RegisterRoutes(e, d)
	return e
}

func RegisterRoutes(e *echo.Echo, d Deps) {
	d.Health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler(d.Gatherer)))

	d.Orders.RegisterRoutes(e, d.Config)
	d.Carts.RegisterRoutes(e, d.Config)
	d.Inventory.RegisterRoutes(e, d.Config)
}

// ctxが終わったらgracefulに止める
func Start(ctx context.Context, e *echo.Echo, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
