package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"checkout-engine/internal/metrics"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	HeaderRequestID = "X-Request-ID"

	CtxRequestIDKey = "request_id" // string
	ctxLoggerKey    = "logger"     // *slog.Logger
)

// リクエストIDを振り、request_id付きのloggerをcontextに入れる。
// 終了時にアクセスログとHTTP指標を記録する
func RequestLogger(base *slog.Logger, m *metrics.ServerMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			//上流が付けたIDがあればそれを使う
			reqID := c.Request().Header.Get(HeaderRequestID)
			if reqID == "" || len(reqID) > 64 {
				reqID = uuid.NewString()
			}
			c.Set(CtxRequestIDKey, reqID)
			c.Response().Header().Set(HeaderRequestID, reqID)
			c.Set(ctxLoggerKey, base.With(slog.String("request_id", reqID)))

			err := next(c)
			if err != nil {
				//echoのエラーハンドラに書かせてからstatusを読む
				c.Error(err)
			}

			status := c.Response().Status
			elapsed := time.Since(start)
			route := c.Path()

			LoggerFrom(c).Info("request",
				slog.String("method", c.Request().Method),
				slog.String("route", route),
				slog.Int("status", status),
				slog.Int64("duration_ms", elapsed.Milliseconds()),
			)
			if m != nil {
				m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
				m.LatencyMS.WithLabelValues(route).Observe(float64(elapsed.Milliseconds()))
			}
			return nil
		}
	}
}

// contextのloggerを返す。無ければslog.Default()
func LoggerFrom(c echo.Context) *slog.Logger {
	if l, ok := c.Get(ctxLoggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}
