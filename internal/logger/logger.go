package logger

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var L *zap.Logger
var S *zap.SugaredLogger

func init() {
	// Initialize a default logger so we never have nil L
	L = zap.NewNop()
	S = L.Sugar()
}

func New(level string, isDev bool) *zap.Logger {
	var config zap.Config

	if isDev {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.DisableStacktrace = true

	logger, err := config.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	L = logger
	S = L.Sugar()
	return L
}

// Middleware returns a chi-compatible middleware for request logging.
// Server errors are logged at warn level.
func Middleware(l *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			t1 := time.Now()

			defer func() {
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("size", ww.BytesWritten()),
					zap.Duration("duration", time.Since(t1)),
					zap.String("ip", r.RemoteAddr),
				}
				if id := middleware.GetReqID(r.Context()); id != "" {
					fields = append(fields, zap.String("request_id", id))
				}
				if ww.Status() >= http.StatusInternalServerError {
					l.Warn("request failed", fields...)
					return
				}
				l.Info("request completed", fields...)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// WithContext returns L scoped to the request id carried by ctx, if any.
func WithContext(ctx context.Context) *zap.Logger {
	if id := middleware.GetReqID(ctx); id != "" {
		return L.With(zap.String("request_id", id))
	}
	return L
}
