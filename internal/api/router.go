package api

import (
	"crypto/subtle"
	"mime"
	"net/http"

	apperrors "orctorrent/internal/errors"
	"orctorrent/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type RouterOptions struct {
	AdminToken string
	// RateLimit is requests per second per client address; 0 disables it.
	RateLimit int
	RateBurst int
	Logger    *zap.Logger
}

type Router struct {
	chi        *chi.Mux
	adminToken string
	limiter    *clientLimiter
	logger     *zap.Logger
}

func NewRouter(opts RouterOptions) *Router {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	r := chi.NewRouter()

	rt := &Router{
		chi:        r,
		adminToken: opts.AdminToken,
		logger:     opts.Logger.With(zap.String("component", "api")),
	}
	if opts.RateLimit > 0 {
		rt.limiter = newClientLimiter(opts.RateLimit, opts.RateBurst)
	}

	r.Use(middleware.RequestID)
	r.Use(logger.Middleware(rt.logger))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", HeaderAdminToken},
		MaxAge:         3600,
	}))
	if rt.limiter != nil {
		r.Use(rt.limiter.Middleware)
	}
	r.Use(requireJSON)

	return rt
}

// Auth requires the admin token when one is configured. Browsers cannot
// set headers on websocket or event-stream requests, so the token is also
// accepted as a query parameter.
func (rt *Router) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rt.adminToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(HeaderAdminToken)
		if key == "" {
			key = r.URL.Query().Get(ParamToken)
		}

		if !tokenMatches(key, rt.adminToken) {
			rt.logger.Warn("rejected request with invalid admin token",
				zap.String("path", r.URL.Path),
				zap.String("ip", r.RemoteAddr),
			)
			sendError(w, "unauthorized", apperrors.CodePolicyRejected, http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func tokenMatches(provided, expected string) bool {
	return len(provided) == len(expected) &&
		subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

func (rt *Router) Handler() http.Handler {
	return rt.chi
}

func (rt *Router) MountV1(handler http.Handler) {
	rt.chi.Mount("/api/v1", handler)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// requireJSON rejects request bodies that are not declared as JSON.
func requireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPatch, http.MethodPut:
		default:
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength == 0 && r.Header.Get(HeaderContentType) == "" {
			next.ServeHTTP(w, r)
			return
		}
		mt, _, err := mime.ParseMediaType(r.Header.Get(HeaderContentType))
		if err != nil || mt != MimeJSON {
			sendError(w, "Content-Type must be application/json", apperrors.CodeInvalidInput, http.StatusUnsupportedMediaType)
			return
		}
		next.ServeHTTP(w, r)
	})
}
