package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/signalsfoundry/item-routing-simulator/internal/logging"
	"github.com/signalsfoundry/item-routing-simulator/internal/observability"
	"github.com/signalsfoundry/item-routing-simulator/internal/service"
)

const requestIDHeader = "X-Request-Id"

// Option customises the router.
type Option func(*routerConfig)

type routerConfig struct {
	log            logging.Logger
	metrics        *observability.APICollector
	metricsHandler http.Handler
	limiter        *rate.Limiter
	timeout        time.Duration
}

// WithLogger sets the base request logger.
func WithLogger(l logging.Logger) Option {
	return func(c *routerConfig) { c.log = l }
}

// WithMetrics records per-route request metrics and serves /metrics.
func WithMetrics(m *observability.APICollector) Option {
	return func(c *routerConfig) { c.metrics = m }
}

// WithMetricsHandler overrides the /metrics handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(c *routerConfig) { c.metricsHandler = h }
}

// WithRateLimit throttles the run endpoints to rps requests per second.
// rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *routerConfig) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTimeout bounds each request; zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *routerConfig) { c.timeout = d }
}

// NewRouter mounts every HTTP route.
func NewRouter(svc *service.Service, opts ...Option) *chi.Mux {
	cfg := routerConfig{log: logging.Noop(), timeout: 60 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	h := NewHandler(svc, cfg.log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.log))
	r.Use(middleware.Recoverer)
	if cfg.metrics != nil {
		r.Use(cfg.metrics.HTTPMiddleware)
	}
	if cfg.timeout > 0 {
		r.Use(middleware.Timeout(cfg.timeout))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	switch {
	case cfg.metricsHandler != nil:
		r.Method(http.MethodGet, "/metrics", cfg.metricsHandler)
	case cfg.metrics != nil:
		r.Method(http.MethodGet, "/metrics", cfg.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.With(rateLimit(cfg.limiter)).Post("/simulate", h.HandleSimulate)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.HandleListScenarios)
			r.Put("/{name}", h.HandlePutScenario)
			r.Get("/{name}", h.HandleGetScenario)
			r.Delete("/{name}", h.HandleDeleteScenario)
			r.With(rateLimit(cfg.limiter)).Post("/{name}/runs", h.HandleRunScenario)
		})

		r.Get("/runs", h.HandleListRuns)
		r.Get("/runs/{id}", h.HandleGetRun)
	})
	return r
}

// requestLogger stores a request-scoped logger on the context, reusing
// chi's request id so both agree.
func requestLogger(base logging.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = logging.Noop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if id := middleware.GetReqID(ctx); id != "" {
				ctx = logging.ContextWithRequestID(ctx, id)
			}
			ctx, reqLog := logging.WithRequestLogger(ctx, base.With(
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
			))
			ctx = logging.ContextWithLogger(ctx, reqLog)
			w.Header().Set(requestIDHeader, logging.RequestIDFromContext(ctx))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func rateLimit(l *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := l.Reserve()
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				w.Header().Set("Retry-After", strconv.Itoa(int(delay/time.Second)+1))
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many simulation requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
