package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"khata/internal/log"
	"khata/internal/metrics"
	authmw "khata/internal/middleware/auth"
	"khata/internal/middleware/ratelimit"
	"khata/internal/middleware/security"
	"khata/internal/middleware/trace"
	"khata/internal/services"
)

// Options configures the HTTP layer around the services.
type Options struct {
	Addr               string
	RequestTimeout     time.Duration
	CORSAllowedOrigins []string
	RateLimit          ratelimit.Config
	Metrics            *metrics.Metrics
	Logger             *log.Logger
	// Ready reports whether dependencies are reachable; nil means always ready.
	Ready func(context.Context) error
}

type Server struct {
	http.Server
	svc      *services.Services
	metrics  *metrics.Metrics
	logger   *log.Logger
	ready    func(context.Context) error
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	api      *http.ServeMux
	started  time.Time

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(svc *services.Services, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	s := &Server{
		svc:      svc,
		metrics:  opts.Metrics,
		logger:   opts.Logger.WithComponent(log.ComponentHTTP),
		ready:    opts.Ready,
		limiter:  ratelimit.NewLimiter(opts.RateLimit),
		detector: security.NewDetector(),
		api:      http.NewServeMux(),
		started:  time.Now(),
	}
	s.tracer = trace.NewMiddleware(opts.Logger, s.detector.ExtractClientIP)

	root := http.NewServeMux()
	s.routes(root)

	authn := authmw.NewMiddleware(svc.Auth, writeError).
		Allow(http.MethodPost, "/api/auth/login")
	root.Handle("/api/", authn.Middleware(s.api))

	var handler http.Handler = root
	handler = withTimeout(opts.RequestTimeout)(handler)
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited)(handler)
	handler = s.detector.Middleware(handler)
	handler = security.CORS(security.DefaultCORSConfig(opts.CORSAllowedOrigins))(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       opts.RequestTimeout,
		WriteTimeout:      opts.RequestTimeout + 5*time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes(root *http.ServeMux) {
	s.handleOn(root, "GET /healthz", s.handleHealth)
	s.handleOn(root, "GET /readyz", s.handleReady)
	if s.metrics != nil {
		root.Handle("GET /metrics", s.metrics.Handler())
	}

	s.handle("POST /api/auth/login", s.handleLogin)
	s.handle("GET /api/auth/me", s.handleMe)
	s.handle("POST /api/auth/change-password", s.handleChangePassword)

	s.handle("GET /api/buyers", s.handleListBuyers)
	s.handle("POST /api/buyers", s.handleCreateBuyer)
	s.handle("GET /api/buyers/list", s.handleListBuyersWithOutstanding)
	s.handle("GET /api/buyers/{id}", s.handleGetBuyer)
	s.handle("PUT /api/buyers/{id}", s.handleUpdateBuyer)
	s.handle("DELETE /api/buyers/{id}", s.handleDeleteBuyer)
	s.handle("GET /api/buyers/{id}/ledger", s.handleGetLedger)
	s.handle("GET /api/buyers/{id}/outstanding", s.handleGetOutstanding)
	s.handle("GET /api/buyers/{id}/payments", s.handleListPayments)
	s.handle("POST /api/buyers/{id}/payments", s.handleRecordPayment)
	s.handle("DELETE /api/buyers/{id}/payments/{pid}", s.handleDeletePayment)

	s.handle("GET /api/product-types", s.handleListProductTypes)
	s.handle("POST /api/product-types", s.handleCreateProductType)
	s.handle("GET /api/product-types/{id}", s.handleGetProductType)
	s.handle("PUT /api/product-types/{id}", s.handleUpdateProductType)
	s.handle("DELETE /api/product-types/{id}", s.handleDeleteProductType)

	s.handle("GET /api/sales", s.handleListSales)
	s.handle("POST /api/sales", s.handleCreateSale)
	s.handle("GET /api/sales/stats/today", s.handleTodaySales)
	s.handle("GET /api/sales/{id}", s.handleGetSale)
	s.handle("PUT /api/sales/{id}", s.handleUpdateSale)
	s.handle("DELETE /api/sales/{id}", s.handleDeleteSale)

	s.handle("GET /api/purchases", s.handleListPurchases)
	s.handle("POST /api/purchases", s.handleCreatePurchase)
	s.handle("GET /api/purchases/stats/today", s.handleTodayPurchases)
	s.handle("GET /api/purchases/{id}", s.handleGetPurchase)
	s.handle("PUT /api/purchases/{id}", s.handleUpdatePurchase)
	s.handle("DELETE /api/purchases/{id}", s.handleDeletePurchase)

	s.handle("GET /api/expenses", s.handleListExpenses)
	s.handle("POST /api/expenses", s.handleCreateExpense)
	s.handle("GET /api/expenses/stats/today", s.handleTodayExpenses)
	s.handle("GET /api/expenses/stats/by-category", s.handleExpensesByCategory)
	s.handle("GET /api/expenses/{id}", s.handleGetExpense)
	s.handle("PUT /api/expenses/{id}", s.handleUpdateExpense)
	s.handle("DELETE /api/expenses/{id}", s.handleDeleteExpense)

	s.handle("GET /api/analytics/dashboard-summary", s.handleDashboardSummary)
	s.handle("GET /api/analytics/monthly-stats", s.handleMonthlyStats)
	s.handle("GET /api/analytics/product-sales", s.handleProductSales)
	s.handle("GET /api/analytics/top-buyers", s.handleTopBuyers)
	s.handle("GET /api/analytics/full-report", s.handleFullReport)
}

// handle registers an authenticated API route.
func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.handleOn(s.api, pattern, h)
}

// handleOn registers h under pattern and records route metrics labelled with
// the pattern rather than the raw path.
func (s *Server) handleOn(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := trace.NewStatusRecorder(w)
		h(rw, r)
		s.metrics.ObserveHTTP(r.Method, pattern, rw.Status(), time.Since(start))
	})
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, KindRateLimited, "rate limit exceeded, try again later", "").Write(w)
}

// withTimeout bounds the context every handler and query runs under.
func withTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Shutdown stops accepting requests, drains in-flight ones and releases the
// rate limiter. It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
		s.logger.Info("HTTP server stopped",
			log.FieldOperation, log.OpShutdown,
			"requests_served", s.tracer.TotalRequests(),
			"rate_limit_hits", s.limiter.Hits(),
			"suspicious_requests", s.detector.SuspiciousRequests())
	})
	return shutdownErr
}
