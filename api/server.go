/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, carried into every log line
  2. Logger:     zap access log (logger.Middleware)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the payroll frontend
  5. RateLimit:  Per-client token bucket (golang.org/x/time/rate), 429 when
                 exhausted; disabled when RateLimitRPS is zero

ROUTE GROUPS:
  /api/rate-tables/*    Insurance rate table versions
  /api/salary-items/*   Salary item catalog
  /api/payroll/*        Calculation, lifecycle, year-end
  /api/calculations/*   Single-step previews
  /api/employees/*      Seeding
  /api/parameters       Seeding
  /api/audit            Audit trail
  /health               Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/warp/payroll-engine/logger"
)

// RouterOptions configures the middleware around the handlers.
type RouterOptions struct {
	Logger         *zap.Logger
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logger.Middleware(opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
	}))
	if opts.RateLimitRPS > 0 {
		burst := opts.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		r.Use(NewClientRateLimiter(rate.Limit(opts.RateLimitRPS), burst).Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/rate-tables", func(r chi.Router) {
			r.Get("/", h.ListRateTables)
			r.Post("/", h.CreateRateTable)
			r.Get("/effective", h.EffectiveRateTable)
			r.Post("/import", h.ImportRateTable)
			r.Get("/{id}", h.GetRateTable)
			r.Put("/{id}", h.UpdateRateTable)
			r.Delete("/{id}", h.DeleteRateTable)
		})

		r.Route("/salary-items", func(r chi.Router) {
			r.Get("/", h.ListSalaryItems)
			r.Post("/", h.CreateSalaryItem)
			r.Get("/history/{code}", h.SalaryItemHistory)
			r.Get("/{id}", h.GetSalaryItem)
			r.Put("/{id}", h.UpdateSalaryItem)
			r.Post("/{id}/deactivate", h.DeactivateSalaryItem)
		})

		r.Route("/payroll", func(r chi.Router) {
			r.Post("/calculate", h.CalculateSalary)
			r.Post("/batch", h.CalculateBatch)
			r.Get("/records", h.ListRecords)
			r.Get("/records/{id}", h.GetRecord)
			r.Post("/records/{id}/approve", h.ApproveRecord)
			r.Post("/records/{id}/pay", h.PayRecord)
			r.Post("/close-year", h.CloseYear)
		})

		r.Route("/calculations", func(r chi.Router) {
			r.Post("/base-salary", h.PreviewBaseSalary)
			r.Post("/leave-deduction", h.PreviewLeaveDeduction)
			r.Post("/overtime", h.PreviewOvertime)
			r.Post("/income-tax", h.PreviewIncomeTax)
			r.Post("/labor-insurance", h.PreviewLaborInsurance)
			r.Post("/health-insurance", h.PreviewHealthInsurance)
			r.Post("/progressive-tax", h.PreviewProgressiveTax)
		})

		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Put("/", h.PutEmployee)
			r.Post("/{id}/leave", h.AddLeave)
			r.Put("/{id}/attendance", h.SetAttendance)
		})

		r.Put("/parameters", h.SetParameter)
		r.Get("/audit", h.ListAudit)
	})

	return r
}
