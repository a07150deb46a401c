package router

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/thali-pos/api/internal/clock"
	"github.com/thali-pos/api/internal/config"
	"github.com/thali-pos/api/internal/handler"
	mw "github.com/thali-pos/api/internal/middleware"
	"github.com/thali-pos/api/internal/projection"
	"github.com/thali-pos/api/internal/repository"
	"github.com/thali-pos/api/internal/service"
	"github.com/thali-pos/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication and tenant scoping middleware as needed.
func New(
	cfg *config.Config,
	store *repository.Store,
	svc *service.OrderService,
	engine *service.TransitionEngine,
	manager *projection.Manager,
	clk clock.Clock,
	hub *ws.Hub,
) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",            // console dev server
			"https://console.thali-pos.in",     // production console
			"https://stg-console.thali-pos.in", // staging console
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/tenants/{tid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		// Tenant-scoped routes
		r.Route("/tenants/{tid}", func(r chi.Router) {
			r.Use(mw.RequireTenant)

			// Orders
			orderHandler := handler.NewOrderHandler(svc, engine, store, hub)
			r.Route("/orders", orderHandler.RegisterRoutes)

			// Live dashboard
			dashboardHandler := handler.NewDashboardHandler(manager, clk)
			r.Route("/dashboard", dashboardHandler.RegisterRoutes)

			// Reports
			reportsHandler := handler.NewReportsHandler(manager, clk)
			r.Route("/reports", reportsHandler.RegisterRoutes)
		})
	})

	log.Println("Router initialized with all handlers")
	return r
}
