package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/inventoryd/docs"
	"github.com/utafrali/inventoryd/internal/engine"
	"github.com/utafrali/inventoryd/internal/repository"
	"github.com/utafrali/inventoryd/pkg/health"
	"github.com/utafrali/inventoryd/pkg/middleware"
)

// NewRouter creates a chi router with all inventory service routes registered.
func NewRouter(
	eng *engine.Engine,
	ledger repository.LedgerStore,
	catalog repository.CatalogRepository,
	healthHandler *health.Handler,
	logger *slog.Logger,
	corsConfig CORSConfig,
	pprofCIDRs []string,
	defaultReservationTTLMinutes int,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(CORS(corsConfig))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("inventory"))
	r.Use(middleware.Tracing("inventory"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/health/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, pprofCIDRs, logger)

	r.Get("/swagger/doc.json", docs.ServeSpec)
	r.Get("/swagger/", docs.ServeUI)

	inventoryHandler := NewInventoryHandler(eng, ledger, catalog, logger, defaultReservationTTLMinutes)

	r.Route("/inventory", func(r chi.Router) {
		r.With(ContentTypeJSON).Post("/reserve", inventoryHandler.Reserve)
		r.With(ContentTypeJSON).Post("/confirm", inventoryHandler.Confirm)
		r.With(ContentTypeJSON).Post("/consume", inventoryHandler.Consume)
		r.Post("/cancel/{reservation_id}", inventoryHandler.Cancel)
		r.With(ContentTypeJSON).Post("/update-stock", inventoryHandler.UpdateStock)

		r.Get("/stock/{product_id}/{store_id}", inventoryHandler.GetStockLevel)
		r.Get("/all", inventoryHandler.ListInventory)
		r.Get("/products/", inventoryHandler.ListProducts)
	})

	r.Route("/stores", func(r chi.Router) {
		r.Get("/", inventoryHandler.ListStores)
		r.Get("/{store_id}", inventoryHandler.GetStore)
		r.Get("/{store_id}/inventory", inventoryHandler.GetStoreInventory)
	})

	return r
}
