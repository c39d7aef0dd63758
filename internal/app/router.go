package app

import (
	"fmt"

	"github.com/go-chi/chi/v5"

	apierrors "licensegate/internal/errors"
	"licensegate/internal/infrastructure"
	customMiddleware "licensegate/internal/middleware"
	handlers "licensegate/internal/transport/http"
	api "licensegate/pkg/contracts/api/v1"
)

// setupRouter mounts the public API, the health probes and /metrics.
// Order: RequestID, ProxyHeaders, OTel, Logger, Recoverer, then edge guards.
func (a *Application) setupRouter() error {
	cfg := a.Config
	errorHandler := apierrors.NewErrorHandler(infrastructure.WithComponent(a.Logger, "http"), cfg.Telemetry.Environment == "development")

	otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
	if err != nil {
		return fmt.Errorf("failed to create OpenTelemetry middleware: %w", err)
	}

	proxyHeaders, err := customMiddleware.NewProxyHeaders(cfg.Security.TrustedProxies, cfg.Security.CountryHeader)
	if err != nil {
		return fmt.Errorf("failed to configure trusted proxies: %w", err)
	}

	r := chi.NewRouter()
	r.Use(customMiddleware.RequestID)
	r.Use(proxyHeaders.Handler)
	r.Use(otelMiddleware.Handler)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(errorHandler))
	r.Use(customMiddleware.SecurityHeaders)
	if cfg.Security.EnableCORS {
		r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
			AllowedOrigins: cfg.Security.AllowedOrigins,
			ExposedHeaders: downloadHeaders,
		}))
	}

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	health := handlers.NewHealthHandler(a.Health, a.Logger)
	r.Get("/healthz/live", health.LivenessCheck)
	r.Get("/healthz/ready", health.ReadinessCheck)
	r.Get("/version", health.Version)
	r.Handle("/metrics", handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP))

	licenseHandler := handlers.NewLicenseHandler(a.Licenses, errorHandler, a.Clock, a.Logger)
	r.Route("/v1/teams/{"+handlers.TeamIDParam+"}", func(r chi.Router) {
		if cfg.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				cfg.Security.RateLimit.RPS,
				cfg.Security.RateLimit.Burst,
				errorHandler,
			).Handler)
		}
		r.Use(customMiddleware.MaxBody(cfg.Server.MaxBodyBytes))
		r.Use(customMiddleware.Country(cfg.Security.CountryHeader))

		// Downloads stream for longer than any request timeout
		r.Mount("/", licenseHandler.Routes(customMiddleware.Timeout(cfg.Server.RequestTimeout, errorHandler)))
	})

	a.Router = r
	return nil
}

var downloadHeaders = []string{
	api.HeaderFileSize, api.HeaderEncodedSize, api.HeaderChunkSize, api.HeaderStreamFormat,
	api.HeaderProductName, api.HeaderReleaseVersion, api.HeaderReleaseStatus,
	api.HeaderReleaseCreatedAt, api.HeaderReleaseUpdatedAt,
	api.HeaderLatestVersion, api.HeaderMainClassName, customMiddleware.RequestIDHeader,
}
