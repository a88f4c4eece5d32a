package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/LerianStudio/redemption-gateway/redemption/log"
	"github.com/LerianStudio/redemption-gateway/redemption/opentelemetry"
)

// RouterConfig carries the dependencies the HTTP router needs.
type RouterConfig struct {
	// ServiceName labels the welcome route.
	ServiceName string
	// Service is the operation layer behind the handlers.
	Service GatewayService
	// Logger receives access logs and is injected into request contexts.
	Logger log.Logger
	// Telemetry enables the tracing middleware when set.
	Telemetry *opentelemetry.Telemetry
	// AmountScale is the decimal scale used to render balance amounts.
	AmountScale int32
	// HealthChecks are probed by the health route.
	HealthChecks []DependencyCheck
}

// NewRouter assembles the fiber application: middleware chain, utility
// routes, and the versioned gateway API.
func NewRouter(cfg RouterConfig) (*fiber.App, error) {
	handler, err := NewGatewayHandler(cfg.Service, WithAmountScale(cfg.AmountScale))
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          FiberErrorHandler,
		DisableStartupMessage: true,
	})

	AllowFullOptionsWithCORS(app)

	app.Use(WithHTTPLogging(WithCustomLogger(cfg.Logger)))

	tm := NewTelemetryMiddleware(cfg.Telemetry)
	app.Use(tm.WithTelemetry("/health", "/ping", "/version"))

	app.Use(WithHolderIdentity())

	app.Get("/", Welcome(cfg.ServiceName, "Dual-balance redemption gateway"))
	app.Get("/health", Health(cfg.HealthChecks...))
	app.Get("/ping", Ping)
	app.Get("/version", Version)

	v1 := app.Group("/v1")

	v1.Get("/system", handler.GetState)
	v1.Post("/system/initialize", RequireHolder(), handler.Initialize)
	v1.Put("/system/pause", RequireHolder(), handler.SetPause)

	v1.Post("/deposits", RequireHolder(), handler.CreateDeposit)
	v1.Post("/withdrawals", RequireHolder(), handler.CreateWithdrawal)
	v1.Post("/claims", RequireHolder(), handler.CreateClaim)

	v1.Get("/accounts/:holder_id", handler.GetAccount)
	v1.Get("/accounts/:holder_id/metadata", handler.GetMetadata)
	v1.Patch("/accounts/:holder_id/metadata", RequireHolder(), handler.PatchMetadata)

	v1.Post("/roles/grants", RequireHolder(), handler.GrantRole)
	v1.Delete("/roles/grants", RequireHolder(), handler.RevokeRole)

	return app, nil
}
