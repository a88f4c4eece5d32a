package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/LerianStudio/redemption-gateway/redemption"
	cn "github.com/LerianStudio/redemption-gateway/redemption/constants"
)

const (
	defaultAccessControlAllowOrigin   = "*"
	defaultAccessControlAllowMethods  = "POST, GET, OPTIONS, PUT, DELETE, PATCH"
	defaultAccessControlAllowHeaders  = "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, " + cn.HeaderID + ", " + cn.HeaderHolderID
	defaultAccessControlExposeHeaders = cn.HeaderID
)

// WithCORS is a middleware that enables CORS. Fiber rejects the combination
// of credentialed requests with a wildcard origin, so credentials stay off
// unless a concrete origin is configured alongside them.
func WithCORS() fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:     redemption.GetenvOrDefault("ACCESS_CONTROL_ALLOW_ORIGIN", defaultAccessControlAllowOrigin),
		AllowMethods:     redemption.GetenvOrDefault("ACCESS_CONTROL_ALLOW_METHODS", defaultAccessControlAllowMethods),
		AllowHeaders:     redemption.GetenvOrDefault("ACCESS_CONTROL_ALLOW_HEADERS", defaultAccessControlAllowHeaders),
		ExposeHeaders:    redemption.GetenvOrDefault("ACCESS_CONTROL_EXPOSE_HEADERS", defaultAccessControlExposeHeaders),
		AllowCredentials: redemption.GetenvBoolOrDefault("ACCESS_CONTROL_ALLOW_CREDENTIALS", false),
	})
}

// AllowFullOptionsWithCORS sets app.Use(WithCORS) and allows every request to use the OPTIONS method.
func AllowFullOptionsWithCORS(app *fiber.App) {
	app.Use(WithCORS())

	app.Options("/*", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
}
