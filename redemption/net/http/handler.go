package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/LerianStudio/redemption-gateway/redemption"
)

// Ping returns HTTP 200 with response "pong".
func Ping(c *fiber.Ctx) error {
	return c.SendString("pong")
}

// Version returns HTTP 200 with the deployed service version.
func Version(c *fiber.Ctx) error {
	return OK(c, fiber.Map{
		"version":     redemption.GetenvOrDefault("VERSION", "0.0.0"),
		"requestDate": time.Now().UTC(),
	})
}

// Welcome returns HTTP 200 with service info.
func Welcome(service string, description string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service":     service,
			"description": description,
		})
	}
}

// DependencyCheck probes one backing service for the health endpoint.
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

const (
	statusAvailable   = "available"
	statusUnavailable = "unavailable"
)

// Health reports service availability plus per-dependency status. It
// returns 200 when every check passes and 503 as soon as one fails, so
// orchestrators can take the instance out of rotation.
func Health(checks ...DependencyCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		status := statusAvailable
		dependencies := make(map[string]string, len(checks))

		for _, check := range checks {
			if check.Check == nil {
				continue
			}

			if err := check.Check(c.UserContext()); err != nil {
				dependencies[check.Name] = statusUnavailable
				status = statusUnavailable

				continue
			}

			dependencies[check.Name] = statusAvailable
		}

		body := fiber.Map{"status": status}
		if len(dependencies) > 0 {
			body["dependencies"] = dependencies
		}

		if status != statusAvailable {
			return JSONResponse(c, fiber.StatusServiceUnavailable, body)
		}

		return OK(c, body)
	}
}
