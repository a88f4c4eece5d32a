package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/LerianStudio/redemption-gateway/redemption"
	cn "github.com/LerianStudio/redemption-gateway/redemption/constants"
)

// WithHolderIdentity copies the caller's holder identity from the
// X-Holder-Id header into the request context, where the operation layer
// reads it for ownership and role checks. An absent header leaves the
// context without an identity; routes that require one pair this with
// RequireHolder.
func WithHolderIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		holderID := strings.TrimSpace(c.Get(cn.HeaderHolderID))
		if holderID != "" {
			c.SetUserContext(redemption.ContextWithHolderID(c.UserContext(), holderID))
		}

		return c.Next()
	}
}

// RequireHolder rejects requests that did not present a holder identity.
// Mutating routes mount it after WithHolderIdentity so that handlers can
// assume a non-empty caller.
func RequireHolder() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if redemption.HolderIDFromContext(c.UserContext()) == "" {
			return JSONResponse(c, fiber.StatusBadRequest, redemption.Response{
				EntityType: "Request",
				Title:      "Missing Caller Identity",
				Code:       cn.ErrInvalidInput.Error(),
				Message:    "The " + cn.HeaderHolderID + " header is required for this operation. Provide the caller's holder identity and try again.",
			})
		}

		return c.Next()
	}
}
