package http

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/LerianStudio/redemption-gateway/redemption"
	constant "github.com/LerianStudio/redemption-gateway/redemption/constants"
	"github.com/LerianStudio/redemption-gateway/redemption/log"
)

// businessStatus maps every coded business sentinel to its HTTP status.
// Pause, insufficient-balance, and initialization-state rejections are
// unprocessable-entity: the request was well formed but the system state
// forbids it. Reentrancy and in-flight locks are conflicts, and a failed
// downstream transfer is a failed dependency.
var businessStatus = []struct {
	sentinel error
	status   int
}{
	{constant.ErrUnauthorized, fiber.StatusUnauthorized},
	{constant.ErrSystemPaused, fiber.StatusUnprocessableEntity},
	{constant.ErrInsufficientBalance, fiber.StatusUnprocessableEntity},
	{constant.ErrReentrantCall, fiber.StatusConflict},
	{constant.ErrAlreadyInitialized, fiber.StatusUnprocessableEntity},
	{constant.ErrNotInitialized, fiber.StatusUnprocessableEntity},
	{constant.ErrAmountOverflow, fiber.StatusBadRequest},
	{constant.ErrTransferFailure, fiber.StatusFailedDependency},
	{constant.ErrAccountNotFound, fiber.StatusNotFound},
	{constant.ErrOperationInFlight, fiber.StatusConflict},
	{constant.ErrMetadataInvalid, fiber.StatusBadRequest},
	{constant.ErrInvalidInput, fiber.StatusBadRequest},
	{constant.ErrMetadataKeyLengthExceeded, fiber.StatusBadRequest},
	{constant.ErrMetadataValueLengthExceeded, fiber.StatusBadRequest},
}

// OK sends an HTTP 200 OK response with the given body.
func OK(c *fiber.Ctx, body any) error {
	return JSONResponse(c, fiber.StatusOK, body)
}

// Created sends an HTTP 201 Created response with the given body.
func Created(c *fiber.Ctx, body any) error {
	return JSONResponse(c, fiber.StatusCreated, body)
}

// NoContent sends an HTTP 204 No Content response.
func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

// JSONResponse sends a custom status code and body as a JSON response.
func JSONResponse(c *fiber.Ctx, status int, body any) error {
	return c.Status(status).JSON(body)
}

// RenderError writes every handler failure through a single, stable
// contract: coded business errors become their enriched envelope with the
// mapped status, fiber routing errors keep their status, and anything else
// is a generic 500 so internal details never reach the client.
func RenderError(c *fiber.Ctx, err error, entityType string) error {
	if err == nil {
		return nil
	}

	var business redemption.Response
	if errors.As(err, &business) {
		return renderBusiness(c, business)
	}

	if sentinel := matchBusinessSentinel(err); sentinel != nil {
		enriched := redemption.ValidateBusinessError(sentinel, entityType)

		if errors.As(enriched, &business) {
			return renderBusiness(c, business)
		}
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return JSONResponse(c, fiberErr.Code, redemption.Response{
			EntityType: entityType,
			Code:       strconv.Itoa(fiberErr.Code),
			Title:      "Request Failed",
			Message:    fiberErr.Message,
		})
	}

	return JSONResponse(c, fiber.StatusInternalServerError, redemption.Response{
		EntityType: entityType,
		Code:       strconv.Itoa(fiber.StatusInternalServerError),
		Title:      "Internal Server Error",
		Message:    "The server was unable to complete the request. Please try again later.",
	})
}

func renderBusiness(c *fiber.Ctx, business redemption.Response) error {
	// The wrapped cause stays server-side.
	business.Err = nil

	return JSONResponse(c, StatusForBusinessCode(business.Code), business)
}

// matchBusinessSentinel finds the coded sentinel wrapped anywhere in err.
func matchBusinessSentinel(err error) error {
	for _, entry := range businessStatus {
		if errors.Is(err, entry.sentinel) {
			return entry.sentinel
		}
	}

	return nil
}

// StatusForBusinessCode returns the HTTP status for a business error code,
// or 500 for codes without a mapping.
func StatusForBusinessCode(code string) int {
	for _, entry := range businessStatus {
		if entry.sentinel.Error() == code {
			return entry.status
		}
	}

	return fiber.StatusInternalServerError
}

// FiberErrorHandler is the canonical fiber error handler. Handlers render
// business failures themselves; anything that still escapes (routing
// errors, panics converted by fiber, handler bugs) lands here and leaves
// through the same envelope.
func FiberErrorHandler(c *fiber.Ctx, err error) error {
	ctx := c.UserContext()

	logger := redemption.NewLoggerFromContext(ctx)
	logger.Log(ctx, log.LevelError, "unhandled handler error",
		log.String("method", c.Method()),
		log.String("path", c.Path()),
		log.Err(err),
	)

	return RenderError(c, err, "Request")
}
