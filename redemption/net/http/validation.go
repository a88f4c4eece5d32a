package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/LerianStudio/redemption-gateway/redemption"
	constant "github.com/LerianStudio/redemption-gateway/redemption/constants"
)

// ErrValidatorInit is returned when validator configuration fails.
var ErrValidatorInit = errors.New("validator initialization failed")

var (
	validate     *validator.Validate
	validateOnce sync.Once
	errValidate  error
)

// initValidators configures the request validator. Field names in error
// messages follow the json tag so clients see the names they sent.
func initValidators() (*validator.Validate, error) {
	vld := validator.New(validator.WithRequiredStructEnabled())

	vld.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}

		return name
	})

	return vld, nil
}

func getValidator() (*validator.Validate, error) {
	validateOnce.Do(func() {
		validate, errValidate = initValidators()
	})

	if errValidate != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidatorInit, errValidate)
	}

	return validate, nil
}

// ParseBodyAndValidate decodes the JSON request body into out and checks its
// validate tags. Failures come back as Invalid Input business responses
// naming the offending field, ready for RenderError.
func ParseBodyAndValidate(c *fiber.Ctx, entityType string, out any) error {
	if err := parseJSONBody(c, entityType, out); err != nil {
		return err
	}

	vld, err := getValidator()
	if err != nil {
		return err
	}

	if err := vld.Struct(out); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
			return invalidInputResponse(entityType, describeFieldError(fieldErrors[0]))
		}

		return invalidInputResponse(entityType, "The request body failed validation.")
	}

	return nil
}

// parseJSONBody enforces the JSON content type and decodes the body into out.
func parseJSONBody(c *fiber.Ctx, entityType string, out any) error {
	contentType := string(c.Request().Header.ContentType())
	if !strings.HasPrefix(contentType, fiber.MIMEApplicationJSON) {
		return invalidInputResponse(entityType, "Content-Type must be application/json.")
	}

	if err := json.Unmarshal(c.Body(), out); err != nil {
		return invalidInputResponse(entityType, "The request body is not valid JSON for this operation.")
	}

	return nil
}

// invalidInputResponse builds the Invalid Input envelope with a
// request-specific message instead of the generic catalog text.
func invalidInputResponse(entityType, message string) error {
	return redemption.Response{
		EntityType: entityType,
		Code:       constant.ErrInvalidInput.Error(),
		Title:      "Invalid Input",
		Message:    message,
		Err:        constant.ErrInvalidInput,
	}
}

func describeFieldError(fieldError validator.FieldError) string {
	field := fieldError.Field()

	switch fieldError.Tag() {
	case "required":
		return fmt.Sprintf("The field %q is required.", field)
	case "max":
		return fmt.Sprintf("The field %q exceeds the maximum length of %s.", field, fieldError.Param())
	case "min":
		return fmt.Sprintf("The field %q is below the minimum length of %s.", field, fieldError.Param())
	case "oneof":
		return fmt.Sprintf("The field %q must be one of: %s.", field, fieldError.Param())
	default:
		return fmt.Sprintf("The field %q is invalid.", field)
	}
}
