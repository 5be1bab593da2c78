package controllers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/tradorr/tradorr-api/internal/pkg/billing"
)

const requestTimeout = 20 * time.Second

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report json names so messages match the request body
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// parseAndValidate decodes a JSON body into out and validates it.
// It writes the 400 response itself and returns false when the request is rejected.
func parseAndValidate(c *fiber.Ctx, out interface{}) (bool, error) {
	if err := c.BodyParser(out); err != nil {
		return false, jsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := validate.Struct(out); err != nil {
		return false, jsonError(c, fiber.StatusBadRequest, validationMessage(err))
	}
	return true, nil
}

// validationMessage turns the first validation failure into a field-level message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func jsonError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}

// initiationError passes the vendor's own message through with a 500.
func initiationError(c *fiber.Ctx, err error) error {
	var vendorErr *billing.VendorError
	switch {
	case errors.As(err, &vendorErr):
		return jsonError(c, fiber.StatusInternalServerError, vendorErr.Message)
	case errors.Is(err, billing.ErrInvalidAmount):
		return jsonError(c, fiber.StatusBadRequest, err.Error())
	default:
		log.Errorf("[API] payment initiation failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, err.Error())
	}
}
