package utils

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// ValidationError represents a structured validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrorResponse is the standard response for validation errors
type ValidationErrorResponse struct {
	Errors []ValidationError `json:"errors"`
}

// RegisterValidators adds the custom binding tags used by request structs:
// "iana_tz" accepts IANA timezone names.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	return v.RegisterValidation("iana_tz", validateTimezone)
}

func validateTimezone(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" {
		return true
	}
	_, err := time.LoadLocation(name)
	return err == nil
}

// HandleValidationErrors processes validation errors and returns a standardized response
func HandleValidationErrors(ctx *gin.Context, err error) {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "bad_request",
			Message: err.Error(),
		})
		return
	}

	errors := make([]ValidationError, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		errors = append(errors, ValidationError{
			Field:   toSnakeCase(fieldError.Field()),
			Message: getValidationErrorMessage(fieldError),
		})
	}

	ctx.JSON(http.StatusBadRequest, ValidationErrorResponse{
		Errors: errors,
	})
}

// getValidationErrorMessage returns a human-readable message for a validation error
func getValidationErrorMessage(fieldError validator.FieldError) string {
	switch fieldError.Tag() {
	case "required":
		return "This field is required"
	case "required_with":
		return "Required together with " + toSnakeCase(fieldError.Param())
	case "excluded_with":
		return "Cannot be combined with " + toSnakeCase(fieldError.Param())
	case "oneof":
		return "Must be one of: " + strings.ReplaceAll(fieldError.Param(), " ", ", ")
	case "gtfield":
		return "Must be after " + toSnakeCase(fieldError.Param())
	case "min":
		if fieldError.Type().Kind().String() == "string" {
			return "Must be at least " + fieldError.Param() + " characters long"
		}
		return "Must be at least " + fieldError.Param()
	case "max":
		if fieldError.Type().Kind().String() == "string" {
			return "Must be at most " + fieldError.Param() + " characters long"
		}
		return "Must be at most " + fieldError.Param()
	case "iana_tz":
		return "Must be an IANA timezone name such as Europe/Berlin"
	case "datetime":
		return "Must be a valid datetime in format " + fieldError.Param()
	default:
		return "Invalid value for this field"
	}
}

// toSnakeCase converts a string from camelCase to snake_case
func toSnakeCase(s string) string {
	if strings.Contains(s, "_") {
		return s
	}

	var result strings.Builder
	for i, r := range s {
		if i > 0 && 'A' <= r && r <= 'Z' {
			result.WriteRune('_')
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}
