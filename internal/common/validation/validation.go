// Package validation wraps go-playground/validator with the custom tags used
// by configuration and request payloads, and formats failures as validation
// AppErrors.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"analytics-sdk/internal/common/errors"
)

// CentralizedValidator provides unified validation using go-playground/validator
type CentralizedValidator struct {
	validator *validator.Validate
}

// ValidationError represents a single validation error with context
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

// NewCentralizedValidator creates a new centralized validator instance
func NewCentralizedValidator() *CentralizedValidator {
	v := validator.New()
	registerValidators(v)

	// Report env names for config structs and json names for payloads.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("env"); name != "" {
			return name
		}
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &CentralizedValidator{validator: v}
}

// ValidateStruct validates a struct using struct tags
func (cv *CentralizedValidator) ValidateStruct(s interface{}) error {
	if err := cv.validator.Struct(s); err != nil {
		return cv.formatValidationErrors(err)
	}
	return nil
}

// ValidateVar validates a single variable with validation rules
func (cv *CentralizedValidator) ValidateVar(field interface{}, tag string) error {
	if err := cv.validator.Var(field, tag); err != nil {
		return cv.formatValidationErrors(err)
	}
	return nil
}

// Details returns the individual failures of s, or nil when it is valid.
func (cv *CentralizedValidator) Details(s interface{}) []ValidationError {
	if err := cv.validator.Struct(s); err != nil {
		return cv.extractValidationErrors(err)
	}
	return nil
}

func (cv *CentralizedValidator) formatValidationErrors(err error) error {
	validationErrors := cv.extractValidationErrors(err)
	if len(validationErrors) == 1 {
		return errors.ValidationError(validationErrors[0].Message)
	}

	messages := make([]string, len(validationErrors))
	for i, e := range validationErrors {
		messages[i] = e.Message
	}
	return errors.ValidationError(fmt.Sprintf("validation failed: %s", strings.Join(messages, "; ")))
}

func (cv *CentralizedValidator) extractValidationErrors(err error) []ValidationError {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []ValidationError{{Field: "unknown", Tag: "error", Message: err.Error()}}
	}

	out := make([]ValidationError, 0, len(validationErrs))
	for _, fieldError := range validationErrs {
		out = append(out, ValidationError{
			Field:   fieldError.Field(),
			Tag:     fieldError.Tag(),
			Value:   fmt.Sprintf("%v", fieldError.Value()),
			Message: formatFieldError(fieldError),
			Param:   fieldError.Param(),
		})
	}
	return out
}

func formatFieldError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", err.Field())
	case "url":
		return fmt.Sprintf("field '%s' must be a valid URL", err.Field())
	case "min":
		return fmt.Sprintf("field '%s' must be at least %s", err.Field(), err.Param())
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s", err.Field(), err.Param())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", err.Field(), err.Param())
	case "numeric":
		return fmt.Sprintf("field '%s' must be a number", err.Field())
	case "hostname_port":
		return fmt.Sprintf("field '%s' must be a host:port address", err.Field())
	case "cron_spec":
		return fmt.Sprintf("field '%s' must be a valid cron schedule", err.Field())
	case "dispatcher_name":
		return fmt.Sprintf("field '%s' must be a lowercase dispatcher name", err.Field())
	case "duration":
		return fmt.Sprintf("field '%s' must be a valid duration", err.Field())
	case "interval":
		return fmt.Sprintf("field '%s' must be an interval such as 30s, 15m, 2h or 1d", err.Field())
	default:
		return fmt.Sprintf("field '%s' failed validation: %s", err.Field(), err.Tag())
	}
}

var (
	dispatcherNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{1,31}$`)
	intervalPattern       = regexp.MustCompile(`^\d+[smhd]$`)
)

func registerValidators(v *validator.Validate) {
	// Standard five-field specs and descriptors such as "@every 1h".
	v.RegisterValidation("cron_spec", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})

	v.RegisterValidation("dispatcher_name", func(fl validator.FieldLevel) bool {
		return dispatcherNamePattern.MatchString(fl.Field().String())
	})

	v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	})

	v.RegisterValidation("interval", func(fl validator.FieldLevel) bool {
		return intervalPattern.MatchString(fl.Field().String())
	})
}

// FluentValidator accumulates checks that struct tags cannot express.
type FluentValidator struct {
	cv     *CentralizedValidator
	errors []ValidationError
	prefix string
}

// NewFluentValidator creates a fluent validator
func NewFluentValidator() *FluentValidator {
	return &FluentValidator{cv: globalValidator}
}

// NewFluentValidatorWithPrefix creates a fluent validator with error prefix
func NewFluentValidatorWithPrefix(prefix string) *FluentValidator {
	return &FluentValidator{cv: globalValidator, prefix: prefix}
}

// RequireString validates that a string is not empty (trimmed)
func (fv *FluentValidator) RequireString(value, name string) *FluentValidator {
	if strings.TrimSpace(value) == "" {
		fv.addError(name, "required", value, fmt.Sprintf("%s is required", name))
	}
	return fv
}

// RequireURL validates that a string is a valid URL
func (fv *FluentValidator) RequireURL(value, name string) *FluentValidator {
	if err := fv.cv.ValidateVar(value, "required,url"); err != nil {
		fv.addError(name, "url", value, fmt.Sprintf("%s must be a valid URL", name))
	}
	return fv
}

// RequireOneOf validates that a value is one of the allowed values
func (fv *FluentValidator) RequireOneOf(value string, allowed []string, name string) *FluentValidator {
	for _, a := range allowed {
		if value == a {
			return fv
		}
	}
	fv.addError(name, "oneof", value, fmt.Sprintf("%s must be one of: %s", name, strings.Join(allowed, ", ")))
	return fv
}

// Validate runs a custom validation function
func (fv *FluentValidator) Validate(fn func() error) *FluentValidator {
	if err := fn(); err != nil {
		fv.addError("custom", "custom", "", err.Error())
	}
	return fv
}

// ValidateIf runs a validation function if a condition is true
func (fv *FluentValidator) ValidateIf(condition bool, fn func() error) *FluentValidator {
	if condition {
		return fv.Validate(fn)
	}
	return fv
}

// HasErrors returns true if there are validation errors
func (fv *FluentValidator) HasErrors() bool {
	return len(fv.errors) > 0
}

// Error returns the validation error or nil if there are no errors
func (fv *FluentValidator) Error() error {
	if !fv.HasErrors() {
		return nil
	}
	if len(fv.errors) == 1 {
		return errors.ValidationError(fv.errors[0].Message)
	}

	messages := make([]string, len(fv.errors))
	for i, e := range fv.errors {
		messages[i] = e.Message
	}
	return errors.ValidationError(fmt.Sprintf("validation failed: %s", strings.Join(messages, "; ")))
}

func (fv *FluentValidator) addError(field, tag, value, message string) {
	if fv.prefix != "" {
		message = fmt.Sprintf("%s: %s", fv.prefix, message)
		field = fmt.Sprintf("%s.%s", fv.prefix, field)
	}
	fv.errors = append(fv.errors, ValidationError{
		Field:   field,
		Tag:     tag,
		Value:   value,
		Message: message,
	})
}

var globalValidator = NewCentralizedValidator()

// ValidateStruct validates a struct using the global validator instance
func ValidateStruct(s interface{}) error {
	return globalValidator.ValidateStruct(s)
}

// ValidateVar validates a variable using the global validator instance
func ValidateVar(field interface{}, tag string) error {
	return globalValidator.ValidateVar(field, tag)
}
