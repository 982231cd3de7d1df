package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/MarcoPoloResearchLab/inkwell/internal/apperrors"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	instance := validator.New(validator.WithRequiredStructEnabled())
	instance.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return instance
}

// Struct validates the `validate` tags of value and reports failures as ErrInvalidInput.
func Struct(value any) error {
	err := validate.Struct(value)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	messages := make([]string, 0, len(fieldErrors))
	for _, fieldError := range fieldErrors {
		messages = append(messages, describe(fieldError))
	}
	return fmt.Errorf("%w: %s", apperrors.ErrInvalidInput, strings.Join(messages, "; "))
}

// Var validates a single value against tag.
func Var(name string, value any, tag string) error {
	err := validate.Var(value, tag)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		return fmt.Errorf("%w: %s %s", apperrors.ErrInvalidInput, name, ruleText(fieldErrors[0]))
	}
	return fmt.Errorf("%w: %s: %v", apperrors.ErrInvalidInput, name, err)
}

func describe(fieldError validator.FieldError) string {
	return fmt.Sprintf("%s %s", fieldError.Field(), ruleText(fieldError))
}

func ruleText(fieldError validator.FieldError) string {
	switch fieldError.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fieldError.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fieldError.Param())
	case "iscolor":
		return "must be a color"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fieldError.Param())
	default:
		return fmt.Sprintf("failed %s validation", fieldError.Tag())
	}
}
