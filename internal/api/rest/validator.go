package rest

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/davidleathers/auction-ledger/internal/domain/values"
)

// NewValidator returns a validator that reports JSON field names and knows
// the ledger's address and amount formats
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("address", validateAddress)
	_ = v.RegisterValidation("amount", validateAmount)
	return v
}

// validateAddress accepts a 0x-prefixed 20-byte hex address
func validateAddress(fl validator.FieldLevel) bool {
	_, err := values.ParseIdentity(fl.Field().String())
	return err == nil
}

// validateAmount accepts a base-10 integer of smallest units. Zero passes;
// the ledger decides whether zero is acceptable.
func validateAmount(fl validator.FieldLevel) bool {
	_, err := values.ParseAmount(fl.Field().String())
	return err == nil
}

// formatValidationError converts validator errors to our format
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return &ValidationError{Message: "Validation error", Details: err.Error()}
	}

	fields := make(map[string][]string)
	for _, fe := range validationErrors {
		var msg string
		switch fe.Tag() {
		case "required":
			msg = "This field is required"
		case "min":
			msg = fmt.Sprintf("Minimum value is %s", fe.Param())
		case "max":
			msg = fmt.Sprintf("Maximum value is %s", fe.Param())
		case "address":
			msg = "Must be a 0x-prefixed 40 character hex address"
		case "amount":
			msg = "Must be a whole number of wei"
		default:
			msg = fmt.Sprintf("Failed %s validation", fe.Tag())
		}
		fields[fe.Field()] = append(fields[fe.Field()], msg)
	}

	return &ValidationError{Message: "Validation failed", Fields: fields}
}
