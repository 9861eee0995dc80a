// Package validation checks request structs with go-playground/validator
// and turns failures into readable messages keyed by JSON field name.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Error lists every failed field of a struct
type Error struct {
	Messages []string
}

func (e *Error) Error() string {
	return strings.Join(e.Messages, "; ")
}

// Struct validates s according to its validate tags
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &Error{}
	for _, fe := range verrs {
		out.Messages = append(out.Messages, message(fe))
	}
	return out
}

// Var validates a single value against a tag, e.g. Var(addr, "email")
func Var(value any, tag string) error {
	return validate.Var(value, tag)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "min":
		return fe.Field() + " must have at least " + fe.Param() + " items or characters"
	case "max":
		return fe.Field() + " must have at most " + fe.Param() + " items or characters"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "url":
		return fe.Field() + " must be a valid URL"
	default:
		return fe.Field() + " is invalid"
	}
}
