// Package validate wires request validation and JSON encoding into echo.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ehr/claims/internal/platform/apperr"
)

var tagMessages = map[string]string{
	"required":        "is required",
	"oneof":           "must be one of: %s",
	"max":             "must be at most %s",
	"min":             "must be at least %s",
	"gt":              "must be greater than %s",
	"positive_amount": "must be a positive amount",
	"amount":          "must be a non-negative amount with at most 2 decimal places",
}

// customTags are the amount checks request DTOs use in their validate tags.
var customTags = map[string]validator.Func{
	"positive_amount": positiveAmount,
	"amount":          amount,
}

// Validator implements echo.Validator on top of go-playground/validator.
type Validator struct {
	v *validator.Validate
}

// New builds the validator. It panics if a custom tag fails to register,
// which only happens on a programming error.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	// Amounts are validated in their string form.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	if err := registerTags(v, customTags); err != nil {
		panic(err)
	}
	return &Validator{v: v}
}

func registerTags(v *validator.Validate, tags map[string]validator.Func) error {
	for tag, fn := range tags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("register validation %q: %w", tag, err)
		}
	}
	return nil
}

// Validate checks i and reports every failing field as one invalid-argument error.
func (cv *Validator) Validate(i interface{}) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.InvalidArgument("%s", err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return apperr.InvalidArgument("%s", strings.Join(msgs, ", "))
}

func fieldMessage(fe validator.FieldError) string {
	msg, ok := tagMessages[fe.Tag()]
	if !ok {
		msg = "is invalid"
	}
	if strings.Contains(msg, "%s") {
		param := fe.Param()
		if fe.Tag() == "oneof" {
			param = strings.Join(strings.Fields(param), ", ")
		}
		msg = strings.Replace(msg, "%s", param, 1)
	}
	return fe.Field() + " " + msg
}

func positiveAmount(fl validator.FieldLevel) bool {
	d, ok := decimalOf(fl)
	return ok && d.IsPositive()
}

func amount(fl validator.FieldLevel) bool {
	d, ok := decimalOf(fl)
	return ok && !d.IsNegative() && d.Equal(d.Round(2))
}

func decimalOf(fl validator.FieldLevel) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(fl.Field().String())
	return d, err == nil
}
