package editor

import (
	"errors"
	"math"
	"reflect"
	"strconv"
	"strings"

	playground "github.com/go-playground/validator/v10"
)

// Validator checks `validate` struct tags on drafts and reports the first
// failure as a LocalValidationError named after the JSON field.
type Validator struct {
	validate *playground.Validate
}

// NewValidator returns a Validator that names fields by their json tag.
func NewValidator() *Validator {
	v := playground.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return &Validator{validate: v}
}

// Struct validates target. A nil return means every tag passed.
func (v *Validator) Struct(target any) error {
	err := v.validate.Struct(target)
	if err == nil {
		return nil
	}
	var fieldErrs playground.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	return &LocalValidationError{Field: fe.Field(), Message: describe(fe)}
}

func describe(fe playground.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "gte", "min":
		return field + " must be at least " + fe.Param()
	case "oneof":
		return field + " must be one of " + fe.Param()
	default:
		return field + " is invalid"
	}
}

// CoercePositive parses raw as an integer and floors it to 1. Anything that
// does not parse is treated as 1.
func CoercePositive(raw string) int {
	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) || n < 1 {
		return 1
	}
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}

// CoercePrice parses raw as a price, rounds it to cents and floors it to 1.
func CoercePrice(raw string) float64 {
	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) || n < 1 {
		return 1
	}
	return RoundCents(n)
}

// RoundCents rounds to two decimal places.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
