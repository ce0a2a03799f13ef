// Package validation checks request and command structs at the boundary.
// Struct tags cover the common rules; the mind-specific ones are registered
// as custom tags.
package validation

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/420247jake/the-mind/internal/domain"
	"github.com/420247jake/the-mind/internal/overlay/spark"
	pkgerrors "github.com/420247jake/the-mind/pkg/errors"
)

// Validator wraps a configured validator instance.
type Validator struct {
	validate *validator.Validate
}

var (
	instance *Validator
	once     sync.Once
)

// Get returns the shared validator.
func Get() *Validator {
	once.Do(func() {
		instance = New()
	})
	return instance
}

// New creates a validator with the custom rules registered.
func New() *Validator {
	v := &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}

	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.validate.RegisterValidation("notblank", notBlank)
	_ = v.validate.RegisterValidation("category", category)
	_ = v.validate.RegisterValidation("preset", preset)
	_ = v.validate.RegisterValidation("finite", finite)
	return v
}

// Struct validates s and returns a VALIDATION AppError listing every failed
// field.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !asValidationErrors(err, &verrs) {
		return pkgerrors.NewValidationError(err.Error())
	}

	fields := make(map[string]any, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msg := message(e.Tag(), e.Param())
		fields[e.Field()] = msg
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field(), msg))
	}
	return pkgerrors.NewValidationError(strings.Join(msgs, "; ")).WithDetails(fields)
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

func message(tag, param string) string {
	switch tag {
	case "required", "notblank":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", param)
	case "max":
		return fmt.Sprintf("must be at most %s", param)
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", param)
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", param)
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(param, " ", ", "))
	case "category":
		return "must be a known category"
	case "preset":
		return fmt.Sprintf("must be one of: %s", strings.Join(spark.Names(), ", "))
	case "finite":
		return "must be a finite number"
	default:
		return fmt.Sprintf("failed %s validation", tag)
	}
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func category(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s == "" || domain.Category(strings.ToLower(s)).Valid()
}

func preset(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	_, ok := spark.Lookup(s)
	return ok
}

func finite(fl validator.FieldLevel) bool {
	f := fl.Field()
	if f.Kind() == reflect.Ptr {
		if f.IsNil() {
			return true
		}
		f = f.Elem()
	}
	v := f.Float()
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
