package application

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tripnest/service-booking/internal/common/domain"
	"github.com/tripnest/service-booking/internal/domain/session"
)

// DetailsValidator checks passenger field formats beyond the aggregate's
// required-field rules.
type DetailsValidator struct {
	validate *validator.Validate
}

// NewDetailsValidator creates a validator using the struct tags on session.Passenger.
func NewDetailsValidator() *DetailsValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &DetailsValidator{validate: v}
}

// Validate returns a validation error naming every bad field.
func (v *DetailsValidator) Validate(passengers []session.Passenger) error {
	var problems []string
	for i, p := range passengers {
		err := v.validate.Struct(p)
		if err == nil {
			continue
		}
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("validate passenger %d: %w", i, err)
		}
		for _, fe := range fieldErrs {
			problems = append(problems, fmt.Sprintf("passengers[%d].%s failed %s", i, fe.Field(), fe.Tag()))
		}
	}
	if len(problems) > 0 {
		return domain.NewValidationError("invalid passenger details: " + strings.Join(problems, "; "))
	}
	return nil
}
