package model

import (
	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator with the custom tags used by model structs
// registered. Every validator that checks a model type must come from here.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		_, ok := ParseWeekday(fl.Field().String())
		return ok
	})
	return v
}
