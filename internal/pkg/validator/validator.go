package validator

import (
	"funding/internal/domain"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		_, ok := domain.ParseCurrency(fl.Field().String())
		return ok
	})
	_ = validate.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
		_, ok := domain.ParsePaymentMethod(fl.Field().String())
		return ok
	})
}

// Validate returns field -> failed tag, or nil when v is valid.
func Validate(v interface{}) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}
	errors := make(map[string]string, len(verrs))
	for _, err := range verrs {
		errors[err.Field()] = err.Tag()
	}
	return errors
}
