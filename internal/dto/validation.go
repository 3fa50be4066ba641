package dto

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterValidations 在 gin 使用的 validator 上注册自定义规则
func RegisterValidations(v *validator.Validate) error {
	return v.RegisterValidation("dateonly", validateDateOnly)
}

// dateonly: YYYY-MM-DD
func validateDateOnly(fl validator.FieldLevel) bool {
	_, err := time.Parse("2006-01-02", fl.Field().String())
	return err == nil
}
