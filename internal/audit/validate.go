package audit

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator — потокобезопасный синглтон: validator кэширует разбор тегов структур.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("audit_timestamp", func(fl validator.FieldLevel) bool {
			_, err := ParseTimestamp(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

// validateStruct проверяет теги и сводит ошибки validator к ErrInvalidRecord с перечнем полей.
func validateStruct(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s(%s)", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(parts, ", "))
}
