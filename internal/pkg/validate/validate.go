package validate

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	instance *validator.Validate
)

func Required(value string) bool {
	return strings.TrimSpace(value) != ""
}

// Struct checks `validate` tags on v and returns failing fields keyed by
// their json name, mapped to the failed tag.
func Struct(v any) (map[string]string, error) {
	err := get().Struct(v)
	if err == nil {
		return nil, nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil, err
	}
	fields := make(map[string]string, len(validationErrors))
	for _, ve := range validationErrors {
		fields[ve.Field()] = ve.Tag()
	}
	return fields, nil
}

func get() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
		instance.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return field.Name
			}
			return name
		})
	})
	return instance
}
