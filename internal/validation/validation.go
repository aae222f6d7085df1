package validation

import (
	"github.com/go-playground/validator/v10"
)

// validate caches struct metadata, so one instance serves the whole process.
var validate = validator.New()

// Struct checks v against its `validate` tags.
func Struct(v any) error {
	return validate.Struct(v)
}
