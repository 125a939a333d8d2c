package validator

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var arnRegex = regexp.MustCompile(`^arn:aws:[a-z0-9\-]+:[a-z0-9\-]*:[0-9]{12}:.*$`)

// isARN checks if a string is a valid AWS ARN.
func isARN(fl validator.FieldLevel) bool {
	return arnRegex.MatchString(fl.Field().String())
}

// isNoHTML rejects the characters that would let a name break out of markup.
func isNoHTML(fl validator.FieldLevel) bool {
	return !strings.ContainsAny(fl.Field().String(), `<>&"'`)
}

func isNoControl(fl validator.FieldLevel) bool {
	return strings.IndexFunc(fl.Field().String(), unicode.IsControl) < 0
}

// RegisterCustomValidators registers custom validation functions with the validator.
func RegisterCustomValidators(validate *validator.Validate) error {
	if err := validate.RegisterValidation("arn", isARN); err != nil {
		return err
	}
	if err := validate.RegisterValidation("nohtml", isNoHTML); err != nil {
		return err
	}
	return validate.RegisterValidation("nocontrol", isNoControl)
}
