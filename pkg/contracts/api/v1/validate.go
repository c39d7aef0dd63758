package api

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var licenseKeyPattern = regexp.MustCompile(`^[A-Z0-9]{5}(-[A-Z0-9]{5}){4}$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError describes one rejected request field
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// Validator returns the shared validator with the contract's custom tags registered
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("licensekey", isLicenseKey)
		_ = v.RegisterValidation("nowhitespace", hasNoWhitespace)

		// Use JSON tag names in error messages
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		validate = v
	})
	return validate
}

// Validate checks a request body and returns every failed field.
// A nil slice means the request is acceptable.
func Validate(req any) []FieldError {
	err := Validator().Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "", Tag: "invalid", Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: formatFieldError(fe),
		})
	}
	return out
}

// IsLicenseKey reports whether s has the XXXXX-XXXXX-XXXXX-XXXXX-XXXXX shape
func IsLicenseKey(s string) bool {
	return licenseKeyPattern.MatchString(s)
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "licensekey":
		return fmt.Sprintf("%s must be five groups of five uppercase letters or digits", field)
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", field)
	case "nowhitespace":
		return fmt.Sprintf("%s must not contain whitespace", field)
	case "hexadecimal":
		return fmt.Sprintf("%s must be hex encoded", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func isLicenseKey(fl validator.FieldLevel) bool {
	return IsLicenseKey(fl.Field().String())
}

func hasNoWhitespace(fl validator.FieldLevel) bool {
	return !strings.ContainsFunc(fl.Field().String(), unicode.IsSpace)
}
