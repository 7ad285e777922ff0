package service

import (
	"errors"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

const maxURLLength = 2048

// ValidateURL accepts absolute http and https URLs with a host.
func ValidateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return &ValidationError{Field: "original_url", Message: "is required"}
	}
	if len(raw) > maxURLLength {
		return &ValidationError{Field: "original_url", Message: "is too long"}
	}
	if err := validate.Var(raw, "url"); err != nil {
		return &ValidationError{Field: "original_url", Message: "is not a valid URL"}
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return &ValidationError{Field: "original_url", Message: "is not a valid URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "original_url", Message: "scheme must be http or https"}
	}
	return nil
}

// ValidateCustomDomain accepts a fully qualified host name without scheme or port.
func ValidateCustomDomain(domain string) error {
	if err := validate.Var(domain, "required,fqdn,max=253"); err != nil {
		return &ValidationError{Field: "custom_domain", Message: "is not a valid domain"}
	}
	return nil
}

// validateStruct runs struct tags and reports the first failing field.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: toSnake(fe.Field()), Message: describe(fe)}
	}
	return &ValidationError{Message: err.Error()}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "alphanum":
		return "must contain only letters and digits"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
