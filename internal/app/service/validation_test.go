package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateURL(t *testing.T) {
	valid := []string{
		"https://example.com/page",
		"http://example.com",
		"HTTPS://EXAMPLE.COM/UPPER",
		"https://example.com:8443/path?q=1#frag",
		"http://127.0.0.1:8080/",
	}
	for _, raw := range valid {
		assert.NoError(t, ValidateURL(raw), raw)
	}

	invalid := []string{
		"",
		"   ",
		"ftp://bad",
		"mailto:someone@example.com",
		"javascript:alert(1)",
		"example.com",
		"https://",
		"https://" + string(make([]byte, maxURLLength)),
	}
	for _, raw := range invalid {
		err := ValidateURL(raw)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr, raw)
	}
}

func TestValidateCustomDomain(t *testing.T) {
	for _, d := range []string{"example.com", "go.example.co.uk", "a-b.example.io"} {
		assert.NoError(t, ValidateCustomDomain(d), d)
	}
	for _, d := range []string{"", "localhost", "exa mple.com", "https://example.com", "example.com/path", "-bad.example.com"} {
		assert.Error(t, ValidateCustomDomain(d), d)
	}
}

func TestValidationError_Message(t *testing.T) {
	assert.Equal(t, "original_url: is required", (&ValidationError{Field: "original_url", Message: "is required"}).Error())
	assert.Equal(t, "bad input", (&ValidationError{Message: "bad input"}).Error())
}

func TestToSnake(t *testing.T) {
	assert.Equal(t, "username", toSnake("Username"))
	assert.Equal(t, "original_url", toSnake("OriginalUrl"))
}
