package validator

import (
	"fmt"
	"net/url"
	"strings"
)

// PathValidator validates site paths and API endpoints before they are used
// as cache keys and upstream request paths.
type PathValidator interface {
	ValidatePath(path string) error
	ValidateEndpoint(endpoint string) error
}

type DefaultValidator struct {
	maxLength int
}

func NewDefaultValidator() PathValidator {
	return &DefaultValidator{
		maxLength: 2048,
	}
}

// ValidatePath accepts a site path such as "/about" or "/news?page=2".
// Scheme and host are rejected.
func (v *DefaultValidator) ValidatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path cannot be empty")
	}
	return v.relative(path)
}

// ValidateEndpoint accepts a canonical endpoint such as
// "/jsonapi/node/article/<uuid>".
func (v *DefaultValidator) ValidateEndpoint(endpoint string) error {
	if strings.TrimSpace(endpoint) == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	if !strings.HasPrefix(endpoint, "/") {
		return fmt.Errorf("endpoint must start with /")
	}
	return v.relative(endpoint)
}

func (v *DefaultValidator) relative(raw string) error {
	if len(raw) > v.maxLength {
		return fmt.Errorf("longer than %d characters", v.maxLength)
	}

	if strings.HasPrefix(raw, "//") {
		return fmt.Errorf("must not contain a host")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid format: %w", err)
	}

	if u.Scheme != "" || u.Host != "" {
		return fmt.Errorf("must not contain a scheme or host")
	}

	return nil
}
