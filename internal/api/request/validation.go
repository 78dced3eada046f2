package request

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/edvin/tenancy/internal/model"
	"github.com/edvin/tenancy/internal/platform"
)

var validate = validator.New()

func init() {
	validate.RegisterValidation("tenant_name", func(fl validator.FieldLevel) bool {
		return platform.ValidTenantName(platform.NormalizeTenantName(fl.Field().String()))
	})
}

// Decode parses a JSON body into v and validates it.
func Decode(r *http.Request, v any) error {
	if err := DecodeJSON(r, v); err != nil {
		return err
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

// DecodeJSON parses a JSON body into v without validating it, for requests
// whose validation happens further down.
func DecodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func RequireID(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("missing required ID")
	}
	return s, nil
}

// RequireKind parses a connection kind path parameter.
func RequireKind(s string) (model.ConnectionKind, error) {
	kind, err := model.ParseConnectionKind(s)
	if err != nil {
		return "", fmt.Errorf("invalid connection kind %q", s)
	}
	return kind, nil
}
