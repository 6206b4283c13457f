package api

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

// Action is one method of a domain. It receives the per-component API it was
// called through, so it can fetch and call sibling actions on the same
// component.
type Action func(ctx context.Context, a *API, args ...any) (any, error)

// Service maps environment names to base URLs.
type Service struct {
	Base map[string]string `json:"base" validate:"required,min=1,dive,keys,required,endkeys,required,url"`
}

// Configuration is the complete description of the API a client talks to.
type Configuration struct {
	Environment string                       `json:"environment" validate:"required"`
	Actions     map[string]map[string]Action `json:"-"`
	Services    map[string]Service           `json:"services" validate:"required,min=1,dive,keys,required,endkeys"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the static shape of the configuration. A service without a
// base URL for the active environment is not an error here; fetching from it is.
func (c Configuration) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid api configuration: %w", err)
	}
	for domain, methods := range c.Actions {
		if domain == "" {
			return fmt.Errorf("invalid api configuration: empty domain name")
		}
		for method, action := range methods {
			if method == "" || action == nil {
				return fmt.Errorf("invalid api configuration: domain %q has an empty method or nil action", domain)
			}
		}
	}
	return nil
}

// ReadServices loads a services table from a JSON file shaped as
// {"<name>": {"base": {"<environment>": "<url>"}}}.
func ReadServices(path string) (map[string]Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read services file: %w", err)
	}
	var services map[string]Service
	if err := json.Unmarshal(data, &services); err != nil {
		return nil, fmt.Errorf("failed to parse services file %s: %w", path, err)
	}
	return services, nil
}
