package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv loads a service configuration struct from environment variables.
// Fields declare their variable through `env` tags; by convention every
// variable carries the CONVENING_SPACE_ prefix.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
