// Package config loads and validates the process-wide configuration.
// Everything is sourced from the environment once at startup and is
// immutable afterwards.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Known placeholder values shipped in .env templates. They parse fine but
// can never work against the real provider, so they are configuration errors.
const (
	PlaceholderClientID     = "your_actual_google_client_id_here"
	PlaceholderClientSecret = "your_actual_google_client_secret_here"
)

// MinSessionSecretBytes is the floor for the session signing secret.
const MinSessionSecretBytes = 32

type Config struct {
	Port    string `env:"PORT" envDefault:"8080"`
	AppName string `env:"APP_NAME" envDefault:"Kelo Auth"`
	Env     string `env:"ENV" envDefault:"DEV"`

	// AppOrigin is the origin of the dashboard that opens the auth popup.
	// The callback document posts its result message to exactly this origin.
	AppOrigin string `env:"APP_ORIGIN" envDefault:"http://localhost:3000"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string `env:"GOOGLE_REDIRECT_URI" envDefault:"http://localhost:3000/api/auth/callback"`

	// SessionSecret signs session credentials. Must carry at least
	// MinSessionSecretBytes of material.
	SessionSecret string `env:"JWT_SECRET"`

	// WalletDBPath selects the SQLite wallet store. Empty means in-memory.
	WalletDBPath string `env:"WALLET_DB"`
}

// Load parses the configuration from the environment. Validation is a
// separate step so construction-time failures can report every problem.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	return cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	port := c.Port
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return port
}

// Problems returns every configuration error in human-readable form.
// An empty slice means the configuration is usable.
func (c Config) Problems() []string {
	var problems []string

	if c.GoogleClientID == "" {
		problems = append(problems, "GOOGLE_CLIENT_ID is not configured")
	} else if c.GoogleClientID == PlaceholderClientID {
		problems = append(problems, "GOOGLE_CLIENT_ID is still the placeholder value")
	} else if !strings.Contains(c.GoogleClientID, ".googleusercontent.com") {
		problems = append(problems, "GOOGLE_CLIENT_ID appears to be invalid (should end with .googleusercontent.com)")
	}

	if c.GoogleClientSecret == "" {
		problems = append(problems, "GOOGLE_CLIENT_SECRET is not configured")
	} else if c.GoogleClientSecret == PlaceholderClientSecret {
		problems = append(problems, "GOOGLE_CLIENT_SECRET is still the placeholder value")
	}

	if c.GoogleRedirectURI == "" {
		problems = append(problems, "GOOGLE_REDIRECT_URI is not configured")
	}

	if len(c.SessionSecret) < MinSessionSecretBytes {
		problems = append(problems, fmt.Sprintf("JWT_SECRET must be at least %d bytes long", MinSessionSecretBytes))
	}

	return problems
}
