// Package config holds runtime settings for the portkeeper client.
//
// Values are layered: built-in defaults, then a JSON config file (if one is
// passed via -c/-config), then command-line flags, then environment
// variables. Later sources take precedence over earlier ones.
package config

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Auth0 describes the identity-provider tenant the client authenticates
// against. All values are deploy-time configuration, not part of the core
// logic's testable surface.
type Auth0 struct {
	Domain      string `json:"domain" env:"PORTKEEPER_AUTH0_DOMAIN"`
	ClientID    string `json:"client_id" env:"PORTKEEPER_AUTH0_CLIENT_ID"`
	RedirectURI string `json:"redirect_uri" env:"PORTKEEPER_AUTH0_REDIRECT_URI"`
	Audience    string `json:"audience" env:"PORTKEEPER_AUTH0_AUDIENCE"`
	Scope       string `json:"scope" env:"PORTKEEPER_AUTH0_SCOPE"`
	// Namespace prefixes the custom claims (roles, google token, api id)
	// inside issued tokens.
	Namespace string `json:"namespace" env:"PORTKEEPER_AUTH0_NAMESPACE"`
	// LogoutReturnTo is where the provider redirects after logout.
	LogoutReturnTo string `json:"logout_return_to" env:"PORTKEEPER_AUTH0_RETURN_TO"`
}

// Config is the runtime configuration of the client core.
type Config struct {
	// APIBaseURL is the base URL of the remote artifact API.
	APIBaseURL string `env:"PORTKEEPER_API_URL"`
	// SnapshotDBPath is the sqlite DSN of the local snapshot database.
	SnapshotDBPath string `env:"PORTKEEPER_SNAPSHOT_DB"`
	// RequestTimeout bounds identity-provider and API calls.
	RequestTimeout time.Duration `env:"PORTKEEPER_REQUEST_TIMEOUT"`
	// HealthTimeout bounds the connectivity probe.
	HealthTimeout time.Duration `env:"PORTKEEPER_HEALTH_TIMEOUT"`
	// OnlineCheckInterval is how often the client probes API reachability.
	OnlineCheckInterval time.Duration `env:"PORTKEEPER_ONLINE_CHECK_INTERVAL"`

	Auth0 Auth0
}

// LoadDefaults populates c with sensible defaults. Timeout values close a
// gap in the original design, which had none; they are deliberate choices,
// see DESIGN.md.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = "http://127.0.0.1:3030"
	c.SnapshotDBPath = "portkeeper.db"
	c.RequestTimeout = 10 * time.Second
	c.HealthTimeout = 5 * time.Second
	c.OnlineCheckInterval = 3 * time.Second
	c.Auth0.Scope = "openid profile email"
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present), command-line flags, and environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg); err != nil {
		return nil, err
	}
	parseFlags(cfg)
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
