package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/portphilio/portkeeper/internal/flagx"
	"github.com/portphilio/portkeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "3s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config (which uses time.Duration).
type JsonConfig struct {
	APIBaseURL          string         `json:"api_base_url"`
	SnapshotDBPath      string         `json:"snapshot_db_path"`
	RequestTimeout      timex.Duration `json:"request_timeout"`
	HealthTimeout       timex.Duration `json:"health_timeout"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	Auth0               Auth0          `json:"auth0"`
}

// parseJson overlays Config with values loaded from a JSON file. The file
// path comes from the -c/-config flags; when absent, nothing is loaded.
// Zero values in the file leave the current Config value in place.
func parseJson(cfg *Config) error {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return nil
	}

	var jc JsonConfig
	jc.Auth0 = cfg.Auth0

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", jsonConfigFile, err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", jsonConfigFile, err)
	}

	if jc.APIBaseURL != "" {
		cfg.APIBaseURL = jc.APIBaseURL
	}
	if jc.SnapshotDBPath != "" {
		cfg.SnapshotDBPath = jc.SnapshotDBPath
	}
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.HealthTimeout.Duration != 0 {
		cfg.HealthTimeout = jc.HealthTimeout.Duration
	}
	if jc.OnlineCheckInterval.Duration != 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	cfg.Auth0 = jc.Auth0
	return nil
}
