package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment variables.
// configPath is the directory containing config files.
// configName is the name of the config file (without extension).
func Load(configPath, configName string) (*viper.Viper, error) {
	v := viper.New()

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variable support
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil // Config file not found, rely on env vars
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return v, nil
}

// MissingError reports required settings that resolved to an empty value.
// Vars holds the environment variable names an operator has to set.
type MissingError struct {
	Vars []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Vars, ", "))
}

// Requirements collects empty required values and turns them into a MissingError.
type Requirements struct {
	missing []string
}

// Need records env as missing when value is blank.
func (r *Requirements) Need(value, env string) {
	if strings.TrimSpace(value) == "" {
		r.missing = append(r.missing, env)
	}
}

// Err returns a *MissingError if anything was recorded, nil otherwise.
func (r *Requirements) Err() error {
	if len(r.missing) == 0 {
		return nil
	}
	return &MissingError{Vars: r.missing}
}

// StringList parses a list given either as a JSON array (`["a","b"]`) or as a
// comma separated string. Blank entries are dropped.
func StringList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var parts []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &parts); err != nil {
			parts = strings.Split(strings.Trim(raw, "[]"), ",")
		}
	} else {
		parts = strings.Split(raw, ",")
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `"`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
