// Package config loads and validates the orchestrator's configuration
// file. Grounded on config/config.go's JSON-decode-then-override shape,
// with field-by-field ad hoc validation replaced by struct-tag
// validation via go-playground/validator, in the style used across the
// wider deployment-tooling corpus for config/request payloads.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"

	"podctl/internal/podtypes"
)

// DefaultSearchPaths is the ordered list of locations searched for a
// config file when none is given explicitly.
var DefaultSearchPaths = []string{
	"./config.json",
	"./appconfig.json",
	"/etc/myloadbalancer/config.json",
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port int    `json:"port" validate:"required,min=1,max=65535"`
	Host string `json:"host"`
}

// DockerConfig configures the RuntimeAdapter.
type DockerConfig struct {
	ExecutablePath string            `json:"executablePath"`
	Environment    map[string]string `json:"environment,omitempty"`
}

// File is the on-disk config schema.
type File struct {
	Server     ServerConfig            `json:"server" validate:"required"`
	Docker     DockerConfig            `json:"docker"`
	Deployment podtypes.DeploymentSpec `json:"deployment" validate:"required"`
}

var validate = validator.New()

// NotFoundError is returned when no config file exists at any searched
// path.
type NotFoundError struct {
	Searched []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("config: no config file found, searched: %s", strings.Join(e.Searched, ", "))
}

// InvalidError is returned when a config file exists but fails to
// parse or validate. It enumerates every offending field in one
// message rather than failing on the first.
type InvalidError struct {
	Path   string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("config: %s is invalid: %s", e.Path, e.Reason)
}

// Load searches, in order, an explicit override path (if non-empty)
// followed by DefaultSearchPaths, decodes the first file found, and
// validates it.
func Load(override string) (*File, error) {
	paths := DefaultSearchPaths
	if override != "" {
		paths = append([]string{override}, DefaultSearchPaths...)
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, &InvalidError{Path: path, Reason: err.Error()}
		}

		var cfg File
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, &InvalidError{Path: path, Reason: err.Error()}
		}

		cfg.Deployment.ApplyDefaults()
		if err := validate.Struct(cfg); err != nil {
			return nil, &InvalidError{Path: path, Reason: err.Error()}
		}
		if err := cfg.Deployment.Validate(); err != nil {
			return nil, &InvalidError{Path: path, Reason: err.Error()}
		}

		return &cfg, nil
	}

	return nil, &NotFoundError{Searched: paths}
}
