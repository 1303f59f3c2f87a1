package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

// SeaConfig is the subset of Node's sea-config.json that seapack reads.
type SeaConfig struct {
	Main                          string            `json:"main"`
	Output                        string            `json:"output"`
	DisableExperimentalSEAWarning bool              `json:"disableExperimentalSEAWarning,omitempty"`
	UseSnapshot                   bool              `json:"useSnapshot,omitempty"`
	UseCodeCache                  bool              `json:"useCodeCache,omitempty"`
	Assets                        map[string]string `json:"assets,omitempty"`
}

// ReadSeaConfig parses a sea-config.json file. Comments and trailing commas
// are tolerated.
func ReadSeaConfig(path string) (*SeaConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read sea config: %w", err)
	}
	if info.Size() > MaxConfigSize {
		return nil, fmt.Errorf("sea config %s too large (%d bytes, max %d)", path, info.Size(), MaxConfigSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sea config: %w", err)
	}
	return ParseSeaConfig(data)
}

// ParseSeaConfig parses sea-config.json content.
func ParseSeaConfig(data []byte) (*SeaConfig, error) {
	var sc SeaConfig
	if err := json.Unmarshal(jsonc.ToJSON(data), &sc); err != nil {
		return nil, &ParseError{Message: "invalid sea config", Detail: err.Error()}
	}
	return &sc, nil
}

// ResolveBlob returns the absolute path of the SEA blob. An explicit
// app.blob wins; otherwise the sea config's output field is used. Relative
// paths resolve against the working directory, matching how node itself
// writes the blob.
func (c *Config) ResolveBlob() (string, error) {
	blob := c.App.Blob
	if blob == "" {
		sc, err := ReadSeaConfig(c.App.SeaConfig)
		if err != nil {
			return "", err
		}
		if sc.Output == "" {
			return "", &ValidationError{
				Field:   "app.sea_config",
				Message: fmt.Sprintf("%s has no \"output\" field; set app.blob or --blob", c.App.SeaConfig),
			}
		}
		blob = sc.Output
	}
	return filepath.Abs(blob)
}
