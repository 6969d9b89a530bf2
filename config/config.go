package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fusion mode names as they appear in config.yaml.
const (
	ModeColor    = "color"
	ModeMax      = "max"
	ModeBayesian = "bayesian"
)

// Config is the full node configuration, loaded once at startup and
// validated before any core component is constructed.
type Config struct {
	FusionMode string `yaml:"fusionMode"`

	SensorWidth  int `yaml:"sensorWidth"`
	SensorHeight int `yaml:"sensorHeight"`

	ModelInputWidth  int `yaml:"modelInputWidth"`
	ModelInputHeight int `yaml:"modelInputHeight"`

	NumClasses      int   `yaml:"numClasses"`
	BackgroundClass uint8 `yaml:"backgroundClass"`
	ClassRemap      []int `yaml:"classRemap"`

	// Extrinsics is a JSON-encoded 4x4 row-major matrix, the same encoding
	// the calibration tooling emits.
	Extrinsics string `yaml:"extrinsics"`

	Fx float64 `yaml:"fx"`
	Fy float64 `yaml:"fy"`
	Cx float64 `yaml:"cx"`
	Cy float64 `yaml:"cy"`

	IncludeBackground bool `yaml:"includeBackground"`

	ModelConfigPath string `yaml:"modelConfigPath"`
	ModelPath       string `yaml:"modelPath"`
	Device          string `yaml:"device"`

	FlipChannels bool    `yaml:"flipChannels"`
	Rotate180    bool    `yaml:"rotate180"`
	SlopSeconds  float64 `yaml:"slopSeconds"`

	APIPort     int `yaml:"apiPort"`
	MetricsPort int `yaml:"metricsPort"`

	SegmenterURL      string `yaml:"segmenterURL"`
	CloudGeneratorURL string `yaml:"cloudGeneratorURL"`

	UseRegServer  bool   `yaml:"useRegServer"`
	RegServerHost string `yaml:"regServerHost"`
	RegServerPort int    `yaml:"regServerPort"`
}

// Load reads and parses a YAML config file, then validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate applies defaults and rejects configurations the pipeline must
// never start with.
func (c *Config) Validate() error {
	switch c.FusionMode {
	case ModeColor, ModeMax, ModeBayesian:
	default:
		return fmt.Errorf("invalid fusion mode %q", c.FusionMode)
	}
	if c.SensorWidth <= 0 || c.SensorHeight <= 0 {
		return fmt.Errorf("invalid sensor size %dx%d", c.SensorWidth, c.SensorHeight)
	}
	if c.ModelInputWidth <= 0 {
		c.ModelInputWidth = c.SensorWidth
	}
	if c.ModelInputHeight <= 0 {
		c.ModelInputHeight = c.SensorHeight
	}
	if c.NumClasses <= 0 || c.NumClasses > 256 {
		return fmt.Errorf("numClasses must be in [1,256], got %d", c.NumClasses)
	}
	for _, v := range c.ClassRemap {
		if v < 0 || v > 255 {
			return fmt.Errorf("classRemap entry %d out of range", v)
		}
	}
	if _, err := c.ExtrinsicsMatrix(); err != nil {
		return err
	}
	if c.SlopSeconds <= 0 {
		c.SlopSeconds = 0.3
	}
	if c.Device == "" {
		c.Device = "cpu"
	}
	return nil
}

// ExtrinsicsMatrix decodes the JSON-encoded extrinsics into a flat
// row-major 16-element slice. Shape errors are reported here; the rotation
// check belongs to the calibration store.
func (c *Config) ExtrinsicsMatrix() ([]float64, error) {
	var rows [][]float64
	if err := json.Unmarshal([]byte(c.Extrinsics), &rows); err != nil {
		return nil, fmt.Errorf("extrinsics are not a JSON matrix: %w", err)
	}
	if len(rows) != 4 {
		return nil, fmt.Errorf("extrinsics are the wrong shape: %d rows", len(rows))
	}
	flat := make([]float64, 0, 16)
	for _, row := range rows {
		if len(row) != 4 {
			return nil, fmt.Errorf("extrinsics are the wrong shape: row of %d", len(row))
		}
		flat = append(flat, row...)
	}
	return flat, nil
}
