package udt

import (
	_ "embed" // required for embedding the default config file
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config_default.yaml
var defaultConfigYAML []byte

// Config controls a Socket's wire parameters, congestion policy, and
// logging/metrics endpoints. Load one from a file with LoadConfig, or start
// from DefaultConfig and override individual fields.
type Config struct {
	Listen           string   `yaml:"Listen"`           // address to bind the UDP PacketConn to
	MaxPacketSize    uint     `yaml:"MaxPacketSize"`    // read but not applied; encoding always uses packet.MaxPacketSize
	MaxFlowWindow    uint     `yaml:"MaxFlowWindow"`    // max unacknowledged packets per Connection
	SynInterval      Duration `yaml:"SynInterval"`      // used only by the "fixed" policy; the Socket's sync tick and the native policy use 10ms
	CongestionPolicy string   `yaml:"CongestionPolicy"` // "native" or "fixed"
	LogLevel         string   `yaml:"LogLevel"`         // logrus level name
	LogFile          string   `yaml:"LogFile"`          // empty means stderr
	MetricsListen    string   `yaml:"MetricsListen"`    // read but not applied; nothing in this module serves metrics over HTTP
}

// Duration wraps time.Duration so it can be read from YAML as a string like
// "10ms", since yaml.v3 has no native Duration support.
type Duration time.Duration

// UnmarshalYAML parses a duration string (anything time.ParseDuration
// accepts) into d.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders d back to its string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// DefaultConfig returns the configuration embedded in this package at build
// time, the same values LoadConfig falls back to for a missing file.
func DefaultConfig() (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(defaultConfigYAML, &c); err != nil {
		return nil, fmt.Errorf("config: parse embedded default: %w", err)
	}
	return &c, nil
}

// LoadConfig reads and parses a YAML configuration file. A missing or empty
// file is not an error: it falls back to the embedded default.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	switch {
	case err == nil && len(data) == 0:
		data = defaultConfigYAML
	case err != nil && os.IsNotExist(err):
		data = defaultConfigYAML
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", filename, err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", filename, err)
	}
	return &c, nil
}

// Policy resolves CongestionPolicy into a CongestionPolicy constructor
// usable by NewSocket.
func (c *Config) Policy() (CongestionPolicy, error) {
	switch c.CongestionPolicy {
	case "", "native":
		return func() congestionControl { return newNativeCongestionControl() }, nil
	case "fixed":
		period := time.Duration(c.SynInterval) / 10
		return func() congestionControl {
			return newFixedRateCongestionControl(period, time.Duration(c.SynInterval))
		}, nil
	default:
		return nil, fmt.Errorf("config: unknown congestion policy %q", c.CongestionPolicy)
	}
}
