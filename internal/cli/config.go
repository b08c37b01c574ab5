package cli

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the scpctl configuration.
type Config struct {
	// Target is the remote SCP endpoint, host:port.
	Target string `yaml:"target"`

	// DestAddr and DestCPU select the chip and core requests are routed to.
	DestAddr uint16 `yaml:"dest_addr"`
	DestCPU  uint8  `yaml:"dest_cpu"`

	// Transport parameters, frozen per connection.
	DataLength   int  `yaml:"data_length"`
	TimeoutMS    int  `yaml:"timeout_ms"`
	Attempts     int  `yaml:"attempts"`
	Window       int  `yaml:"window"`
	FramePadding bool `yaml:"frame_padding"`
}

// Timeout returns the per-attempt timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// DefaultPath returns the default config file path: ~/.rig-scp/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".rig-scp", "config.yaml")
	}
	return filepath.Join(home, ".rig-scp", "config.yaml")
}

// LoadConfig reads the configuration from the given YAML file path. If the
// file does not exist, it returns a default Config with no error.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Target:       "localhost:17893",
		DataLength:   256,
		TimeoutMS:    500,
		Attempts:     5,
		Window:       8,
		FramePadding: true,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
