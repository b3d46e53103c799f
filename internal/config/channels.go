package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ChannelsConfig is the structure of the optional channels.yaml file.
// Channels beyond the built-in default are easier to manage in YAML
// than in environment variables.
type ChannelsConfig struct {
	Channels []ChannelConfig `yaml:"channels"`
}

// ChannelConfig defines one scoring channel.
type ChannelConfig struct {
	Name          string `yaml:"name"`
	Description   string `yaml:"description,omitempty"`
	ClassifierURL string `yaml:"classifier_url,omitempty"` // empty: use the default classifier
	Enabled       bool   `yaml:"enabled"`
}

// LoadChannels loads the channel definitions file. Path comes from the
// CHANNELS_FILE env var, defaulting to "channels.yaml". A missing file is
// not an error; the caller falls back to the single default channel.
func LoadChannels() (*ChannelsConfig, error) {
	path := getEnv("CHANNELS_FILE", "channels.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var cfg ChannelsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return &cfg, nil
}

// EnabledNames returns the names of all enabled channels.
func (c *ChannelsConfig) EnabledNames() []string {
	var names []string
	for _, ch := range c.Channels {
		if ch.Enabled {
			names = append(names, ch.Name)
		}
	}
	return names
}
