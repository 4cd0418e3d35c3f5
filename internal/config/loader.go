package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"agentauth/pkg/logging"
)

const (
	userConfigDir  = ".config/agentauth"
	configFileName = "config.yaml"

	credentialsSubdir = "credentials"
)

// GetDefaultConfigPathOrPanic returns the user's agentauth config
// directory, typically ~/.config/agentauth.
func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}

	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads configuration from the given directory. A missing
// config.yaml is not an error: defaults apply. Path-valued fields left
// empty are resolved relative to the config directory.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			config.resolvePaths(configPath)
			return config, nil
		}
		logging.Info("ConfigLoader", "Error loading config.yaml from %s: %s", configFilePath, err)
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		// config malformed
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}

	config.resolvePaths(configPath)
	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}

func (c *Config) resolvePaths(configPath string) {
	if c.Store.Directory == "" {
		c.Store.Directory = filepath.Join(configPath, credentialsSubdir)
	}
}
