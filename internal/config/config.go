package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go-twitch-archive/internal/models"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// LoadConfig reads the configuration from the specified path (defaulting to
// "config.toml") and populates a models.Config struct.
// It returns the loaded config and any error encountered.
func LoadConfig(configFilePath string) (models.Config, error) {
	if configFilePath == "" {
		configFilePath = "config.toml" // Default path
	}
	var cfg models.Config
	_, err := toml.DecodeFile(configFilePath, &cfg)
	if err != nil {
		return models.Config{}, fmt.Errorf("error loading config file %s: %w", configFilePath, err)
	}

	if cfg.ClientID == "" {
		log.Warn("Warning: ClientID is not set in config.toml; channel listing will fail")
	}
	if cfg.SavePath == "" {
		log.Warn("Warning: SavePath is not set in config.toml")
	}
	if cfg.DatabasePath == "" {
		log.Warn("Warning: DatabasePath is not set in config.toml")
	}

	log.Infof("Configuration loaded from %s", configFilePath)
	return cfg, nil
}

// SaveConfig writes the configuration back to disk, creating parent
// directories as needed. Credentials and the default download directory are
// persisted through this.
func SaveConfig(configFilePath string, cfg models.Config) error {
	if configFilePath == "" {
		configFilePath = "config.toml"
	}

	dir := filepath.Dir(configFilePath)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating config directory %s: %w", dir, err)
		}
	}

	f, err := os.OpenFile(configFilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening config file %s for write: %w", configFilePath, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config to %s: %w", configFilePath, err)
	}

	log.Infof("Configuration saved to %s", configFilePath)
	return nil
}
