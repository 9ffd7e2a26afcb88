package config

import (
	"os"
	"path/filepath"
	"time"
)

// ClientConfig holds settings for the bookreview terminal client.
type ClientConfig struct {
	APIBaseURL     string
	ConfigDir      string
	RequestTimeout time.Duration
}

// LoadClientConfig constructs a ClientConfig from environment variables.
func LoadClientConfig() ClientConfig {
	dir := GetString("BOOKREVIEW_CONFIG_DIR", "")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".bookreview")
		} else {
			dir = ".bookreview"
		}
	}
	return ClientConfig{
		APIBaseURL:     GetString("BOOKREVIEW_API", "http://localhost:3000"),
		ConfigDir:      dir,
		RequestTimeout: time.Duration(GetInt("BOOKREVIEW_TIMEOUT_SECONDS", 15)) * time.Second,
	}
}
