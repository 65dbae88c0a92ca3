package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration, loaded from YAML with environment
// variable overrides on top.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Quotes struct {
		BaseURL    string `yaml:"base_url"`
		TimeoutSec int    `yaml:"timeout_sec"`
	} `yaml:"quotes"`
	Race struct {
		CountdownSeconds int `yaml:"countdown_seconds"`
	} `yaml:"race"`
}

func defaultConfig() *Config {
	var cfg Config
	cfg.Server.Port = "3001"
	cfg.Quotes.BaseURL = "https://zenquotes.io"
	cfg.Quotes.TimeoutSec = 5
	cfg.Race.CountdownSeconds = 5
	return &cfg
}

func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Quotes.BaseURL = getEnv("QUOTE_API_URL", cfg.Quotes.BaseURL)
	cfg.Quotes.TimeoutSec = getEnvAsInt("QUOTE_TIMEOUT_SEC", cfg.Quotes.TimeoutSec)
	cfg.Race.CountdownSeconds = getEnvAsInt("COUNTDOWN_SECONDS", cfg.Race.CountdownSeconds)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
