package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeProfile()
	c.normalizeCatalog()
	c.normalizeNarrator()
	c.normalizeNotifications()
	c.SM2.Timezone = strings.TrimSpace(c.SM2.Timezone)
	if c.SM2.Timezone == "" {
		c.SM2.Timezone = defaultSM2Timezone
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DatabasePath) == "" {
		c.Paths.DatabasePath = filepath.Join(c.Paths.StateDir, defaultDatabaseName)
	}
	if c.Paths.DatabasePath, err = expandPath(c.Paths.DatabasePath); err != nil {
		return fmt.Errorf("paths.database_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "console", "json":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeProfile() {
	c.Profile.Weighting = strings.ToLower(strings.TrimSpace(c.Profile.Weighting))
	if c.Profile.Weighting == "" {
		c.Profile.Weighting = defaultWeighting
	}
}

func (c *Config) normalizeCatalog() {
	c.Catalog.Provider = strings.ToLower(strings.TrimSpace(c.Catalog.Provider))
	if c.Catalog.Provider == "" {
		c.Catalog.Provider = defaultCatalogProvider
	}
	c.Catalog.BaseURL = strings.TrimRight(strings.TrimSpace(c.Catalog.BaseURL), "/")
	c.Catalog.APIKey = strings.TrimSpace(c.Catalog.APIKey)
	if c.Catalog.APIKey == "" {
		if value, ok := os.LookupEnv("SHELFMIND_CATALOG_API_KEY"); ok {
			c.Catalog.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Catalog.FilePath != "" {
		if expanded, err := expandPath(c.Catalog.FilePath); err == nil {
			c.Catalog.FilePath = expanded
		}
	}
	if c.Catalog.TimeoutSeconds <= 0 {
		c.Catalog.TimeoutSeconds = defaultCatalogTimeout
	}
	if c.Catalog.Concurrency <= 0 {
		c.Catalog.Concurrency = defaultCatalogConcurrency
	}
}

func (c *Config) normalizeNarrator() {
	c.Narrator.Provider = strings.ToLower(strings.TrimSpace(c.Narrator.Provider))
	if c.Narrator.Provider == "" {
		c.Narrator.Provider = defaultNarratorProvider
	}
	c.Narrator.APIKey = strings.TrimSpace(c.Narrator.APIKey)
	if c.Narrator.APIKey == "" {
		if value, ok := os.LookupEnv("SHELFMIND_LLM_API_KEY"); ok {
			c.Narrator.APIKey = strings.TrimSpace(value)
		}
	}
	c.Narrator.Model = strings.TrimSpace(c.Narrator.Model)
	if c.Narrator.Model == "" {
		switch c.Narrator.Provider {
		case "openai":
			c.Narrator.Model = defaultOpenAIModel
		case "ollama":
			c.Narrator.Model = defaultOllamaModel
		}
	}
	c.Narrator.BaseURL = strings.TrimSpace(c.Narrator.BaseURL)
	if c.Narrator.TimeoutSeconds <= 0 {
		c.Narrator.TimeoutSeconds = defaultNarratorTimeout
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("SHELFMIND_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyRequestTimeout
	}
}
