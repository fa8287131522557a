package logger

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds logging configuration
type Config struct {
	Level          string `yaml:"level"`
	ConsoleEnabled bool   `yaml:"console_enabled"`
	ConsoleFormat  string `yaml:"console_format"`
	FileEnabled    bool   `yaml:"file_enabled"`
	FilePath       string `yaml:"file_path"`
	FileFormat     string `yaml:"file_format"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb"`
	FileMaxBackups int    `yaml:"file_max_backups"`
	FileMaxAgeDays int    `yaml:"file_max_age_days"`
}

type fileConfig struct {
	Logging struct {
		Level          string `yaml:"level"`
		ConsoleEnabled *bool  `yaml:"console_enabled"`
		ConsoleFormat  string `yaml:"console_format"`
		FileEnabled    *bool  `yaml:"file_enabled"`
		FilePath       string `yaml:"file_path"`
		FileFormat     string `yaml:"file_format"`
		FileMaxSizeMB  int    `yaml:"file_max_size_mb"`
		FileMaxBackups int    `yaml:"file_max_backups"`
		FileMaxAgeDays int    `yaml:"file_max_age_days"`
	} `yaml:"logging"`
}

// DefaultConfig logs INFO text to the console only.
func DefaultConfig() Config {
	return Config{
		Level:          "INFO",
		ConsoleEnabled: true,
		ConsoleFormat:  "text",
		FileEnabled:    false,
		FilePath:       "logs/chat-client.log",
		FileFormat:     "text",
		FileMaxSizeMB:  10,
		FileMaxBackups: 5,
		FileMaxAgeDays: 30,
	}
}

// LoadConfig loads the logging section of a YAML file on top of the defaults
// and applies LOG_* environment overrides. A missing or unreadable file is not
// an error.
func LoadConfig(configPath string) (Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			var fc fileConfig
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return config, err
			}
			l := fc.Logging
			if l.Level != "" {
				config.Level = l.Level
			}
			if l.ConsoleEnabled != nil {
				config.ConsoleEnabled = *l.ConsoleEnabled
			}
			if l.ConsoleFormat != "" {
				config.ConsoleFormat = l.ConsoleFormat
			}
			if l.FileEnabled != nil {
				config.FileEnabled = *l.FileEnabled
			}
			if l.FilePath != "" {
				config.FilePath = l.FilePath
			}
			if l.FileFormat != "" {
				config.FileFormat = l.FileFormat
			}
			if l.FileMaxSizeMB > 0 {
				config.FileMaxSizeMB = l.FileMaxSizeMB
			}
			if l.FileMaxBackups > 0 {
				config.FileMaxBackups = l.FileMaxBackups
			}
			if l.FileMaxAgeDays > 0 {
				config.FileMaxAgeDays = l.FileMaxAgeDays
			}
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Level = level
	}
	if format := os.Getenv("LOG_CONSOLE_FORMAT"); format != "" {
		config.ConsoleFormat = format
	}
	if fileEnabled := os.Getenv("LOG_FILE_ENABLED"); fileEnabled != "" {
		if enabled, err := strconv.ParseBool(fileEnabled); err == nil {
			config.FileEnabled = enabled
		}
	}
	if path := os.Getenv("LOG_FILE_PATH"); path != "" {
		config.FilePath = path
	}

	return config, nil
}
