package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// defaultFile mirrors the keys Load reads via viper, in the order a
// hand-edited file would read naturally. Grounded on the teacher's
// config.SaveDefaultConfig/cmd/greg's `config init` command.
type defaultFile struct {
	ToolConcatPath         string            `yaml:"tool_concat_path,omitempty"`
	MaxConcurrentDownloads int               `yaml:"max_concurrent_downloads"`
	MaxConcurrentTasks     int               `yaml:"max_concurrent_tasks"`
	RequestTimeoutSeconds  float64           `yaml:"request_timeout_seconds"`
	ResourceTimeoutSeconds float64           `yaml:"resource_timeout_seconds"`
	RetryAttempts          int               `yaml:"retry_attempts"`
	RetryBackoffBaseSec    float64           `yaml:"retry_backoff_base_seconds"`
	MinFreeSpaceMB         int               `yaml:"min_free_space_mb"`
	LogLevel               string            `yaml:"log_level"`
	LogFormat              string            `yaml:"log_format"`
	LogFile                string            `yaml:"log_file,omitempty"`
	Headers                map[string]string `yaml:"headers,omitempty"`
}

// SaveDefault writes performance_defaults() to path as YAML, failing
// if the file already exists.
func SaveDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return os.ErrExist
	}

	c := PerformanceDefaults()
	out := defaultFile{
		ToolConcatPath:         c.ToolConcatPath,
		MaxConcurrentDownloads: c.MaxConcurrentDownloads,
		MaxConcurrentTasks:     c.MaxConcurrentTasks,
		RequestTimeoutSeconds:  c.RequestTimeout.Seconds(),
		ResourceTimeoutSeconds: c.ResourceTimeout.Seconds(),
		RetryAttempts:          c.RetryAttempts,
		RetryBackoffBaseSec:    c.RetryBackoffBase.Seconds(),
		MinFreeSpaceMB:         0,
		LogLevel:               c.Logging.Level.String(),
		LogFormat:              c.Logging.Format,
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o640)
}
