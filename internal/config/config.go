// This file defines the configuration structure for the application.
package config

import (
	// use Viper for loading the config.yml file.
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port     int `mapstructure:"port"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Plugins struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"plugins"`
	Storage struct {
		Prefix string `mapstructure:"prefix"`
	} `mapstructure:"storage"`
	App struct {
		Version string `mapstructure:"version"`
	} `mapstructure:"app"`
	Repositories struct {
		// CacheTTL is the catalog staleness window in seconds.
		CacheTTL int                `mapstructure:"cache_ttl"`
		Official OfficialRepository `mapstructure:"official"`
	} `mapstructure:"repositories"`
	Transport struct {
		Timeout      int `mapstructure:"timeout"`       // seconds
		ProbeTimeout int `mapstructure:"probe_timeout"` // seconds
		Retries      int `mapstructure:"retries"`
		RetryBackoff int `mapstructure:"retry_backoff"` // milliseconds
	} `mapstructure:"transport"`
	Updates struct {
		CheckAutomatically bool  `mapstructure:"check_automatically"`
		CheckInterval      int64 `mapstructure:"check_interval"` // milliseconds
		AutoUpdate         bool  `mapstructure:"auto_update"`
		Notifications      bool  `mapstructure:"notifications"`
	} `mapstructure:"updates"`
	Sync struct {
		Interval int `mapstructure:"interval"` // minutes, 0 disables
	} `mapstructure:"sync"`
}

// OfficialRepository describes the built-in repository seeded on first start.
type OfficialRepository struct {
	ID          string `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	URL         string `mapstructure:"url"`
	APIEndpoint string `mapstructure:"api_endpoint"`
	Description string `mapstructure:"description"`
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")    // or "yaml"
	v.AddConfigPath(".")      // looking for config in the current directory

	// --- Environment Variable Overrides ---
	// e.g., PLUGINHUB_DATABASE_PATH will override the `database.path` key.
	v.SetEnvPrefix("PLUGINHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error and use defaults
		} else {
			// Config file was found but another error was produced
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("database.path", "./pluginhub.db")
	v.SetDefault("plugins.path", "./plugins")
	v.SetDefault("storage.prefix", "plugin_system")
	v.SetDefault("app.version", "1.0.0")

	v.SetDefault("repositories.cache_ttl", 3600)
	v.SetDefault("repositories.official.id", "official")
	v.SetDefault("repositories.official.name", "Official Repository")
	v.SetDefault("repositories.official.url", "https://plugins.kalendo.app")
	v.SetDefault("repositories.official.api_endpoint", "https://plugins.kalendo.app/api")
	v.SetDefault("repositories.official.description", "Plugins published and reviewed by the calendar team")

	v.SetDefault("transport.timeout", 30)
	v.SetDefault("transport.probe_timeout", 5)
	v.SetDefault("transport.retries", 2)
	v.SetDefault("transport.retry_backoff", 500)

	v.SetDefault("updates.check_automatically", true)
	v.SetDefault("updates.check_interval", 86400000)
	v.SetDefault("updates.auto_update", false)
	v.SetDefault("updates.notifications", true)

	v.SetDefault("sync.interval", 60)
}

// Default returns a Config populated only with default values. It never
// reads the environment or a config file.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var config Config
	// Defaults always decode cleanly into Config.
	_ = v.Unmarshal(&config)
	return &config
}
