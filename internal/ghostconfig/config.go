// Package ghostconfig loads Ghost's layered configuration (environment
// variables, a YAML file, and process-registration overrides) via
// viper, grounded on the teacher's cmd/bd config command's use of
// spf13/viper for settings that flow from multiple sources.
package ghostconfig

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ProcessOptions are the per-entry registration-time options named in
// spec.md §6's configuration table.
type ProcessOptions struct {
	IsService          bool          `mapstructure:"isService"`
	AutoGhostFather    bool          `mapstructure:"autoGhostFather"`
	AutoMonitor        bool          `mapstructure:"autoMonitor"`
	AutoRestart        bool          `mapstructure:"autoRestart"`
	MaxRestartAttempts int           `mapstructure:"maxRestartAttempts"`
	TickInterval       time.Duration `mapstructure:"tickIntervalSeconds"`
	EnableFallback     bool          `mapstructure:"enableFallback"`
	EnableDiagnostics  bool          `mapstructure:"enableDiagnostics"`
}

// Config is ghostd's/ghost's fully resolved configuration.
type Config struct {
	InstallRoot        string `mapstructure:"install_root"`
	Environment        string `mapstructure:"environment"`
	RedisConnection    string `mapstructure:"redis_connection"`
	PostgresConnection string `mapstructure:"postgres_connection"`

	CacheBackend string `mapstructure:"cache_backend"` // memory|disk|redis
	BusBackend   string `mapstructure:"bus_backend"`   // local|remote

	EnableEncryption bool   `mapstructure:"enable_encryption"`
	EncryptionKey    string `mapstructure:"encryption_key"`
	EnableRetry      bool   `mapstructure:"enable_retry"`
	UseL1Cache       bool   `mapstructure:"use_l1_cache"`
	EnableMetrics    bool   `mapstructure:"enable_metrics"`

	Process ProcessOptions `mapstructure:"process"`
}

// Load resolves Config from (in increasing priority): built-in
// defaults, a YAML file at configPath (if it exists), then the
// GHOST_-prefixed environment variables named in spec.md §6.
func Load(configPath string) (Config, error) {
	v := viper.New()

	v.SetDefault("install_root", defaultInstallRoot())
	v.SetDefault("environment", "development")
	v.SetDefault("cache_backend", "memory")
	v.SetDefault("bus_backend", "local")
	v.SetDefault("enable_retry", true)
	v.SetDefault("use_l1_cache", true)
	v.SetDefault("enable_metrics", true)
	v.SetDefault("process.tickIntervalSeconds", 30*time.Second)
	v.SetDefault("process.maxRestartAttempts", 0)
	v.SetDefault("process.enableDiagnostics", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, err
			}
		}
	}

	v.SetEnvPrefix("GHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("install_root", "GHOST_INSTALL")
	_ = v.BindEnv("redis_connection", "GHOST_REDIS_CONNECTION")
	_ = v.BindEnv("postgres_connection", "GHOST_POSTGRES_CONNECTION")
	_ = v.BindEnv("environment", "GHOST_ENV")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultInstallRoot() string {
	return "/var/lib/ghost"
}

// Dump renders cfg as YAML, for `ghost config` diagnostic output.
func (c Config) Dump() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
