// Package config resolves taskdeck configuration from flags, environment
// variables and an optional config file, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	configName = ".taskdeck"
	envPrefix  = "TASKDECK"
)

// Config is the fully resolved application configuration.
type Config struct {
	Data struct {
		Dir    string `mapstructure:"dir"`
		File   string `mapstructure:"file"`
		Format string `mapstructure:"format"`
	} `mapstructure:"data"`
	Backup struct {
		MaxVersions  int `mapstructure:"maxVersions"`
		MaxDailyDays int `mapstructure:"maxDailyDays"`
	} `mapstructure:"backup"`
	Undo struct {
		MaxEntries    int    `mapstructure:"maxEntries"`
		RetentionDays int    `mapstructure:"retentionDays"`
		Store         string `mapstructure:"store"` // "file" or "sqlite"
	} `mapstructure:"undo"`
	Watch struct {
		Debounce     time.Duration `mapstructure:"debounce"`
		PollInterval time.Duration `mapstructure:"pollInterval"`
	} `mapstructure:"watch"`
	Lock struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"lock"`
	LogLevel string `mapstructure:"logLevel"`
	Verbose  bool   `mapstructure:"verbose"`
}

// GetBaseDir returns the directory holding the live store, backups and lock
// files. It is a variable so tests can override it.
var GetBaseDir = func() string {
	if dir := viper.GetString("data.dir"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskdeck"
	}
	return filepath.Join(home, ".taskdeck")
}

// SetDefaults registers the default values for every known key.
func SetDefaults() {
	viper.SetDefault("data.file", "tasks.json")
	viper.SetDefault("data.format", "json")
	viper.SetDefault("backup.maxVersions", 10)
	viper.SetDefault("backup.maxDailyDays", 7)
	viper.SetDefault("undo.maxEntries", 50)
	viper.SetDefault("undo.retentionDays", 30)
	viper.SetDefault("undo.store", "file")
	viper.SetDefault("watch.debounce", 150*time.Millisecond)
	viper.SetDefault("watch.pollInterval", 2*time.Second)
	viper.SetDefault("lock.timeout", 5*time.Second)
	viper.SetDefault("logLevel", "warn")
}

// Init reads in the config file and environment variables. It is wired into
// cobra.OnInitialize by the command layer.
func Init() {
	// A .env file is optional; absence is not an error.
	_ = godotenv.Load()

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(configName)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintln(os.Stderr, "Error reading config file:", viper.ConfigFileUsed(), "-", err)
		}
	} else if viper.GetBool("verbose") {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	SetDefaults()
}

// Load unmarshals the resolved configuration.
func Load() (Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// StorePath returns the full path of the live store file.
func StorePath(cfg Config) string {
	dir := cfg.Data.Dir
	if dir == "" {
		dir = GetBaseDir()
	}
	name := cfg.Data.File
	if name == "" {
		name = "tasks." + cfg.Data.Format
	}
	return filepath.Join(dir, name)
}
