// Package config loads the tool settings shared by every command.
// Values come from, in increasing priority: built-in defaults, the config
// file ($HOME/.galtools.yaml or --config), GALTOOLS_* environment variables
// and command-line flags bound onto the same keys.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hansbonini/galtools/pkg/common"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes the environment variables, e.g. GALTOOLS_WORKERS
	EnvPrefix = "GALTOOLS"
	// FileName is the default config file name, looked up in the home directory
	FileName = ".galtools"
)

// Keys
const (
	KeyVerbose     = "verbose"
	KeyLogFile     = "log_file"
	KeyWorkers     = "workers"
	KeyStrict      = "strict"
	KeyUnpackAll   = "unpack.all"
	KeyUnpackSniff = "unpack.sniff"
)

// Config holds the resolved settings
type Config struct {
	Verbose bool         `mapstructure:"verbose"`
	LogFile string       `mapstructure:"log_file"`
	Workers int          `mapstructure:"workers"`
	Strict  bool         `mapstructure:"strict"`
	Unpack  UnpackConfig `mapstructure:"unpack"`
}

// UnpackConfig controls how containers are unpacked
type UnpackConfig struct {
	// All writes placeholder files for container gaps
	All bool `mapstructure:"all"`
	// Sniff unpacks recognised containers when a project is created
	Sniff bool `mapstructure:"sniff"`
}

// Validate checks the settings for values no command accepts
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be zero or positive, got %d", c.Workers)
	}
	return nil
}

// New returns a viper instance reading files through fs, with the defaults
// and the environment binding in place
func New(fs afero.Fs) *viper.Viper {
	v := viper.New()
	v.SetFs(fs)

	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyWorkers, 0)
	v.SetDefault(KeyStrict, false)
	v.SetDefault(KeyUnpackAll, false)
	v.SetDefault(KeyUnpackSniff, false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds every flag of the set whose name matches a key. Flag
// names use dashes where keys use underscores or dots.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		key := keyForFlag(f.Name)
		if key == "" || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(key, f)
	})
	return bindErr
}

func keyForFlag(name string) string {
	switch name {
	case "verbose":
		return KeyVerbose
	case "log-file":
		return KeyLogFile
	case "workers":
		return KeyWorkers
	case "strict":
		return KeyStrict
	case "all":
		return KeyUnpackAll
	case "unpack":
		return KeyUnpackSniff
	}
	return ""
}

// Load reads the config file and resolves the settings. An explicit path
// must exist; without one a missing $HOME/.galtools.yaml is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		common.LogDebug(common.DebugConfigLoaded, v.ConfigFileUsed())
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
