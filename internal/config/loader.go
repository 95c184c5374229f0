package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the working and home directories.
const FileName = ".dang"

// FlagKeys maps command line flags to the config keys they override.
var FlagKeys = map[string]string{
	"host":          "server.host",
	"port":          "server.port",
	"wave":          "wave.path",
	"mapping":       "wave.mapping",
	"builtin":       "wave.builtin",
	"elf":           "elf.path",
	"poll-interval": "runtime.poll_interval",
	"cache-size":    "runtime.cache_size",
	"first-pc":      "runtime.first_pc",
	"log-level":     "log.level",
}

var envKeys = []string{
	"server.host", "server.port",
	"wave.path", "wave.mapping", "wave.builtin",
	"elf.path",
	"runtime.poll_interval", "runtime.cache_size", "runtime.first_pc",
	"log.level", "log.prefix", "log.to_file", "log.dir",
}

// Loader provides configuration loading capabilities.
type Loader struct {
	rootDir    string
	configFile string
	flags      *pflag.FlagSet
}

type LoaderOption func(*Loader)

// WithConfigFile reads exactly path instead of searching for .dang.yaml.
func WithConfigFile(path string) LoaderOption {
	return func(l *Loader) { l.configFile = path }
}

// WithFlags lets changed flags named in FlagKeys override everything else.
func WithFlags(fs *pflag.FlagSet) LoaderOption {
	return func(l *Loader) { l.flags = fs }
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string, opts ...LoaderOption) *Loader {
	l := &Loader{rootDir: rootDir}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Command line flags
// 2. Environment variables (DANG_*)
// 3. Config file (--config, else .dang.yaml in the root or home directory)
// 4. Default values
func (l *Loader) Load() (*Config, error) {
	v := viper.New()

	if l.configFile != "" {
		path, err := homedir.Expand(l.configFile)
		if err != nil {
			return nil, fmt.Errorf("expand config path: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(l.rootDir)
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	v.SetEnvPrefix("DANG")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if l.flags != nil {
		for name, key := range FlagKeys {
			f := l.flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag --%s: %w", name, err)
			}
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// A missing .dang.yaml is fine; a missing --config file is not.
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := expandPaths(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("server.host", defaults.Server.Host)
	v.SetDefault("server.port", defaults.Server.Port)

	v.SetDefault("wave.path", defaults.Wave.Path)
	v.SetDefault("wave.mapping", defaults.Wave.Mapping)
	v.SetDefault("wave.builtin", defaults.Wave.Builtin)

	v.SetDefault("elf.path", defaults.ELF.Path)

	v.SetDefault("runtime.poll_interval", defaults.Runtime.PollInterval)
	v.SetDefault("runtime.cache_size", defaults.Runtime.CacheSize)
	v.SetDefault("runtime.first_pc", defaults.Runtime.FirstPC)

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.prefix", defaults.Log.Prefix)
	v.SetDefault("log.to_file", defaults.Log.ToFile)
	v.SetDefault("log.dir", defaults.Log.Dir)
}

// expandPaths resolves a leading ~ in every path setting.
func expandPaths(cfg *Config) error {
	for _, p := range []*string{&cfg.Wave.Path, &cfg.Wave.Mapping, &cfg.ELF.Path, &cfg.Log.Dir} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expand %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}
