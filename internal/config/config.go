// Package config loads dang settings from flags, DANG_* environment
// variables, a YAML file and built-in defaults.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"dang/internal/disasm"
	"dang/internal/logging"
	"dang/internal/replay"
	"dang/internal/signals"
)

// Config represents the complete dang configuration.
// It can be loaded from .dang.yaml with environment variable overrides.
type Config struct {
	Server  ServerConfig    `yaml:"server" mapstructure:"server" json:"server"`
	Wave    WaveConfig      `yaml:"wave" mapstructure:"wave" json:"wave"`
	ELF     ELFConfig       `yaml:"elf" mapstructure:"elf" json:"elf"`
	Runtime RuntimeConfig   `yaml:"runtime" mapstructure:"runtime" json:"runtime"`
	Log     logging.Options `yaml:"log" mapstructure:"log" json:"log"`
}

// ServerConfig is where the GDB server listens.
type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host" json:"host" jsonschema:"title=Host,description=Address the GDB server binds"`
	Port int    `yaml:"port" mapstructure:"port" json:"port" jsonschema:"title=Port,minimum=0,maximum=65535"`
}

// Addr is host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WaveConfig selects the waveform and how its signals are found.
type WaveConfig struct {
	Path    string `yaml:"path" mapstructure:"path" json:"path,omitempty" jsonschema:"title=Waveform,description=VCD file (optionally gzipped)"`
	Mapping string `yaml:"mapping" mapstructure:"mapping" json:"mapping,omitempty" jsonschema:"title=Mapping file,description=YAML signal mapping; overrides builtin"`
	Builtin string `yaml:"builtin" mapstructure:"builtin" json:"builtin" jsonschema:"title=Builtin mapping,enum=ibex,enum=ibex-raw"`
}

// LoadMapping returns the mapping file if one is set, else the builtin.
func (w WaveConfig) LoadMapping() (*signals.Mapping, error) {
	if w.Mapping != "" {
		return signals.LoadMapping(w.Mapping)
	}
	return signals.Builtin(w.Builtin)
}

// ELFConfig names the simulated program.
type ELFConfig struct {
	Path string `yaml:"path" mapstructure:"path" json:"path,omitempty" jsonschema:"title=ELF,description=The 32-bit RISC-V program that was simulated"`
}

// RuntimeConfig tunes the replay.
type RuntimeConfig struct {
	PollInterval int    `yaml:"poll_interval" mapstructure:"poll_interval" json:"poll_interval" jsonschema:"minimum=1,description=Steps between checks for debugger input while continuing"`
	CacheSize    int    `yaml:"cache_size" mapstructure:"cache_size" json:"cache_size" jsonschema:"minimum=1,description=Decoded instructions kept in memory"`
	FirstPC      string `yaml:"first_pc" mapstructure:"first_pc" json:"first_pc,omitempty" jsonschema:"description=Hex address replay starts at; defaults to _start/main/entry of the ELF"`
}

// ParseFirstPC returns the first pc override. ok is false when none is set.
func (r RuntimeConfig) ParseFirstPC() (pc uint32, ok bool, err error) {
	s := strings.TrimSpace(r.FirstPC)
	if s == "" {
		return 0, false, nil
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, false, fmt.Errorf("%w: first_pc %q is not a 32-bit hex address", ErrInvalidRuntime, r.FirstPC)
	}
	return uint32(v), true, nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 9001,
		},
		Wave: WaveConfig{
			Builtin: "ibex",
		},
		Runtime: RuntimeConfig{
			PollInterval: replay.DefaultPollInterval,
			CacheSize:    disasm.DefaultCacheSize,
		},
		Log: logging.Options{
			Level:  "info",
			Prefix: "dang ",
		},
	}
}
