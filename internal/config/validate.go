package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"dang/internal/signals"
)

var (
	// ErrInvalidServer indicates a bad listen address
	ErrInvalidServer = errors.New("invalid server settings")

	// ErrInvalidWave indicates a bad waveform or mapping selection
	ErrInvalidWave = errors.New("invalid wave settings")

	// ErrInvalidRuntime indicates bad replay tuning
	ErrInvalidRuntime = errors.New("invalid runtime settings")

	// ErrInvalidLog indicates a bad log level
	ErrInvalidLog = errors.New("invalid log settings")

	// ErrMissingInput indicates a command needs a file that is not configured
	ErrMissingInput = errors.New("missing input")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateWave(&cfg.Wave)...)
	errs = append(errs, validateRuntime(&cfg.Runtime)...)

	switch strings.ToLower(cfg.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("%w: level must be debug, info, warn or error, got %q", ErrInvalidLog, cfg.Log.Level))
	}
	return joinErrors(errs)
}

func validateServer(cfg *ServerConfig) []error {
	var errs []error
	if strings.TrimSpace(cfg.Host) == "" {
		errs = append(errs, fmt.Errorf("%w: host is required", ErrInvalidServer))
	}
	// Port 0 asks the kernel for a free port.
	if cfg.Port < 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: port must be 0..65535, got %d", ErrInvalidServer, cfg.Port))
	}
	return errs
}

func validateWave(cfg *WaveConfig) []error {
	if cfg.Mapping != "" {
		return nil
	}
	if !slices.Contains(signals.BuiltinNames(), cfg.Builtin) {
		return []error{fmt.Errorf("%w: unknown builtin mapping %q (valid: %s)", ErrInvalidWave, cfg.Builtin, strings.Join(signals.BuiltinNames(), ", "))}
	}
	return nil
}

func validateRuntime(cfg *RuntimeConfig) []error {
	var errs []error
	if cfg.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: poll_interval must be positive, got %d", ErrInvalidRuntime, cfg.PollInterval))
	}
	if cfg.CacheSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: cache_size must be positive, got %d", ErrInvalidRuntime, cfg.CacheSize))
	}
	if _, _, err := cfg.ParseFirstPC(); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// RequireWave fails unless a waveform path is configured.
func (c *Config) RequireWave() error {
	if c.Wave.Path == "" {
		return fmt.Errorf("%w: no waveform given (argument, --wave or wave.path)", ErrMissingInput)
	}
	return nil
}

// RequireELF fails unless an ELF path is configured.
func (c *Config) RequireELF() error {
	if c.ELF.Path == "" {
		return fmt.Errorf("%w: no ELF given (--elf or elf.path)", ErrMissingInput)
	}
	return nil
}

// joinErrors combines multiple errors into a single error with clear formatting.
// The result still matches every sentinel with errors.Is.
func joinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	return &validationError{errs: errs}
}

type validationError struct {
	errs []error
}

func (e *validationError) Error() string {
	msgs := make([]string, len(e.errs))
	for i, err := range e.errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

func (e *validationError) Unwrap() []error { return e.errs }
