// Package logging builds the charm logger dang writes through.
// It is configured from DANG_LOG_* environment variables and can log to a file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	filePrefix = "dang-"
	fileSuffix = "-debug.log"
)

// LoggerCloser wraps a logger and provides a Close method for cleanup
type LoggerCloser struct {
	*log.Logger
	closer io.Closer
	path   string
}

// Close closes the underlying writer if it's closeable
func (lc *LoggerCloser) Close() error {
	if lc.closer != nil {
		return lc.closer.Close()
	}
	return nil
}

// Path is the log file being written, or "" when logging to a stream.
func (lc *LoggerCloser) Path() string { return lc.path }

// Options configures a logger. The zero value logs at info level to stderr.
type Options struct {
	Level  string `yaml:"level" mapstructure:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Prefix string `yaml:"prefix" mapstructure:"prefix" json:"prefix,omitempty"`
	ToFile bool   `yaml:"to_file" mapstructure:"to_file" json:"to_file,omitempty"`
	Dir    string `yaml:"dir" mapstructure:"dir" json:"dir,omitempty"`
}

// OptionsFromEnv reads
// DANG_LOG_LEVEL: debug, info, warn, error (default: info)
// DANG_LOG_PREFIX: prefix for log messages (default: "dang ")
// DANG_LOG_TO_FILE: when set to "1", logs to a timestamped file instead of stderr
// DANG_LOG_DIR: directory for log files (default: current directory)
func OptionsFromEnv() Options {
	return Options{
		Level:  os.Getenv("DANG_LOG_LEVEL"),
		Prefix: os.Getenv("DANG_LOG_PREFIX"),
		ToFile: os.Getenv("DANG_LOG_TO_FILE") == "1",
		Dir:    os.Getenv("DANG_LOG_DIR"),
	}
}

// ParseLevel maps a level name to a charm log level. Unknown names are info.
func ParseLevel(s string) log.Level {
	switch strings.ToLower(s) {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// NewLoggerWithWriter creates a new logger with the provided writer
func NewLoggerWithWriter(w io.Writer, opts Options) *LoggerCloser {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
	lg.SetLevel(ParseLevel(opts.Level))

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "dang "
	}

	var closer io.Closer
	if c, ok := w.(io.Closer); ok && w != os.Stderr && w != os.Stdout {
		closer = c
	}

	return &LoggerCloser{
		Logger: lg.WithPrefix(prefix),
		closer: closer,
	}
}

// New creates a logger from opts. If the log file cannot be created it
// falls back to stderr.
func New(opts Options) *LoggerCloser {
	if !opts.ToFile {
		return NewLoggerWithWriter(os.Stderr, opts)
	}

	name := FileName(time.Now())
	path := filepath.Join(opts.Dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return NewLoggerWithWriter(os.Stderr, opts)
	}
	lc := NewLoggerWithWriter(f, opts)
	lc.path = path
	return lc
}

// NewLogger creates a new logger based on environment variables.
func NewLogger() *LoggerCloser {
	return New(OptionsFromEnv())
}

// FileName is the log file name for a run started at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("%s%s%s", filePrefix, t.Format("20060102-150405"), fileSuffix)
}

// Latest returns the newest dang log file in dir.
func Latest(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read log dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasPrefix(n, filePrefix) && strings.HasSuffix(n, fileSuffix) {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no %s*%s files in %s", filePrefix, fileSuffix, dir)
	}
	// The timestamp format sorts lexically.
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}

// IsDebug returns true if debug logging is enabled
func IsDebug() bool {
	return strings.EqualFold(os.Getenv("DANG_LOG_LEVEL"), "debug")
}
