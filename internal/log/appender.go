package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	AppenderConsole = "console"
	AppenderFile    = "file"
)

// AppenderConfig names an appender type and its type-specific options.
type AppenderConfig struct {
	Type    string                 `mapstructure:"type"`
	Options map[string]interface{} `mapstructure:"options"`
}

// ConsoleOptions configures the console appender.
type ConsoleOptions struct {
	Stream string `mapstructure:"stream"` // stderr (default) | stdout
}

// FileOptions configures a rotating file appender.
type FileOptions struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MultiWriter fans every log line out to all appenders. A failing appender
// does not stop the others.
type MultiWriter struct {
	writers []io.Writer
}

func NewMultiWriter() *MultiWriter {
	return &MultiWriter{}
}

func (m *MultiWriter) Write(p []byte) (int, error) {
	var last error
	for _, w := range m.writers {
		if _, err := w.Write(p); err != nil {
			last = err
		}
	}
	return len(p), last
}

func (m *MultiWriter) Add(w io.Writer) *MultiWriter {
	m.writers = append(m.writers, w)
	return m
}

// AddAppender decodes cfg.Options for the appender type and adds its writer.
func (m *MultiWriter) AddAppender(cfg AppenderConfig) error {
	switch strings.ToLower(cfg.Type) {
	case "", AppenderConsole:
		var opt ConsoleOptions
		if err := mapstructure.Decode(cfg.Options, &opt); err != nil {
			return fmt.Errorf("console appender options: %w", err)
		}
		if strings.EqualFold(opt.Stream, "stdout") {
			m.Add(os.Stdout)
		} else {
			m.Add(os.Stderr)
		}
	case AppenderFile:
		var opt FileOptions
		if err := mapstructure.Decode(cfg.Options, &opt); err != nil {
			return fmt.Errorf("file appender options: %w", err)
		}
		if opt.Path == "" {
			return fmt.Errorf("file appender requires a path")
		}
		m.Add(&lumberjack.Logger{
			Filename:   opt.Path,
			MaxSize:    opt.MaxSizeMB,
			MaxBackups: opt.MaxBackups,
			MaxAge:     opt.MaxAgeDays,
			Compress:   opt.Compress,
		})
	default:
		return fmt.Errorf("unknown appender type %q", cfg.Type)
	}
	return nil
}
