package logging

import (
	"io"
	"os"
	"strings"
)

// Config selects the level, encoding and destination of a Logger.
type Config struct {
	// Level is one of debug, info, warn, error or fatal.
	Level string
	// Format is json or text.
	Format string
	// Output is stdout, stderr, discard or a file path opened for append.
	Output string
}

var levelNames = map[string]LogLevel{
	"debug":   DebugLevel,
	"info":    InfoLevel,
	"warn":    WarnLevel,
	"warning": WarnLevel,
	"error":   ErrorLevel,
	"fatal":   FatalLevel,
}

// NewLogger builds a Logger from cfg. A nil cfg logs JSON at info level to
// stderr.
func NewLogger(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	w, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	format := JSONFormat
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "text", "console":
		format = TextFormat
	}
	return New(ParseLevel(cfg.Level), w).WithFormat(format), nil
}

// ParseLevel maps a level name to its LogLevel, case-insensitively.
// Unknown names give InfoLevel.
func ParseLevel(level string) LogLevel {
	if l, ok := levelNames[strings.ToLower(strings.TrimSpace(level))]; ok {
		return l
	}
	return InfoLevel
}

func openOutput(output string) (io.Writer, error) {
	switch strings.TrimSpace(output) {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	case "discard", "none":
		return io.Discard, nil
	}
	return os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}
