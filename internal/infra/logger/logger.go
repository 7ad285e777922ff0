// Package logger builds the process-wide zap logger from configuration.
package logger

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/sifan077/PowerLink/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

const consoleTimeLayout = "2006-01-02 15:04:05.000"

// Config selects level, encoding and static fields for the process logger.
type Config struct {
	Development bool
	Level       string
	// Encoding is "console" or "json". Empty picks console in development
	// and json otherwise.
	Encoding string
	// Service, when set, is attached to every entry.
	Service string
}

// FromConfig maps the application config onto logger settings.
func FromConfig(cfg *config.Config) Config {
	return Config{
		Development: cfg.Server.Development(),
		Level:       cfg.Log.Level,
		Encoding:    cfg.Log.Encoding,
		Service:     "powerlink",
	}
}

var (
	mu     sync.Mutex
	global *zap.Logger
)

// Init builds a logger, installs it as the package and zap global, and
// returns it.
func Init(cfg Config) (*zap.Logger, error) {
	l, err := New(cfg)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	prev := global
	global = l
	mu.Unlock()

	if prev != nil {
		_ = prev.Sync()
	}
	zap.ReplaceGlobals(l)
	return l, nil
}

// MustInit is Init for main: it panics on a bad config.
func MustInit(cfg Config) *zap.Logger {
	l, err := Init(cfg)
	if err != nil {
		panic(err)
	}
	return l
}

// L returns the installed logger. Before Init it falls back to a development
// logger so early startup errors still reach stderr.
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			l = zap.NewNop()
		}
		global = l
	}
	return global
}

// Sync flushes the installed logger. Syncing a terminal or pipe fails on most
// platforms and is not reported.
func Sync() error {
	mu.Lock()
	l := global
	mu.Unlock()
	if l == nil {
		return nil
	}

	err := l.Sync()
	if errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.EINVAL) || errors.Is(err, os.ErrInvalid) {
		return nil
	}
	return err
}

// ParseLevel accepts zap level names in any case. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	level, err := zapcore.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("logger: invalid level %q: %w", s, err)
	}
	return level, nil
}

// New builds a logger without installing it. Development mode lowers the
// default level to debug and adds caller and stack details.
func New(cfg Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Encoding {
	case "":
	case "console", "json":
		zapCfg.Encoding = cfg.Encoding
	default:
		return nil, fmt.Errorf("logger: unsupported encoding %q", cfg.Encoding)
	}
	zapCfg.EncoderConfig = encoderConfig(zapCfg.Encoding, isTerminal(os.Stdout))

	if cfg.Level != "" {
		level, err := ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	if cfg.Service != "" {
		zapCfg.InitialFields = map[string]any{"service": cfg.Service}
	}

	return zapCfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
}

// encoderConfig uses short keys for both encodings. Console output gets a
// readable timestamp and, on a terminal, coloured levels.
func encoderConfig(encoding string, colour bool) zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "time"
	ec.StacktraceKey = "stack"
	ec.EncodeDuration = zapcore.StringDurationEncoder

	if encoding != "console" {
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		return ec
	}

	ec.ConsoleSeparator = " | "
	ec.EncodeTime = zapcore.TimeEncoderOfLayout(consoleTimeLayout)
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	if colour {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return ec
}

// isTerminal honours NO_COLOR.
func isTerminal(f *os.File) bool {
	if f == nil || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
