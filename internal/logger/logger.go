// Package logger wraps a process-wide zap logger.
package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogFile   string
	LogLevel  string
	AppName   string
	AddCaller bool
}

type Logger struct {
	*zap.Logger
}

var (
	mu     sync.RWMutex
	global = &Logger{Logger: zap.NewNop()}
)

// Init builds the global logger. Output always goes to stderr and is
// mirrored to LogFile when one is configured.
func Init(cfg Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	global = l
	mu.Unlock()
	return nil
}

func New(cfg Config) (*Logger, error) {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.LogLevel))

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	}
	if path := strings.TrimSpace(cfg.LogFile); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(f), level))
	}

	opts := []zap.Option{}
	if cfg.AddCaller {
		opts = append(opts, zap.AddCaller())
	}

	zl := zap.New(zapcore.NewTee(cores...), opts...)
	if cfg.AppName != "" {
		zl = zl.With(zap.String("app", cfg.AppName))
	}
	return &Logger{Logger: zl}, nil
}

func Get() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

func Sync() {
	_ = Get().Logger.Sync()
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

func parseLevel(v string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
