package telemetry

import (
	"io"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	current atomic.Pointer[zap.Logger]
)

func init() {
	current.Store(newLogger(os.Stdout))
}

func newLogger(w io.Writer) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.LevelKey = "level"
	encCfg.MessageKey = "msg"
	encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), level)
	return zap.New(core)
}

// SetLevel changes the minimum level for all subsequent events. Unknown values keep the current level.
func SetLevel(raw string) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return
	}
	level.SetLevel(lvl)
}

// SetOutput redirects events to w and returns a func restoring the previous destination.
func SetOutput(w io.Writer) func() {
	prev := current.Swap(newLogger(w))
	return func() {
		current.Store(prev)
	}
}

// Logger exposes the underlying zap logger for libraries that want one.
func Logger() *zap.Logger {
	return current.Load()
}

// Info writes an info-level event with the given fields.
func Info(msg string, fields map[string]any) {
	current.Load().Info(msg, toZap(fields)...)
}

// Warn writes a warn-level event with the given fields.
func Warn(msg string, fields map[string]any) {
	current.Load().Warn(msg, toZap(fields)...)
}

// Error writes an error-level event with the given fields.
func Error(msg string, fields map[string]any) {
	current.Load().Error(msg, toZap(fields)...)
}

// Sync flushes buffered events.
func Sync() {
	_ = current.Load().Sync()
}

func toZap(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		if err, ok := fields[k].(error); ok {
			out = append(out, zap.String(k, err.Error()))
			continue
		}
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}
