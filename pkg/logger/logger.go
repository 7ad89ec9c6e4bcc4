// Package logger builds the zap loggers shared by medrag commands.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger is the default constructor used by serve and index. Debug
// drops the level to Debug, everything else logs at Info.
func NewLogger(debug bool) *zap.Logger {
	return NewLoggerWithWriters(debug, os.Stdout)
}

// NewLoggerWithWriters duplicates console output to every writer.
// Tests pass buffers here to capture log lines.
func NewLoggerWithWriters(debug bool, writers ...io.Writer) *zap.Logger {
	if len(writers) == 0 {
		writers = []io.Writer{os.Stdout}
	}

	syncers := make([]zapcore.WriteSyncer, 0, len(writers))
	for _, w := range writers {
		syncers = append(syncers, zapcore.AddSync(w))
	}

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "time"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.NewMultiWriteSyncer(syncers...),
		level,
	)

	return zap.New(core, zap.AddCaller(), zap.Fields(zap.String("app", "medrag")))
}
