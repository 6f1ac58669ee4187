package utils

import (
	"log/slog"
	"os"
	"strings"
)

type Log struct {
	*slog.LevelVar
	*slog.Logger
}

// Logger is the global logger instance
var Logger *Log

func init() {
	logLevel := &slog.LevelVar{}
	opts := &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "time" {
				return slog.Attr{Key: "timestamp", Value: slog.TimeValue(a.Value.Time())}
			}
			return a
		},
	}
	Logger = &Log{
		LevelVar: logLevel,
		Logger:   slog.New(slog.NewTextHandler(os.Stdout, opts)),
	}
	Logger.SetLogLevel("info")
}

func (l *Log) SetLogLevel(level string) {
	level = strings.ToLower(level)
	switch level {
	case "debug":
		l.Set(slog.LevelDebug)
	case "info":
		l.Set(slog.LevelInfo)
	case "warn":
		l.Set(slog.LevelWarn)
	case "error":
		l.Set(slog.LevelError)
	}
}

// WithRequest 返回带上请求标识的 logger，同一请求的日志可以串起来
func (l *Log) WithRequest(requestID string) *slog.Logger {
	return l.With("request_id", requestID)
}
