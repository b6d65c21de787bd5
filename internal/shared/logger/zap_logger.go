package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger implements the Logger interface on top of a sugared zap logger
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger builds a zap logger. Unknown levels fall back to info.
func NewZapLogger(level, format string) Logger {
	zapLevel := zapcore.InfoLevel
	if level != "" {
		if parsed, err := zapcore.ParseLevel(level); err == nil {
			zapLevel = parsed
		}
	}

	cfg := zap.NewProductionConfig()
	if format != logFormatJSON {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(timestampFormat)

	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		base = zap.NewNop()
	}
	return &ZapLogger{sugar: base.Sugar()}
}

// NewZapLoggerFrom wraps an existing zap logger
func NewZapLoggerFrom(l *zap.Logger) Logger {
	return &ZapLogger{sugar: l.Sugar()}
}

func (l *ZapLogger) Debug(args ...interface{}) {
	msg, fields := splitArgs(args)
	l.sugar.Debugw(msg, flatten(fields)...)
}

func (l *ZapLogger) Info(args ...interface{}) {
	msg, fields := splitArgs(args)
	l.sugar.Infow(msg, flatten(fields)...)
}

func (l *ZapLogger) Warn(args ...interface{}) {
	msg, fields := splitArgs(args)
	l.sugar.Warnw(msg, flatten(fields)...)
}

func (l *ZapLogger) Error(args ...interface{}) {
	msg, fields := splitArgs(args)
	l.sugar.Errorw(msg, flatten(fields)...)
}

func (l *ZapLogger) Fatal(args ...interface{}) {
	msg, fields := splitArgs(args)
	l.sugar.Fatalw(msg, flatten(fields)...)
}

func (l *ZapLogger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *ZapLogger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *ZapLogger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *ZapLogger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }
func (l *ZapLogger) Fatalf(format string, args ...interface{}) { l.sugar.Fatalf(format, args...) }

func (l *ZapLogger) WithFields(fields map[string]interface{}) Logger {
	return &ZapLogger{sugar: l.sugar.With(flatten(fields)...)}
}

func (l *ZapLogger) WithContext(ctx context.Context) Logger {
	fields := contextFields(ctx)
	if len(fields) == 0 {
		return l
	}
	return l.WithFields(fields)
}

func (l *ZapLogger) WithComponent(component string) Logger {
	return &ZapLogger{sugar: l.sugar.With(zap.String("component", component))}
}

func flatten(fields map[string]interface{}) []interface{} {
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return kv
}
