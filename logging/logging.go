// Package logging builds the auth.Logger backends: a pretty console
// logger for development and a JSON zap logger for production.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	auth "github.com/felapi/fel-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DriverGlog = "glog"
	DriverZap  = "zap"
)

type Options struct {
	Driver string
	Level  string
	Name   string
	// File enables a daily rotated log file next to stdout, zap only
	File   string
	MaxAge time.Duration
}

// Provider hands out named loggers and flushes buffered output
type Provider interface {
	auth.LoggerProvider
	Sync() error
}

func New(opts Options) (Provider, error) {
	if opts.Name == "" {
		opts.Name = "fel"
	}
	switch strings.ToLower(opts.Driver) {
	case "", DriverGlog:
		return newGlog(opts), nil
	case DriverZap:
		return newZap(opts, os.Stdout)
	default:
		return nil, fmt.Errorf("logging: unknown driver %q", opts.Driver)
	}
}

type glogProvider struct {
	base *glog.BaseLogger
}

// newGlog builds the development console logger. It always logs at
// trace level, Options.Level only applies to zap.
func newGlog(opts Options) *glogProvider {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName(opts.Name),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)
	return &glogProvider{base: lgr}
}

func (p *glogProvider) GetLogger(name string) auth.Logger {
	return p.base.GetLogger(name)
}

func (p *glogProvider) Sync() error { return nil }

type zapProvider struct {
	base *zap.Logger
}

func newZap(opts Options, stdout io.Writer) (*zapProvider, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)
	level := ZapLevel(opts.Level)

	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.AddSync(stdout), level)}

	if opts.File != "" {
		w, err := RotatingFile(opts.File, opts.MaxAge)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(w), level))
	}

	base := zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	).Named(opts.Name)

	return &zapProvider{base: base}, nil
}

func (p *zapProvider) GetLogger(name string) auth.Logger {
	return &zapLogger{s: p.base.Named(name).Sugar()}
}

func (p *zapProvider) Sync() error {
	return p.base.Sync()
}

// NewZapLogger adapts an existing zap logger
func NewZapLogger(l *zap.Logger) auth.Logger {
	return &zapLogger{s: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

type zapLogger struct {
	s *zap.SugaredLogger
}

func (l *zapLogger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
func (l *zapLogger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l *zapLogger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l *zapLogger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }

func ZapLevel(l string) zapcore.Level {
	switch strings.ToLower(l) {
	case "debug", "trace":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// RotatingFile returns a writer rotating path daily, path gets a date
// suffix and a symlink at path points to the current file.
func RotatingFile(path string, maxAge time.Duration) (io.Writer, error) {
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return rotatelogs.New(
		path+".%Y%m%d",
		rotatelogs.WithLinkName(path),
		rotatelogs.WithMaxAge(maxAge),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
}
