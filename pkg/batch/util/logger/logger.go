// Package logger はバッチフレームワーク全体で使用するパッケージレベルのロガーです。
// 実体は zap の SugaredLogger で、レベルは AtomicLevel により実行時に変更できます。
package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.RWMutex
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base  *zap.Logger
	sugar *zap.SugaredLogger
)

func init() {
	l, err := build("console")
	if err != nil {
		l = zap.NewNop()
	}
	replace(l)
}

// SetLogLevel はログレベルを設定します。
// 不明なレベルが指定された場合は警告を出力し、INFO レベルで続行します。
func SetLogLevel(levelStr string) {
	lvl, err := parseLevel(levelStr)
	if err != nil {
		Warnf("不明なログレベル '%s' が指定されました。INFO レベルで続行します。", levelStr)
		lvl = zapcore.InfoLevel
	}
	level.SetLevel(lvl)
}

// Configure はログレベルと出力形式 ("console" または "json") を設定します。
func Configure(levelStr, format string) error {
	lvl, err := parseLevel(levelStr)
	if err != nil {
		return err
	}
	l, err := build(format)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)
	replace(l)
	return nil
}

// SetLogger は出力先のロガーを差し替えます。テストで zaptest/observer を使う場合などに利用します。
func SetLogger(l *zap.Logger) {
	replace(l)
}

// L は構造化ログを出力するための *zap.Logger を返します。
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Sync はバッファされたログをフラッシュします。
func Sync() error {
	return L().Sync()
}

// Debugf は DEBUG レベルのログを出力します。
func Debugf(format string, v ...any) {
	current().Debugf(format, v...)
}

// Infof は INFO レベルのログを出力します。
func Infof(format string, v ...any) {
	current().Infof(format, v...)
}

// Warnf は WARN レベルのログを出力します。
func Warnf(format string, v ...any) {
	current().Warnf(format, v...)
}

// Errorf は ERROR レベルのログを出力します。
func Errorf(format string, v ...any) {
	current().Errorf(format, v...)
}

// Fatalf は FATAL レベルのログを出力し、プログラムを終了します。
func Fatalf(format string, v ...any) {
	current().Fatalf(format, v...)
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func replace(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	sugar = l.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

func parseLevel(levelStr string) (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(levelStr)))
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %s: %w", levelStr, err)
	}
	return lvl, nil
}

func build(format string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(format) {
	case "", "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
	case "json":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unsupported log format %s", format)
	}
	cfg.Level = level

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return l.Named("zipbatch"), nil
}
