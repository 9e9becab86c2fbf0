package utils

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelFatal
)

var (
	mu     sync.RWMutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger = newLogger(zapcore.AddSync(os.Stdout))
)

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarning:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}
}

func newLogger(ws zapcore.WriteSyncer) *zap.SugaredLogger {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), ws, level)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

// InitLogger points the global logger at stdout, or at a rolling file when
// filePath is set.
func InitLogger(filePath string) {
	var ws zapcore.WriteSyncer
	if filePath == "" {
		ws = zapcore.AddSync(os.Stdout)
	} else {
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
		})
	}
	mu.Lock()
	logger = newLogger(ws)
	mu.Unlock()
}

// SyncLogger flushes buffered entries.
func SyncLogger() {
	_ = current().Sync()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// ParseLogLevel maps a config string onto a LogLevel.
func ParseLogLevel(levelString string) (LogLevel, bool) {
	switch strings.ToUpper(levelString) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARNING", "WARN":
		return LevelWarning, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

// SetLogLevel sets the global log level for the application.
func SetLogLevel(levelString string) {
	parsed, ok := ParseLogLevel(levelString)
	level.SetLevel(parsed.zapLevel())
	if !ok {
		LogWarnf("Unknown log level '%s', defaulting to INFO", levelString)
	}
	LogInfof("Log level set to %s", level.Level().CapitalString())
}

// Enabled reports whether entries at l are currently emitted.
func Enabled(l LogLevel) bool {
	return level.Enabled(l.zapLevel())
}

func LogDebug(args ...interface{}) {
	current().Debug(fmt.Sprint(args...))
}

func LogDebugf(format string, args ...interface{}) {
	current().Debugf(format, args...)
}

func LogInfo(args ...interface{}) {
	current().Info(fmt.Sprint(args...))
}

func LogInfof(format string, args ...interface{}) {
	current().Infof(format, args...)
}

func LogWarn(args ...interface{}) {
	current().Warn(fmt.Sprint(args...))
}

func LogWarnf(format string, args ...interface{}) {
	current().Warnf(format, args...)
}

func LogError(args ...interface{}) {
	current().Error(fmt.Sprint(args...))
}

func LogErrorf(format string, args ...interface{}) {
	current().Errorf(format, args...)
}

// LogFatal logs and exits the process with status 1.
func LogFatal(args ...interface{}) {
	current().Fatal(fmt.Sprint(args...))
}

func LogFatalf(format string, args ...interface{}) {
	current().Fatalf(format, args...)
}
