package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fishcam/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log file names, one per level.
const (
	InfoFile    = "info.log"
	WarningFile = "warning.log"
	ErrorFile   = "error.log"
)

// Logger provides leveled logging (info/warning/error) to rolling files and stdout/stderr.
type Logger struct {
	sugar  *zap.SugaredLogger
	logDir string
	files  map[string]*lumberjack.Logger
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(cfg *config.Config) (*Logger, error) {
	if err := os.MkdirAll(cfg.LogDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	minLevel := zapcore.InfoLevel
	if err := minLevel.UnmarshalText([]byte(strings.ToLower(cfg.LogLevel))); err != nil {
		minLevel = zapcore.InfoLevel
	}

	l := &Logger{
		logDir: cfg.LogDirectory,
		files:  make(map[string]*lumberjack.Logger),
	}

	fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(consoleCfg)

	// Each file only receives its own level, as in the per-level files of the web panel.
	only := func(lvl zapcore.Level) zap.LevelEnablerFunc {
		return func(lv zapcore.Level) bool { return lv == lvl && lv >= minLevel }
	}
	atLeast := func(lvl zapcore.Level) zap.LevelEnablerFunc {
		return func(lv zapcore.Level) bool { return lv >= lvl && lv >= minLevel }
	}
	below := func(lvl zapcore.Level) zap.LevelEnablerFunc {
		return func(lv zapcore.Level) bool { return lv < lvl && lv >= minLevel }
	}

	core := zapcore.NewTee(
		zapcore.NewCore(fileEncoder, zapcore.AddSync(l.rollingFile(InfoFile)), only(zapcore.InfoLevel)),
		zapcore.NewCore(fileEncoder, zapcore.AddSync(l.rollingFile(WarningFile)), only(zapcore.WarnLevel)),
		zapcore.NewCore(fileEncoder, zapcore.AddSync(l.rollingFile(ErrorFile)), atLeast(zapcore.ErrorLevel)),
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), below(zapcore.ErrorLevel)),
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), atLeast(zapcore.ErrorLevel)),
	)

	l.sugar = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
	return l, nil
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

func (l *Logger) rollingFile(name string) *lumberjack.Logger {
	lj := &lumberjack.Logger{
		Filename:   filepath.Join(l.logDir, name),
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     14,
	}
	l.files[name] = lj
	return lj
}

// Named returns a child logger tagged with the component name.
func (l *Logger) Named(component string) *Logger {
	return &Logger{sugar: l.sugar.Named(component), logDir: l.logDir, files: l.files}
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.sugar.Warnf(format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
}

// Debug writes a formatted debug-level log entry.
func (l *Logger) Debug(format string, v ...interface{}) {
	l.sugar.Debugf(format, v...)
}

// Dir returns the directory holding the log files.
func (l *Logger) Dir() string {
	return l.logDir
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) error {
	if l.logDir == "" {
		return nil
	}
	if lj, ok := l.files[fileName]; ok {
		// lumberjack reopens the file on the next write
		if err := lj.Close(); err != nil {
			return fmt.Errorf("failed to close log file %s: %w", fileName, err)
		}
	}

	filePath := filepath.Join(l.logDir, fileName)
	if err := os.Truncate(filePath, 0); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to truncate log file %s: %w", fileName, err)
	}

	l.Info("File %s has been cleared.", fileName)
	return nil
}

// Sync flushes buffered entries and closes the rolling files.
func (l *Logger) Sync() error {
	err := l.sugar.Sync()
	for _, lj := range l.files {
		lj.Close()
	}
	return err
}
