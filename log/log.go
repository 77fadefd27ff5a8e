// Package log is a thin wrapper over github.com/astaxie/beego/logs,
// grounded on the teacher's log/log.go: a single package-level logger
// configured once via InitLogger, with Debug/Info/Warn/Error/Alert
// convenience functions used the same way across every package.
package log

import (
	"strings"
	"sync"

	"github.com/astaxie/beego/logs"
)

var (
	once   sync.Once
	logger = logs.NewLogger(1000)
)

// InitLogger configures the package logger to write to the console at
// the given level; dataPath is not used and no log file is written.
// Safe to call more than once; only the first call
// takes effect, matching the teacher's init()-driven single configuration.
func InitLogger(dataPath, level string) {
	once.Do(func() {
		lvl, ok := validLogLevel(level)
		if !ok {
			lvl = logs.LevelInfo
		}
		logger.SetLogger(logs.AdapterConsole)
		logger.SetLevel(lvl)
	})
	_ = dataPath
}

func validLogLevel(strLevel string) (level int, ok bool) {
	ok = true
	switch strings.ToLower(strLevel) {
	case "emergency":
		level = logs.LevelEmergency
	case "alert":
		level = logs.LevelAlert
	case "critical":
		level = logs.LevelCritical
	case "error":
		level = logs.LevelError
	case "warn":
		level = logs.LevelWarn
	case "info":
		level = logs.LevelInfo
	case "debug":
		level = logs.LevelDebug
	case "notice":
		level = logs.LevelNotice
	default:
		ok = false
	}
	return
}

func Debug(format string, v ...interface{}) { logger.Debug(format, v...) }
func Info(format string, v ...interface{})  { logger.Info(format, v...) }
func Warn(format string, v ...interface{})  { logger.Warn(format, v...) }
func Error(format string, v ...interface{}) { logger.Error(format, v...) }
func Alert(format string, v ...interface{}) { logger.Alert(format, v...) }
