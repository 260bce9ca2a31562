package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"
)

var (
	logFile *os.File
	logPath string
)

// Init routes the standard logger to a file, rotating it when it grows past
// 10 MB. An empty path leaves logging on stderr.
func Init(path string) error {
	if path == "" {
		log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	if info, err := f.Stat(); err == nil && info.Size() > 10*1024*1024 {
		_ = f.Close()
		backupPath := fmt.Sprintf("%s.%d", path, time.Now().Unix())
		_ = os.Rename(path, backupPath)
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to create new log file: %w", err)
		}
	}

	logFile = f
	logPath = path
	log.SetOutput(logFile)
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)

	LogInfo("logger initialized, log file: %s", logPath)
	return nil
}

// Close closes the log file if one is open.
func Close() {
	if logFile != nil {
		_ = logFile.Close()
	}
}

// LogInfo logs an info message.
func LogInfo(format string, args ...any) {
	log.Printf("[INFO] "+format, args...)
}

// LogError logs an error message.
func LogError(format string, args ...any) {
	log.Printf("[ERROR] "+format, args...)
}

// LogPanic logs a recovered panic with its stack trace.
func LogPanic(r any) {
	log.Printf("[PANIC] %v\n%s", r, debug.Stack())
}
