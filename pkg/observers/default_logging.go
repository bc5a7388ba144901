package observers

import "log/slog"

// NewDefaultLoggingObserver creates a logging observer with default settings (LogInfo level)
func NewDefaultLoggingObserver(logger *slog.Logger) *LoggingObserver {
	return NewLoggingObserver(logger, LogInfo, "junction")
}
