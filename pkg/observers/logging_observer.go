// Package observers provides observers for monitoring the junction controller
package observers

import (
	"context"
	"log/slog"
	"sync"

	"github.com/anggasct/junction"
)

// LogLevel represents the logging level
type LogLevel int

const (
	// LogError logs only errors
	LogError LogLevel = iota
	// LogWarning logs errors and warnings
	LogWarning
	// LogInfo logs errors, warnings, and info
	LogInfo
	// LogDebug logs errors, warnings, info, and debug
	LogDebug
)

// SlogLevel maps a LogLevel to the matching slog level
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogError:
		return slog.LevelError
	case LogWarning:
		return slog.LevelWarn
	case LogDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// ParseLogLevel converts "error", "warn", "info" or "debug" to a LogLevel, defaulting to LogInfo
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "error":
		return LogError
	case "warn", "warning":
		return LogWarning
	case "debug":
		return LogDebug
	default:
		return LogInfo
	}
}

// LoggingObserver logs controller events
type LoggingObserver struct {
	junction.BaseObserver

	level  LogLevel
	prefix string
	logger *slog.Logger
	mutex  sync.RWMutex
}

// NewLoggingObserver creates a new logging observer. A nil logger uses slog.Default.
func NewLoggingObserver(logger *slog.Logger, level LogLevel, prefix string) *LoggingObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{
		level:  level,
		prefix: prefix,
		logger: logger,
	}
}

// SetLevel changes the verbosity
func (o *LoggingObserver) SetLevel(level LogLevel) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.level = level
}

// log logs a message at the specified level
func (o *LoggingObserver) log(level LogLevel, msg string, args ...any) {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	if level > o.level {
		return
	}
	if o.prefix != "" {
		args = append([]any{"component", o.prefix}, args...)
	}
	o.logger.Log(context.Background(), level.SlogLevel(), msg, args...)
}

// OnPhaseEnter logs phase entry
func (o *LoggingObserver) OnPhaseEnter(phase junction.Phase, ctx *junction.TickContext) {
	o.log(LogInfo, "phase entered",
		"phase", phase,
		"approach", phase.Approach().String(),
		"green", ctx.GreenDuration.Seconds())
}

// OnPhaseExit logs phase exit
func (o *LoggingObserver) OnPhaseExit(phase junction.Phase, ctx *junction.TickContext) {
	o.log(LogDebug, "phase exited", "phase", phase, "elapsed", ctx.Elapsed.Seconds())
}

// OnTransition logs phase changes
func (o *LoggingObserver) OnTransition(change junction.PhaseChange, ctx *junction.TickContext) {
	o.log(LogInfo, "signal switched",
		"tick", change.Tick,
		"from", change.From,
		"to", change.To,
		"reason", change.Reason,
		"served", change.Served.Seconds(),
		"green", change.GreenDuration.Seconds(),
		"ns_queue", change.Pair.NS.QueueLength,
		"sn_queue", change.Pair.SN.QueueLength)
}

// OnGuardEvaluation logs guard results
func (o *LoggingObserver) OnGuardEvaluation(transition string, result bool, ctx *junction.TickContext) {
	o.log(LogDebug, "guard evaluated", "transition", transition, "result", result, "tick", ctx.Tick)
}

// OnTick logs each tick
func (o *LoggingObserver) OnTick(result *junction.TickResult, ctx *junction.TickContext) {
	o.log(LogDebug, "tick",
		"tick", result.Tick,
		"phase", result.To,
		"remaining", result.TimeRemaining.Seconds())
}

// OnReset logs controller resets
func (o *LoggingObserver) OnReset(ctx *junction.TickContext) {
	o.log(LogWarning, "controller reset", "phase", ctx.Phase)
}

// OnError logs errors
func (o *LoggingObserver) OnError(err error, ctx *junction.TickContext) {
	o.log(LogError, "controller error", "error", err, "code", junction.GetErrorCode(err))
}
