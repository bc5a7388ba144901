package junction

import (
	"fmt"
	"time"
)

// Thresholds configures green-time bounds and the early switch rule.
// A value is immutable once handed to a controller.
type Thresholds struct {
	MinGreen         time.Duration
	MaxGreen         time.Duration
	DefaultGreen     time.Duration
	VehicleThreshold int

	// EarlySwitch enables switching before the green time expires when the red
	// approach is congested and the green approach is nearly empty.
	EarlySwitch bool
}

// DefaultThresholds returns the stock timing: 10s min, 45s max, 20s default, threshold 3
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinGreen:         10 * time.Second,
		MaxGreen:         45 * time.Second,
		DefaultGreen:     20 * time.Second,
		VehicleThreshold: 3,
	}
}

// Validate checks 0 < MinGreen <= DefaultGreen <= MaxGreen and a non-negative vehicle threshold
func (t Thresholds) Validate() error {
	if t.MinGreen <= 0 {
		return NewConfigurationError("Thresholds", fmt.Sprintf("min green must be positive, got %s", t.MinGreen))
	}
	if t.DefaultGreen < t.MinGreen {
		return NewConfigurationError("Thresholds", fmt.Sprintf("default green %s is below min green %s", t.DefaultGreen, t.MinGreen))
	}
	if t.MaxGreen < t.DefaultGreen {
		return NewConfigurationError("Thresholds", fmt.Sprintf("max green %s is below default green %s", t.MaxGreen, t.DefaultGreen))
	}
	if t.VehicleThreshold < 0 {
		return NewConfigurationError("Thresholds", fmt.Sprintf("vehicle threshold must be non-negative, got %d", t.VehicleThreshold))
	}
	return nil
}
