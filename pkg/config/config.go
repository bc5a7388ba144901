// Package config loads controller and runtime settings from a JSON file with
// JUNCTION_* environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/anggasct/junction"
)

// Source kinds
const (
	SourceFallback   = "fallback"
	SourceReplay     = "replay"
	SourceDetections = "detections"
	SourceMQTT       = "mqtt"
)

// Config is the root configuration. Every field is optional; the Get* methods
// supply defaults for anything left unset.
type Config struct {
	Junction *string `json:"junction,omitempty"`

	// Controller timing, duration strings like "10s"
	MinGreen         *string `json:"min_green,omitempty"`
	MaxGreen         *string `json:"max_green,omitempty"`
	DefaultGreen     *string `json:"default_green,omitempty"`
	VehicleThreshold *int    `json:"vehicle_threshold,omitempty"`
	EarlySwitch      *bool   `json:"early_switch,omitempty"`

	// Loop
	TickRate       *float64 `json:"tick_rate_hz,omitempty"`
	SampleInterval *string  `json:"sample_interval,omitempty"`

	// Input
	Source     *string `json:"source,omitempty"`
	ReplayPath *string `json:"replay_path,omitempty"`
	Loop       *bool   `json:"loop,omitempty"`

	// MQTT
	MQTTBroker    *string `json:"mqtt_broker,omitempty"`
	MQTTClientID  *string `json:"mqtt_client_id,omitempty"`
	MQTTUsername  *string `json:"mqtt_username,omitempty"`
	MQTTPassword  *string `json:"mqtt_password,omitempty"`
	SnapshotTopic *string `json:"snapshot_topic,omitempty"`
	FrameTopic    *string `json:"frame_topic,omitempty"`
	PhaseTopic    *string `json:"phase_topic,omitempty"`
	Publish       *bool   `json:"publish,omitempty"`

	// Storage
	SQLitePath     *string `json:"sqlite_path,omitempty"`
	ClickHouseAddr *string `json:"clickhouse_addr,omitempty"`
	ClickHouseDB   *string `json:"clickhouse_db,omitempty"`
	ClickHouseUser *string `json:"clickhouse_user,omitempty"`
	ClickHousePass *string `json:"clickhouse_pass,omitempty"`

	// Outputs
	MetricsAddr *string `json:"metrics_addr,omitempty"`
	ReportHTML  *string `json:"report_html,omitempty"`
	ReportPNG   *string `json:"report_png,omitempty"`
	DOTPath     *string `json:"dot_path,omitempty"`

	// Logging
	LogLevel  *string `json:"log_level,omitempty"`
	LogFormat *string `json:"log_format,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// Empty returns a Config with every field unset
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file.
// The file must have a .json extension and be at most 1MB. Omitted fields keep their defaults.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configured values are usable
func (c *Config) Validate() error {
	for name, value := range map[string]*string{
		"min_green":       c.MinGreen,
		"max_green":       c.MaxGreen,
		"default_green":   c.DefaultGreen,
		"sample_interval": c.SampleInterval,
	} {
		if value != nil && *value != "" {
			if _, err := time.ParseDuration(*value); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *value, err)
			}
		}
	}

	if c.TickRate != nil && (*c.TickRate <= 0 || *c.TickRate > 1000) {
		return fmt.Errorf("tick_rate_hz must be in (0, 1000], got %g", *c.TickRate)
	}

	if c.Source != nil {
		switch *c.Source {
		case SourceFallback, SourceMQTT:
		case SourceReplay, SourceDetections:
			if c.GetReplayPath() == "" {
				return fmt.Errorf("source %q requires replay_path", *c.Source)
			}
		default:
			return fmt.Errorf("unknown source %q", *c.Source)
		}
	}

	if c.LogFormat != nil && *c.LogFormat != "text" && *c.LogFormat != "json" {
		return fmt.Errorf("log_format must be text or json, got %q", *c.LogFormat)
	}

	if err := c.Thresholds().Validate(); err != nil {
		return err
	}
	return nil
}

func parseDuration(value *string, def time.Duration) time.Duration {
	if value == nil || *value == "" {
		return def
	}
	d, err := time.ParseDuration(*value)
	if err != nil {
		return def
	}
	return d
}

func stringOr(value *string, def string) string {
	if value == nil {
		return def
	}
	return *value
}

// Thresholds assembles controller thresholds from the timing fields
func (c *Config) Thresholds() junction.Thresholds {
	def := junction.DefaultThresholds()
	th := junction.Thresholds{
		MinGreen:         parseDuration(c.MinGreen, def.MinGreen),
		MaxGreen:         parseDuration(c.MaxGreen, def.MaxGreen),
		DefaultGreen:     parseDuration(c.DefaultGreen, def.DefaultGreen),
		VehicleThreshold: def.VehicleThreshold,
		EarlySwitch:      def.EarlySwitch,
	}
	if c.VehicleThreshold != nil {
		th.VehicleThreshold = *c.VehicleThreshold
	}
	if c.EarlySwitch != nil {
		th.EarlySwitch = *c.EarlySwitch
	}
	return th
}

// GetJunction returns the junction name or "junction-1"
func (c *Config) GetJunction() string {
	return stringOr(c.Junction, "junction-1")
}

// GetTickRate returns the loop rate in Hz
func (c *Config) GetTickRate() float64 {
	if c.TickRate == nil {
		return 30
	}
	return *c.TickRate
}

// GetTickInterval returns the period between ticks
func (c *Config) GetTickInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.GetTickRate())
}

// GetSampleInterval returns how often frames are stored
func (c *Config) GetSampleInterval() time.Duration {
	return parseDuration(c.SampleInterval, time.Second)
}

// GetSource returns the input kind
func (c *Config) GetSource() string {
	return stringOr(c.Source, SourceFallback)
}

// GetReplayPath returns the JSONL replay file
func (c *Config) GetReplayPath() string {
	return stringOr(c.ReplayPath, "")
}

// GetLoop reports whether replays restart at EOF
func (c *Config) GetLoop() bool {
	if c.Loop == nil {
		return false
	}
	return *c.Loop
}

// GetMQTTBroker returns the broker URL
func (c *Config) GetMQTTBroker() string {
	return stringOr(c.MQTTBroker, "tcp://localhost:1883")
}

// GetMQTTClientID returns the MQTT client id
func (c *Config) GetMQTTClientID() string {
	return stringOr(c.MQTTClientID, "junction-controller")
}

// GetMQTTUsername returns the MQTT username
func (c *Config) GetMQTTUsername() string {
	return stringOr(c.MQTTUsername, "")
}

// GetMQTTPassword returns the MQTT password
func (c *Config) GetMQTTPassword() string {
	return stringOr(c.MQTTPassword, "")
}

// GetSnapshotTopic returns the subscription filter for snapshots
func (c *Config) GetSnapshotTopic() string {
	return stringOr(c.SnapshotTopic, "junction/+/snapshot")
}

// GetFrameTopic returns the frame topic template
func (c *Config) GetFrameTopic() string {
	return stringOr(c.FrameTopic, "junction/{junction}/frame")
}

// GetPhaseTopic returns the phase change topic template
func (c *Config) GetPhaseTopic() string {
	return stringOr(c.PhaseTopic, "junction/{junction}/phase")
}

// GetPublish reports whether frames and phase changes go out over MQTT.
// Defaults to true when the source is mqtt.
func (c *Config) GetPublish() bool {
	if c.Publish == nil {
		return c.GetSource() == SourceMQTT
	}
	return *c.Publish
}

// GetSQLitePath returns the sqlite file, empty to disable
func (c *Config) GetSQLitePath() string {
	return stringOr(c.SQLitePath, "")
}

// GetClickHouseAddr returns the ClickHouse address, empty to disable
func (c *Config) GetClickHouseAddr() string {
	return stringOr(c.ClickHouseAddr, "")
}

// GetClickHouseDB returns the ClickHouse database
func (c *Config) GetClickHouseDB() string {
	return stringOr(c.ClickHouseDB, "junction")
}

// GetClickHouseUser returns the ClickHouse user
func (c *Config) GetClickHouseUser() string {
	return stringOr(c.ClickHouseUser, "default")
}

// GetClickHousePass returns the ClickHouse password
func (c *Config) GetClickHousePass() string {
	return stringOr(c.ClickHousePass, "")
}

// GetMetricsAddr returns the Prometheus listen address, empty to disable
func (c *Config) GetMetricsAddr() string {
	return stringOr(c.MetricsAddr, "")
}

// GetReportHTML returns the HTML report path, empty to disable
func (c *Config) GetReportHTML() string {
	return stringOr(c.ReportHTML, "")
}

// GetReportPNG returns the PNG report path, empty to disable
func (c *Config) GetReportPNG() string {
	return stringOr(c.ReportPNG, "")
}

// GetDOTPath returns the phase diagram output path, empty to disable
func (c *Config) GetDOTPath() string {
	return stringOr(c.DOTPath, "")
}

// GetLogLevel returns the log level name
func (c *Config) GetLogLevel() string {
	return stringOr(c.LogLevel, "info")
}

// GetLogFormat returns text or json
func (c *Config) GetLogFormat() string {
	return stringOr(c.LogFormat, "text")
}
