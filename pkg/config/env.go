package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every override variable
const EnvPrefix = "JUNCTION_"

// LoadDotEnv loads .env style files into the process environment. Missing files are skipped;
// variables already set are not overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ApplyEnv overlays JUNCTION_* environment variables onto c
func (c *Config) ApplyEnv() {
	setString(&c.Junction, "NAME")

	setString(&c.MinGreen, "MIN_GREEN")
	setString(&c.MaxGreen, "MAX_GREEN")
	setString(&c.DefaultGreen, "DEFAULT_GREEN")
	setInt(&c.VehicleThreshold, "VEHICLE_THRESHOLD")
	setBool(&c.EarlySwitch, "EARLY_SWITCH")

	setFloat(&c.TickRate, "TICK_RATE_HZ")
	setString(&c.SampleInterval, "SAMPLE_INTERVAL")

	setString(&c.Source, "SOURCE")
	setString(&c.ReplayPath, "REPLAY_PATH")
	setBool(&c.Loop, "LOOP")

	setString(&c.MQTTBroker, "MQTT_BROKER")
	setString(&c.MQTTClientID, "MQTT_CLIENT_ID")
	setString(&c.MQTTUsername, "MQTT_USERNAME")
	setString(&c.MQTTPassword, "MQTT_PASSWORD")
	setString(&c.SnapshotTopic, "MQTT_TOPIC_SNAPSHOT")
	setString(&c.FrameTopic, "MQTT_TOPIC_FRAME")
	setString(&c.PhaseTopic, "MQTT_TOPIC_PHASE")
	setBool(&c.Publish, "MQTT_PUBLISH")

	setString(&c.SQLitePath, "SQLITE_PATH")
	setString(&c.ClickHouseAddr, "CLICKHOUSE_ADDR")
	setString(&c.ClickHouseDB, "CLICKHOUSE_DB")
	setString(&c.ClickHouseUser, "CLICKHOUSE_USER")
	setString(&c.ClickHousePass, "CLICKHOUSE_PASS")

	setString(&c.MetricsAddr, "METRICS_ADDR")
	setString(&c.ReportHTML, "REPORT_HTML")
	setString(&c.ReportPNG, "REPORT_PNG")
	setString(&c.DOTPath, "DOT_PATH")

	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
}

func getEnv(key string) (string, bool) {
	value := os.Getenv(EnvPrefix + key)
	return value, value != ""
}

func setString(field **string, key string) {
	if value, ok := getEnv(key); ok {
		*field = ptrString(value)
	}
}

func setInt(field **int, key string) {
	value, ok := getEnv(key)
	if !ok {
		return
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("failed to parse env var as int, ignoring", "key", EnvPrefix+key, "error", err)
		return
	}
	*field = ptrInt(intValue)
}

func setFloat(field **float64, key string) {
	value, ok := getEnv(key)
	if !ok {
		return
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		slog.Warn("failed to parse env var as float, ignoring", "key", EnvPrefix+key, "error", err)
		return
	}
	*field = ptrFloat64(floatValue)
}

func setBool(field **bool, key string) {
	value, ok := getEnv(key)
	if !ok {
		return
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("failed to parse env var as bool, ignoring", "key", EnvPrefix+key, "error", err)
		return
	}
	*field = ptrBool(boolValue)
}
