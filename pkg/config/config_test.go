package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anggasct/junction"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Empty()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, junction.DefaultThresholds(), cfg.Thresholds())
	assert.Equal(t, 30.0, cfg.GetTickRate())
	assert.Equal(t, time.Second/30, cfg.GetTickInterval())
	assert.Equal(t, time.Second, cfg.GetSampleInterval())
	assert.Equal(t, SourceFallback, cfg.GetSource())
	assert.Equal(t, "junction-1", cfg.GetJunction())
	assert.Equal(t, "tcp://localhost:1883", cfg.GetMQTTBroker())
	assert.Equal(t, "junction/+/snapshot", cfg.GetSnapshotTopic())
	assert.False(t, cfg.GetPublish())
	assert.Empty(t, cfg.GetSQLitePath())
	assert.Empty(t, cfg.GetMetricsAddr())
	assert.Equal(t, "info", cfg.GetLogLevel())
	assert.Equal(t, "text", cfg.GetLogFormat())
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "junction.json", `{
		"junction": "main-st",
		"min_green": "8s",
		"max_green": "60s",
		"default_green": "25s",
		"vehicle_threshold": 4,
		"early_switch": true,
		"tick_rate_hz": 10,
		"source": "replay",
		"replay_path": "testdata/morning.jsonl",
		"loop": true
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, junction.Thresholds{
		MinGreen:         8 * time.Second,
		MaxGreen:         60 * time.Second,
		DefaultGreen:     25 * time.Second,
		VehicleThreshold: 4,
		EarlySwitch:      true,
	}, cfg.Thresholds())
	assert.Equal(t, "main-st", cfg.GetJunction())
	assert.Equal(t, 100*time.Millisecond, cfg.GetTickInterval())
	assert.Equal(t, SourceReplay, cfg.GetSource())
	assert.True(t, cfg.GetLoop())
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"extension", "junction.yaml", `{}`, ".json extension"},
		{"syntax", "bad.json", `{"min_green":`, "failed to parse"},
		{"duration", "bad.json", `{"min_green": "ten"}`, "invalid min_green"},
		{"bounds", "bad.json", `{"min_green": "50s"}`, "invalid configuration"},
		{"tick rate", "bad.json", `{"tick_rate_hz": 0}`, "tick_rate_hz"},
		{"source", "bad.json", `{"source": "camera"}`, "unknown source"},
		{"replay path", "bad.json", `{"source": "detections"}`, "requires replay_path"},
		{"log format", "bad.json", `{"log_format": "xml"}`, "log_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to stat")

	big := writeFile(t, "big.json", `{"junction":"`+strings.Repeat("x", 1024*1024)+`"}`)
	_, err = Load(big)
	assert.ErrorContains(t, err, "too large")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("JUNCTION_NAME", "harbour-rd")
	t.Setenv("JUNCTION_MAX_GREEN", "50s")
	t.Setenv("JUNCTION_VEHICLE_THRESHOLD", "5")
	t.Setenv("JUNCTION_EARLY_SWITCH", "true")
	t.Setenv("JUNCTION_TICK_RATE_HZ", "15")
	t.Setenv("JUNCTION_SOURCE", "mqtt")
	t.Setenv("JUNCTION_SQLITE_PATH", "/var/lib/junction.db")

	cfg := Empty()
	cfg.MaxGreen = ptrString("40s")
	cfg.ApplyEnv()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "harbour-rd", cfg.GetJunction())
	assert.Equal(t, 50*time.Second, cfg.Thresholds().MaxGreen)
	assert.Equal(t, 5, cfg.Thresholds().VehicleThreshold)
	assert.True(t, cfg.Thresholds().EarlySwitch)
	assert.Equal(t, 15.0, cfg.GetTickRate())
	assert.Equal(t, SourceMQTT, cfg.GetSource())
	assert.True(t, cfg.GetPublish())
	assert.Equal(t, "/var/lib/junction.db", cfg.GetSQLitePath())
}

func TestApplyEnvIgnoresMalformed(t *testing.T) {
	t.Setenv("JUNCTION_VEHICLE_THRESHOLD", "many")
	t.Setenv("JUNCTION_EARLY_SWITCH", "maybe")
	t.Setenv("JUNCTION_TICK_RATE_HZ", "fast")

	cfg := Empty()
	cfg.ApplyEnv()
	assert.Nil(t, cfg.VehicleThreshold)
	assert.Nil(t, cfg.EarlySwitch)
	assert.Nil(t, cfg.TickRate)
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "JUNCTION_NAME=from-dotenv\nJUNCTION_MIN_GREEN=12s\n")
	t.Setenv("JUNCTION_NAME", "")
	os.Unsetenv("JUNCTION_NAME")
	t.Setenv("JUNCTION_MIN_GREEN", "")
	os.Unsetenv("JUNCTION_MIN_GREEN")

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env"), path))

	cfg := Empty()
	cfg.ApplyEnv()
	assert.Equal(t, "from-dotenv", cfg.GetJunction())
	assert.Equal(t, 12*time.Second, cfg.Thresholds().MinGreen)
}
