package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onnoon-care/eye-monitor/internal/fatigue"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg := LoadConfig()
	assert.Equal(t, fatigue.DefaultConfig(), cfg.Monitor())
	assert.Equal(t, SinkFile, cfg.Sink)
	assert.Equal(t, "fatigue_log.json", cfg.FatigueLogFile)
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL)
	assert.True(t, cfg.AsyncDelivery)
	assert.False(t, cfg.IsDev())
	assert.NoError(t, cfg.Validate())

	t.Setenv("ENVIRONMENT", "dev")
	assert.True(t, LoadConfig().IsDev())
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EAR_THRESHOLD", "0.21")
	t.Setenv("EAR_CONSEC_FRAMES", "2")
	t.Setenv("GAZE_THRESHOLD_LEFT", "0.7")
	t.Setenv("GAZE_THRESHOLD_RIGHT", "0.3")
	t.Setenv("ANALYSIS_PERIOD_SECONDS", "2.5")
	t.Setenv("SINK", "Both")
	t.Setenv("REMOTE_EMAIL", "user@example.com")
	t.Setenv("ASYNC_DELIVERY", "false")
	t.Setenv("TOKEN_TTL", "1h")
	t.Setenv("TARGET_FPS", "not-a-number")

	cfg := LoadConfig()
	assert.Equal(t, fatigue.Config{
		EARThreshold:       0.21,
		ConsecutiveFrames:  2,
		GazeThresholdLeft:  0.7,
		GazeThresholdRight: 0.3,
		AnalysisPeriod:     2500 * time.Millisecond,
	}, cfg.Monitor())
	assert.Equal(t, SinkBoth, cfg.Sink)
	assert.True(t, cfg.UsesFile())
	assert.True(t, cfg.UsesRemote())
	assert.False(t, cfg.AsyncDelivery)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, 30, cfg.TargetFPS, "unparsable values fall back to the default")
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg := LoadConfig()
	cfg.GazeThresholdLeft, cfg.GazeThresholdRight = 0.3, 0.7
	cfg.EARConsecFrames = 0
	cfg.Sink = "kafka"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SINK")

	cfg = LoadConfig()
	cfg.Sink = SinkRemote
	cfg.RemoteEmail = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateServer(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg := LoadConfig()
	assert.Error(t, cfg.ValidateServer(), "JWT secret is required")

	cfg.JWTSecret = "s3cret"
	assert.NoError(t, cfg.ValidateServer())
}

func TestDSNForLog(t *testing.T) {
	cfg := &Config{DBHost: "db", DBPort: "5432", DBUser: "app", DBPassword: "hunter2", DBName: "eyes", DBSSLMode: "disable"}
	assert.Contains(t, cfg.DSN(), "password=hunter2")
	assert.NotContains(t, cfg.DSNForLog(), "hunter2")
}
