package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"onnoon-care/eye-monitor/internal/fatigue"
)

const (
	SinkFile   = "file"
	SinkRemote = "remote"
	SinkBoth   = "both"
)

type Config struct {
	// fatigue engine
	EARThreshold       float64
	EARConsecFrames    int
	GazeThresholdLeft  float64
	GazeThresholdRight float64
	AnalysisPeriod     time.Duration

	// result delivery
	Sink              string
	FatigueLogFile    string
	RemoteURL         string
	RemoteEmail       string
	RemotePassword    string
	AsyncDelivery     bool
	DeliveryQueueSize int

	// capture
	LandmarkServiceURL string
	CameraIndex        int
	TargetFPS          int
	MirrorFrames       bool

	// result store
	GRPCPort    string
	HTTPPort    string
	CORSOrigins string
	JWTSecret   string
	TokenTTL    time.Duration

	MaxMessageSizeMB int
	LogLevel         string
	Environment      string

	DBName     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

func (p *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.DBHost, p.DBPort, p.DBUser, p.DBPassword, p.DBName, p.DBSSLMode)
}

// DSNForLog is the DSN with the password masked.
func (p *Config) DSNForLog() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=*** dbname=%s sslmode=%s",
		p.DBHost, p.DBPort, p.DBUser, p.DBName, p.DBSSLMode)
}

func (c *Config) IsDev() bool {
	return c.Environment == "dev"
}

// Monitor returns the fatigue engine settings.
func (c *Config) Monitor() fatigue.Config {
	return fatigue.Config{
		EARThreshold:       c.EARThreshold,
		ConsecutiveFrames:  c.EARConsecFrames,
		GazeThresholdLeft:  c.GazeThresholdLeft,
		GazeThresholdRight: c.GazeThresholdRight,
		AnalysisPeriod:     c.AnalysisPeriod,
	}
}

// UsesRemote reports whether records go to the result store.
func (c *Config) UsesRemote() bool {
	return c.Sink == SinkRemote || c.Sink == SinkBoth
}

// UsesFile reports whether records go to the local log file.
func (c *Config) UsesFile() bool {
	return c.Sink == SinkFile || c.Sink == SinkBoth
}

// Validate checks the monitor and delivery settings.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Monitor().Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Sink {
	case SinkFile, SinkRemote, SinkBoth:
	default:
		errs = append(errs, fmt.Errorf("SINK must be one of file, remote, both; got %q", c.Sink))
	}
	if c.UsesFile() && c.FatigueLogFile == "" {
		errs = append(errs, errors.New("FATIGUE_LOG_FILE is required for the file sink"))
	}
	if c.UsesRemote() && (c.RemoteURL == "" || c.RemoteEmail == "") {
		errs = append(errs, errors.New("REMOTE_URL and REMOTE_EMAIL are required for the remote sink"))
	}
	if c.DeliveryQueueSize < 1 {
		errs = append(errs, fmt.Errorf("DELIVERY_QUEUE_SIZE must be at least 1, got %d", c.DeliveryQueueSize))
	}
	if c.TargetFPS < 1 {
		errs = append(errs, fmt.Errorf("TARGET_FPS must be at least 1, got %d", c.TargetFPS))
	}
	return errors.Join(errs...)
}

// ValidateServer checks the result store settings.
func (c *Config) ValidateServer() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("TOKEN_TTL must be positive, got %v", c.TokenTTL))
	}
	if c.DBName == "" {
		errs = append(errs, errors.New("DB_NAME is not set"))
	}
	return errors.Join(errs...)
}

// LoadConfig reads an optional .env file and then the environment.
func LoadConfig() *Config {
	// a missing .env is fine, system environment variables are used
	_ = godotenv.Load()

	def := fatigue.DefaultConfig()
	return &Config{
		EARThreshold:       getEnvFloat("EAR_THRESHOLD", def.EARThreshold),
		EARConsecFrames:    getEnvInt("EAR_CONSEC_FRAMES", def.ConsecutiveFrames),
		GazeThresholdLeft:  getEnvFloat("GAZE_THRESHOLD_LEFT", def.GazeThresholdLeft),
		GazeThresholdRight: getEnvFloat("GAZE_THRESHOLD_RIGHT", def.GazeThresholdRight),
		AnalysisPeriod:     getEnvSeconds("ANALYSIS_PERIOD_SECONDS", def.AnalysisPeriod),

		Sink:              strings.ToLower(getEnv("SINK", SinkFile)),
		FatigueLogFile:    getEnv("FATIGUE_LOG_FILE", "fatigue_log.json"),
		RemoteURL:         getEnv("REMOTE_URL", "http://localhost:8081"),
		RemoteEmail:       getEnv("REMOTE_EMAIL", ""),
		RemotePassword:    getEnv("REMOTE_PASSWORD", ""),
		AsyncDelivery:     getEnvBool("ASYNC_DELIVERY", true),
		DeliveryQueueSize: getEnvInt("DELIVERY_QUEUE_SIZE", 16),

		LandmarkServiceURL: getEnv("LANDMARK_SERVICE_URL", "localhost:50052"),
		CameraIndex:        getEnvInt("CAMERA_INDEX", 0),
		TargetFPS:          getEnvInt("TARGET_FPS", 30),
		MirrorFrames:       getEnvBool("MIRROR_FRAMES", true),

		GRPCPort:    getEnv("GRPC_PORT", "50051"),
		HTTPPort:    getEnv("HTTP_PORT", "8081"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		TokenTTL:    getEnvDuration("TOKEN_TTL", 30*time.Minute),

		MaxMessageSizeMB: getEnvInt("MAX_MESSAGE_SIZE_MB", 50),
		LogLevel:         getEnv("LOG_LEVEL", "INFO"),
		Environment:      getEnv("ENVIRONMENT", "production"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "eye_monitor"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvSeconds reads a number of seconds, fractions allowed.
func getEnvSeconds(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
