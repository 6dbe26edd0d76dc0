package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Kafka struct {
		Broker        string
		TriggerTopic  string
		LocationTopic string
		GroupID       string
	}
	DB struct {
		DSN string
	}
	SMS struct {
		AccountSID string
		AuthToken  string
		FromNumber string
	}
	Push struct {
		BotToken      string
		RatePerSecond int
	}
	Authority struct {
		Endpoint string
		Name     string
	}
	API struct {
		Port     string
		BasePath string
	}
	Engine struct {
		MaxAttempts    int
		BaseRetryDelay time.Duration
		MaxRetryDelay  time.Duration
		SendTimeout    time.Duration
		AlertLifetime  time.Duration
		SweepInterval  time.Duration
		QueueSize      int
		MaxWorkers     int
	}
	Logging struct {
		Dir   string
		Level string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	// Kafka settings
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.TriggerTopic = os.Getenv("KAFKA_TRIGGER_TOPIC")
	cfg.Kafka.LocationTopic = os.Getenv("KAFKA_LOCATION_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	// Database DSN
	cfg.DB.DSN = os.Getenv("DB_DSN")

	// Twilio settings
	cfg.SMS.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.SMS.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.SMS.FromNumber = os.Getenv("TWILIO_PHONE_NUMBER")

	// Push settings
	cfg.Push.BotToken = os.Getenv("PUSH_BOT_TOKEN")
	if r, err := strconv.Atoi(os.Getenv("PUSH_RATE_PER_SECOND")); err == nil {
		cfg.Push.RatePerSecond = r
	}

	// Authority dispatch settings
	cfg.Authority.Endpoint = os.Getenv("AUTHORITY_ENDPOINT")
	cfg.Authority.Name = os.Getenv("AUTHORITY_NAME")

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	// Engine settings
	if n, err := strconv.Atoi(os.Getenv("MAX_ATTEMPTS")); err == nil {
		cfg.Engine.MaxAttempts = n
	}
	cfg.Engine.BaseRetryDelay = duration("BASE_RETRY_DELAY")
	cfg.Engine.MaxRetryDelay = duration("MAX_RETRY_DELAY")
	cfg.Engine.SendTimeout = duration("SEND_TIMEOUT")
	cfg.Engine.AlertLifetime = duration("ALERT_LIFETIME")
	cfg.Engine.SweepInterval = duration("SWEEP_INTERVAL")
	if qs, err := strconv.Atoi(os.Getenv("QUEUE_SIZE")); err == nil {
		cfg.Engine.QueueSize = qs
	}
	if mw, err := strconv.Atoi(os.Getenv("MAX_WORKERS")); err == nil {
		cfg.Engine.MaxWorkers = mw
	}

	// Logging settings
	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Validate required settings
	missing := []string{}
	if cfg.Kafka.Broker == "" {
		missing = append(missing, "KAFKA_BROKER")
	}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if cfg.Authority.Endpoint == "" {
		missing = append(missing, "AUTHORITY_ENDPOINT")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.Kafka.TriggerTopic == "" {
		cfg.Kafka.TriggerTopic = "safety_trigger"
	}
	if cfg.Kafka.LocationTopic == "" {
		cfg.Kafka.LocationTopic = "location_update"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "safepulse"
	}
	if cfg.Authority.Name == "" {
		cfg.Authority.Name = "Emergency Services"
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.Push.RatePerSecond == 0 {
		cfg.Push.RatePerSecond = 20
	}
	if cfg.Engine.MaxAttempts == 0 {
		cfg.Engine.MaxAttempts = 3
	}
	if cfg.Engine.BaseRetryDelay == 0 {
		cfg.Engine.BaseRetryDelay = 5 * time.Second
	}
	if cfg.Engine.MaxRetryDelay == 0 {
		cfg.Engine.MaxRetryDelay = 2 * time.Minute
	}
	if cfg.Engine.SendTimeout == 0 {
		cfg.Engine.SendTimeout = 10 * time.Second
	}
	if cfg.Engine.AlertLifetime == 0 {
		cfg.Engine.AlertLifetime = 30 * time.Minute
	}
	if cfg.Engine.SweepInterval == 0 {
		cfg.Engine.SweepInterval = time.Minute
	}
	if cfg.Engine.QueueSize == 0 {
		cfg.Engine.QueueSize = 500
	}
	if cfg.Engine.MaxWorkers == 0 {
		cfg.Engine.MaxWorkers = 10
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return cfg, nil
}

func duration(key string) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return 0
	}
	return d
}
