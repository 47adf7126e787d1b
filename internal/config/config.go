package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// InstanceIDAuto asks for a generated instance id
const InstanceIDAuto = "AUTO"

// Config holds all application configuration
type Config struct {
	// MongoDB Configuration
	MongoURI      string
	MongoDatabase string
	MongoTimeout  time.Duration

	// HTTP Server Configuration
	HTTPPort         string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration

	// Logging Configuration
	LogLevel  string
	LogFormat string

	// Instance Identity
	SchedulerName string
	InstanceID    string
	Clustered     bool

	// Cluster Configuration
	CheckinInterval time.Duration
	LeaseGrace      time.Duration
	CheckinAttempts int

	// Lock Timeouts
	JobLockTimeout     time.Duration
	TriggerLockTimeout time.Duration

	// Scheduler Configuration
	SchedulerEnabled      bool
	SchedulerTickInterval time.Duration
	SchedulerConcurrency  int

	// Webhook Job
	WebhookURL     string
	WebhookTimeout time.Duration
}

// Load reads configuration from environment variables with sensible defaults
func Load() *Config {
	cfg := &Config{
		// MongoDB
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017/scheduler?authSource=admin"),
		MongoDatabase: getEnv("MONGO_DATABASE", "scheduler"),
		MongoTimeout:  getDurationEnv("MONGO_TIMEOUT_SEC", 10) * time.Second,

		// HTTP Server
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		HTTPReadTimeout:  getDurationEnv("HTTP_READ_TIMEOUT_SEC", 30) * time.Second,
		HTTPWriteTimeout: getDurationEnv("HTTP_WRITE_TIMEOUT_SEC", 30) * time.Second,

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Identity
		SchedulerName: getEnv("SCHEDULER_NAME", "quartz"),
		InstanceID:    getEnv("SCHEDULER_INSTANCE_ID", InstanceIDAuto),
		Clustered:     getBoolEnv("CLUSTERED", true),

		// Cluster
		CheckinInterval: getDurationEnv("CLUSTER_CHECKIN_INTERVAL_MS", 7500) * time.Millisecond,
		LeaseGrace:      getDurationEnv("CLUSTER_LEASE_GRACE_MS", 7500) * time.Millisecond,
		CheckinAttempts: getIntEnv("CLUSTER_CHECKIN_ATTEMPTS", 3),

		// Lock timeouts
		JobLockTimeout:     getDurationEnv("JOB_LOCK_TIMEOUT_MS", 600000) * time.Millisecond,
		TriggerLockTimeout: getDurationEnv("TRIGGER_LOCK_TIMEOUT_MS", 600000) * time.Millisecond,

		// Scheduler
		SchedulerEnabled:      getBoolEnv("SCHEDULER_ENABLED", true),
		SchedulerTickInterval: getDurationEnv("SCHEDULER_TICK_INTERVAL_SEC", 10) * time.Second,
		SchedulerConcurrency:  getIntEnv("SCHEDULER_CONCURRENCY", 10),

		// Webhook job
		WebhookURL:     getEnv("WEBHOOK_URL", ""),
		WebhookTimeout: getDurationEnv("WEBHOOK_TIMEOUT_SEC", 10) * time.Second,
	}

	if cfg.InstanceID == InstanceIDAuto {
		cfg.InstanceID = generateInstanceID()
	}

	return cfg
}

// Lease is how long a node stays alive after its last check-in
func (c *Config) Lease() time.Duration {
	return c.CheckinInterval + c.LeaseGrace
}

// Validate reports settings the scheduler cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.SchedulerName == "" {
		errs = append(errs, errors.New("SCHEDULER_NAME must not be empty"))
	}
	if c.InstanceID == "" {
		errs = append(errs, errors.New("SCHEDULER_INSTANCE_ID must not be empty"))
	}
	if c.CheckinInterval <= 0 {
		errs = append(errs, fmt.Errorf("CLUSTER_CHECKIN_INTERVAL_MS must be positive, got %s", c.CheckinInterval))
	}
	if c.LeaseGrace < 0 {
		errs = append(errs, fmt.Errorf("CLUSTER_LEASE_GRACE_MS must not be negative, got %s", c.LeaseGrace))
	}
	if c.CheckinAttempts < 1 {
		errs = append(errs, fmt.Errorf("CLUSTER_CHECKIN_ATTEMPTS must be at least 1, got %d", c.CheckinAttempts))
	}
	if c.JobLockTimeout <= 0 || c.TriggerLockTimeout <= 0 {
		errs = append(errs, errors.New("lock timeouts must be positive"))
	}
	if c.SchedulerEnabled {
		if c.SchedulerTickInterval <= 0 {
			errs = append(errs, fmt.Errorf("SCHEDULER_TICK_INTERVAL_SEC must be positive, got %s", c.SchedulerTickInterval))
		}
		if c.SchedulerConcurrency < 1 {
			errs = append(errs, fmt.Errorf("SCHEDULER_CONCURRENCY must be at least 1, got %d", c.SchedulerConcurrency))
		}
	}

	if c.WebhookURL != "" && c.WebhookTimeout <= 0 {
		errs = append(errs, fmt.Errorf("WEBHOOK_TIMEOUT_SEC must be positive, got %s", c.WebhookTimeout))
	}

	return errors.Join(errs...)
}

// generateInstanceID builds a unique id from the hostname and a random suffix
func generateInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		log.Printf("Warning: Failed to get hostname, using UUID as instance id")
		return uuid.New().String()
	}
	return host + "-" + uuid.New().String()
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return time.Duration(intVal)
		}
		log.Printf("Warning: Invalid duration value for %s, using default %d", key, defaultValue)
	}
	return time.Duration(defaultValue)
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Printf("Warning: Invalid boolean value for %s, using default %t", key, defaultValue)
	}
	return defaultValue
}
