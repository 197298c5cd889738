package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName           string
	AppEnv            string
	AppPort           string
	DatabaseURL       string
	RedisURL          string
	NATSURL           string
	NATSSubject       string
	JWTSecret         string
	ScoresCacheTTL    time.Duration
	GradingWorkers    int
	DefaultGroupGrade float64
	Scoring           ScoringConfig
}

// ScoringConfig holds the rating scale constants shared by every evaluation.
type ScoringConfig struct {
	ScaleMin    float64
	Neutral     float64
	ScaleMax    float64
	OutputBound float64
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PEER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Peer Evaluation API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("nats.subject", "peer-eval.grades")
	v.SetDefault("scores.cache_ttl", "2m")
	v.SetDefault("grading.workers", 8)
	v.SetDefault("grading.default_group_grade", 4.0)
	v.SetDefault("scoring.scale_min", 1.0)
	v.SetDefault("scoring.neutral", 3.0)
	v.SetDefault("scoring.scale_max", 5.0)
	v.SetDefault("scoring.output_bound", 1.0)

	ttlString := v.GetString("scores.cache_ttl")
	if ttlString == "" {
		ttlString = "2m"
	}

	ttl, err := time.ParseDuration(ttlString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid scores cache ttl: %w", err)
	}

	cfg := Config{
		AppName:           v.GetString("app.name"),
		AppEnv:            v.GetString("app.env"),
		AppPort:           v.GetString("app.port"),
		DatabaseURL:       v.GetString("database.url"),
		RedisURL:          v.GetString("redis.url"),
		NATSURL:           v.GetString("nats.url"),
		NATSSubject:       v.GetString("nats.subject"),
		JWTSecret:         v.GetString("jwt.secret"),
		ScoresCacheTTL:    ttl,
		GradingWorkers:    v.GetInt("grading.workers"),
		DefaultGroupGrade: v.GetFloat64("grading.default_group_grade"),
		Scoring: ScoringConfig{
			ScaleMin:    v.GetFloat64("scoring.scale_min"),
			Neutral:     v.GetFloat64("scoring.neutral"),
			ScaleMax:    v.GetFloat64("scoring.scale_max"),
			OutputBound: v.GetFloat64("scoring.output_bound"),
		},
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.GradingWorkers <= 0 {
		cfg.GradingWorkers = 8
	}

	return cfg, nil
}
