package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Graph backends supported by the service.
const (
	GraphBackendSQL   = "sql"
	GraphBackendNeo4j = "neo4j"
)

// Mistake keys used when comparing submissions.
const (
	SimilarityKeyID               = "id"
	SimilarityKeyQuestionCriteria = "question_criteria"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName           string
	AppEnv            string
	AppPort           string
	GraphBackend      string
	DatabaseURL       string
	Neo4jURI          string
	Neo4jUser         string
	Neo4jPassword     string
	Neo4jDatabase     string
	RedisURL          string
	NATSURL           string
	NATSSubjectPrefix string
	JWTSecret         string
	CommunityDetector string
	AnalyticsCacheTTL time.Duration
	AnalyticsInterval time.Duration
	AnalyticsDebounce time.Duration
	SimilarityWorkers int
	SimilarityKey     string
	MaterialMaxBytes  int64
	GradingRateLimit  int
	GradingRateWindow time.Duration
	MetricsEnabled    bool
	CORSAllowOrigins  string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	AIModel           string
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
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Knowledge Graph")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("graph.backend", GraphBackendSQL)
	v.SetDefault("database.url", "sqlite:gema-kg.db")
	v.SetDefault("neo4j.database", "neo4j")
	v.SetDefault("nats.subject_prefix", "gema.kg")
	v.SetDefault("analytics.community_detector", "louvain")
	v.SetDefault("analytics.cache_ttl", "10m")
	v.SetDefault("analytics.interval", "0s")
	v.SetDefault("analytics.debounce", "2s")
	v.SetDefault("analytics.similarity_workers", 4)
	v.SetDefault("analytics.similarity_key", SimilarityKeyQuestionCriteria)
	v.SetDefault("materials.max_bytes", 5<<20)
	v.SetDefault("grading.rate_limit", 30)
	v.SetDefault("grading.rate_window", "1m")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("ai.model", "gpt-4o-mini")

	cacheTTL, err := parseDuration(v, "analytics.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	interval, err := parseDuration(v, "analytics.interval")
	if err != nil {
		return Config{}, err
	}
	debounce, err := parseDuration(v, "analytics.debounce")
	if err != nil {
		return Config{}, err
	}
	rateWindow, err := parseDuration(v, "grading.rate_window")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:           v.GetString("app.name"),
		AppEnv:            v.GetString("app.env"),
		AppPort:           v.GetString("app.port"),
		GraphBackend:      strings.ToLower(strings.TrimSpace(v.GetString("graph.backend"))),
		DatabaseURL:       v.GetString("database.url"),
		Neo4jURI:          v.GetString("neo4j.uri"),
		Neo4jUser:         v.GetString("neo4j.user"),
		Neo4jPassword:     v.GetString("neo4j.password"),
		Neo4jDatabase:     v.GetString("neo4j.database"),
		RedisURL:          v.GetString("redis.url"),
		NATSURL:           v.GetString("nats.url"),
		NATSSubjectPrefix: v.GetString("nats.subject_prefix"),
		JWTSecret:         v.GetString("jwt.secret"),
		CommunityDetector: strings.ToLower(v.GetString("analytics.community_detector")),
		AnalyticsCacheTTL: cacheTTL,
		AnalyticsInterval: interval,
		AnalyticsDebounce: debounce,
		SimilarityWorkers: v.GetInt("analytics.similarity_workers"),
		SimilarityKey:     strings.ToLower(strings.TrimSpace(v.GetString("analytics.similarity_key"))),
		MaterialMaxBytes:  v.GetInt64("materials.max_bytes"),
		GradingRateLimit:  v.GetInt("grading.rate_limit"),
		GradingRateWindow: rateWindow,
		MetricsEnabled:    v.GetBool("metrics.enabled"),
		CORSAllowOrigins:  v.GetString("cors.allow_origins"),
		OpenAIAPIKey:      v.GetString("openai_api_key"),
		OpenAIBaseURL:     v.GetString("openai_base_url"),
		AIModel:           v.GetString("ai.model"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.GraphBackend {
	case GraphBackendSQL:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("database url must be provided for the sql graph backend")
		}
	case GraphBackendNeo4j:
		if cfg.Neo4jURI == "" {
			return Config{}, fmt.Errorf("neo4j uri must be provided for the neo4j graph backend")
		}
	default:
		return Config{}, fmt.Errorf("unknown graph backend %q", cfg.GraphBackend)
	}

	if cfg.SimilarityKey != SimilarityKeyID && cfg.SimilarityKey != SimilarityKeyQuestionCriteria {
		return Config{}, fmt.Errorf("unknown similarity key %q", cfg.SimilarityKey)
	}

	if cfg.SimilarityWorkers <= 0 {
		cfg.SimilarityWorkers = 4
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
