package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Matching  MatchingConfig
	Uploader  UploaderConfig
	Events    EventsConfig
	Storage   StorageConfig
	Embedding EmbeddingConfig
	Database  DatabaseConfig
	Stores    StoresConfig
	Redis     RedisConfig
	DynamoDB  DynamoDBConfig
	MariaDB   MariaDBConfig
	Sweeper   SweeperConfig
	Web       WebConfig
	Log       LogConfig
}

// MatchingConfig holds the face matching thresholds. Both thresholds use a
// 0-100 scale and are compared inclusively.
type MatchingConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" validate:"gte=0,lte=100"`
	MinConfidence       float64 `yaml:"min_confidence" validate:"gte=0,lte=100"` // label detection, unused by face matching
	MaxResults          int     `yaml:"max_results" validate:"gte=1"`
}

type UploaderConfig struct {
	MetadataField string `yaml:"metadata_field" validate:"required"`
}

type EventsConfig struct {
	AllowedExtensions []string `yaml:"allowed_extensions" validate:"min=1,dive,startswith=."`
}

type StorageConfig struct {
	Region       string `validate:"required"`
	Endpoint     string // S3-compatible endpoint override (e.g., MinIO), empty for AWS
	UsePathStyle bool
}

type EmbeddingConfig struct {
	URL          string `validate:"required,url"` // defaults to http://localhost:8000
	MaxImageSize int    `validate:"gte=64"`       // longest edge sent to the embedding server
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
	HNSWEnabled  bool   // Serve collection searches from an in-memory HNSW index
}

// StoresConfig selects the backend for each store.
type StoresConfig struct {
	IdentityBackend    string `validate:"oneof=postgres redis dynamodb mariadb"`
	AssociationBackend string `validate:"oneof=postgres redis dynamodb"`
}

type RedisConfig struct {
	URL string // redis://host:port/db
}

type DynamoDBConfig struct {
	IdentityTable    string `validate:"required"`
	AssociationTable string `validate:"required"`
	Endpoint         string // local DynamoDB endpoint override
}

type MariaDBConfig struct {
	DSN string // e.g. enroll:enroll@tcp(mariadb:3306)/enrollment
}

type SweeperConfig struct {
	Interval time.Duration `validate:"gt=0"`
	MaxAge   time.Duration `validate:"gt=0"`
}

type WebConfig struct {
	Host string
	Port int `validate:"gte=1,lte=65535"`
}

type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=text json"`
}

// defaults mirrors the layout of defaults.yaml.
type defaults struct {
	Matching MatchingConfig `yaml:"matching"`
	Uploader UploaderConfig `yaml:"uploader"`
	Events   EventsConfig   `yaml:"events"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envBool reads an environment variable as a bool, falling back on unset or invalid values.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

// envDuration reads an environment variable as a time.Duration (e.g. "15m").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var d defaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Matching: MatchingConfig{
			SimilarityThreshold: envFloat("FACE_SIMILARITY_THRESHOLD", d.Matching.SimilarityThreshold),
			MinConfidence:       envFloat("MIN_CONFIDENCE", d.Matching.MinConfidence),
			MaxResults:          d.Matching.MaxResults,
		},
		Uploader: d.Uploader,
		Events:   d.Events,
		Storage: StorageConfig{
			Region:       envString("S3_REGION", "us-east-1"),
			Endpoint:     os.Getenv("S3_ENDPOINT"),
			UsePathStyle: envBool("S3_USE_PATH_STYLE", false),
		},
		Embedding: EmbeddingConfig{
			URL:          envString("EMBEDDING_URL", "http://localhost:8000"),
			MaxImageSize: envInt("EMBEDDING_MAX_IMAGE_SIZE", 1920),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWEnabled:  envBool("FACE_HNSW_ENABLED", false),
		},
		Stores: StoresConfig{
			IdentityBackend:    strings.ToLower(envString("IDENTITY_BACKEND", "postgres")),
			AssociationBackend: strings.ToLower(envString("ASSOCIATION_BACKEND", "postgres")),
		},
		Redis: RedisConfig{
			URL: envString("REDIS_URL", "redis://localhost:6379/0"),
		},
		DynamoDB: DynamoDBConfig{
			IdentityTable:    envString("DYNAMODB_IDENTITY_TABLE", "face-identities"),
			AssociationTable: envString("DYNAMODB_ASSOCIATION_TABLE", "photo-associations"),
			Endpoint:         os.Getenv("DYNAMODB_ENDPOINT"),
		},
		MariaDB: MariaDBConfig{
			DSN: os.Getenv("IDENTITY_MARIADB_DSN"),
		},
		Sweeper: SweeperConfig{
			Interval: envDuration("SWEEP_INTERVAL", 15*time.Minute),
			MaxAge:   envDuration("SWEEP_MAX_AGE", time.Hour),
		},
		Web: WebConfig{
			Host: envString("WEB_HOST", "0.0.0.0"),
			Port: envInt("WEB_PORT", 8080),
		},
		Log: LogConfig{
			Level:  strings.ToLower(envString("LOG_LEVEL", "info")),
			Format: strings.ToLower(envString("LOG_FORMAT", "text")),
		},
	}
}

// Validate checks field constraints and the settings each selected backend needs.
// The face collection always lives in PostgreSQL, so DATABASE_URL is required
// whatever the store backends are.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if c.Stores.IdentityBackend == "mariadb" && c.MariaDB.DSN == "" {
		return errors.New("IDENTITY_MARIADB_DSN environment variable is required for the mariadb identity backend")
	}
	return nil
}
