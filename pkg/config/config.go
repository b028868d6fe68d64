// Package config loads CarFinder settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrConfiguration wraps every load or validation failure.
var ErrConfiguration = errors.New("configuration error")

// Config holds all environment-based configuration. Keys are the
// lowercased environment variable names.
type Config struct {
	OllamaHost     string        `mapstructure:"ollama_host" validate:"required,url"`
	OllamaModel    string        `mapstructure:"ollama_model" validate:"required"`
	EmbeddingModel string        `mapstructure:"embedding_model" validate:"required"`
	OllamaTimeout  time.Duration `mapstructure:"ollama_timeout" validate:"min=1s"`
	LLMEnabled     bool          `mapstructure:"llm_enabled"`
	EmbeddingDim   int           `mapstructure:"embedding_dim" validate:"min=16,max=4096"`

	DatabasePath        string  `mapstructure:"database_path" validate:"required"`
	MaxResults          int     `mapstructure:"max_results" validate:"min=1,max=200"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" validate:"gte=0,lte=1"`
	RerankTopK          int     `mapstructure:"rerank_top_k" validate:"min=1,max=500"`

	EnableLiveData       bool          `mapstructure:"enable_live_data"`
	AutoDevAPIKey        string        `mapstructure:"auto_dev_api_key"`
	AutoTraderAPIKey     string        `mapstructure:"autotrader_api_key"`
	CarGurusAPIKey       string        `mapstructure:"cargurus_api_key"`
	CacheDurationHours   int           `mapstructure:"cache_duration_hours" validate:"gte=0,lte=168"`
	MaxResultsPerSource  int           `mapstructure:"max_results_per_source" validate:"min=1,max=100"`
	DefaultSearchRadius  int           `mapstructure:"default_search_radius" validate:"min=1,max=500"`
	MaxConcurrentSources int           `mapstructure:"max_concurrent_sources" validate:"min=1,max=32"`
	SourceTimeout        time.Duration `mapstructure:"source_timeout" validate:"gt=0"`

	RedisAddr        string `mapstructure:"redis_addr"`
	QdrantURL        string `mapstructure:"qdrant_url"`
	QdrantCollection string `mapstructure:"qdrant_collection" validate:"required"`
	Neo4jURL         string `mapstructure:"neo4j_url"`
	Neo4jUser        string `mapstructure:"neo4j_user"`
	Neo4jPass        string `mapstructure:"neo4j_pass"`
	NATSURL          string `mapstructure:"nats_url"`

	Port       string `mapstructure:"port" validate:"required,numeric"`
	CORSOrigin string `mapstructure:"cors_origin"`
	LogLevel   string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat  string `mapstructure:"log_format" validate:"oneof=json text"`
}

var defaults = map[string]any{
	"ollama_host":            "http://localhost:11434",
	"ollama_model":           "llama3.2",
	"embedding_model":        "nomic-embed-text",
	"ollama_timeout":         30 * time.Second,
	"llm_enabled":            true,
	"embedding_dim":          384,
	"database_path":          "data/carfinder.db",
	"max_results":            20,
	"similarity_threshold":   0.7,
	"rerank_top_k":           10,
	"enable_live_data":       false,
	"auto_dev_api_key":       "",
	"autotrader_api_key":     "",
	"cargurus_api_key":       "",
	"cache_duration_hours":   2,
	"max_results_per_source": 20,
	"default_search_radius":  50,
	"max_concurrent_sources": 4,
	"source_timeout":         10 * time.Second,
	"redis_addr":             "",
	"qdrant_url":             "",
	"qdrant_collection":      "carfinder",
	"neo4j_url":              "",
	"neo4j_user":             "neo4j",
	"neo4j_pass":             "password",
	"nats_url":               "",
	"port":                   "8080",
	"cors_origin":            "*",
	"log_level":              "info",
	"log_format":             "json",
}

// Load reads an optional .env file, then the environment over the defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: read .env: %v", ErrConfiguration, err)
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()
	return v
}

// FromViper unmarshals and validates the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrConfiguration, err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field against its rules.
func (c *Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, len(verrs))
		for i, fe := range verrs {
			msgs[i] = fmt.Sprintf("%s: failed %q (value %v)", strings.ToUpper(fieldKey(fe)), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(msgs, "; "))
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return nil
}

func fieldKey(fe validator.FieldError) string {
	for k := range defaults {
		if strings.EqualFold(strings.ReplaceAll(k, "_", ""), fe.StructField()) {
			return k
		}
	}
	return fe.StructField()
}

// CacheTTL is the live listing cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheDurationHours) * time.Hour
}

// HashEmbeddings reports whether the built-in hashing embedder is forced.
func (c *Config) HashEmbeddings() bool {
	return strings.EqualFold(c.EmbeddingModel, "hash")
}
