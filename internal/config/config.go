package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `toml:"app" yaml:"app"`
	Log       LogConfig       `toml:"log" yaml:"log"`
	Auth      AuthConfig      `toml:"auth" yaml:"auth"`
	LLM       LLMConfig       `toml:"llm" yaml:"llm"`
	Embedding EmbeddingConfig `toml:"embedding" yaml:"embedding"`
	RAG       RAGConfig       `toml:"rag" yaml:"rag"`
	Upload    UploadConfig    `toml:"upload" yaml:"upload"`
	Database  DatabaseConfig  `toml:"database" yaml:"database"`
	Redis     RedisConfig     `toml:"redis" yaml:"redis"`
	RabbitMQ  RabbitMQConfig  `toml:"rabbitmq" yaml:"rabbitmq"`
	Qdrant    QdrantConfig    `toml:"qdrant" yaml:"qdrant"`
	Storage   StorageConfig   `toml:"storage" yaml:"storage"`
	Timeouts  TimeoutConfig   `toml:"timeouts" yaml:"timeouts"`
	CORS      CORSConfig      `toml:"cors" yaml:"cors"`
}

type AppConfig struct {
	Name    string `toml:"name" yaml:"name"`
	Env     string `toml:"env" yaml:"env"`
	Host    string `toml:"host" yaml:"host"`
	Port    int    `toml:"port" yaml:"port"`
	GinMode string `toml:"gin_mode" yaml:"gin_mode"`
}

// LogConfig: Redact scrubs secrets and hashes user ids in log fields.
type LogConfig struct {
	Mode     string `toml:"mode" yaml:"mode"`
	Level    string `toml:"level" yaml:"level"`
	Redact   bool   `toml:"redact" yaml:"redact"`
	HashSalt string `toml:"hash_salt" yaml:"hash_salt"`
}

// AuthConfig selects how bearer tokens are verified. Provider is one of
// "firebase", "oidc" or "hs256".
type AuthConfig struct {
	Provider          string `toml:"provider" yaml:"provider"`
	FirebaseProjectID string `toml:"firebase_project_id" yaml:"firebase_project_id"`
	Issuer            string `toml:"issuer" yaml:"issuer"`
	Audience          string `toml:"audience" yaml:"audience"`
	JWKSURL           string `toml:"jwks_url" yaml:"jwks_url"`
	HMACSecret        string `toml:"hmac_secret" yaml:"hmac_secret"`
}

type LLMConfig struct {
	BaseURL      string  `toml:"base_url" yaml:"base_url"`
	APIKey       string  `toml:"api_key" yaml:"api_key"`
	Model        string  `toml:"model" yaml:"model"`
	Temperature  float64 `toml:"temperature" yaml:"temperature"`
	MaxTokens    int     `toml:"max_tokens" yaml:"max_tokens"`
	HistoryTurns int     `toml:"history_turns" yaml:"history_turns"`
	MaxRetries   int     `toml:"max_retries" yaml:"max_retries"`
}

// EmbeddingConfig points at any OpenAI-compatible /embeddings endpoint
// (OpenAI, Hugging Face TEI, vLLM, Ollama).
type EmbeddingConfig struct {
	BaseURL     string `toml:"base_url" yaml:"base_url"`
	APIKey      string `toml:"api_key" yaml:"api_key"`
	Model       string `toml:"model" yaml:"model"`
	Dimension   int    `toml:"dimension" yaml:"dimension"`
	BatchSize   int    `toml:"batch_size" yaml:"batch_size"`
	Concurrency int    `toml:"concurrency" yaml:"concurrency"`
	MaxRetries  int    `toml:"max_retries" yaml:"max_retries"`
}

type RAGConfig struct {
	ChunkSize    int `toml:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int `toml:"chunk_overlap" yaml:"chunk_overlap"`
	TopK         int `toml:"top_k" yaml:"top_k"`
}

type UploadConfig struct {
	MaxSizeMB int `toml:"max_size_mb" yaml:"max_size_mb"`
}

type DatabaseConfig struct {
	Driver   string `toml:"driver" yaml:"driver"`
	Host     string `toml:"host" yaml:"host"`
	Port     int    `toml:"port" yaml:"port"`
	User     string `toml:"user" yaml:"user"`
	Password string `toml:"password" yaml:"password"`
	DB       string `toml:"db" yaml:"db"`
	Params   string `toml:"params" yaml:"params"`
}

type RedisConfig struct {
	Addr                   string `toml:"addr" yaml:"addr"`
	Password               string `toml:"password" yaml:"password"`
	DB                     int    `toml:"db" yaml:"db"`
	HistoryTTLSeconds      int    `toml:"history_ttl_seconds" yaml:"history_ttl_seconds"`
	HistoryDirtyTTLSeconds int    `toml:"history_dirty_ttl_seconds" yaml:"history_dirty_ttl_seconds"`
}

// RabbitMQConfig is optional: with an empty URL, purges run inline.
type RabbitMQConfig struct {
	URL          string `toml:"url" yaml:"url"`
	CleanupQueue string `toml:"cleanup_queue" yaml:"cleanup_queue"`
}

type QdrantConfig struct {
	Host       string `toml:"host" yaml:"host"`
	Port       int    `toml:"port" yaml:"port"`
	APIKey     string `toml:"api_key" yaml:"api_key"`
	UseTLS     bool   `toml:"use_tls" yaml:"use_tls"`
	Collection string `toml:"collection" yaml:"collection"`
}

// StorageConfig selects the object store. Provider is "minio" (any
// S3-compatible endpoint) or "gcs".
type StorageConfig struct {
	Provider      string      `toml:"provider" yaml:"provider"`
	Bucket        string      `toml:"bucket" yaml:"bucket"`
	PublicBaseURL string      `toml:"public_base_url" yaml:"public_base_url"`
	Minio         MinioConfig `toml:"minio" yaml:"minio"`
	GCS           GCSConfig   `toml:"gcs" yaml:"gcs"`
}

type MinioConfig struct {
	Endpoint  string `toml:"endpoint" yaml:"endpoint"`
	AccessKey string `toml:"access_key" yaml:"access_key"`
	SecretKey string `toml:"secret_key" yaml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl" yaml:"use_ssl"`
	Region    string `toml:"region" yaml:"region"`
}

type GCSConfig struct {
	CredentialsFile string `toml:"credentials_file" yaml:"credentials_file"`
}

// TimeoutConfig holds one deadline per external dependency, in seconds.
type TimeoutConfig struct {
	StorageSeconds   int `toml:"storage_seconds" yaml:"storage_seconds"`
	EmbeddingSeconds int `toml:"embedding_seconds" yaml:"embedding_seconds"`
	IndexSeconds     int `toml:"index_seconds" yaml:"index_seconds"`
	LLMSeconds       int `toml:"llm_seconds" yaml:"llm_seconds"`
	IdentitySeconds  int `toml:"identity_seconds" yaml:"identity_seconds"`
	DatabaseSeconds  int `toml:"database_seconds" yaml:"database_seconds"`
}

type CORSConfig struct {
	AllowOrigins []string `toml:"allow_origins" yaml:"allow_origins"`
}

func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := getEnv("CONFIG_FILE", "configs/config.toml")
	if _, err := os.Stat(configPath); err == nil {
		if err := decodeFile(configPath, cfg); err != nil {
			return nil, err
		}
	}

	overrideByEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file failed: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return fmt.Errorf("decode yaml config file failed: %w", err)
		}
	default:
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("decode config file failed: %w", err)
		}
	}
	return nil
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Embedding.Model) == "" {
		errs = append(errs, errors.New("embedding.model is required"))
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, errors.New("embedding.dimension must be positive"))
	}
	if c.LLM.MaxRetries < 0 || c.Embedding.MaxRetries < 0 {
		errs = append(errs, errors.New("llm.max_retries and embedding.max_retries must not be negative"))
	}
	if c.RAG.ChunkSize <= 0 {
		errs = append(errs, errors.New("rag.chunk_size must be positive"))
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, errors.New("rag.chunk_overlap must be in [0, chunk_size)"))
	}
	switch c.Database.Driver {
	case "postgres", "mysql":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	switch c.Storage.Provider {
	case "minio", "gcs":
	default:
		errs = append(errs, fmt.Errorf("storage.provider %q is not supported", c.Storage.Provider))
	}
	switch c.Auth.Provider {
	case "firebase":
		if c.Auth.FirebaseProjectID == "" {
			errs = append(errs, errors.New("auth.firebase_project_id is required for firebase"))
		}
	case "oidc":
		if c.Auth.Issuer == "" || c.Auth.Audience == "" || c.Auth.JWKSURL == "" {
			errs = append(errs, errors.New("auth.issuer, auth.audience and auth.jwks_url are required for oidc"))
		}
	case "hs256":
		if c.Auth.HMACSecret == "" {
			errs = append(errs, errors.New("auth.hmac_secret is required for hs256"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.provider %q is not supported", c.Auth.Provider))
	}
	return errors.Join(errs...)
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

func (c *Config) DatabaseDSN() string {
	d := c.Database
	if d.Driver == "mysql" {
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s", d.User, d.Password, d.Host, d.Port, d.DB, d.Params)
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s", d.Host, d.Port, d.User, d.Password, d.DB)
	if d.Params != "" {
		dsn += " " + d.Params
	}
	return dsn
}

func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Upload.MaxSizeMB) << 20
}

func (t TimeoutConfig) Storage() time.Duration   { return seconds(t.StorageSeconds, 30) }
func (t TimeoutConfig) Embedding() time.Duration { return seconds(t.EmbeddingSeconds, 60) }
func (t TimeoutConfig) Index() time.Duration     { return seconds(t.IndexSeconds, 10) }
func (t TimeoutConfig) LLM() time.Duration       { return seconds(t.LLMSeconds, 90) }
func (t TimeoutConfig) Identity() time.Duration  { return seconds(t.IdentitySeconds, 10) }
func (t TimeoutConfig) Database() time.Duration  { return seconds(t.DatabaseSeconds, 5) }

func seconds(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:    "documind-backend",
			Env:     "dev",
			Host:    "0.0.0.0",
			Port:    8080,
			GinMode: "debug",
		},
		Log: LogConfig{Mode: "dev", Redact: true},
		Auth: AuthConfig{
			Provider: "firebase",
		},
		LLM: LLMConfig{
			BaseURL:      "https://api.openai.com/v1",
			Model:        "gpt-4o-mini",
			Temperature:  0.2,
			MaxTokens:    512,
			HistoryTurns: 5,
			MaxRetries:   2,
		},
		Embedding: EmbeddingConfig{
			BaseURL:     "http://127.0.0.1:8081/v1",
			Model:       "sentence-transformers/all-MiniLM-L6-v2",
			Dimension:   384,
			BatchSize:   10,
			Concurrency: 4,
			MaxRetries:  2,
		},
		RAG: RAGConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			TopK:         5,
		},
		Upload: UploadConfig{MaxSizeMB: 10},
		Database: DatabaseConfig{
			Driver:   "postgres",
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "postgres",
			Password: "",
			DB:       "documind",
			Params:   "sslmode=disable TimeZone=UTC",
		},
		Redis: RedisConfig{
			Addr:                   "127.0.0.1:6379",
			Password:               "",
			DB:                     0,
			HistoryTTLSeconds:      60,
			HistoryDirtyTTLSeconds: 5,
		},
		RabbitMQ: RabbitMQConfig{
			URL:          "",
			CleanupQueue: "documind.document.cleanup",
		},
		Qdrant: QdrantConfig{
			Host:       "127.0.0.1",
			Port:       6334,
			Collection: "document_chunks",
		},
		Storage: StorageConfig{
			Provider: "minio",
			Bucket:   "documind-documents",
			Minio: MinioConfig{
				Endpoint: "127.0.0.1:9000",
			},
		},
		Timeouts: TimeoutConfig{
			StorageSeconds:   30,
			EmbeddingSeconds: 60,
			IndexSeconds:     10,
			LLMSeconds:       90,
			IdentitySeconds:  10,
			DatabaseSeconds:  5,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
	}
}

func overrideByEnv(cfg *Config) {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnvAsInt("APP_PORT", cfg.App.Port)
	cfg.App.GinMode = getEnv("GIN_MODE", cfg.App.GinMode)
	cfg.Log.Mode = getEnv("LOG_MODE", cfg.Log.Mode)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Redact = getEnvAsBool("LOG_REDACTION_ENABLED", cfg.Log.Redact)
	cfg.Log.HashSalt = getEnv("LOG_HASH_SALT", cfg.Log.HashSalt)

	cfg.Auth.Provider = getEnv("AUTH_PROVIDER", cfg.Auth.Provider)
	cfg.Auth.FirebaseProjectID = getEnv("FIREBASE_PROJECT_ID", cfg.Auth.FirebaseProjectID)
	cfg.Auth.Issuer = getEnv("AUTH_ISSUER", cfg.Auth.Issuer)
	cfg.Auth.Audience = getEnv("AUTH_AUDIENCE", cfg.Auth.Audience)
	cfg.Auth.JWKSURL = getEnv("AUTH_JWKS_URL", cfg.Auth.JWKSURL)
	cfg.Auth.HMACSecret = getEnv("AUTH_HMAC_SECRET", cfg.Auth.HMACSecret)

	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.Temperature = getEnvAsFloat("LLM_TEMPERATURE", cfg.LLM.Temperature)
	cfg.LLM.MaxTokens = getEnvAsInt("LLM_MAX_TOKENS", cfg.LLM.MaxTokens)
	cfg.LLM.HistoryTurns = getEnvAsInt("LLM_HISTORY_TURNS", cfg.LLM.HistoryTurns)
	cfg.LLM.MaxRetries = getEnvAsInt("LLM_MAX_RETRIES", cfg.LLM.MaxRetries)

	cfg.Embedding.BaseURL = getEnv("EMBEDDING_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.APIKey = getEnv("EMBEDDING_API_KEY", cfg.Embedding.APIKey)
	cfg.Embedding.Model = getEnv("EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.Dimension = getEnvAsInt("EMBEDDING_DIMENSION", cfg.Embedding.Dimension)
	cfg.Embedding.BatchSize = getEnvAsInt("EMBEDDING_BATCH_SIZE", cfg.Embedding.BatchSize)
	cfg.Embedding.Concurrency = getEnvAsInt("EMBEDDING_CONCURRENCY", cfg.Embedding.Concurrency)
	cfg.Embedding.MaxRetries = getEnvAsInt("EMBEDDING_MAX_RETRIES", cfg.Embedding.MaxRetries)

	cfg.RAG.ChunkSize = getEnvAsInt("RAG_CHUNK_SIZE", cfg.RAG.ChunkSize)
	cfg.RAG.ChunkOverlap = getEnvAsInt("RAG_CHUNK_OVERLAP", cfg.RAG.ChunkOverlap)
	cfg.RAG.TopK = getEnvAsInt("RAG_TOP_K", cfg.RAG.TopK)
	cfg.Upload.MaxSizeMB = getEnvAsInt("UPLOAD_MAX_SIZE_MB", cfg.Upload.MaxSizeMB)

	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvAsInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DB = getEnv("DB_NAME", cfg.Database.DB)
	cfg.Database.Params = getEnv("DB_PARAMS", cfg.Database.Params)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.HistoryTTLSeconds = getEnvAsInt("REDIS_HISTORY_TTL_SECONDS", cfg.Redis.HistoryTTLSeconds)
	cfg.Redis.HistoryDirtyTTLSeconds = getEnvAsInt("REDIS_HISTORY_DIRTY_TTL_SECONDS", cfg.Redis.HistoryDirtyTTLSeconds)

	cfg.RabbitMQ.URL = getEnv("RABBITMQ_URL", cfg.RabbitMQ.URL)
	cfg.RabbitMQ.CleanupQueue = getEnv("RABBITMQ_CLEANUP_QUEUE", cfg.RabbitMQ.CleanupQueue)

	cfg.Qdrant.Host = getEnv("QDRANT_HOST", cfg.Qdrant.Host)
	cfg.Qdrant.Port = getEnvAsInt("QDRANT_PORT", cfg.Qdrant.Port)
	cfg.Qdrant.APIKey = getEnv("QDRANT_API_KEY", cfg.Qdrant.APIKey)
	cfg.Qdrant.UseTLS = getEnvAsBool("QDRANT_USE_TLS", cfg.Qdrant.UseTLS)
	cfg.Qdrant.Collection = getEnv("QDRANT_COLLECTION", cfg.Qdrant.Collection)

	cfg.Storage.Provider = getEnv("STORAGE_PROVIDER", cfg.Storage.Provider)
	cfg.Storage.Bucket = getEnv("STORAGE_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.PublicBaseURL = getEnv("STORAGE_PUBLIC_BASE_URL", cfg.Storage.PublicBaseURL)
	cfg.Storage.Minio.Endpoint = getEnv("MINIO_ENDPOINT", cfg.Storage.Minio.Endpoint)
	cfg.Storage.Minio.AccessKey = getEnv("MINIO_ACCESS_KEY", cfg.Storage.Minio.AccessKey)
	cfg.Storage.Minio.SecretKey = getEnv("MINIO_SECRET_KEY", cfg.Storage.Minio.SecretKey)
	cfg.Storage.Minio.UseSSL = getEnvAsBool("MINIO_USE_SSL", cfg.Storage.Minio.UseSSL)
	cfg.Storage.Minio.Region = getEnv("MINIO_REGION", cfg.Storage.Minio.Region)
	cfg.Storage.GCS.CredentialsFile = getEnv("GCS_CREDENTIALS_FILE", cfg.Storage.GCS.CredentialsFile)

	cfg.Timeouts.StorageSeconds = getEnvAsInt("TIMEOUT_STORAGE_SECONDS", cfg.Timeouts.StorageSeconds)
	cfg.Timeouts.EmbeddingSeconds = getEnvAsInt("TIMEOUT_EMBEDDING_SECONDS", cfg.Timeouts.EmbeddingSeconds)
	cfg.Timeouts.IndexSeconds = getEnvAsInt("TIMEOUT_INDEX_SECONDS", cfg.Timeouts.IndexSeconds)
	cfg.Timeouts.LLMSeconds = getEnvAsInt("TIMEOUT_LLM_SECONDS", cfg.Timeouts.LLMSeconds)
	cfg.Timeouts.IdentitySeconds = getEnvAsInt("TIMEOUT_IDENTITY_SECONDS", cfg.Timeouts.IdentitySeconds)
	cfg.Timeouts.DatabaseSeconds = getEnvAsInt("TIMEOUT_DATABASE_SECONDS", cfg.Timeouts.DatabaseSeconds)

	cfg.CORS.AllowOrigins = getEnvAsList("CORS_ALLOW_ORIGINS", cfg.CORS.AllowOrigins)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
