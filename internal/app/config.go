package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/db"
	"github.com/andychuong/ai-study-companion-sub000/internal/jobs/worker"
	"github.com/andychuong/ai-study-companion-sub000/internal/modules/tutoring/steps"
	"github.com/andychuong/ai-study-companion-sub000/internal/observability"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/gemini"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/neo4jdb"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/objectstore"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/openai"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/pinecone"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/qdrant"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/redisx"
	"github.com/andychuong/ai-study-companion-sub000/internal/temporalx"
)

type Config struct {
	ServiceName string
	Environment string
	Version     string
	Log         logger.Options

	MetricsEnabled bool
	Otel           observability.OtelConfig

	HTTPAddr        string
	ShutdownTimeout time.Duration
	// InternalToken guards /internal. Empty leaves it open.
	InternalToken string

	DB db.Config
	// SQLitePath is used instead of DB.DSN when the DSN is empty.
	SQLitePath string

	LLM      LLMConfig
	Vector   VectorConfig
	Storage  StorageConfig
	Neo4j    neo4jdb.Config
	Redis    redisx.Config
	Temporal temporalx.Config
	Worker   worker.Config

	SweepInterval time.Duration
	ChunkWords    int
	// PipelinesYAML overrides the embedded pipeline step definitions.
	PipelinesYAML string
}

type LLMConfig struct {
	Primary openai.Config
	// SecondaryModel reuses the primary credentials with another model when
	// no Gemini key is set.
	SecondaryModel string
	Gemini         gemini.Config
	RPS            float64
	Burst          int
}

type VectorConfig struct {
	Provider       string
	Qdrant         qdrant.Config
	PineconeClient pinecone.ClientConfig
	Pinecone       pinecone.Config
}

type StorageConfig struct {
	GCSEnabled bool
	GCS        objectstore.GCSConfig
	Minio      objectstore.MinioConfig
	MaxBytes   int64
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVICE_NAME", "study-companion")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_VERSION", "dev")
	v.SetDefault("LOG_MODE", "development")
	v.SetDefault("LOG_REDACTION_ENABLED", true)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("OTEL_SAMPLER_RATIO", 0.1)
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("HTTP_SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_SLOW_QUERY", "1s")
	v.SetDefault("SQLITE_PATH", "study-companion.db")
	v.SetDefault("OPENAI_MODEL", "gpt-4o")
	v.SetDefault("OPENAI_EMBED_MODEL", "text-embedding-3-small")
	v.SetDefault("OPENAI_TIMEOUT", "60s")
	v.SetDefault("OPENAI_MAX_RETRIES", 2)
	v.SetDefault("GEMINI_MODEL", "gemini-2.0-flash")
	v.SetDefault("LLM_RPS", 5.0)
	v.SetDefault("LLM_BURST", 10)
	v.SetDefault("VECTOR_PROVIDER", "qdrant")
	v.SetDefault("QDRANT_COLLECTION", "sessions")
	v.SetDefault("QDRANT_NAMESPACE_PREFIX", "sc")
	v.SetDefault("QDRANT_VECTOR_DIM", 1536)
	v.SetDefault("QDRANT_TIMEOUT", "10s")
	v.SetDefault("PINECONE_TIMEOUT", "30s")
	v.SetDefault("PINECONE_NAMESPACE_PREFIX", "sc")
	v.SetDefault("MINIO_USE_SSL", true)
	v.SetDefault("TRANSCRIPT_MAX_BYTES", 8<<20)
	v.SetDefault("NEO4J_USER", "neo4j")
	v.SetDefault("REDIS_PREFIX", "sc:lease:")
	v.SetDefault("WORKER_CONCURRENCY", 4)
	v.SetDefault("WORKER_POLL_INTERVAL", "1s")
	v.SetDefault("WORKER_STALE_AFTER", "30m")
	v.SetDefault("ENGAGEMENT_SWEEP_INTERVAL", "24h")
	v.SetDefault("TRANSCRIPT_CHUNK_WORDS", steps.DefaultChunkWords)
}

// LoadConfig reads path (optional) and the environment. Keys are the
// environment variable names; a config file spells them in lower case.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return fromViper(v), nil
}

func fromViper(v *viper.Viper) Config {
	var temp *float64
	if v.IsSet("OPENAI_TEMPERATURE") {
		t := v.GetFloat64("OPENAI_TEMPERATURE")
		temp = &t
	}
	return Config{
		ServiceName: v.GetString("SERVICE_NAME"),
		Environment: v.GetString("APP_ENV"),
		Version:     v.GetString("APP_VERSION"),
		Log: logger.Options{
			Mode:          v.GetString("LOG_MODE"),
			File:          v.GetString("LOG_FILE"),
			FileMaxMB:     v.GetInt("LOG_FILE_MAX_MB"),
			FileBackups:   v.GetInt("LOG_FILE_MAX_BACKUPS"),
			FileMaxAgeDay: v.GetInt("LOG_FILE_MAX_AGE_DAYS"),

			DisableRedaction: !v.GetBool("LOG_REDACTION_ENABLED"),
			HashSalt:         v.GetString("LOG_HASH_SALT"),
		},

		MetricsEnabled: v.GetBool("METRICS_ENABLED"),
		Otel: observability.OtelConfig{
			Enabled:     v.GetBool("OTEL_ENABLED"),
			ServiceName: v.GetString("SERVICE_NAME"),
			Environment: v.GetString("APP_ENV"),
			Version:     v.GetString("APP_VERSION"),
			Endpoint:    strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
			Headers:     observability.ParseHeaders(v.GetString("OTEL_EXPORTER_OTLP_HEADERS")),
			Insecure:    v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
			SampleRatio: v.GetFloat64("OTEL_SAMPLER_RATIO"),
		},

		HTTPAddr:        v.GetString("HTTP_ADDR"),
		ShutdownTimeout: v.GetDuration("HTTP_SHUTDOWN_TIMEOUT"),
		InternalToken:   v.GetString("INTERNAL_API_TOKEN"),

		DB: db.Config{
			DSN:          v.GetString("DATABASE_URL"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
			SlowQuery:    v.GetDuration("DB_SLOW_QUERY"),
		},
		SQLitePath: v.GetString("SQLITE_PATH"),

		LLM: LLMConfig{
			Primary: openai.Config{
				APIKey:      v.GetString("OPENAI_API_KEY"),
				BaseURL:     v.GetString("OPENAI_BASE_URL"),
				Model:       v.GetString("OPENAI_MODEL"),
				EmbedModel:  v.GetString("OPENAI_EMBED_MODEL"),
				Timeout:     v.GetDuration("OPENAI_TIMEOUT"),
				MaxRetries:  v.GetInt("OPENAI_MAX_RETRIES"),
				Temperature: temp,
			},
			SecondaryModel: v.GetString("LLM_SECONDARY_MODEL"),
			Gemini: gemini.Config{
				APIKey:  v.GetString("GEMINI_API_KEY"),
				Model:   v.GetString("GEMINI_MODEL"),
				Timeout: v.GetDuration("GEMINI_TIMEOUT"),
			},
			RPS:   v.GetFloat64("LLM_RPS"),
			Burst: v.GetInt("LLM_BURST"),
		},

		Vector: VectorConfig{
			Provider: strings.ToLower(strings.TrimSpace(v.GetString("VECTOR_PROVIDER"))),
			Qdrant: qdrant.Config{
				URL:             strings.TrimSpace(v.GetString("QDRANT_URL")),
				Collection:      strings.TrimSpace(v.GetString("QDRANT_COLLECTION")),
				NamespacePrefix: strings.TrimSpace(v.GetString("QDRANT_NAMESPACE_PREFIX")),
				VectorDim:       v.GetInt("QDRANT_VECTOR_DIM"),
				Distance:        v.GetString("QDRANT_DISTANCE"),
				AutoCreate:      v.GetBool("QDRANT_AUTO_CREATE"),
				Timeout:         v.GetDuration("QDRANT_TIMEOUT"),
			},
			PineconeClient: pinecone.ClientConfig{
				APIKey:     v.GetString("PINECONE_API_KEY"),
				APIVersion: v.GetString("PINECONE_API_VERSION"),
				BaseURL:    v.GetString("PINECONE_BASE_URL"),
				Timeout:    v.GetDuration("PINECONE_TIMEOUT"),
			},
			Pinecone: pinecone.Config{
				IndexName:       v.GetString("PINECONE_INDEX_NAME"),
				IndexHost:       v.GetString("PINECONE_INDEX_HOST"),
				NamespacePrefix: v.GetString("PINECONE_NAMESPACE_PREFIX"),
			},
		},

		Storage: StorageConfig{
			GCSEnabled: v.GetBool("GCS_ENABLED") || v.GetString("GCS_CREDENTIALS") != "" || v.GetString("STORAGE_EMULATOR_HOST") != "",
			GCS: objectstore.GCSConfig{
				Credentials:  v.GetString("GCS_CREDENTIALS"),
				EmulatorHost: v.GetString("STORAGE_EMULATOR_HOST"),
			},
			Minio: objectstore.MinioConfig{
				Endpoint:  v.GetString("MINIO_ENDPOINT"),
				AccessKey: v.GetString("MINIO_ACCESS_KEY"),
				SecretKey: v.GetString("MINIO_SECRET_KEY"),
				UseSSL:    v.GetBool("MINIO_USE_SSL"),
				Region:    v.GetString("MINIO_REGION"),
			},
			MaxBytes: v.GetInt64("TRANSCRIPT_MAX_BYTES"),
		},

		Neo4j: neo4jdb.Config{
			URI:         v.GetString("NEO4J_URI"),
			User:        v.GetString("NEO4J_USER"),
			Password:    v.GetString("NEO4J_PASSWORD"),
			Database:    v.GetString("NEO4J_DATABASE"),
			Timeout:     v.GetDuration("NEO4J_TIMEOUT"),
			MaxPoolSize: v.GetInt("NEO4J_MAX_POOL_SIZE"),
		},
		Redis: redisx.Config{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			Prefix:   v.GetString("REDIS_PREFIX"),
		},
		Temporal: temporalx.Config{
			Address:               v.GetString("TEMPORAL_ADDRESS"),
			Namespace:             v.GetString("TEMPORAL_NAMESPACE"),
			TaskQueue:             v.GetString("TEMPORAL_TASK_QUEUE"),
			ClientCertPath:        v.GetString("TEMPORAL_TLS_CERT"),
			ClientKeyPath:         v.GetString("TEMPORAL_TLS_KEY"),
			ClientCAPath:          v.GetString("TEMPORAL_TLS_CA"),
			AutoRegisterNamespace: v.GetBool("TEMPORAL_AUTO_REGISTER_NAMESPACE"),
			RetentionDays:         v.GetInt("TEMPORAL_NAMESPACE_RETENTION_DAYS"),
			DialTimeout:           v.GetDuration("TEMPORAL_DIAL_TIMEOUT"),
			DialMaxWait:           v.GetDuration("TEMPORAL_DIAL_MAX_WAIT"),
			StartMaxWait:          v.GetDuration("TEMPORAL_START_MAX_WAIT"),
			Backoff:               v.GetDuration("TEMPORAL_BACKOFF"),
			BackoffMax:            v.GetDuration("TEMPORAL_BACKOFF_MAX"),
			MaxConcurrency:        v.GetInt("TEMPORAL_MAX_CONCURRENCY"),
		},
		Worker: worker.Config{
			Concurrency:  v.GetInt("WORKER_CONCURRENCY"),
			PollInterval: v.GetDuration("WORKER_POLL_INTERVAL"),
			StaleAfter:   v.GetDuration("WORKER_STALE_AFTER"),
		},

		SweepInterval: v.GetDuration("ENGAGEMENT_SWEEP_INTERVAL"),
		ChunkWords:    v.GetInt("TRANSCRIPT_CHUNK_WORDS"),
		PipelinesYAML: v.GetString("PIPELINES_YAML"),
	}
}
