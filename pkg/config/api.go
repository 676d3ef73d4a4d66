package config

import "time"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment   string
	Addr          string
	DatabaseURL   string
	MigrationsDir string
	LogLevel      string

	// TokenSecret signs session tokens; SecretsKey encrypts delegate
	// API keys at rest.
	TokenSecret string
	SecretsKey  string

	// Work queue transport.
	QueueRedisAddr     string
	QueueRedisPassword string
	QueueRedisDB       int
	QueueKey           string
	EventsChannel      string

	// Blob storage.
	BlobEndpoint       string
	BlobRegion         string
	BlobAccessKey      string
	BlobSecretKey      string
	BlobForcePathStyle bool

	// Hosting bucket naming and URLs.
	BucketPrefix  string
	StorageDomain string
	SiteDomain    string
	IndexDocument string

	DelegateTimeout time.Duration
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:   GetString("APP_ENV", "development"),
		Addr:          GetString("API_ADDR", ":4000"),
		DatabaseURL:   GetString("DATABASE_URL", "postgres://tessellate:tessellate@db:5432/tessellate?sslmode=disable"),
		MigrationsDir: GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		LogLevel:      GetString("LOG_LEVEL", "info"),

		TokenSecret: GetString("TOKEN_SECRET", "supersecuresecret"),
		SecretsKey:  GetString("SECRETS_ENCRYPTION_KEY", "supersecuresecret"),

		QueueRedisAddr:     GetString("QUEUE_REDIS_ADDR", ""),
		QueueRedisPassword: GetString("QUEUE_REDIS_PASSWORD", ""),
		QueueRedisDB:       GetInt("QUEUE_REDIS_DB", 0),
		QueueKey:           GetString("QUEUE_KEY", "tessellate:provision:jobs"),
		EventsChannel:      GetString("QUEUE_EVENTS_CHANNEL", "tessellate:provision:events"),

		BlobEndpoint:       GetString("BLOB_ENDPOINT", ""),
		BlobRegion:         GetString("BLOB_REGION", "us-east-1"),
		BlobAccessKey:      GetString("BLOB_ACCESS_KEY", ""),
		BlobSecretKey:      GetString("BLOB_SECRET_KEY", ""),
		BlobForcePathStyle: GetBool("BLOB_FORCE_PATH_STYLE", false),

		BucketPrefix:  GetString("BUCKET_PREFIX", "tessellate-"),
		StorageDomain: GetString("STORAGE_DOMAIN", "s3.amazonaws.com"),
		SiteDomain:    GetString("SITE_DOMAIN", "s3-website-us-east-1.amazonaws.com"),
		IndexDocument: GetString("INDEX_DOCUMENT", "index.html"),

		DelegateTimeout: GetDuration("DELEGATE_TIMEOUT", 10*time.Second),
	}
}

// WorkerConfig holds runtime configuration for the provisioning worker.
type WorkerConfig struct {
	Environment string
	DatabaseURL string
	LogLevel    string

	QueueRedisAddr     string
	QueueRedisPassword string
	QueueRedisDB       int
	QueueKey           string
	EventsChannel      string

	BlobEndpoint       string
	BlobRegion         string
	BlobAccessKey      string
	BlobSecretKey      string
	BlobForcePathStyle bool

	// DefaultTemplateBucket serves jobs that name a template missing
	// from the registry.
	DefaultTemplateBucket string
	PollBackoff           time.Duration
}

// LoadWorkerConfig constructs a WorkerConfig from environment variables.
func LoadWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Environment: GetString("APP_ENV", "development"),
		DatabaseURL: GetString("DATABASE_URL", "postgres://tessellate:tessellate@db:5432/tessellate?sslmode=disable"),
		LogLevel:    GetString("LOG_LEVEL", "info"),

		QueueRedisAddr:     GetString("QUEUE_REDIS_ADDR", "redis:6379"),
		QueueRedisPassword: GetString("QUEUE_REDIS_PASSWORD", ""),
		QueueRedisDB:       GetInt("QUEUE_REDIS_DB", 0),
		QueueKey:           GetString("QUEUE_KEY", "tessellate:provision:jobs"),
		EventsChannel:      GetString("QUEUE_EVENTS_CHANNEL", "tessellate:provision:events"),

		BlobEndpoint:       GetString("BLOB_ENDPOINT", ""),
		BlobRegion:         GetString("BLOB_REGION", "us-east-1"),
		BlobAccessKey:      GetString("BLOB_ACCESS_KEY", ""),
		BlobSecretKey:      GetString("BLOB_SECRET_KEY", ""),
		BlobForcePathStyle: GetBool("BLOB_FORCE_PATH_STYLE", false),

		DefaultTemplateBucket: GetString("DEFAULT_TEMPLATE_BUCKET", "tessellate-templates"),
		PollBackoff:           GetDuration("WORKER_POLL_BACKOFF", 2*time.Second),
	}
}
