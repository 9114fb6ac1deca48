package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/andresverguilla1987/mixtli-nube/pkg/config"
	"github.com/andresverguilla1987/mixtli-nube/pkg/database"
	"github.com/andresverguilla1987/mixtli-nube/pkg/middleware"
	"github.com/andresverguilla1987/mixtli-nube/pkg/pubsub"
	"github.com/andresverguilla1987/mixtli-nube/pkg/storage"
)

const (
	StorageS3    = "s3"
	StorageLocal = "local"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Storage   StorageConfig
	CORS      middleware.CORSConfig `mapstructure:"cors"`
	Auth      AuthConfig
	Presign   PresignConfig
	Trash     TrashConfig
	Thumbnail ThumbnailConfig
	Archive   ArchiveConfig
	Upload    UploadConfig
	Events    pubsub.Config
	Audit     AuditConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Version         string
}

type LogConfig struct {
	Level  string
	Pretty bool
}

type StorageConfig struct {
	Type  string
	S3    storage.S3Config    `mapstructure:"s3"`
	Local storage.LocalConfig `mapstructure:"local"`
}

type AuthConfig struct {
	AdminToken        string        `mapstructure:"admin_token"`
	AccessTokenSecret string        `mapstructure:"access_token_secret"`
	AccessTokenTTL    time.Duration `mapstructure:"access_token_ttl"`
	Issuer            string
}

type PresignConfig struct {
	UploadTTL      time.Duration `mapstructure:"upload_ttl"`
	UploadMinTTL   time.Duration `mapstructure:"upload_min_ttl"`
	UploadMaxTTL   time.Duration `mapstructure:"upload_max_ttl"`
	DownloadTTL    time.Duration `mapstructure:"download_ttl"`
	DownloadMinTTL time.Duration `mapstructure:"download_min_ttl"`
	DownloadMaxTTL time.Duration `mapstructure:"download_max_ttl"`
}

type TrashConfig struct {
	Concurrency int
}

type ThumbnailConfig struct {
	Width          int
	Height         int
	Quality        int
	MaxSourceBytes int64 `mapstructure:"max_source_bytes"`
}

type ArchiveConfig struct {
	Deflate bool
}

type UploadConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
	// ReadTimeout replaces server.read_timeout for relayed uploads.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type AuditConfig struct {
	Enabled  bool
	Database database.Config
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 10000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "0s") // ZIP streams may run long
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.version", "dev")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("storage.type", StorageS3)
	v.SetDefault("storage.s3.region", "auto")
	v.SetDefault("storage.s3.use_path_style", true)
	v.SetDefault("storage.s3.dial_timeout", "5s")
	v.SetDefault("storage.s3.tls_handshake_timeout", "5s")
	v.SetDefault("storage.s3.response_header_timeout", "15s")
	v.SetDefault("storage.s3.operation_timeout", "30s")
	v.SetDefault("storage.s3.max_attempts", 3)
	v.SetDefault("storage.s3.max_backoff", "2s")
	v.SetDefault("storage.s3.delete_batch_size", storage.MaxBatchDelete)
	v.SetDefault("storage.s3.concurrency", 8)
	v.SetDefault("storage.local.base_path", "./data/objects")
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization", middleware.AlbumTokenHeader, middleware.AdminTokenHeader, "X-Request-ID"})
	v.SetDefault("cors.expose_headers", []string{"Content-Disposition", "X-Request-ID"})
	v.SetDefault("cors.allow_null_origin", true)
	v.SetDefault("cors.max_age_seconds", 600)
	v.SetDefault("auth.access_token_ttl", "1h")
	v.SetDefault("auth.issuer", "mixtli")
	v.SetDefault("presign.upload_ttl", "5m")
	v.SetDefault("presign.upload_min_ttl", "60s")
	v.SetDefault("presign.upload_max_ttl", "1h")
	v.SetDefault("presign.download_ttl", "168h")
	v.SetDefault("presign.download_min_ttl", "60s")
	v.SetDefault("presign.download_max_ttl", "168h")
	v.SetDefault("trash.concurrency", 8)
	v.SetDefault("thumbnail.width", 480)
	v.SetDefault("thumbnail.height", 480)
	v.SetDefault("thumbnail.quality", 82)
	v.SetDefault("thumbnail.max_source_bytes", 40<<20)
	v.SetDefault("archive.deflate", false)
	v.SetDefault("upload.max_bytes", 50<<20)
	v.SetDefault("upload.read_timeout", "15m")
	v.SetDefault("events.driver", pubsub.DriverNone)
	v.SetDefault("events.redis.address", "localhost:6379")
	v.SetDefault("events.redis.pool_size", 10)
	v.SetDefault("events.redis.read_timeout", "3s")
	v.SetDefault("events.redis.write_timeout", "3s")
	v.SetDefault("events.kafka.brokers", "localhost:9092")
	v.SetDefault("events.kafka.group_id", "mixtli-thumbnailer")
	v.SetDefault("events.kafka.partitions", 4)
	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.database.driver", "sqlite")
	v.SetDefault("audit.database.file_path", "./data/audit.db")
	v.SetDefault("audit.database.sslmode", "disable")
	v.SetDefault("audit.database.max_idle_conns", 2)
	v.SetDefault("audit.database.max_open_conns", 10)
	v.SetDefault("audit.database.conn_max_lifetime", 60)
	v.SetDefault("audit.database.log_level", "warn")

	// Bind environment variables
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.version", "APP_VERSION")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.pretty", "LOG_PRETTY")
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.s3.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.s3.region", "S3_REGION")
	v.BindEnv("storage.s3.bucket", "S3_BUCKET")
	v.BindEnv("storage.s3.access_key_id", "S3_ACCESS_KEY_ID")
	v.BindEnv("storage.s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
	v.BindEnv("storage.s3.use_path_style", "S3_FORCE_PATH_STYLE")
	v.BindEnv("storage.s3.public_url", "S3_PUBLIC_URL")
	v.BindEnv("storage.local.base_path", "LOCAL_STORAGE_PATH")
	v.BindEnv("cors.allowed_origins", "ALLOWED_ORIGINS")
	v.BindEnv("auth.admin_token", "ADMIN_TOKEN")
	v.BindEnv("auth.access_token_secret", "ACCESS_TOKEN_SECRET")
	v.BindEnv("auth.access_token_ttl", "ACCESS_TOKEN_TTL")
	v.BindEnv("presign.download_max_ttl", "PRESIGN_GET_MAX_TTL")
	v.BindEnv("upload.max_bytes", "UPLOAD_MAX_BYTES")
	v.BindEnv("upload.read_timeout", "UPLOAD_READ_TIMEOUT")
	v.BindEnv("events.driver", "EVENTS_DRIVER")
	v.BindEnv("events.redis.address", "REDIS_ADDRESS")
	v.BindEnv("events.redis.password", "REDIS_PASSWORD")
	v.BindEnv("events.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("audit.enabled", "AUDIT_ENABLED")
	v.BindEnv("audit.database.driver", "AUDIT_DB_DRIVER")
	v.BindEnv("audit.database.dsn", "AUDIT_DB_DSN")
	v.BindEnv("audit.database.file_path", "AUDIT_DB_FILE_PATH")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// ALLOWED_ORIGINS is either a JSON array or a comma list.
	if raw := v.GetString("cors.allowed_origins"); raw != "" {
		cfg.CORS.AllowedOrigins = pkgconfig.StringList(raw)
	}

	return &cfg, nil
}

// ValidateStorage reports every missing setting the object store needs.
func (c *Config) ValidateStorage() error {
	var req pkgconfig.Requirements
	c.needStorage(&req)
	if err := req.Err(); err != nil {
		return err
	}
	return c.checkStorageType()
}

func (c *Config) checkStorageType() error {
	if c.Storage.Type != StorageS3 && c.Storage.Type != StorageLocal {
		return fmt.Errorf("storage: unknown type %q", c.Storage.Type)
	}
	return nil
}

// Validate reports every missing setting the gateway needs before serving.
func (c *Config) Validate() error {
	var req pkgconfig.Requirements
	c.needStorage(&req)
	req.Need(c.Auth.AdminToken, "ADMIN_TOKEN")
	req.Need(c.Auth.AccessTokenSecret, "ACCESS_TOKEN_SECRET")
	if err := req.Err(); err != nil {
		return err
	}
	if err := c.checkStorageType(); err != nil {
		return err
	}

	if c.Presign.UploadMinTTL > c.Presign.UploadMaxTTL || c.Presign.DownloadMinTTL > c.Presign.DownloadMaxTTL {
		return fmt.Errorf("presign: min ttl exceeds max ttl")
	}
	if c.Presign.DownloadMaxTTL > 30*24*time.Hour {
		return fmt.Errorf("presign: download_max_ttl %s exceeds 720h", c.Presign.DownloadMaxTTL)
	}
	return nil
}

func (c *Config) needStorage(req *pkgconfig.Requirements) {
	switch c.Storage.Type {
	case StorageLocal:
		req.Need(c.Storage.Local.BasePath, "LOCAL_STORAGE_PATH")
	case StorageS3:
		req.Need(c.Storage.S3.Endpoint, "S3_ENDPOINT")
		req.Need(c.Storage.S3.Bucket, "S3_BUCKET")
		req.Need(c.Storage.S3.AccessKeyID, "S3_ACCESS_KEY_ID")
		req.Need(c.Storage.S3.SecretAccessKey, "S3_SECRET_ACCESS_KEY")
	}
}
