package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const envPrefix = "DOCVAULT"

type Config struct {
	DB      DBConfig
	Blob    BlobConfig
	Convert ConvertConfig
	Cache   CacheConfig
	Kafka   KafkaConfig
	Auth    AuthConfig
	Server  ServerConfig
	Jobs    JobsConfig
	Log     LogConfig
}

type DBConfig struct {
	// Driver is sqlite or postgres.
	Driver string
	DSN    string
}

type BlobConfig struct {
	// Backend is fs or s3.
	Backend     string
	UploadDir   string
	Compression string
	S3Bucket    string
	S3Region    string
	S3Prefix    string
	S3Endpoint  string
}

type ConvertConfig struct {
	OfficeBinary string
	Timeout      time.Duration
	MaxUpload    int64
}

type CacheConfig struct {
	// Backend is none, lru or redis.
	Backend   string
	RedisAddr string
	LRUSize   int
	TTL       time.Duration
}

type KafkaConfig struct {
	Brokers string
	Topic   string
}

type AuthConfig struct {
	// Insecure trusts the X-User-ID header. Only for local development.
	Insecure   bool
	HMACSecret string
	JWKSURL    string
	Issuer     string
}

type ServerConfig struct {
	HTTPPort       string
	GRPCPort       string
	CORSOrigins    []string
	RateLimit      float64
	RateBurst      int
	RequestTimeout time.Duration
}

type JobsConfig struct {
	JanitorSchedule string
	RepairSchedule  string
}

type LogConfig struct {
	Level  string
	Format string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "./.tmp/db/docvault.db")

	v.SetDefault("blob.backend", "fs")
	v.SetDefault("blob.upload_dir", "./.tmp/uploads")
	v.SetDefault("blob.compression", "none")
	v.SetDefault("blob.s3_region", "us-east-1")

	v.SetDefault("convert.office_binary", "soffice")
	v.SetDefault("convert.timeout", 2*time.Minute)
	v.SetDefault("convert.max_upload", 50<<20)

	v.SetDefault("cache.backend", "lru")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.lru_size", 4096)
	v.SetDefault("cache.ttl", time.Hour)

	v.SetDefault("kafka.topic", "docvault.events")

	v.SetDefault("auth.insecure", false)

	v.SetDefault("server.http_port", "4021")
	v.SetDefault("server.grpc_port", "4020")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.request_timeout", 5*time.Minute)

	v.SetDefault("jobs.janitor_schedule", "@every 5m")
	v.SetDefault("jobs.repair_schedule", "@every 15m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig reads .env, an optional docvault.yml and DOCVAULT_* variables, in increasing priority.
func LoadConfig() *Config {
	cfg, err := Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func Load() (*Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("docvault")
	v.SetConfigType("yml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		DB: DBConfig{
			Driver: v.GetString("db.driver"),
			DSN:    v.GetString("db.dsn"),
		},
		Blob: BlobConfig{
			Backend:     v.GetString("blob.backend"),
			UploadDir:   v.GetString("blob.upload_dir"),
			Compression: v.GetString("blob.compression"),
			S3Bucket:    v.GetString("blob.s3_bucket"),
			S3Region:    v.GetString("blob.s3_region"),
			S3Prefix:    v.GetString("blob.s3_prefix"),
			S3Endpoint:  v.GetString("blob.s3_endpoint"),
		},
		Convert: ConvertConfig{
			OfficeBinary: v.GetString("convert.office_binary"),
			Timeout:      v.GetDuration("convert.timeout"),
			MaxUpload:    v.GetInt64("convert.max_upload"),
		},
		Cache: CacheConfig{
			Backend:   v.GetString("cache.backend"),
			RedisAddr: v.GetString("cache.redis_addr"),
			LRUSize:   v.GetInt("cache.lru_size"),
			TTL:       v.GetDuration("cache.ttl"),
		},
		Kafka: KafkaConfig{
			Brokers: v.GetString("kafka.brokers"),
			Topic:   v.GetString("kafka.topic"),
		},
		Auth: AuthConfig{
			Insecure:   v.GetBool("auth.insecure"),
			HMACSecret: v.GetString("auth.hmac_secret"),
			JWKSURL:    v.GetString("auth.jwks_url"),
			Issuer:     v.GetString("auth.issuer"),
		},
		Server: ServerConfig{
			HTTPPort:       v.GetString("server.http_port"),
			GRPCPort:       v.GetString("server.grpc_port"),
			CORSOrigins:    v.GetStringSlice("server.cors_origins"),
			RateLimit:      v.GetFloat64("server.rate_limit"),
			RateBurst:      v.GetInt("server.rate_burst"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
		},
		Jobs: JobsConfig{
			JanitorSchedule: v.GetString("jobs.janitor_schedule"),
			RepairSchedule:  v.GetString("jobs.repair_schedule"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported db driver %q", c.DB.Driver)
	}

	switch c.Blob.Backend {
	case "fs":
	case "s3":
		if c.Blob.S3Bucket == "" {
			return fmt.Errorf("blob backend s3 needs a bucket")
		}
	default:
		return fmt.Errorf("unsupported blob backend %q", c.Blob.Backend)
	}

	switch c.Cache.Backend {
	case "none", "lru", "redis":
	default:
		return fmt.Errorf("unsupported cache backend %q", c.Cache.Backend)
	}

	if !c.Auth.Insecure && c.Auth.HMACSecret == "" && c.Auth.JWKSURL == "" {
		return fmt.Errorf("auth needs an hmac secret or a jwks url, or insecure mode")
	}

	return nil
}

// SetupLogging applies the configured level and format to the standard logger.
func SetupLogging(cfg LogConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logrus.Warnf("unknown log level %q, using info", cfg.Level)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// GetDb opens the configured database.
func GetDb(cfg *Config) *gorm.DB {
	db, err := OpenDB(cfg.DB)
	if err != nil {
		logrus.Fatalf("failed to open database: %v", err)
	}
	return db
}

func OpenDB(cfg DBConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	switch cfg.Driver {
	case "postgres":
		return gorm.Open(postgres.Open(cfg.DSN), gormConfig)
	case "sqlite":
		if err := ensureDir(cfg.DSN); err != nil {
			return nil, err
		}
		db, err := gorm.Open(sqlite.Open("file:"+cfg.DSN+"?_busy_timeout=5000&_foreign_keys=on"), gormConfig)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
}

func ensureDir(dsn string) error {
	if dsn == ":memory:" {
		return nil
	}

	return os.MkdirAll(filepath.Dir(dsn), os.ModePerm)
}
