package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/emrgen/docvault/internal/blob"
	"github.com/emrgen/docvault/internal/cache"
	"github.com/emrgen/docvault/internal/compress"
	"github.com/emrgen/docvault/internal/config"
	"github.com/emrgen/docvault/internal/convert"
	"github.com/emrgen/docvault/internal/queue"
	"github.com/emrgen/docvault/internal/service"
	"github.com/emrgen/docvault/internal/store"
)

// App holds the wired components shared by the server and the offline commands.
type App struct {
	DB        *gorm.DB
	Store     *store.GormStore
	Blobs     blob.Store
	Cache     cache.LatestCache
	Events    queue.Publisher
	Converter *convert.Router
	Docs      *service.DocumentService

	closers []func() error
}

// Build opens every backend named by cfg and migrates the database.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{}

	db, err := config.OpenDB(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	app.DB = db
	app.closers = append(app.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	app.Store = store.NewGormStore(db)
	if err := app.Store.Migrate(); err != nil {
		app.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if app.Blobs, err = newBlobStore(ctx, cfg.Blob); err != nil {
		app.Close()
		return nil, err
	}

	if app.Cache, err = app.newCache(cfg.Cache); err != nil {
		app.Close()
		return nil, err
	}

	if cfg.Kafka.Brokers != "" {
		publisher, err := queue.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("kafka: %w", err)
		}
		app.Events = publisher
	} else {
		app.Events = queue.NewLogPublisher()
	}
	app.closers = append(app.closers, app.Events.Close)

	app.Converter = convert.NewDefault(convert.NewOffice(cfg.Convert.OfficeBinary, cfg.Convert.Timeout))
	app.Docs = service.NewDocumentService(app.Store, app.Blobs, app.Cache, app.Events)

	return app, nil
}

func newBlobStore(ctx context.Context, cfg config.BlobConfig) (blob.Store, error) {
	codec, err := compress.New(cfg.Compression)
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case "s3":
		if codec.Name() != compress.NewNop().Name() {
			logrus.Warnf("compression %q is ignored by the s3 backend", codec.Name())
		}
		return blob.NewS3Store(ctx, blob.S3Options{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Prefix:   cfg.S3Prefix,
			Endpoint: cfg.S3Endpoint,
		})
	default:
		return blob.NewFileStore(cfg.UploadDir, codec)
	}
}

func (a *App) newCache(cfg config.CacheConfig) (cache.LatestCache, error) {
	switch cfg.Backend {
	case "redis":
		redis := cache.NewRedis(cfg.RedisAddr, cfg.TTL)
		a.closers = append(a.closers, redis.Close)
		return redis, nil
	case "lru":
		return cache.NewLRU(cfg.LRUSize)
	default:
		return cache.NewNop(), nil
	}
}

// Close releases the backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil

	return errors.Join(errs...)
}
