package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"documind-backend/internal/ai"
	"documind-backend/internal/app"
	"documind-backend/internal/cache"
	"documind-backend/internal/config"
	"documind-backend/internal/model"
	"documind-backend/internal/pkg/keylock"
	"documind-backend/internal/platform/database"
	"documind-backend/internal/platform/identity"
	"documind-backend/internal/platform/logger"
	"documind-backend/internal/platform/objectstore"
	rabbitmqClient "documind-backend/internal/platform/rabbitmq"
	redisClient "documind-backend/internal/platform/redis"
	"documind-backend/internal/platform/vectorstore"
	"documind-backend/internal/repository"
	"documind-backend/internal/worker"
)

const connectTimeout = 5 * time.Second

type App struct {
	Config *config.Config
	Log    *logger.Logger

	DB            *gorm.DB
	Redis         *redis.Client
	MQConn        *amqp.Connection
	Publisher     *rabbitmqClient.CleanupPublisher
	Vectors       *vectorstore.QdrantStore
	Objects       objectstore.Store
	CleanupWorker *worker.CleanupWorker

	Documents *app.DocumentService
	Chat      *app.ChatService
	Identity  *app.IdentityService

	StartedAt time.Time
}

// New connects every backend named in cfg and wires the services. On error
// whatever was already opened is closed again.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Log: log, StartedAt: time.Now()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.DB, err = database.New(ctx, cfg.Database.Driver, cfg.DatabaseDSN(), connectTimeout)
	if err != nil {
		return nil, err
	}
	if err := a.DB.AutoMigrate(&model.User{}, &model.Document{}, &model.DocumentChunk{}, &model.ChatTurn{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	a.Redis, err = redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, connectTimeout)
	if err != nil {
		return nil, err
	}

	a.Vectors, err = vectorstore.New(ctx, vectorstore.Config{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		APIKey:     cfg.Qdrant.APIKey,
		UseTLS:     cfg.Qdrant.UseTLS,
		Collection: cfg.Qdrant.Collection,
		Dimension:  cfg.Embedding.Dimension,
	}, log)
	if err != nil {
		return nil, err
	}

	a.Objects, err = newObjectStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	verifier, err := identity.New(identity.Config{
		Provider:          cfg.Auth.Provider,
		FirebaseProjectID: cfg.Auth.FirebaseProjectID,
		Issuer:            cfg.Auth.Issuer,
		Audience:          cfg.Auth.Audience,
		JWKSURL:           cfg.Auth.JWKSURL,
		HMACSecret:        cfg.Auth.HMACSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("init identity verifier failed: %w", err)
	}

	embedder := ai.NewEmbeddingClient(ai.EmbeddingConfig{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimension:  cfg.Embedding.Dimension,
		MaxRetries: cfg.Embedding.MaxRetries,
	})
	llm := ai.NewChatClient(ai.ChatConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		MaxRetries:  cfg.LLM.MaxRetries,
	})

	timeouts := app.Timeouts{
		Storage:   cfg.Timeouts.Storage(),
		Embedding: cfg.Timeouts.Embedding(),
		Index:     cfg.Timeouts.Index(),
		LLM:       cfg.Timeouts.LLM(),
		Identity:  cfg.Timeouts.Identity(),
		Database:  cfg.Timeouts.Database(),
	}
	history := cache.NewHistoryCache(
		a.Redis,
		time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	docRepo := repository.NewDocumentRepository(a.DB)
	chunkRepo := repository.NewDocumentChunkRepository(a.DB)
	turnRepo := repository.NewChatTurnRepository(a.DB)
	userRepo := repository.NewUserRepository(a.DB)

	var publisher app.CleanupPublisher
	if cfg.RabbitMQ.URL != "" {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.CleanupQueue, connectTimeout)
		if err != nil {
			return nil, err
		}
		a.Publisher = rabbitmqClient.NewCleanupPublisher(a.MQConn, cfg.RabbitMQ.CleanupQueue)
		publisher = a.Publisher
	} else {
		log.Warn("rabbitmq not configured, document purges run inline")
	}

	a.Documents = app.NewDocumentService(
		docRepo, a.Objects, a.Vectors, embedder, publisher, history, keylock.New(),
		app.IngestConfig{
			ChunkSize:        cfg.RAG.ChunkSize,
			ChunkOverlap:     cfg.RAG.ChunkOverlap,
			EmbedBatchSize:   cfg.Embedding.BatchSize,
			EmbedConcurrency: cfg.Embedding.Concurrency,
			MaxUploadBytes:   cfg.MaxUploadBytes(),
		},
		timeouts, log,
	)
	a.Chat = app.NewChatService(
		docRepo, chunkRepo, turnRepo, embedder, a.Vectors, llm, history,
		cfg.RAG.TopK, cfg.LLM.HistoryTurns, timeouts, log,
	)
	a.Identity = app.NewIdentityService(verifier, userRepo, timeouts, log)

	if a.MQConn != nil {
		a.CleanupWorker = worker.NewCleanupWorker(a.MQConn, a.Documents, cfg.RabbitMQ.CleanupQueue, log)
		if err := a.CleanupWorker.Start(ctx); err != nil {
			return nil, fmt.Errorf("start cleanup worker failed: %w", err)
		}
	}

	log.Info("application wired",
		"database", cfg.Database.Driver,
		"storage", cfg.Storage.Provider,
		"auth_provider", cfg.Auth.Provider,
		"embedding_model", cfg.Embedding.Model,
		"llm_model", cfg.LLM.Model,
	)
	return a, nil
}

func newObjectStore(ctx context.Context, cfg config.StorageConfig) (objectstore.Store, error) {
	switch cfg.Provider {
	case objectstore.ProviderGCS:
		store, err := objectstore.NewGCS(ctx, objectstore.GCSConfig{
			Bucket:          cfg.Bucket,
			CredentialsFile: cfg.GCS.CredentialsFile,
			PublicBaseURL:   cfg.PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case objectstore.ProviderMinio:
		store, err := objectstore.NewMinio(ctx, objectstore.MinioConfig{
			Endpoint:      cfg.Minio.Endpoint,
			AccessKey:     cfg.Minio.AccessKey,
			SecretKey:     cfg.Minio.SecretKey,
			UseSSL:        cfg.Minio.UseSSL,
			Region:        cfg.Minio.Region,
			Bucket:        cfg.Bucket,
			PublicBaseURL: cfg.PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage provider %q", cfg.Provider)
	}
}

func (a *App) PingDatabase(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (a *App) PingRedis(ctx context.Context) error {
	return a.Redis.Ping(ctx).Err()
}

func (a *App) Close() error {
	var errs []error
	if a.CleanupWorker != nil {
		a.CleanupWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if a.Vectors != nil {
		if err := a.Vectors.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if closer, ok := a.Objects.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
