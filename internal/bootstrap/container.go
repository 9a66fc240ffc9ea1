package bootstrap

import (
	"context"
	"fmt"
	"log"

	"agent-memory-be/internal/config"
	"agent-memory-be/internal/controller"
	"agent-memory-be/internal/pkg/logger"
	"agent-memory-be/internal/repository/cache"
	"agent-memory-be/internal/repository/memory"
	"agent-memory-be/internal/repository/unitofwork"
	"agent-memory-be/internal/service"
	"agent-memory-be/pkg/acb"
	"agent-memory-be/pkg/acb/budget"
	"agent-memory-be/pkg/acb/builder"
	"agent-memory-be/pkg/acb/invariant"
	"agent-memory-be/pkg/acb/mode"
	"agent-memory-be/pkg/acb/provenance"
	"agent-memory-be/pkg/acb/scoring"
	"agent-memory-be/pkg/acb/supplier"
	"agent-memory-be/pkg/embedding"

	pktNats "agent-memory-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	AcbController controller.IAcbController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
	AuditService    service.IAuditService

	Logger logger.ILogger

	closers []func()
}

// NewContainer wires the application. db may be nil: builds then run over an
// empty candidate store and ingest and audit endpoints answer 503.
func NewContainer(db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	provenanceLogger := logger.NewIsolatedLogger(cfg.App.ProvenanceLogPath)

	c := &Container{Logger: sysLogger}

	var uowFactory unitofwork.RepositoryFactory
	if db != nil {
		uowFactory = unitofwork.NewRepositoryFactory(db)
	} else {
		log.Printf("[WARN] DB_CONNECTION_STRING not set, memory storage disabled")
	}

	// 2. Event Bus
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermill.NewStdLogger(false, false),
	)
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	// NATS
	var eventPublisher service.EventPublisher
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	} else {
		eventPublisher = natsPub
		c.closers = append(c.closers, natsPub.Close)
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	} else {
		c.closers = append(c.closers, natsSub.Close)
	}

	// 3. Session state
	history, err := newModeHistory(cfg, c)
	if err != nil {
		return nil, err
	}

	// 4. Budget profiles
	profiles, err := budget.LoadProfiles(cfg.Acb.ProfilesPath)
	if err != nil {
		return nil, fmt.Errorf("load budget profiles: %w", err)
	}

	// 5. Embedding
	embedder, err := embedding.NewProvider(embedding.Options{
		Provider:      cfg.AI.EmbeddingProvider,
		OllamaBaseURL: cfg.AI.OllamaBaseURL,
		OllamaModel:   cfg.AI.OllamaModel,
		GeminiAPIKey:  cfg.Keys.GoogleGemini,
	})
	if err != nil {
		return nil, fmt.Errorf("init embedding provider: %w", err)
	}
	if embedder != nil {
		log.Printf("[INFO] Using Embedding Provider: %s", embedder.Name())
	} else {
		log.Printf("[INFO] Embedding disabled, similarity is lexical")
	}

	// 6. Builder
	var candidateSupplier supplier.Supplier
	if uowFactory != nil {
		candidateSupplier = service.NewCandidateSupplierService(uowFactory, sysLogger)
	} else {
		candidateSupplier = supplier.NewStatic(nil)
	}

	b := builder.New(builder.Config{
		Supplier: candidateSupplier,
		History:  history,
		Profiles: profiles,
		Weights: acb.Weights{
			Alpha: cfg.Acb.Alpha,
			Beta:  cfg.Acb.Beta,
			Gamma: cfg.Acb.Gamma,
		},
		Policy:    scoring.NewPolicy(cfg.Acb.AllowedSensitivity, cfg.Acb.QuarantineEligible),
		Detectors: invariant.DefaultDetectors(),
		Sink:      provenance.NewWatermillSink(pubSub, cfg.App.ProvenanceTopic),
		Retrieval: supplier.Options{
			Concurrency: cfg.Acb.Concurrency,
			Timeout:     cfg.Acb.CategoryTimeout,
			PoolLimit:   cfg.Acb.PoolLimit,
		},
		Threshold:  cfg.Acb.ModeThreshold,
		Deadline:   cfg.Acb.Deadline,
		BudgetSize: cfg.Acb.DefaultBudget,
		Logger:     sysLogger,
	})

	// 7. Services
	acbService := service.NewAcbService(b, uowFactory, embedder, cfg.AI.EmbeddingTimeout, sysLogger)
	c.ConsumerService = service.NewConsumerService(
		pubSub,
		cfg.App.ProvenanceTopic,
		eventPublisher,
		provenanceLogger,
		sysLogger,
	)
	if natsSub != nil && uowFactory != nil {
		c.AuditService = service.NewAuditService(natsSub, uowFactory, sysLogger)
	}

	// 8. Controllers
	c.AcbController = controller.NewAcbController(acbService)

	return c, nil
}

func newModeHistory(cfg *config.Config, c *Container) (mode.History, error) {
	switch cfg.Acb.HistoryBackend {
	case "", "memory":
		return memory.NewModeHistoryRepository(cfg.Acb.HistoryTTL), nil
	case "redis":
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{
				Addr: cfg.App.RedisURL,
			}
		}
		rdb := redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
		c.closers = append(c.closers, func() { _ = rdb.Close() })
		return cache.NewRedisModeHistory(rdb, cfg.Acb.HistoryTTL), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Acb.HistoryBackend)
	}
}

// Close releases bus and cache connections in reverse order.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}
