package bootstrap

import (
	"context"
	"log"

	"pdfchat-be/internal/config"
	"pdfchat-be/internal/controller"
	"pdfchat-be/internal/handler"
	"pdfchat-be/internal/metrics"
	"pdfchat-be/internal/pkg/logger"
	"pdfchat-be/internal/repository/contract"
	"pdfchat-be/internal/repository/implementation"
	"pdfchat-be/internal/repository/memory"
	"pdfchat-be/internal/service"
	"pdfchat-be/internal/websocket"
	"pdfchat-be/pkg/llm/factory"
	pktNats "pdfchat-be/pkg/nats"
	"pdfchat-be/pkg/reasoning"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// DomainTopic is the in-process bus topic for session and turn events.
const DomainTopic = "chat.domain_events"

type Container struct {
	// Controllers
	ChatController controller.IChatController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	// WebSockets
	SocketHandler *handler.SocketHandler
	WebSocketHub  *websocket.Hub

	Registry *prometheus.Registry
	Logger   logger.ILogger

	closers []func()
}

// NewContainer wires the application. A nil db keeps sessions in memory.
func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	wsLogger := logger.NewIsolatedLogger(cfg.App.WsLogFilePath)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.New(registry)

	c := &Container{Registry: registry, Logger: sysLogger}

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermillLogger,
	)
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	// 3. Storage
	var sessionRepo contract.ChatSessionRepository
	if db != nil {
		sessionRepo = implementation.NewChatSessionRepository(db)
		log.Printf("[INFO] Using Session Storage: POSTGRES")
	} else {
		sessionRepo = memory.NewChatSessionRepository()
		log.Printf("[WARN] DB_CONNECTION_STRING not set, sessions are kept in memory")
	}

	// 4. Reasoning
	llmProvider, err := factory.NewLLMProvider(factory.Config{
		Provider:      cfg.Ai.LLMProvider,
		Model:         cfg.Ai.LLMModel,
		OpenAIAPIKey:  cfg.Ai.OpenAIAPIKey,
		OpenAIBaseURL: cfg.Ai.OpenAIBaseURL,
		OllamaBaseURL: cfg.Ai.OllamaBaseURL,
	})
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)
	gateway := reasoning.NewGateway(llmProvider, cfg.Ai.Timeout, cfg.Chat.HistoryWindow)

	// 5. Infrastructure
	// NATS export is optional; without it domain events stay in-process.
	var sink service.EventSink
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			sink = natsPub
			c.closers = append(c.closers, natsPub.Close)
		}
	}

	// Redis fans room emits out to other instances.
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{
				Addr: cfg.App.RedisURL,
			}
		}
		rdb = redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
		c.closers = append(c.closers, func() { _ = rdb.Close() })
	}

	// WebSocket Hub
	wsHub := websocket.NewHub(rdb, cfg.App.InstanceID, wsLogger, appMetrics)

	// 6. Services
	publisherService := service.NewPublisherService(DomainTopic, pubSub)
	consumerService := service.NewConsumerService(pubSub, DomainTopic, sink, sysLogger, appMetrics)

	enricher := service.NewContextEnricher(
		gateway,
		cfg.Chat.SummaryConcurrency,
		cfg.Chat.SummaryMaxChars,
		sysLogger,
		appMetrics,
	)
	sessionService := service.NewChatSessionService(sessionRepo, enricher, publisherService, sysLogger)
	eventService := service.NewSessionEventService(
		wsHub,
		sessionService,
		gateway,
		publisherService,
		cfg.Chat.HistoryWindow,
		wsLogger,
		appMetrics,
	)

	// 7. Controllers
	c.ChatController = controller.NewChatController(sessionService, gateway, sysLogger)
	c.SocketHandler = handler.NewSocketHandler(wsHub, eventService, wsLogger)
	c.WebSocketHub = wsHub
	c.ConsumerService = consumerService

	return c
}

// Close releases bus, broker and cache connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	_ = c.Logger.Sync()
}
