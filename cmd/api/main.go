// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/autoshine/detailing-desk/internal/broadcast"
	"github.com/autoshine/detailing-desk/internal/config"
	"github.com/autoshine/detailing-desk/internal/handler"
	"github.com/autoshine/detailing-desk/internal/handoff"
	"github.com/autoshine/detailing-desk/internal/llm"
	"github.com/autoshine/detailing-desk/internal/middleware"
	natsclient "github.com/autoshine/detailing-desk/internal/nats"
	"github.com/autoshine/detailing-desk/internal/notify"
	"github.com/autoshine/detailing-desk/internal/responder"
	"github.com/autoshine/detailing-desk/internal/service"
	"github.com/autoshine/detailing-desk/internal/store"
	"github.com/autoshine/detailing-desk/pkg/logger"
	"github.com/autoshine/detailing-desk/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "detailing-desk: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting detailing desk")
	if cfg.InsecureJWTSecret() {
		log.Warn("using the development JWT secret, set JWT_SECRET in production")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "detailing-desk", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// Conversation store
	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		st = pg
		log.Info("using postgres conversation store")
	} else {
		st = store.NewMemoryStore()
		log.Warn("DATABASE_URL not set, conversations are kept in memory")
	}
	defer st.Close()

	// Live fan-out, relayed through NATS when configured
	hub := broadcast.NewHub(cfg.LiveBufferSize)
	var (
		publisher  broadcast.Publisher = hub
		natsClient *natsclient.Client
		auditLog   *natsclient.AuditLog
	)
	if cfg.NATSURL != "" {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsClient.Close()

		relay := natsclient.NewRelay(natsClient, hub, log)
		if err := relay.Start(); err != nil {
			return err
		}
		defer relay.Stop()
		publisher = relay

		auditLog = natsclient.NewAuditLog(natsClient)
		if err := auditLog.EnsureStream(ctx); err != nil {
			return fmt.Errorf("failed to ensure audit stream: %w", err)
		}
	}
	fanout := broadcast.NewBroadcaster(publisher, log)

	// Outbound SMS
	var gateway notify.Gateway
	if cfg.SMSEnabled() {
		gateway, err = notify.NewTwilioGateway(notify.TwilioConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			FromNumber: cfg.TwilioFromNumber,
		})
		if err != nil {
			return err
		}
	} else {
		gateway = notify.NewLogGateway(log)
		log.Warn("Twilio not configured, outbound SMS is logged only")
	}

	// Owner alerts, queued through Redis when configured
	var alerter notify.Alerter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}

		alerter = notify.NewQueueAlerter(rdb, cfg.AlertQueue, log)
		worker := notify.NewAlertWorker(rdb, cfg.AlertQueue, gateway, cfg.OwnerPhone, log)
		go worker.Run(ctx)
	} else {
		alerter = notify.NewDirectAlerter(gateway, cfg.OwnerPhone, log)
	}

	// AI responder
	var reply responder.Responder
	if llmClient := newLLMClient(cfg, log); llmClient != nil {
		reply = responder.NewLLMResponder(llmClient, responder.Config{
			Model:        cfg.LLMModel,
			BusinessName: cfg.BusinessName,
		})
	} else {
		log.Warn("no LLM provider configured, customers receive the fallback reply")
	}

	// Services
	var auditor service.Auditor
	var history handler.TransitionHistory
	if auditLog != nil {
		auditor = auditLog
		history = auditLog
	}
	controlSvc := service.NewControlService(st, fanout, auditor, log)
	ingestSvc := service.NewIngestService(service.IngestConfig{
		Store:        st,
		Control:      controlSvc,
		Detector:     handoff.NewDetector(),
		Responder:    reply,
		Alerter:      alerter,
		Broadcaster:  fanout,
		ReplyTimeout: cfg.AIReplyTimeout,
	}, log)
	conversationSvc := service.NewConversationService(st, log)
	messageSvc := service.NewMessageService(st, gateway, fanout, log)

	// Handlers
	twilioToken := ""
	if cfg.TwilioValidateSignature {
		twilioToken = cfg.TwilioAuthToken
	}
	healthHandler := handler.NewHealthHandler(st, natsClient)
	webhookHandler := handler.NewSMSWebhookHandler(ingestSvc, twilioToken, cfg.PublicBaseURL, log)
	chatHandler := handler.NewChatHandler(ingestSvc, log)
	conversationHandler := handler.NewConversationHandler(conversationSvc, controlSvc, history, log)
	messageHandler := handler.NewMessageHandler(messageSvc, log)
	liveHandler := handler.NewLiveHandler(hub, conversationSvc, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Handle("/metrics", promhttp.Handler())

	// Customer channels
	r.Group(func(r chi.Router) {
		r.Use(middleware.IPRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/webhooks/sms", webhookHandler.Receive)
		r.Post("/api/chat", chatHandler.Send)
		r.Get("/live/conversations/{id}", liveHandler.Conversation)
	})

	// Dashboard
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/live/monitoring", liveHandler.Monitoring)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Post("/takeover", conversationHandler.Takeover)
				r.Post("/handoff", conversationHandler.Handoff)
				r.Post("/pause", conversationHandler.Pause)
				r.Post("/resume", conversationHandler.Resume)
				r.Post("/close", conversationHandler.Close)
				r.Put("/behavior", conversationHandler.UpdateBehavior)
				r.Get("/transitions", conversationHandler.Transitions)
				r.Post("/messages", messageHandler.Send)
			})
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

// newLLMClient prefers the configured provider and falls back to whichever
// key is present.
func newLLMClient(cfg *config.Config, log *logger.Logger) llm.Client {
	keys := map[llm.Provider]string{
		llm.ProviderAnthropic: cfg.AnthropicAPIKey,
		llm.ProviderOpenAI:    cfg.OpenAIAPIKey,
	}
	order := []llm.Provider{llm.ProviderAnthropic, llm.ProviderOpenAI}
	if llm.Provider(cfg.DefaultLLM) == llm.ProviderOpenAI {
		order = []llm.Provider{llm.ProviderOpenAI, llm.ProviderAnthropic}
	}

	for _, provider := range order {
		key := keys[provider]
		if key == "" {
			continue
		}
		client, err := llm.NewClient(provider, key)
		if err != nil {
			log.Warn("failed to create LLM client", zap.String("provider", string(provider)), zap.Error(err))
			continue
		}
		log.Info("using LLM provider", zap.String("provider", string(provider)))
		return client
	}
	return nil
}
