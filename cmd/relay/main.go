package main

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/infrastructure/blob"
	"chat-relay/infrastructure/broker"
	"chat-relay/infrastructure/http/server"
	"chat-relay/infrastructure/memory"
	"chat-relay/infrastructure/presence"
	"chat-relay/infrastructure/search"
	"chat-relay/infrastructure/storage"
	"chat-relay/infrastructure/twilio"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/sink"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component, serves until a signal or a fatal error, then
// shuts down in reverse order. Deferred closes run before the exit code is used.
func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig()
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		inspector := internal.NewDebugServer(db, config.DebugAddr, "/inspect", internal.MessageMapper, logger)
		logger.Info("Debug Badger inspector available", "url", "http://"+config.DebugAddr+"/inspect")
		go func() {
			if err := inspector.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("Debug inspector stopped", "error", err)
			}
		}()
		defer func() { _ = inspector.Close() }()
	}

	// 3. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observability.Register(registry)

	// 4. External conversation service
	identities, conversations := conversationProvider(config, logger)

	// 5. Attachment store
	blobStore, err := newBlobStore(ctx, config, db, logger)
	if err != nil {
		return exitRuntime, err
	}

	// 6. Repositories & services
	users := storage.NewUserRepository(db)
	repository := storage.NewMessageRepository(db, logger, config.LimitMessages)
	index := search.NewMessageIndex(blugeWriter, logger)
	provisioner := services.NewParticipantProvisioner(identities, conversations, logger, config.ProvisioningTimeout)
	resolver := services.NewConversationResolver(conversations, provisioner, users, logger, config.ProvisioningTimeout)
	media := services.NewMediaGateway(blobStore, logger, config.MediaTimeout)

	supervisor := workers.NewSupervisor(logger).WithRestartPeriod(config.RestartInterval)
	relay := runtime.NewRelay(logger, runtime.RelayConfig{
		BufferSize:     config.BufferSize,
		PublishTimeout: config.PublishTimeout,
		SinkTimeout:    config.SinkTimeout,
		IdleTimeout:    config.TopicIdleTimeout,
		PresenceTTL:    config.PresenceTTL,
	}, supervisor, runtime.NewRegistry(), resolver, repository).
		Add(sink.NewIndexSink(index))
	supervisor.Add(workers.NewChannelCapacityWorker(logger, relay.QueueDepths, config.MetricInterval, config.LowCapacityThreshold))

	if config.CensoredWordsDir != "" {
		censored, err := moderation.NewCensoredLoader(os.DirFS(config.CensoredWordsDir)).LoadAll(".")
		if err != nil {
			return exitConfig, fmt.Errorf("censored words: %w", err)
		}
		moderator, err := moderation.NewModerator(censored.Words, charReplacement, logger)
		if err != nil {
			return exitConfig, fmt.Errorf("moderator: %w", err)
		}
		logger.Info("Moderation enabled", "languages", censored.Languages, "words", len(censored.Words))
		relay.WithCensor(moderator)
	}

	if config.AMQPURL != "" {
		publisher, err := broker.New(config.AMQPURL, config.AMQPExchange, logger)
		if err != nil {
			return exitRuntime, fmt.Errorf("broker: %w", err)
		}
		defer func() { _ = publisher.Close() }()
		relay.Add(sink.NewBrokerSink(publisher))
	}

	var tracker contract.PresenceTracker
	var redisPing func(ctx context.Context) error
	if config.RedisAddr != "" {
		store, err := presence.New(presence.Settings{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			Database: config.RedisDatabase,
		})
		if err != nil {
			return exitConfig, err
		}
		defer func() { _ = store.Close() }()
		tracker = store
		redisPing = store.Ping
		relay.WithPresence(store)
	}

	chat := services.NewChatService(relay, media, resolver, repository, index, tracker, users, logger)

	// 7. HTTP API
	tokens := auth.NewTokens(config.JWTSecret, config.AuthTokenDuration)
	accessTokens := auth.NewAccessTokens(auth.AccessTokenConfig{
		AccountSID: config.TwilioAccountSID,
		APIKeySID:  config.TwilioAPIKeySID,
		APISecret:  config.TwilioAPISecret,
		ServiceSID: config.TwilioServiceSID,
	})
	api := server.NewServer(logger, server.Options{
		SubscriberBufferSize: config.ConnectionBufferSize,
		WriteTimeout:         config.WriteTimeout,
		MaxUploadBytes:       config.MaxUploadBytes,
		RateLimitRPS:         config.RateLimitRPS,
		RateLimitBurst:       config.RateLimitBurst,
	}, resolver, chat, media, tokens, accessTokens, registry).
		WithHealthCheck(func(ctx context.Context) error {
			if db.IsClosed() {
				return errors.New("badger is closed")
			}
			if redisPing != nil {
				return redisPing(ctx)
			}
			return nil
		})
	httpServer := &http.Server{
		Addr:              config.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 2)
	relayDone := make(chan struct{})

	// 8. Start the relay workers
	go func() {
		defer close(relayDone)
		relay.Start(ctx)
	}()

	if config.SyncUsersOnStart {
		go syncUsers(ctx, users, provisioner, logger)
	}

	go func() {
		logger.Info("Starting HTTP server", "address", config.HTTPAddr, "provider", config.Provider, "blob", config.BlobBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 9. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 10. Graceful shutdown: stop accepting requests, drop live subscribers,
	// then drain the topic workers.
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	api.CloseLive()
	relay.Stop()
	<-relayDone
	logger.Info("Program stopped cleanly")

	return code, runErr
}

// conversationProvider picks the external service. The in-memory provider keeps
// a single node usable without Twilio credentials.
func conversationProvider(config internal.Config, logger *slog.Logger) (contract.IdentityProvider, contract.ConversationProvider) {
	if config.Provider == internal.ProviderTwilio {
		provider := twilio.NewProvider(
			twilio.NewRestAPI(config.TwilioAccountSID, config.TwilioAuthToken, config.ProvisioningTimeout),
			twilio.RoleSIDs{Admin: config.TwilioAdminRole, Member: config.TwilioMemberRole},
			logger,
		)
		return provider, provider
	}
	logger.Warn("Using in-memory conversation provider, conversations are lost on restart")
	provider := memory.NewProvider()
	return provider, provider
}

func newBlobStore(ctx context.Context, config internal.Config, db *badger.DB, logger *slog.Logger) (contract.BlobStore, error) {
	if config.BlobBackend != internal.BlobS3 {
		return blob.NewBadgerStore(db), nil
	}
	store, err := blob.NewS3Store(blob.S3Config{
		Endpoint:  config.S3Endpoint,
		Bucket:    config.S3Bucket,
		AccessKey: config.S3AccessKey,
		SecretKey: config.S3SecretKey,
		Region:    config.S3Region,
		UseSSL:    config.S3UseSSL,
	}, logger)
	if err != nil {
		return nil, err
	}
	bootCtx, cancel := context.WithTimeout(ctx, config.MediaTimeout)
	defer cancel()
	if err := store.EnsureBucket(bootCtx); err != nil {
		return nil, err
	}
	return store, nil
}

func syncUsers(ctx context.Context, users contract.UserDirectory, provisioner services.IParticipantProvisioner, logger *slog.Logger) {
	all, err := users.ListUsers(ctx)
	if err != nil {
		logger.Error("User sync aborted", "error", err)
		return
	}
	outcome := provisioner.SyncAll(ctx, all)
	for id, err := range outcome.Failed {
		logger.Warn("User not synced", "user_id", id, "error", err)
	}
	logger.Info("User sync done", "synced", len(outcome.Synced), "failed", len(outcome.Failed))
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}
