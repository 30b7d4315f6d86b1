package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/orbitdesk/ackrelay/internal/ack"
	"github.com/orbitdesk/ackrelay/internal/api"
	"github.com/orbitdesk/ackrelay/internal/cache"
	"github.com/orbitdesk/ackrelay/internal/conversation"
	"github.com/orbitdesk/ackrelay/internal/correlation"
	"github.com/orbitdesk/ackrelay/internal/identity"
	"github.com/orbitdesk/ackrelay/internal/scheduler"
	"github.com/orbitdesk/ackrelay/internal/store"
	"github.com/orbitdesk/ackrelay/internal/telemetry"
	"github.com/orbitdesk/ackrelay/internal/util"
	"github.com/orbitdesk/ackrelay/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ackrelay state data
	DefaultStateDir = "/var/lib/ackrelay"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "ackrelay.db"
	// DefaultAPIAddr is the default HTTP listen address
	DefaultAPIAddr = ":8080"
	// StaleRequeueCron runs the periodic crash-recovery sweep
	StaleRequeueCron = "*/5 * * * *"
)

// Config holds environment configuration.
type Config struct {
	LogLevel       string
	DatabaseURL    string
	StateDir       string
	APIAddr        string
	WhatsAppDSN    string
	ChannelToken   string
	EnableWhatsApp bool
	ErrorDelay     time.Duration
	PollInterval   time.Duration
}

func main() {
	config := loadEnvironmentConfig()
	initializeLogger(config.LogLevel)

	dbDSN := flag.String("db-dsn", config.DatabaseURL, "database connection string (PostgreSQL DSN or SQLite path)")
	apiAddr := flag.String("api-addr", config.APIAddr, "HTTP listen address")
	waDSN := flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow database connection string")
	flag.Parse()

	if *dbDSN == "" {
		*dbDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN set, using default SQLite path", "path", *dbDSN)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, *dbDSN, *apiAddr, *waDSN); err != nil {
		slog.Error("ackrelay failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ackrelay exited successfully")
}

// run builds the dependency graph once, acyclically, and starts the workers.
func run(ctx context.Context, config Config, dbDSN, apiAddr, waDSN string) error {
	st, err := openStore(dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	memCache := cache.NewMemory()
	correlator := correlation.NewCorrelator(st, memCache)
	resolver := identity.NewResolver(st, memCache)
	conv := conversation.NewMemoryService()
	reporter := telemetry.NewSlogReporter()

	updater := ack.NewUpdater(correlator, conv, st, config.ErrorDelay)
	consumer := ack.NewConsumer(st, correlator, st, conv, reporter, config.PollInterval)

	if err := consumer.RecoverStale(); err != nil {
		slog.Error("Startup stale-event recovery failed", "error", err)
	}

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(StaleRequeueCron, func() {
		if err := consumer.RecoverStale(); err != nil {
			slog.Error("Periodic stale-event recovery failed", "error", err)
		}
	}); err != nil {
		return err
	}

	go consumer.Run(ctx)

	if config.EnableWhatsApp {
		client, err := whatsapp.NewClient(whatsapp.WithDBDSN(waDSN))
		if err != nil {
			return err
		}
		bridge := whatsapp.NewEventBridge(client)
		go bridge.Start(ctx)
		go pumpAcks(ctx, bridge.Acks(), updater, config.ChannelToken)
		go pumpInbound(ctx, bridge.Inbound(), resolver, conv)
	} else {
		slog.Info("WhatsApp connection disabled; only webhook ingress is active")
	}

	server := api.NewServer(apiAddr, updater, resolver, conv)
	return server.Run(ctx)
}

// pumpAcks forwards receipts from the provider event bridge into the updater.
func pumpAcks(ctx context.Context, acks <-chan whatsapp.AckSignal, updater *ack.Updater, channelToken string) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-acks:
			if _, err := updater.ApplyAck(ctx, ack.Webhook{
				ProviderMessageID:  sig.ProviderMessageID,
				AckCode:            sig.Code,
				ChannelConfigToken: channelToken,
				PhoneNumber:        sig.PhoneNumber,
				Timestamp:          sig.Timestamp,
			}); err != nil {
				slog.Warn("pumpAcks: apply ack failed", "error", err, "providerMessageID", sig.ProviderMessageID)
			}
		}
	}
}

// pumpInbound forwards inbound messages from the provider event bridge into
// identity resolution: match the sender against the conversation roster and
// learn the (phoneNumber, waId) pair when the provider used a different form.
func pumpInbound(ctx context.Context, msgs <-chan whatsapp.Inbound, resolver *identity.Resolver, conv conversation.Service) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-msgs:
			candidates, err := resolver.CandidateForms(msg.PhoneNumber)
			if err != nil {
				slog.Warn("pumpInbound: candidate resolution failed", "error", err, "providerMessageID", msg.ProviderMessageID)
				continue
			}
			participant, err := conv.FindParticipantByCandidateIDs(ctx, msg.ConversationID, candidates)
			if err != nil {
				slog.Warn("pumpInbound: participant lookup failed", "error", err, "conversationID", msg.ConversationID)
				continue
			}
			if participant == nil {
				slog.Debug("pumpInbound: no participant matches sender", "conversationID", msg.ConversationID, "waID", msg.PhoneNumber)
				continue
			}
			if participant.PhoneNumber != msg.PhoneNumber {
				resolver.RecordMismatch(participant.PhoneNumber, msg.PhoneNumber)
			}
		}
	}
}

func openStore(dsn string) (store.Store, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// initializeLogger sets up structured logging at the configured level.
func initializeLogger(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and the .env file.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		LogLevel:       os.Getenv("LOG_LEVEL"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StateDir:       os.Getenv("ACKRELAY_STATE_DIR"),
		APIAddr:        os.Getenv("API_ADDR"),
		WhatsAppDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		ChannelToken:   os.Getenv("ACKRELAY_CHANNEL_TOKEN"),
		EnableWhatsApp: util.ParseBoolEnv("ACKRELAY_ENABLE_WHATSAPP", false),
		ErrorDelay:     util.ParseDurationEnv("ACK_ERROR_DELAY", ack.DefaultErrorDelay),
		PollInterval:   util.ParseDurationEnv("ACK_CONSUMER_POLL_INTERVAL", 5*time.Second),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.APIAddr == "" {
		config.APIAddr = DefaultAPIAddr
	}
	if config.ChannelToken == "" {
		config.ChannelToken = "default"
	}
	return config
}
