package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kapwa-labs/KamustaBot/internal/api"
	"github.com/kapwa-labs/KamustaBot/internal/flow"
	"github.com/kapwa-labs/KamustaBot/internal/genai"
	"github.com/kapwa-labs/KamustaBot/internal/lockfile"
	"github.com/kapwa-labs/KamustaBot/internal/messaging"
	"github.com/kapwa-labs/KamustaBot/internal/scheduler"
	"github.com/kapwa-labs/KamustaBot/internal/store"
	"github.com/kapwa-labs/KamustaBot/internal/twiliosms"
	"github.com/kapwa-labs/KamustaBot/internal/util"
	"github.com/kapwa-labs/KamustaBot/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for KamustaBot state data
	DefaultStateDir = "/var/lib/kamustabot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "kamustabot.db"
	// DefaultOutboxPollInterval is how often the outbox sender looks for due messages
	DefaultOutboxPollInterval = 5 * time.Second
	// DefaultOutboxRecoveryCron requeues stale sending messages nightly
	DefaultOutboxRecoveryCron = "0 3 * * *"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	slog.Info("Bootstrapping KamustaBot")
	if err := run(flags); err != nil {
		slog.Error("KamustaBot failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("KamustaBot exited successfully")
}

func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	engine := flow.NewEngine(flow.WithDirectory(store.NewDirectory(st)))

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}

	// The chat channel is optional; the HTTP API alone is a full deployment.
	msgService, channelOpts, err := buildMessagingService(flags)
	if err != nil {
		return err
	}
	if msgService != nil {
		apiOpts = append(apiOpts, channelOpts...)

		if err := msgService.Start(ctx); err != nil {
			return err
		}
		defer msgService.Stop()

		handler := messaging.NewResponseHandler(engine, st, msgService)
		if *flags.menuMessage != "" {
			handler.SetMenuMessage(*flags.menuMessage)
		}
		handler.Start(ctx)

		sender := store.NewOutboxSender(st, messaging.NewOutboxSendFunc(msgService, buildPolisher(flags)), DefaultOutboxPollInterval)
		if err := sender.RecoverStaleMessages(); err != nil {
			slog.Error("Outbox stale message recovery failed", "error", err)
		}
		go sender.Run(ctx)

		sched := scheduler.NewScheduler()
		defer sched.Stop()
		if err := sched.AddJob(*flags.outboxRecoveryCron, func() {
			if err := sender.RecoverStaleMessages(); err != nil {
				slog.Error("Scheduled outbox recovery failed", "error", err)
			}
		}); err != nil {
			return err
		}
	}

	srv := api.NewServer(engine, st, apiOpts...)
	return srv.Run(ctx)
}

// Config holds environment configuration
type Config struct {
	DatabaseURL        string
	WhatsAppDSN        string
	StateDir           string
	OpenAIKey          string
	APIAddr            string
	Channel            string
	OutboxRecoveryCron string
	PolishReplies      bool
	MenuMessage        string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput           *string
	numeric            *bool
	stateDir           *string
	dbDSN              *string
	whatsappDSN        *string
	openaiKey          *string
	apiAddr            *string
	channel            *string
	outboxRecoveryCron *string
	polishReplies      *bool
	menuMessage        *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		WhatsAppDSN:        os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:           os.Getenv("KAMUSTABOT_STATE_DIR"),
		OpenAIKey:          os.Getenv("OPENAI_API_KEY"),
		APIAddr:            os.Getenv("API_ADDR"),
		Channel:            os.Getenv("CHAT_CHANNEL"),
		OutboxRecoveryCron: os.Getenv("OUTBOX_RECOVERY_CRON"),
		PolishReplies:      util.ParseBoolEnv("POLISH_REPLIES", false),
		MenuMessage:        os.Getenv("MENU_MESSAGE"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No KAMUSTABOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	// Whatsmeow keeps its own device database next to ours.
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, "whatsmeow.db")
	}

	if config.OutboxRecoveryCron == "" {
		config.OutboxRecoveryCron = DefaultOutboxRecoveryCron
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"KAMUSTABOT_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"CHAT_CHANNEL", config.Channel,
		"OUTBOX_RECOVERY_CRON", config.OutboxRecoveryCron,
		"POLISH_REPLIES", config.PolishReplies,
		"MENU_MESSAGE_SET", config.MenuMessage != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:           flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:            flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		stateDir:           flag.String("state-dir", config.StateDir, "state directory for KamustaBot data (overrides $KAMUSTABOT_STATE_DIR)"),
		dbDSN:              flag.String("db-dsn", config.DatabaseURL, "database DSN for the session/event store (overrides $DATABASE_URL)"),
		whatsappDSN:        flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "database DSN for the whatsmeow device store (overrides $WHATSAPP_DB_DSN)"),
		openaiKey:          flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key for reply polish (overrides $OPENAI_API_KEY)"),
		apiAddr:            flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		channel:            flag.String("channel", config.Channel, "chat channel: whatsapp, twilio, or empty for API only (overrides $CHAT_CHANNEL)"),
		outboxRecoveryCron: flag.String("outbox-recovery-cron", config.OutboxRecoveryCron, "cron schedule for outbox stale message recovery (overrides $OUTBOX_RECOVERY_CRON)"),
		polishReplies:      flag.Bool("polish-replies", config.PolishReplies, "rephrase outbound chat replies with OpenAI (overrides $POLISH_REPLIES)"),
		menuMessage:        flag.String("menu-message", config.MenuMessage, "custom menu text sent when a chat message matches no flow keyword (overrides $MENU_MESSAGE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"channel", *flags.channel,
		"outboxRecoveryCron", *flags.outboxRecoveryCron,
		"polishReplies", *flags.polishReplies)

	// Follow an overridden state directory when the DSN was defaulted from it.
	if *flags.stateDir != config.StateDir && *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite3" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// openStore selects the store implementation from the DSN type.
func openStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildMessagingService constructs the configured chat channel, if any.
// For the Twilio channel it also returns the webhook route the API server
// must mount for inbound SMS.
func buildMessagingService(flags Flags) (messaging.Service, []api.Option, error) {
	switch *flags.channel {
	case "whatsapp":
		waOpts := []whatsapp.Option{whatsapp.WithDBDSN(*flags.whatsappDSN)}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, nil, err
		}
		return messaging.NewWhatsAppService(client), nil, nil

	case "twilio":
		client, err := twiliosms.NewClient()
		if err != nil {
			return nil, nil, err
		}
		svc := messaging.NewTwilioService(client)
		return svc, []api.Option{api.WithWebhook("/webhook/twilio", svc.TwilioWebhookHandler)}, nil

	case "":
		slog.Info("No chat channel configured, running HTTP API only")
		return nil, nil, nil

	default:
		slog.Warn("Unknown chat channel, running HTTP API only", "channel", *flags.channel)
		return nil, nil, nil
	}
}

// buildPolisher returns the optional reply polisher, or nil when disabled.
func buildPolisher(flags Flags) messaging.TextPolisher {
	if !*flags.polishReplies {
		return nil
	}
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	client, err := genai.NewClient(genaiOpts...)
	if err != nil {
		slog.Warn("Reply polish requested but GenAI client unavailable, sending plain replies", "error", err)
		return nil
	}
	slog.Info("Reply polish enabled")
	return client
}
