package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"supportbridge/internal/config"
	"supportbridge/internal/infrastructure"
	"supportbridge/internal/interfaces"
	"supportbridge/internal/interfaces/http"
	"supportbridge/internal/logutil"
	"supportbridge/internal/repository"
	"supportbridge/internal/usecases"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "supportbridge",
		Short:        "Support chat provisioning and CRM transcript sync",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(viper.New()))
	return root
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the registration and webhook HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, envFile)
			if err != nil {
				return err
			}
			logger, err := logutil.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.String("addr", ":8080", "HTTP listen address")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.String("log-format", "text", "text or json")
	_ = v.BindPFlag("http_addr", flags.Lookup("addr"))
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log_format", flags.Lookup("log-format"))
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	crm := infrastructure.NewHubSpotClient(nil, cfg.HubSpot.BaseURL, cfg.HubSpot.APIKey)
	chat := infrastructure.NewStreamClient(nil, cfg.Stream.BaseURL, cfg.Stream.APIKey, cfg.Stream.APISecret, cfg.Stream.TokenTTL)

	registrations := usecases.NewRegistrationUsecase(
		usecases.NewContactDirectory(crm, logger),
		usecases.NewIdentityProvisioner(chat, cfg.Support.AdminID, cfg.Support.AdminName),
		usecases.NewChannelProvisioner(chat),
		usecases.NewCredentialIssuer(chat),
		chat.APIKey(),
		logger,
	)
	transcripts := usecases.NewTranscriptSynchronizer(crm, cfg.HubSpot.TranscriptProperty, logger)

	ledger, closeLedger, err := openLedger(ctx, cfg.LedgerDSN)
	if err != nil {
		return err
	}
	defer closeLedger()
	if ledger != nil {
		transcripts.Ledger = ledger
		logger.Info("message ledger enabled")
	}

	if cfg.AMQP.URL != "" {
		publisher, err := infrastructure.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		registrations.Publisher = publisher
		transcripts.Publisher = publisher
		logger.Info("event publishing enabled", slog.String("exchange", cfg.AMQP.Exchange))
	}

	if cfg.Telegram.BotToken != "" && cfg.Telegram.AgentChatID != 0 {
		notifier, err := infrastructure.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.AgentChatID)
		if err != nil {
			logger.Warn("telegram notifications disabled", slog.Any("error", err))
		} else {
			registrations.Notifier = notifier
			logger.Info("telegram agent notifications enabled", slog.String("bot", notifier.Bot.Self.UserName))
		}
	}

	var verifier http.WebhookVerifier
	if cfg.Stream.VerifyWebhook {
		verifier = chat
	}

	gin.SetMode(gin.ReleaseMode)
	r, err := http.NewEngine(cfg.TrustedProxies)
	if err != nil {
		return err
	}
	http.SetupRoutes(r, http.NewHandler(registrations, transcripts, logger), http.NewMiddleware(verifier, logger), http.RouteOptions{
		RegistrationRate:  rate.Limit(cfg.RegistrationRate),
		RegistrationBurst: cfg.RegistrationBurst,
	})

	srv := &nethttp.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openLedger picks the ledger backend from the DSN scheme. An empty DSN
// disables deduplication.
func openLedger(ctx context.Context, dsn string) (interfaces.EventLedger, func(), error) {
	noop := func() {}
	switch {
	case dsn == "":
		return nil, noop, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		pg, err := infrastructure.NewPostgresClient(ctx, dsn)
		if err != nil {
			return nil, noop, err
		}
		return repository.NewPostgresEventLedger(pg.Pool), pg.Close, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		db, err := infrastructure.NewSQLiteDB(ctx, strings.TrimPrefix(dsn, "sqlite://"))
		if err != nil {
			return nil, noop, err
		}
		return repository.NewSQLiteEventLedger(db), func() { db.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unsupported ledger dsn scheme: %q", dsn)
	}
}
