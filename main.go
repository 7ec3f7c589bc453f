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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"filerelay/internal/api"
	"filerelay/internal/config"
	"filerelay/internal/events"
	"filerelay/internal/logging"
	"filerelay/internal/metrics"
	"filerelay/internal/redis"
	"filerelay/internal/relay"
	"filerelay/internal/sender"
	"filerelay/internal/staging"
	"filerelay/internal/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "filerelay",
		Short:         "Stage uploaded files and relay them to mail or Slack",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", os.Getenv("FILERELAY_CONFIG"),
		"Path to an optional config file; environment variables take precedence")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfgPath)
		},
	})
	return root
}

func serve(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return err
	}
	logger, err := logging.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	publisher := events.Nop()
	if cfg.Redis.URL != "" {
		rdb, err := redis.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Error("connect redis", zap.Error(err))
			return err
		}
		defer rdb.Close()
		publisher = events.NewRedisPublisher(rdb, cfg.Redis.Channel, logger)
		logger.Info("publishing events", zap.String("channel", cfg.Redis.Channel))
	}

	var journal *storage.Journal
	if cfg.Database.Driver != "" {
		db, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			logger.Error("open database", zap.Error(err))
			return err
		}
		defer db.Close()
		if err := storage.Migrate(db, cfg.Database.Driver); err != nil {
			logger.Error("migrate database", zap.Error(err))
			return err
		}
		journal = storage.NewJournal(db)
		logger.Info("delivery journal enabled", zap.String("driver", cfg.Database.Driver))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer, err := metrics.NewObserver("filerelay", reg)
	if err != nil {
		logger.Error("register metrics", zap.Error(err))
		return err
	}

	cache, err := staging.New(cfg.Staging.MaxEntries,
		staging.WithEvictHook(relay.EvictionHook(observer, publisher, logger)))
	if err != nil {
		logger.Error("create staging cache", zap.Error(err))
		return err
	}
	relayOpts := relay.Options{
		MaxFileSize:      cfg.Staging.MaxFileSize,
		SendTimeout:      cfg.Staging.SendTimeout,
		MaxParallelSends: cfg.Staging.MaxParallelSends,
		Publisher:        publisher,
		Metrics:          observer,
		Logger:           logger,
	}
	handlerOpts := api.Options{Gatherer: reg, Logger: logger}
	if journal != nil {
		relayOpts.Journal = journal
		handlerOpts.Deliveries = journal
	}
	service := relay.NewService(cache, relayOpts)

	if cfg.MailEnabled() {
		mail, err := sender.NewMail(cfg.Mail, logger)
		if err != nil {
			logger.Error("configure mail", zap.Error(err))
			return err
		}
		handlerOpts.Mail = mail
	}
	if cfg.ChatEnabled() {
		handlerOpts.Chat = sender.NewChat(cfg.Slack, logger)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinMiddleware(logger))
	api.NewHandler(service, handlerOpts).RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.Server.Address),
			zap.Bool("mail", cfg.MailEnabled()),
			zap.Bool("slack", cfg.ChatEnabled()),
			zap.Int("cache_max_entries", cfg.Staging.MaxEntries))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", zap.Error(err))
		return err
	}
	return nil
}
