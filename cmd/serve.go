package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/api"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/config"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/engine"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/events"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/logging"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/notify"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/sweeper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the progression HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is required to serve (set ELEARN_AUTH_JWT_SECRET)")
		}

		logger := newLogger(cfg)
		defer logger.Close()

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		catalog, err := loadCatalog(cfg)
		if err != nil {
			return err
		}
		logger.Info("courses loaded", "count", len(catalog.IDs()), "dir", cfg.Courses.Dir)

		bus := events.NewBus(logger)
		bus.Subscribe("log", "", notify.LogEvents(logger))
		notify.Register(bus, notifiers(cfg, logger)...)

		engCfg := engine.DefaultConfig()
		engCfg.Bus = bus
		engCfg.Logger = logger
		engCfg.SubmissionGrace = cfg.Quiz.SubmissionGrace
		engCfg.SweepBatch = cfg.Quiz.SweepBatch
		eng := engine.New(catalog, st, engCfg)

		sw := sweeper.New(eng, cfg.Quiz.SweepInterval, logger)
		if err := sw.Start(); err != nil {
			return err
		}
		defer sw.Stop()

		srv := api.NewServer(&api.Options{
			Engine:      eng,
			Logger:      logger,
			JWTSecret:   cfg.Auth.JWTSecret,
			CORSOrigins: cfg.HTTP.CORSOrigins,
			Health:      st.Ping,
			Debug:       cfg.Env == "dev",
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errc := make(chan error, 1)
		go func() {
			logger.Info("listening", "addr", cfg.HTTP.Addr)
			errc <- srv.Start(cfg.HTTP.Addr)
		}()

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Stop(shutdownCtx)
	},
}

// notifiers builds the completion notifiers that are configured.
func notifiers(cfg *config.Config, logger logging.Logger) []notify.Subscriber {
	var subs []notify.Subscriber
	if cfg.SendGrid.APIKey != "" {
		subs = append(subs, notify.NewEmail(cfg.SendGrid))
	}
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			logger.Warn("telegram notifications disabled", "err", err)
		} else {
			subs = append(subs, tg)
		}
	}
	return subs
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides ELEARN_HTTP_ADDR)")
}
