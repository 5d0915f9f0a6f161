package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"reviewbot/internal/bot"
	"reviewbot/internal/config"
	"reviewbot/internal/conversation"
	"reviewbot/internal/metrics"
	"reviewbot/internal/ratelimiter"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	tele "gopkg.in/telebot.v3"
)

type application struct {
	config  config.Config
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
	states  conversation.Store
	limiter ratelimiter.Limiter
	poller  tele.Poller
	bot     *bot.Bot
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Webhook updates are handed to the bot loop and answered immediately.
	if wh, ok := app.poller.(*tele.Webhook); ok {
		r.Post(webhookPath(app.config.Bot.WebhookURL), wh.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Logger)
		r.Use(middleware.Timeout(60 * time.Second))

		r.Handle("/metrics", app.metrics.Handler())

		r.Route("/v1", func(r chi.Router) {
			r.Get("/health", app.healthCheckHandler)
			r.With(app.BasicAuthMiddleware()).Get("/debug/vars", expvar.Handler().ServeHTTP)
		})
	})
	return r
}

// webhookPath is the route Telegram posts to: the path of the public URL.
func webhookPath(publicURL string) string {
	u, err := url.Parse(publicURL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

// run serves the ops endpoints and processes bot updates until SIGINT or
// SIGTERM, then shuts both down.
func (app *application) run(mux http.Handler) error {
	srv := &http.Server{
		Addr:         app.config.Addr,
		Handler:      mux,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.logger.Infow("server has started", "addr", app.config.Addr, "webhook", app.config.Webhook())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return app.bot.Run(gctx)
	})

	g.Go(func() error {
		app.housekeeping(gctx, time.Minute)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		app.logger.Infow("shutting down", "reason", context.Cause(gctx))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.Addr)
	return nil
}
