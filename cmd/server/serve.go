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

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"gapminder/internal/api"
	"gapminder/internal/engine"
	"gapminder/internal/events"
	"gapminder/internal/session"
	"gapminder/internal/view"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the explorer server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	layout, err := view.ParseLayout(cfg.Variant)
	if err != nil {
		return err
	}

	hub := events.NewHub()
	pub := events.Multi{hub}
	if cfg.NATSURL != "" {
		np, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return err
		}
		pub = append(pub, np)
		logger.Info("publishing view updates to NATS", zap.String("url", cfg.NATSURL))
	}
	defer pub.Close()

	// 1. Initialize Echo (Starts Instantly)
	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = api.JSONSerializer{}
	if cfg.Verbose {
		e.Logger.SetLevel(log.DEBUG)
	} else {
		e.Logger.SetLevel(log.INFO)
	}
	e.Use(middleware.CORS())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.Logger())
	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))
	}

	// 2. Initialize Handler with no data; the API answers 503 until the
	// load finishes.
	h := api.NewHandler(nil, hub, logger)
	h.RegisterRoutes(e)

	opts := session.DefaultOptions()
	opts.Layout = layout
	opts.YearStart, opts.YearEnd = cfg.YearStart, cfg.YearEnd
	opts.Excluded = cfg.ExcludedCountries
	opts.Publisher = pub
	opts.Logger = logger

	g, ctx := errgroup.WithContext(ctx)

	// 3. Launch the load in the background.
	g.Go(func() error {
		logger.Info("loading dataset", zap.String("path", cfg.DataPath))
		t0 := time.Now()
		store, err := engine.LoadColumnar(cfg.DataPath, logger)
		if err != nil {
			return fmt.Errorf("load %s: %w", cfg.DataPath, err)
		}
		mgr := session.NewManager(session.NewData(store), opts, cfg.SessionIdleTTL)
		h.SetManager(mgr)
		logger.Info("dataset ready, API is live",
			zap.Duration("elapsed", time.Since(t0)),
			zap.Stringer("layout", layout))

		mgr.Run(ctx, sweepInterval(cfg.SessionIdleTTL))
		return nil
	})

	// 4. Start Server (This happens immediately)
	g.Go(func() error {
		logger.Info("server listening", zap.String("addr", cfg.HTTPAddr))
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

// sweepInterval returns how often idle sessions are checked for.
func sweepInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return time.Minute
	}
	return max(ttl/4, time.Second)
}
