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

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"dental-recall/internal/app"
	"dental-recall/internal/config"
	"dental-recall/internal/crew"
	"dental-recall/internal/dispatch"
	"dental-recall/internal/httpx"
	"dental-recall/internal/logging"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_FILE")
	if cfgPath == "" {
		cfgPath = config.DefaultConfigFile
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format, nil)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	rl := httpx.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	go rl.Run(ctx)

	if cfg.Dispatch.Enabled {
		start, end, _ := cfg.BusinessHours()
		d := dispatch.New(dispatch.Config{
			Schedule:      cfg.Dispatch.Schedule,
			Location:      a.Location,
			BusinessStart: start,
			BusinessEnd:   end,
		}, a.Store, a.Reminders, log)
		// Started synchronously so a bad schedule fails startup.
		if err := d.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			d.Stop(stopCtx)
		}()
	}

	if cfg.Crew.Watch && cfg.Crew.ConfigDir != "" {
		w := crew.NewWatcher(cfg.Crew.ConfigDir, a.Crew, log)
		go func() {
			if err := w.Run(ctx); err != nil {
				log.Error().Err(err).Msg("crew config watcher stopped")
			}
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           a.Router(rl.Middleware),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout, _ := cfg.ShutdownTimeout()
	shutCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	log.Info().Dur("timeout", timeout).Msg("shutting down")
	return srv.Shutdown(shutCtx)
}
