package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	app "classroom-relay/internal/app"
	"classroom-relay/internal/classes"
	httpx "classroom-relay/internal/http"
	"classroom-relay/internal/relay"
	store "classroom-relay/internal/store"
	ws "classroom-relay/internal/ws"
)

func main() {
	// Load local .env (dev only)
	_ = godotenv.Load()

	cfg := app.LoadConfig()
	logger := app.NewLogger(cfg.Env, cfg.LogLevel)
	logger.Info("config.loaded", "config", cfg.String())

	// Cancel on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := relay.Options{
		Logger:         logger,
		ClassesTimeout: cfg.ClassesTimeout,
		EndGrace:       cfg.EndGrace,
		VacancyGrace:   cfg.VacancyGrace,
		ICEServers:     cfg.WebRTCServers(),
	}
	if cfg.ClassesURL != "" {
		opts.Classes = classes.NewClient(cfg.ClassesURL, cfg.ClassesTimeout, logger)
	}

	deps := httpx.Deps{Ready: map[string]httpx.Pinger{}}

	// Postgres session records (optional)
	if cfg.PGURL != "" {
		pg, err := store.NewPostgres(ctx, cfg, logger)
		if err != nil {
			logger.Error("postgres connect", "err", err)
			log.Fatal(err)
		}
		defer pg.Close()
		if err := store.RunMigrations(ctx, pg, logger); err != nil {
			logger.Error("migrations", "err", err)
			log.Fatal(err)
		}
		rec := store.NewRecorder(pg, logger)
		go rec.Run(ctx)
		opts.Sinks = append(opts.Sinks, rec)
		deps.Records = pg
		deps.Ready["postgres"] = pg
	}

	// Redis lifecycle bus (optional)
	var bus *ws.RedisBus
	if cfg.RedisAddr != "" {
		var err error
		bus, err = ws.NewRedisBus(ctx, cfg, logger)
		if err != nil {
			logger.Error("redis connect", "err", err)
			log.Fatal(err)
		}
		defer bus.Close()
		go bus.Run(ctx)
		opts.Sinks = append(opts.Sinks, bus)
		deps.Ready["redis"] = bus
	}

	rl := relay.New(opts)
	relayDone := make(chan struct{})
	go func() {
		rl.Run(ctx)
		close(relayDone)
	}()

	if bus != nil {
		go bus.Subscribe(ctx, func(cm ws.ControlMessage) {
			err := rl.ForceRemove(ctx, cm.SessionID)
			logger.Info("bus.control.close", "session", cm.SessionID, "err", err)
		})
	}

	deps.Relay = rl
	deps.WS = http.HandlerFunc(ws.NewHub(logger, rl, cfg.CORSAllow, cfg.WSSendBuffer).ServeWS)

	// HTTP + WS router
	router := httpx.NewRouter(cfg, logger, deps)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("server.listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server.crash", "err", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("server.shutdown.start")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)
	<-relayDone

	logger.Info("server.shutdown.complete")
	_ = os.Stdout.Sync()
}
