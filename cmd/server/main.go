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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/studyroom/internal/adapters/http"
	"github.com/dkeye/studyroom/internal/adapters/routing"
	"github.com/dkeye/studyroom/internal/adapters/rtc"
	wssignal "github.com/dkeye/studyroom/internal/adapters/signal"
	"github.com/dkeye/studyroom/internal/app"
	"github.com/dkeye/studyroom/internal/app/orch"
	"github.com/dkeye/studyroom/internal/config"
	"github.com/dkeye/studyroom/internal/core"
	"github.com/dkeye/studyroom/internal/storage/sqlite"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	engine, err := rtc.NewEngine(rtc.Config{
		AnnouncedIP: cfg.AnnouncedIP,
		MinPort:     cfg.RTCMinPort,
		MaxPort:     cfg.RTCMaxPort,
		ICEServers:  cfg.ICEServers,
	})
	if err != nil {
		return fmt.Errorf("media engine: %w", err)
	}

	rooms := app.NewRoomRegistry(db, core.RealScheduler(), cfg.RoomCapacity)
	o := &orch.Orchestrator{
		Rooms:   rooms,
		Waiting: app.NewWaitingRoomRegistry(),
		Media:   engine,
		Store:   db,
		Policy:  app.SimplePolicy{},
	}

	var notifier wssignal.RoomNotifier = routing.Noop{}
	var routingClient *routing.Notifier
	if cfg.RoutingServerURL != "" {
		routingClient = routing.NewNotifier(cfg.RoutingServerURL, func() routing.RegisterRequest {
			return routing.RegisterRequest{
				IP:              cfg.AnnouncedIP,
				Port:            cfg.Port,
				RunningRooms:    rooms.RoomIDs(),
				MaxRoomCapacity: cfg.MaxServerRooms,
			}
		})
		notifier = routingClient
	}

	ctl := wssignal.NewSignalWSController(o, notifier, wssignal.NewRoomRateLimiter(cfg.ChatRateLimit, cfg.ChatRateInterval))
	ctl.PingPeriod = cfg.PingPeriod
	ctl.ReadLimit = cfg.ReadLimit
	ctl.MediaTimeout = cfg.MediaTimeout

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(ctx, cfg, rooms, ctl),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("study room server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})
	if routingClient != nil {
		g.Go(func() error { return routingClient.Run(gctx) })
	}
	return g.Wait()
}
