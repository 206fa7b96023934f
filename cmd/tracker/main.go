package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Code-6dof/DXX-Dashboard/internal/archive"
	"github.com/Code-6dof/DXX-Dashboard/internal/event_manager"
	"github.com/Code-6dof/DXX-Dashboard/internal/events"
	"github.com/Code-6dof/DXX-Dashboard/internal/gamelog"
	"github.com/Code-6dof/DXX-Dashboard/internal/notify"
	"github.com/Code-6dof/DXX-Dashboard/internal/registry"
	"github.com/Code-6dof/DXX-Dashboard/internal/server"
	"github.com/Code-6dof/DXX-Dashboard/internal/shared/config"
	"github.com/Code-6dof/DXX-Dashboard/internal/shared/logger"
	"github.com/Code-6dof/DXX-Dashboard/internal/shared/utils"
	"github.com/Code-6dof/DXX-Dashboard/internal/snapshot"
	"github.com/Code-6dof/DXX-Dashboard/internal/tracker"
	"github.com/Code-6dof/DXX-Dashboard/internal/watcher"
	"github.com/Code-6dof/DXX-Dashboard/internal/wshub"
)

const shutdownTimeout = time.Second * 5

func main() {
	ctx := utils.WithContextSigtermCallback(context.Background(), func() {
		log.Info().Msg("termination signal is received, shutting down tracker")
	})

	if err := run(ctx); err != nil {
		log.Error().Msgf("error running DXX tracker: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	err := logger.SetupGlobalLogger(ctx, config.Config.Log.Level, config.Config.Debug.Pretty, config.Config.Debug.NoColor, config.Config.Log.File, true)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %v", err)
	}

	// set gin mode based on log level
	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info().Msg("Starting DXX tracker...")

	eventManager := event_manager.NewEventManager(ctx, 1000)
	defer eventManager.Shutdown()

	reg := registry.New()
	stores := events.NewStores()
	clients := gamelog.NewClientManager()
	writer := snapshot.NewWriter(config.Config.Snapshot.Path)

	sink, err := archive.NewSink(config.Config)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize archive sink, archiving disabled")
		sink = archive.NullSink{}
	}

	engine, err := tracker.NewEngine(config.Config.Tracker.UdpPort, tracker.Deps{
		Registry: reg,
		Stores:   stores,
		Clients:  clients,
		Events:   eventManager,
		Sink:     sink,
		Writer:   writer,
	})
	if err != nil {
		return err
	}

	hub := wshub.NewHub(func() interface{} {
		return snapshot.BuildDocument(reg, stores, clients)
	})
	defer hub.Shutdown()

	router := server.NewRouter(&server.Dependencies{
		Registry:     reg,
		Stores:       stores,
		Clients:      clients,
		EventManager: eventManager,
		StartTime:    time.Now(),
	})

	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", config.Config.Tracker.HttpPort),
		Handler:     router,
		ReadTimeout: 30 * time.Second,
	}
	wsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Config.Tracker.WsPort),
		Handler: hub,
	}

	localWatcher := watcher.New(clients, eventManager, config.Config.Tracker.LocalPlayer, config.Config.GamelogDirList())

	waitingGroup, groupCtx := errgroup.WithContext(ctx)

	waitingGroup.Go(func() error {
		log.Info().Msg("Starting UDP receive loop...")
		return engine.Run(groupCtx)
	})

	waitingGroup.Go(func() error {
		return engine.PollLoop(groupCtx)
	})

	waitingGroup.Go(func() error {
		return engine.CleanupLoop(groupCtx)
	})

	waitingGroup.Go(func() error {
		log.Info().Int("port", config.Config.Tracker.HttpPort).Msg("Starting HTTP server...")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	waitingGroup.Go(func() error {
		log.Info().Int("port", config.Config.Tracker.WsPort).Msg("Starting WebSocket server...")
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("WebSocket server failed: %w", err)
		}
		return nil
	})

	waitingGroup.Go(func() error {
		hub.Forward(groupCtx, eventManager)
		return nil
	})

	waitingGroup.Go(func() error {
		return localWatcher.Run(groupCtx)
	})

	relay, err := notify.NewDiscordRelay(config.Config.Discord.Token, config.Config.Discord.ChannelID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to start Discord relay")
	} else if relay != nil {
		waitingGroup.Go(func() error {
			return relay.Run(groupCtx, eventManager)
		})
	}

	// Stop the listeners once the context ends, with a bounded grace
	// period for in-flight requests.
	waitingGroup.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP server shutdown failed")
		}
		if err := wsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("WebSocket server shutdown failed")
		}
		return nil
	})

	if err := waitingGroup.Wait(); err != nil {
		return err
	}
	log.Info().Msg("DXX tracker stopped")
	return nil
}
