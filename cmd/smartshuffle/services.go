package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"smartshuffle/internal/core"
	"smartshuffle/internal/flood"
	httpserver "smartshuffle/internal/http"
	"smartshuffle/internal/kv"
	"smartshuffle/internal/notify"
	"smartshuffle/internal/spotify"
	"smartshuffle/internal/store"
)

type services struct {
	kv          kv.Store
	spotify     *spotify.Client
	engine      *core.Engine
	delivery    *core.DeliveryOrchestrator
	shuffler    *core.Shuffler
	stats       *core.StatsAggregator
	housekeeper *core.Housekeeper
	metrics     *httpserver.Metrics
	gate        *flood.Gate
	telegram    *notify.TelegramNotifier
}

func initializeServices() (*services, error) {
	kvStore, err := kv.Open(config.Storage.Path, config.Storage.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	svcs := &services{
		kv:      kvStore,
		spotify: spotify.NewClient(&config.Spotify, logger),
		metrics: httpserver.NewMetrics(),
		gate:    flood.New(config.Delivery.RequestsPerMinute),
	}

	notifier, err := svcs.createNotifier()
	if err != nil {
		svcs.close()
		return nil, err
	}

	memories := store.NewShuffleMemoryStore(kvStore)
	svcs.engine = core.NewEngine(memories, svcs.metrics, logger)
	svcs.delivery = core.NewDeliveryOrchestrator(
		config.Delivery,
		store.NewDeliveryStateStore(kvStore),
		svcs.spotify,
		svcs.engine,
		notifier,
		svcs.gate,
		func(capacity int) core.DedupStore { return store.NewDeliveredSetFor(capacity) },
		svcs.metrics,
		logger,
	)
	svcs.shuffler = core.NewShuffler(config.Shuffle, config.Spotify.DeviceID, svcs.spotify,
		svcs.engine, svcs.delivery, logger)
	svcs.stats = core.NewStatsAggregator(memories, logger)

	keeper := authGatedKeeper{auth: svcs.spotify, delivery: svcs.delivery}
	svcs.housekeeper, err = core.NewHousekeeper(config.App.HousekeepingSchedule, keeper, svcs.stats, logger)
	if err != nil {
		svcs.close()
		return nil, err
	}

	return svcs, nil
}

func (s *services) createNotifier() (core.Notifier, error) {
	notifiers := notify.Fanout{notify.NewLogNotifier(logger)}

	if config.Notify.TelegramEnabled {
		telegram, err := notify.NewTelegramNotifier(config.Notify, notify.NewFormatter(config.App.Language), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Telegram notifier: %w", err)
		}
		s.telegram = telegram
		notifiers = append(notifiers, telegram)
		logger.Info("Delivery progress goes to Telegram",
			zap.Int64("chatID", config.Notify.TelegramChatID),
			zap.String("language", config.App.Language))
	}

	return notifiers, nil
}

// authGatedKeeper holds interrupted deliveries back until Spotify is connected.
type authGatedKeeper struct {
	auth     interface{ Authenticated() bool }
	delivery core.DeliveryKeeper
}

func (k authGatedKeeper) Resume(ctx context.Context) (bool, error) {
	if !k.auth.Authenticated() {
		return false, nil
	}
	return k.delivery.Resume(ctx)
}

// authenticate loads the saved token, asking for a code on stdin when interactive is set.
func (s *services) authenticate(ctx context.Context, interactive bool) error {
	err := s.spotify.Authenticate(ctx)
	if err == nil || !errors.Is(err, spotify.ErrNotAuthenticated) {
		return err
	}
	if !interactive {
		return err
	}
	return s.spotify.AuthenticateInteractive(ctx)
}

// close interrupts deliveries, leaving their records for the next start, and releases resources.
func (s *services) close() {
	if s.delivery != nil {
		s.delivery.Close()
	}
	if s.telegram != nil {
		s.telegram.Close()
	}
	s.gate.Stop()
	if err := s.kv.Close(); err != nil {
		logger.Warn("Failed to close storage", zap.Error(err))
	}
}

func runServices(ctx context.Context, svcs *services) error {
	httpServer := httpserver.NewServer(&config.Server, httpserver.Dependencies{
		Shuffler: svcs.shuffler,
		Memory:   svcs.engine,
		Delivery: svcs.delivery,
		Stats:    svcs.stats,
		Auth:     svcs.spotify,
	}, svcs.metrics, logger)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpServer.Start(gCtx)
	})

	g.Go(func() error {
		return svcs.housekeeper.Run(gCtx)
	})

	logger.Info("Smart Shuffle started successfully",
		zap.String("httpAddr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	err := g.Wait()
	svcs.close()

	if err != nil {
		logger.Error("Smart Shuffle stopped with error", zap.Error(err))
		return err
	}

	logger.Info("Smart Shuffle stopped gracefully")
	return nil
}
