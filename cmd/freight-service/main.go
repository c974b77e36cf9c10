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

	"github.com/nurpe/freight/internal/auth"
	"github.com/nurpe/freight/internal/cache"
	"github.com/nurpe/freight/internal/config"
	"github.com/nurpe/freight/internal/db"
	"github.com/nurpe/freight/internal/esi"
	"github.com/nurpe/freight/internal/excel"
	httphandler "github.com/nurpe/freight/internal/http"
	"github.com/nurpe/freight/internal/http/middleware"
	"github.com/nurpe/freight/internal/logger"
	"github.com/nurpe/freight/internal/metrics"
	"github.com/nurpe/freight/internal/notify"
	"github.com/nurpe/freight/internal/pdf"
	"github.com/nurpe/freight/internal/repository"
	"github.com/nurpe/freight/internal/service"
)

const locationCacheTTL = 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	redisClient, err := cache.New(cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}

	m := metrics.New()
	if err := m.Register(); err != nil {
		log.Fatal().Err(err).Msg("failed to register metrics")
	}

	handlerRepo := repository.NewHandlerRepository(database)
	locationRepo := repository.NewLocationRepository(database)
	pricingRepo := repository.NewPricingRepository(database)
	contractRepo := repository.NewContractRepository(database)
	tokenRepo := repository.NewTokenRepository(database)

	var (
		lease         service.Lease = cache.NewLocalLease()
		locationCache service.LocationCache
	)
	if redisClient != nil {
		lease = cache.NewRedisLease(redisClient)
		locationCache = cache.NewLocationCache(redisClient, locationCacheTTL)
	}

	hub := notify.NewHub(log)
	sinks := []notify.Sink{hub}
	if cfg.Discord.WebhookURL != "" {
		sinks = append(sinks, notify.NewDiscordSink(cfg.Discord, &http.Client{Timeout: 10 * time.Second}))
	}
	var kafkaSink *notify.KafkaSink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink = notify.NewKafkaSink(cfg.Kafka)
		sinks = append(sinks, kafkaSink)
	}
	dispatcher := notify.NewDispatcher(cfg.Freight.NotifyQueueSize, m, log, sinks...)

	esiHTTP := &http.Client{Timeout: cfg.Freight.FetchTimeout}
	esiClient := esi.NewClient(cfg.ESI.BaseURL, esiHTTP, log)
	tokens := esi.NewTokenProvider(tokenRepo, esi.SSOConfig{
		TokenURL:     cfg.ESI.SSOURL,
		ClientID:     cfg.ESI.ClientID,
		ClientSecret: cfg.ESI.ClientSecret,
	}, &http.Client{Timeout: cfg.Freight.TokenTimeout}, log)

	contractService := service.NewContractService(contractRepo, pricingRepo, handlerRepo, dispatcher, log)
	pricingService := service.NewPricingService(pricingRepo, handlerRepo, locationRepo, log)
	registry := service.NewLocationRegistry(locationRepo, esiClient, locationCache, m, log)
	syncService := service.NewSyncService(
		handlerRepo,
		pricingRepo,
		esiClient,
		tokens,
		registry,
		contractService,
		lease,
		m,
		service.SyncConfig{
			OperationMode: cfg.Freight.OperationMode,
			FetchTimeout:  cfg.Freight.FetchTimeout,
			TokenTimeout:  cfg.Freight.TokenTimeout,
			Workers:       cfg.Freight.SyncWorkers,
			LeaseTTL:      cfg.Freight.SyncLeaseTTL,
			Grace:         cfg.Freight.SyncGrace,
		},
		log,
	)
	reportService := service.NewReportService(
		contractRepo,
		pricingRepo,
		handlerRepo,
		excel.NewGenerator(),
		pdf.NewGenerator(),
		cfg.Freight.FullRouteNames,
	)

	go dispatcher.Run(ctx)
	go service.NewReResolver(pricingService.Changes(), contractService, cfg.Freight.RepricingSettle, log).Run(ctx)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)
	handler := httphandler.NewHandler(httphandler.Services{
		Sync:      syncService,
		Contracts: contractService,
		Pricing:   pricingService,
		Reports:   reportService,
		Locations: registry,
		Events:    hub,
	}, cfg.Freight.HoursUntilStaleStatus, log)
	authMiddleware := middleware.Auth(tokenParser)
	router := httphandler.NewRouter(handler, authMiddleware, m.Handler(), cfg.Environment)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	log.Info().Str("addr", addr).Str("mode", string(cfg.Freight.OperationMode)).Msg("starting freight service")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}

	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka writer")
		}
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	log.Info().Msg("freight service stopped")
}
