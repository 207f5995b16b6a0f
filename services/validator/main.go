package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tickernet-ai/tickernet/pkg/logging"
	"github.com/tickernet-ai/tickernet/services/validator/config"
	"github.com/tickernet-ai/tickernet/services/validator/handlers"
	"github.com/tickernet-ai/tickernet/services/validator/middleware"
	"github.com/tickernet-ai/tickernet/services/validator/services"
	"github.com/tickernet-ai/tickernet/subnet/grading"
	"github.com/tickernet-ai/tickernet/subnet/incentive"
	"github.com/tickernet-ai/tickernet/subnet/querygen"
	"github.com/tickernet-ai/tickernet/subnet/refdata"
)

func main() {
	logger := logging.New()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	log := logging.Component(logger, "validator")

	// 2. Reference data layer
	refClient := refdata.NewClient(refdata.ClientConfig{
		BaseURL:            cfg.RefAPIURL,
		APIKey:             cfg.RefAPIKey,
		CompaniesEndpoint:  cfg.CompaniesEndpoint,
		ValidationEndpoint: cfg.ValidationEndpoint,
		Timeout:            cfg.RefAPITimeout,
		CacheTTL:           cfg.RefAPICacheTTL,
		MaxRetries:         cfg.RefAPIMaxRetries,
		RetryDelay:         cfg.RefAPIRetryDelay,
	}, logging.Component(logger, "refdata"))
	directory := refdata.NewDirectory(refClient, cfg.DirectoryRefresh, logging.Component(logger, "directory"), nil)

	// 3. Scoring engine
	generator := querygen.New(directory, logging.Component(logger, "querygen"), nil)
	validator := grading.NewValidator(refClient, logging.Component(logger, "grading"))
	if err := validator.SetWeights(cfg.StructureWeight, cfg.AccuracyWeight); err != nil {
		logger.Fatalf("Invalid grading weights: %v", err)
	}
	if err := validator.SetLayerWeights(cfg.LatencyWeight, cfg.ConfidenceWeight); err != nil {
		logger.Fatalf("Invalid grading weights: %v", err)
	}
	mechanism := incentive.New(cfg.MovingAverageAlpha, cfg.SoftmaxTemperature, logging.Component(logger, "incentive"))

	// 4. Miner dispatch and round loop
	registry, err := services.NewRegistry(cfg.MinerEndpoints, logging.Component(logger, "registry"), nil)
	if err != nil {
		logger.Fatalf("Failed to build miner registry: %v", err)
	}
	minerClient := services.NewMinerClient(cfg.MinerTimeout, logging.Component(logger, "miner-client"))
	store := services.NewStateStore(cfg.StateFile, logging.Component(logger, "state"))

	var submitter services.WeightSubmitter
	if cfg.ChainEnabled {
		submitter, err = services.NewChainSubmitter(services.ChainConfig{
			RPCURL:          cfg.EthRPCURL,
			ContractAddress: cfg.ContractAddress,
			PrivateKeyHex:   cfg.PrivateKeyHex,
			SubnetID:        cfg.SubnetID,
		}, logging.Component(logger, "chain"))
		if err != nil {
			logger.Fatalf("Failed to init chain submitter: %v", err)
		}
	} else {
		submitter = &services.NoopSubmitter{Log: logging.Component(logger, "chain")}
	}

	rounds, err := services.NewRoundService(services.RoundConfig{
		Interval:        cfg.RoundInterval,
		MaxMiners:       cfg.MaxMinersPerRound,
		OrganicEveryNth: cfg.OrganicEveryNth,
	}, registry, minerClient, generator, validator, mechanism, directory, store, submitter,
		logging.Component(logger, "rounds"))
	if err != nil {
		logger.Fatalf("Failed to init round service: %v", err)
	}

	// 5. Handlers and routes
	queryHandler := handlers.NewQueryHandler(rounds, logging.Component(logger, "api"))
	statsHandler := handlers.NewStatsHandler(registry, rounds, generator, validator, mechanism, directory)
	healthHandler := handlers.NewHealthHandler(registry, directory)

	router := setupRoutes(cfg, queryHandler, statsHandler, healthHandler)

	// 6. Start round loop and server
	loopCtx, stopLoop := context.WithCancel(context.Background())
	go rounds.Run(loopCtx)

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: router,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()
	log.WithField("port", cfg.Port).Info("validator server started")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	stopLoop()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server shutdown: %v", err)
	}
	log.Info("server exited")
}

func setupRoutes(cfg *config.Config, queryHandler *handlers.QueryHandler, statsHandler *handlers.StatsHandler, healthHandler *handlers.HealthHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.BearerAuth(cfg.APIToken))
	{
		v1.POST("/query", queryHandler.Query)
		v1.GET("/miners", statsHandler.Miners)
		v1.GET("/scores", statsHandler.Scores)
		v1.GET("/stats", statsHandler.Stats)
		v1.GET("/weights", statsHandler.WeightsAudit)
		v1.POST("/weights", statsHandler.UpdateWeights)
	}

	return router
}
