package main

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/richxcame/traffic-prediction/internal/traffic"
	"github.com/richxcame/traffic-prediction/pkg/common"
	"github.com/richxcame/traffic-prediction/pkg/config"
	"github.com/richxcame/traffic-prediction/pkg/logger"
	"github.com/richxcame/traffic-prediction/pkg/middleware"
	"github.com/richxcame/traffic-prediction/pkg/redis"
	"go.uber.org/zap"
)

const serviceName = "traffic-prediction"

func main() {
	// Load configuration
	cfg, err := config.Load(serviceName)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Connect to Redis
	redisClient, err := redis.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Connected to Redis")

	predictionTTL := time.Duration(cfg.Model.PredictionTTLMinutes) * time.Minute

	// Wire up the prediction pipeline
	repo := traffic.NewRepository(redisClient, predictionTTL)
	trainer := traffic.NewTrainer(repo, cfg.Model.Dir, cfg.Model.BaseSpeedLimit, cfg.Model.MinTestR2, cfg.Model.TrainSeed)
	service := traffic.NewService(repo, trainer, cfg.Model.Dir, cfg.Model.BaseSpeedLimit, predictionTTL)
	handler := traffic.NewHandler(service)

	// Restore the persisted model, or train from scratch on first boot
	if err := service.LoadOrBootstrap(); err != nil {
		logger.Fatal("Failed to initialize model", zap.Error(err))
	}

	// Set up Gin router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Metrics(serviceName))
	router.Use(middleware.Recovery())
	router.Use(middleware.Timeout(time.Duration(cfg.Server.RequestTimeout) * time.Second))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.Server.CORSOrigins, ",")
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", middleware.CorrelationIDHeader}
	router.Use(cors.New(corsConfig))

	// Health check and metrics (no middleware-sensitive state)
	router.GET("/health", common.HealthCheckWithDeps(serviceName, map[string]func() error{
		"redis": func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Ping(ctx).Err()
		},
	}))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.RegisterRoutes(router)

	// Start server
	addr := ":" + cfg.Server.Port
	logger.Info("Traffic prediction service starting", zap.String("port", cfg.Server.Port))
	if err := router.Run(addr); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}
