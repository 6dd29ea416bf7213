package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	grpc "google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"ephemeral-chat/internal/config"
	"ephemeral-chat/internal/db"
	grpcserver "ephemeral-chat/internal/grpc"
	"ephemeral-chat/internal/handlers"
	"ephemeral-chat/internal/identity"
	"ephemeral-chat/internal/logger"
	"ephemeral-chat/internal/media"
	"ephemeral-chat/internal/middleware"
	"ephemeral-chat/internal/observability"
	"ephemeral-chat/internal/presence"
	"ephemeral-chat/internal/rabbitmq"
	"ephemeral-chat/internal/repositories"
	"ephemeral-chat/internal/services"
	"ephemeral-chat/internal/telemetry"
	"ephemeral-chat/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	database, err := db.Connect(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQP, log)
	defer publisher.Close()
	log.Info("event publisher ready", zap.String("mode", rabbitmq.PublisherMode(publisher)))
	audit := telemetry.NewAuditEmitter(publisher, cfg.AMQP.AuditRoutingKey, cfg.Tracing.ServiceName, cfg.Tracing.Environment, log)

	tracker := presence.New(cfg.Redis, log)
	defer tracker.Close()

	store, err := media.New(ctx, cfg.Media)
	if err != nil {
		return err
	}

	userRepo := repositories.NewUserRepo(database)
	friendRepo := repositories.NewFriendRepo(database)
	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	messageService := services.NewMessageService(chatRepo, messageRepo, store, publisher, cfg.Retry, log)
	socialService := services.NewSocialService(userRepo, friendRepo, chatRepo, publisher, log)
	chatService := services.NewChatService(chatRepo, friendRepo, userRepo, messageService, publisher, log)
	aggregator := services.NewAggregator(chatRepo, friendRepo, tracker, messageService, log)

	verifier := identity.NewVerifier(cfg.Auth)
	hub := ws.NewHub(log)
	listener := ws.NewListener(cfg.Database, hub, log)
	wsHandler := ws.NewHandler(hub, aggregator, verifier, socialService, tracker, audit, cfg.WebSocket, log)

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		logger.RequestLogger(log),
		logger.Recovery(log),
		otelgin.Middleware(cfg.Tracing.ServiceName),
		observability.HTTPMetricsMiddleware(),
	)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ws", wsHandler.Handle)

	api := router.Group("/", middleware.AuthMiddleware(verifier, socialService, log))
	handlers.RegisterRoutes(api,
		handlers.NewChatHandler(chatService, messageService, aggregator, audit, log),
		handlers.NewFriendHandler(socialService, aggregator, audit, log),
		handlers.NewSyncHandler(aggregator, store, audit, log),
	)
	handlers.RegisterDebugRoutes(api, hub, audit, cfg.Server.Debug)

	httpServer := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", observability.RequestIDHeader, observability.DeviceIDHeader},
			ExposedHeaders:   []string{observability.RequestIDHeader},
			AllowCredentials: true,
		}).Handler(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	watchdog := grpcserver.NewWatchdog(database, 15*time.Second, log)
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	healthpb.RegisterHealthServer(grpcServer, watchdog.Server())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return listener.Run(gctx)
	})
	g.Go(func() error {
		watchdog.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", ":"+cfg.GRPC.Port)
		if err != nil {
			return err
		}
		log.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcServer.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
