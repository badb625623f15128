package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"onnoon-care/eye-monitor/internal/config"
	"onnoon-care/eye-monitor/internal/database"
	"onnoon-care/eye-monitor/internal/handlers"
	"onnoon-care/eye-monitor/internal/logging"
	"onnoon-care/eye-monitor/internal/services"
)

func main() {
	httpPort := flag.String("http-port", "", "HTTP port (overrides HTTP_PORT)")
	grpcPort := flag.String("grpc-port", "", "gRPC port (overrides GRPC_PORT)")
	flag.Parse()

	cfg := config.LoadConfig()
	if *httpPort != "" {
		cfg.HTTPPort = *httpPort
	}
	if *grpcPort != "" {
		cfg.GRPCPort = *grpcPort
	}

	logger, err := logging.New("server", cfg.LogLevel, cfg.IsDev())
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Errorf("Server failed: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.SugaredLogger) error {
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	logger.Info("Starting...")
	logger.Infof("gRPC port: %s", cfg.GRPCPort)
	logger.Infof("HTTP port: %s", cfg.HTTPPort)
	logger.Infof("Database: %s", cfg.DSNForLog())
	logger.Infof("Environment: %s", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(ctx, cfg.DSN(), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics := services.GetMetrics()
	hub := handlers.NewHub(metrics, logger)
	tokens := handlers.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL, nil)
	api := handlers.New(store, tokens, hub, metrics, logger, cfg.CORSOrigins)

	reporter := handlers.NewHealthReporter(store, 15*time.Second, nil, logger)
	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(cfg.MaxMessageSizeMB*1024*1024),
		grpc.MaxSendMsgSize(cfg.MaxMessageSizeMB*1024*1024),
	)
	healthpb.RegisterHealthServer(grpcServer, reporter.Server())

	httpServer := &http.Server{
		Addr:         ":" + strings.TrimPrefix(cfg.HTTPPort, ":"),
		Handler:      api.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errs := make(chan error, 2)
	go reporter.Run(ctx)
	go func() { errs <- serveGRPC(grpcServer, cfg.GRPCPort, logger) }()
	go func() {
		logger.Infof("HTTP server listening on %s", httpServer.Addr)
		logger.Infof("WebSocket:  ws://localhost%s/ws", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
	}
	logger.Info("Shutting down...")

	stopped := make(chan struct{})
	go func() {
		logger.Info("Stopping gRPC server...")
		grpcServer.GracefulStop()
		close(stopped)
	}()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	select {
	case <-stopped:
		logger.Info("gRPC server stopped")
	case <-shutdownCtx.Done():
		logger.Warn("Forced gRPC shutdown")
		grpcServer.Stop()
	}

	logger.Info("Stopping HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Error shutting down HTTP server: %v", err)
	}

	logger.Info("Closing WebSocket connections...")
	hub.CloseAll()

	logger.Info("Goodbye!")
	return runErr
}

func serveGRPC(srv *grpc.Server, port string, logger *zap.SugaredLogger) error {
	lis, err := net.Listen("tcp", ":"+strings.TrimPrefix(port, ":"))
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port %s: %w", port, err)
	}
	logger.Infof("gRPC health service listening on %s", lis.Addr())
	if err := srv.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve gRPC: %w", err)
	}
	return nil
}
