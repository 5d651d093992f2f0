package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pacsgo/config"
	"pacsgo/dcmtk"
	"pacsgo/dimse"
	"pacsgo/fsclient"
	"pacsgo/listener"
	"pacsgo/pacs"
	"pacsgo/thumbnail"
	"pacsgo/web"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	logger *logrus.Logger
	cfg    *config.Config
)

func main() {
	// Initialize logger
	logger = logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg = config.LoadConfig()

	// Set log level
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if cfg.LogFormat == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	logger.Infof("Starting %s...", cfg.AppName)

	if err := pacs.RegisterPrivateDictionary(); err != nil {
		logger.Fatalf("Failed to register private dictionary: %v", err)
	}

	// Create working directories
	for _, dir := range []string{cfg.DicomDir, cfg.DicomSourceDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}

	// Build the client for the selected backend
	client, err := buildClient(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize PACS client: %v", err)
	}

	// Initialize web server
	router := setupRouter(client, cfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.AppHost, cfg.AppPort),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Starting web server on %s:%s", cfg.AppHost, cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Create a deadline for server shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown server
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown:", err)
	}

	if closer, ok := client.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.WithError(err).Warn("Client close failed")
		}
	}

	logger.Info("Server exited")
}

func buildClient(cfg *config.Config) (pacs.Client, error) {
	renderer := thumbnail.New(cfg.ThumbnailSize)

	if cfg.Backend == "filesystem" {
		return fsclient.New(fsclient.Config{
			SourceDir: cfg.DicomSourceDir,
			DicomDir:  cfg.DicomDir,
			Logger:    logger,
		}, renderer), nil
	}

	var backend pacs.Backend
	switch cfg.Backend {
	case "dcmtk":
		backend = dcmtk.New(dcmtk.Config{
			BinDir:        cfg.DcmtkPath,
			ClientAETitle: cfg.ClientAETitle,
			RemoteAETitle: cfg.RemoteAETitle,
			Host:          cfg.RemoteHost,
			Port:          cfg.RemotePort,
			ExtraArgs:     cfg.DcmtkExtraArgs,
			Logger:        logger,
		})
	case "dimse":
		backend = dimse.New(dimse.Config{
			ClientAETitle: cfg.ClientAETitle,
			RemoteAETitle: cfg.RemoteAETitle,
			Host:          cfg.RemoteHost,
			Port:          cfg.RemotePort,
			Logger:        logger,
		})
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	listeners := listener.NewManager(listener.Config{
		AETitle: cfg.ListenerAETitle,
		Port:    cfg.ListenerPort,
		Logger:  logger,
	})

	return pacs.NewNetworkClient(backend, listeners, renderer, pacs.NetworkClientConfig{
		Timeout:                 time.Duration(cfg.TimeoutSeconds) * time.Second,
		RetryWithBackoff:        cfg.RetryTimeoutsWithPad,
		SearchScope:             cfg.SearchQueryType,
		SplitSearchAssociations: cfg.SplitSearchAssociations,
		DicomDir:                cfg.DicomDir,
		DefaultDestination: pacs.Destination{
			AETitle: cfg.RemoteAETitle,
			Host:    cfg.RemoteHost,
			Port:    cfg.RemotePort,
		},
		Logger: logger,
	}), nil
}

func setupRouter(client pacs.Client, cfg *config.Config) *gin.Engine {
	router := web.NewRouter(client, cfg, logger)
	router.SetupRoutes()
	return router.GetEngine()
}
