package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"tresgo/internal/api"
	"tresgo/internal/auth"
	"tresgo/internal/config"
	"tresgo/internal/session"
	"tresgo/internal/stt"
	"tresgo/internal/transcribe"
	"tresgo/internal/upload"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	roster, err := auth.LoadRoster(cfg.TokensFile)
	if err != nil {
		log.Fatalf("Failed to load token roster: %v", err)
	}

	store := session.NewStore(cfg.UploadDir, cfg.Location)

	// A missing STT provider is not fatal: uploads still work, the worker
	// skips transcription and logs it.
	provider, err := stt.CreateProvider()
	if err != nil {
		log.Printf("Warning: STT provider unavailable, transcription disabled: %v", err)
	}
	worker := transcribe.NewWorker(store, provider, cfg.STTWorkers, cfg.STTQueueSize)

	ingestor := upload.NewIngestor(store, worker, cfg.MaxFileSize, config.AllowedExtensions)

	// Set Gin mode (default to release mode)
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(corsMiddleware())

	// Front-end
	r.Static("/static", cfg.StaticDir)
	r.GET("/", func(c *gin.Context) {
		c.File(filepath.Join(cfg.StaticDir, "index.html"))
	})

	// Register routes
	api.NewHandlers(roster, store, ingestor).RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("TRESGO backend running on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Shut down on SIGINT/SIGTERM: stop accepting requests, then drain the
	// transcription queue. Jobs still queued past the deadline are lost.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer drainCancel()
	worker.Shutdown(drainCtx)

	log.Println("Server stopped")
}

// corsMiddleware adds CORS headers for the front-end
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
