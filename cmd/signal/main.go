package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/kenshin-labs/bushido-duel/internal/bootstrap"
	"github.com/kenshin-labs/bushido-duel/internal/config"
	"github.com/kenshin-labs/bushido-duel/internal/service/cleanup"
	transportHttp "github.com/kenshin-labs/bushido-duel/internal/transport/http"
	"github.com/kenshin-labs/bushido-duel/internal/transport/http/middleware"
	"github.com/kenshin-labs/bushido-duel/internal/transport/websocket"
)

func main() {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			log.Println("No .env file found")
		}
	}

	cfg := config.LoadConfig()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 1. Ledger (optional, cached through Redis when reachable)
	ledgerService, releaseLedger, err := bootstrap.OpenLedger(ctx, cfg, true)
	if err != nil {
		log.Fatalf("Failed to open ledger: %v", err)
	}
	defer releaseLedger()
	if ledgerService == nil {
		log.Println("No ledger configured, /api/leaderboard will answer 503")
	}

	// 2. Relay and its janitor
	relay := websocket.NewRelay(cfg.PeerTokenSecret, cfg.PeerTokenTTL, cfg.PeerReservationTTL)
	cleanup.NewWorker(relay, cfg.CleanupInterval, cleanup.DefaultLinkMaxAge).Start(ctx)

	// 3. Handlers
	wsHandler := websocket.NewHandler(relay, cfg.AllowedOrigins)
	leaderboardHandler := transportHttp.NewLeaderboardHandler(ledgerService)
	peersHandler := transportHttp.NewPeersHandler(relay)

	// 4. Router
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	api := router.Group("/api")
	api.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	{
		api.GET("/leaderboard", leaderboardHandler.GetLeaderboard)
		api.GET("/leaderboard/:address", leaderboardHandler.GetPlayerStats)
		api.GET("/peers", peersHandler.GetStats)
		api.GET("/peers/:id", peersHandler.GetPeer)
	}

	// Origin is checked by the upgrader
	router.GET("/peer", wsHandler.HandleWebSocket)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Signal server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("Server is shutting down...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited gracefully")
}
