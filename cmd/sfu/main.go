package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/sfu-go/internal/config"
	"github.com/RoseWrightdev/sfu-go/internal/logging"
	"github.com/RoseWrightdev/sfu-go/internal/metrics"
	"github.com/RoseWrightdev/sfu-go/internal/session"
	"github.com/RoseWrightdev/sfu-go/internal/sfu"
	"github.com/RoseWrightdev/sfu-go/internal/signaling"
	"github.com/RoseWrightdev/sfu-go/internal/state"
	"github.com/RoseWrightdev/sfu-go/internal/transport"
)

// sessionCleanupInterval is how often expired-suspended sessions are
// swept from the local session cache.
const sessionCleanupInterval = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if err := logging.Init(cfg.LogLevel, "json"); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	logger := logging.Get()
	logger.Info("starting sfu server", zap.Uint16("grpc_port", cfg.GRPCPort))

	api, err := transport.NewAPI()
	if err != nil {
		logger.Fatal("failed to build webrtc api", zap.Error(err))
	}
	transportCfg := transport.Config{StunURL: cfg.StunURL}

	m := metrics.New(prometheus.DefaultRegisterer)

	stateManager, err := state.NewManager(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	if err != nil {
		logger.Warn("redis unreachable, running without session persistence", zap.Error(err))
		stateManager = nil
	}

	var sessions *session.Manager
	if stateManager != nil {
		sessions = session.NewManager(stateManager, logger)
		if err := sessions.Recover(); err != nil {
			logger.Warn("failed to recover sessions from redis", zap.Error(err))
		}
		go func() {
			ticker := time.NewTicker(sessionCleanupInterval)
			defer ticker.Stop()
			for range ticker.C {
				sessions.CleanupExpired(cfg.SessionTTL)
			}
		}()
	}

	service := sfu.New(api, transportCfg, logger, m, nil).WithRateLimit(cfg.RateLimitPerSec, cfg.RateLimitBurst)

	hub := signaling.NewHub(logger)
	go hub.Run()

	var pubsub *signaling.PubSub
	if stateManager != nil {
		pubsub = signaling.NewPubSub(stateManager.GetRedisClient(), hub, logger)
	}

	bridge := signaling.NewBridge(hub, service, pubsub, sessions, signaling.ClientOptions{
		ReadLimit:    cfg.WSReadLimit,
		PongTimeout:  cfg.WSPongTimeout,
		PingInterval: cfg.WSPingInterval,
		WriteTimeout: cfg.WSWriteTimeout,
	}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", bridge.ServeHTTP)
	mux.HandleFunc("/health", healthHandler(stateManager))
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.GRPCPort),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	service.Shutdown(shutdownCtx)
	hub.Stop()
	if pubsub != nil {
		_ = pubsub.Close()
	}
	if stateManager != nil {
		_ = stateManager.Close()
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info("sfu server stopped")
}

// healthHandler reports 200 when no session persistence is configured
// or Redis answers a ping, and 503 when configured Redis is unreachable.
func healthHandler(stateManager *state.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if stateManager == nil {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "ok (no session persistence configured)")
			return
		}
		if err := stateManager.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "redis unreachable: %v\n", err)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}
}
