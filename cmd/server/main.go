// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/account"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/auth"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/chat"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/database"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/fanout"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/friend"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/game"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/handlers"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/lobby"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/middleware"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/registry"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/store"
	"github.com/Ogoter374s/BusfahrerV2-sub000/internal/ws"
)

func main() {
	cfg := &Config{}
	if err := newCmd(cfg).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *Config) error {
	logger := logrus.New()
	if cfg.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if err := auth.Init(cfg.jwtSecret); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.uploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.postgresDSN, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	var audit *store.AuditQueue
	if cfg.redisAddr != "" {
		audit, err = store.NewAuditQueue(cfg.redisAddr, cfg.redisDB, cfg.redisQueue, logger)
		if err != nil {
			logger.Warnf("audit queue disabled: %v", err)
		}
	}

	st := store.NewMemoryStore()
	reg := registry.New()

	accounts := account.NewService(st, logger)
	accounts.SeedAchievements(ctx)
	friends := friend.NewService(st, logger)
	lobbies := lobby.NewService(st, reg, logger)
	chats := chat.NewService(st, logger)
	engine := game.NewEngine(st, reg, accounts, audit, cfg.chaosMode, logger)

	cleanup := ws.NewCleanup(reg, cfg.cleanupGrace, logger)
	cleanup.SetLeaveHooks(
		func(ctx context.Context, userID, lobbyID string) {
			if err := lobbies.Leave(ctx, userID, lobbyID); err != nil {
				logger.Warnf("cleanup: leaving lobby %s: %v", lobbyID, err)
			}
		},
		func(ctx context.Context, gameID, userID string) {
			if err := engine.Leave(ctx, gameID, userID); err != nil {
				logger.Warnf("cleanup: leaving game %s: %v", gameID, err)
			}
		},
	)

	fanout.New(st, reg, logger).Run(ctx)

	srv := &handlers.Server{
		DB:        db,
		Accounts:  accounts,
		Friends:   friends,
		Lobbies:   lobbies,
		Chats:     chats,
		Engine:    engine,
		Socket:    &ws.Server{Reg: reg, Cleanup: cleanup, Log: logger},
		Log:       logger,
		UploadDir: cfg.uploadDir,
	}

	addr := net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port))
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           middleware.LogMiddleware(logger)(srv.Router()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s", addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}
