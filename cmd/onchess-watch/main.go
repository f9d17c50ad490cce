package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/onchess/client-go/internal/archive"
	"github.com/onchess/client-go/internal/chain"
	appcfg "github.com/onchess/client-go/internal/config"
	"github.com/onchess/client-go/internal/lobby"
	"github.com/onchess/client-go/internal/obslog"
	"github.com/onchess/client-go/internal/rules"
	"github.com/onchess/client-go/internal/session"
	"github.com/onchess/client-go/internal/txtrack"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer obslog.L().Sync()

	gameID, err := resolveGameID()
	if err != nil {
		log.Fatalf("game id error: %v", err)
	}

	wallet := chain.NormalizeAddress(cfg.WalletAddress)
	client := chain.NewClient(cfg.GatewayBaseURL, wallet,
		chain.WithTimeout(time.Duration(cfg.GatewayTimeoutSec)*time.Second),
		chain.WithRetry(cfg.GatewayRetryMax),
	)

	feed := chain.NewEventFeed(cfg.GatewayWSURL, cfg.ReconnectAttempts, time.Second)
	feed.OnStateChange(func(state chain.FeedState) {
		obslog.L().Info("feed_state", zap.String("state", string(state)))
	})

	var store *txtrack.Store
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		store, err = txtrack.NewStoreFromURL(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			log.Fatalf("redis error: %v", err)
		}
		defer store.Close()
	}

	var repo archive.Repository
	if cfg.DatabaseURL != "" {
		repo, err = archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("archive error: %v", err)
		}
	} else {
		repo = archive.NewMemoryRepository()
	}
	defer repo.Close()

	reg := lobby.NewRegistry(client, wallet)
	sess := session.New(gameID, wallet, rules.NewEngine(), client, feed, reg, store, repo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := feed.Connect(ctx); err != nil {
		log.Fatalf("feed connect error: %v", err)
	}
	defer feed.Close(context.Background())

	lobbyCB := feed.OnEvent(func(ev *chain.Event) {
		evCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		reg.HandleEvent(evCtx, ev)
		cancel()
	})
	defer feed.RemoveCallback(lobbyCB)

	if err := sess.Init(ctx); err != nil {
		log.Fatalf("session init error: %v", err)
	}
	sess.SetRefresh(func() {
		view := sess.View()
		obslog.L().Info("game_snapshot",
			zap.Uint64("game_id", view.GameID),
			zap.String("fen", view.FEN),
			zap.Int("moves", len(view.Moves)),
			zap.Bool("my_turn", view.Facts.IsCurrentMove),
			zap.Bool("game_over", view.Facts.GameOver),
			zap.Int64("time_until_expiry", view.Clock.TimeUntilExpiry),
		)
	})
	if err := sess.RegisterListeners(ctx); err != nil {
		log.Fatalf("session listen error: %v", err)
	}
	defer sess.DestroyListeners(context.Background())

	refreshEvery := time.Duration(cfg.MetadataRefreshSec) * time.Second
	ticker := time.NewTicker(refreshEvery)
	defer ticker.Stop()

	obslog.L().Info("watch_started",
		zap.Uint64("game_id", gameID),
		zap.String("wallet", string(wallet)),
		zap.String("gateway", cfg.GatewayBaseURL),
	)

	for {
		select {
		case <-ctx.Done():
			obslog.L().Info("watch_stopping")
			return
		case <-ticker.C:
			rctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if _, err := reg.Refresh(rctx, gameID); err != nil {
				obslog.L().Warn("metadata_refresh_error", zap.Uint64("game_id", gameID), zap.Error(err))
			}
			cancel()
		}
	}
}

func resolveGameID() (uint64, error) {
	raw := strings.TrimSpace(os.Getenv("GAME_ID"))
	if len(os.Args) > 1 {
		raw = strings.TrimSpace(os.Args[1])
	}
	return strconv.ParseUint(raw, 10, 64)
}
