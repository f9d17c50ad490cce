package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/onchess/client-go/internal/chain"
)

func main() {
	baseURL := os.Getenv("GATEWAY_BASE_URL")
	wsURL := os.Getenv("GATEWAY_WS_URL")
	wallet := os.Getenv("WALLET_ADDRESS")

	if baseURL == "" {
		log.Fatal("GATEWAY_BASE_URL is required")
	}

	client := chain.NewClient(baseURL, chain.NormalizeAddress(wallet),
		chain.WithTimeout(8*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	head, err := client.BlockNumber(ctx)
	if err != nil {
		log.Fatalf("/chain/head error: %v", err)
	}
	log.Printf("/chain/head ok: block=%d", head)

	if wsURL == "" {
		log.Println("GATEWAY_WS_URL not set; skipping feed check")
		return
	}

	feed := chain.NewEventFeed(wsURL, 1, time.Second)
	feed.OnStateChange(func(state chain.FeedState) {
		log.Printf("feed state: %s", state)
	})
	wsCtx, wsCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer wsCancel()
	if err := feed.Connect(wsCtx); err != nil {
		log.Fatalf("feed connect error: %v", err)
	}
	log.Println("feed ok")
	_ = feed.Close(context.Background())
}
