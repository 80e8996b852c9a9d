package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/iliyamo/collectible-requests/internal/config"
	"github.com/iliyamo/collectible-requests/internal/notify"
	"github.com/iliyamo/collectible-requests/internal/queue"
)

// notifier drains the chat notification queue and pushes each entry to
// the administrator's LINE account.
func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("notifier: ignoring .env: %v", err)
	}
	cfg := config.LoadNotifyConfig()
	if cfg.LineAccessToken == "" || cfg.LineUserID == "" {
		log.Fatal("notifier: LINE_ACCESS_TOKEN and LINE_USER_ID are required")
	}

	line := notify.NewLinePusher(cfg.LineAccessToken, cfg.LineUserID, cfg.LineEndpoint, cfg.Timeout)
	consumer := queue.NewConsumer(cfg.AMQPURL, cfg.Queue, line, cfg.Timeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("notifier: consuming %s", cfg.Queue)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("notifier: %v", err)
	}
	log.Print("notifier: stopped")
}
