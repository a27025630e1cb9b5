package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PriceSentinel/internal/alert"
	"PriceSentinel/internal/analyzer"
	"PriceSentinel/internal/api"
	"PriceSentinel/internal/config"
	"PriceSentinel/internal/feed"
	"PriceSentinel/internal/hub"
	"PriceSentinel/internal/model"
	"PriceSentinel/internal/notifier"
	"PriceSentinel/internal/rules"
	"PriceSentinel/internal/scheduler"
	"PriceSentinel/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags)
	log.Println("[INFO] PriceSentinel starting...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] invalid config: %v", err)
	}

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("[FATAL] open store: %v", err)
	}
	defer db.Close()

	push := notifier.NewServerChan(cfg.ServerChan.UID, cfg.ServerChan.SendKey, cfg.ServerChan.MaxPerMinute)
	if !push.Configured() {
		log.Println("[WARN] ServerChan credentials missing, push notifications disabled")
	}

	wsHub := hub.New()

	window := feed.NewStore(time.Duration(cfg.Feed.PriceMaxAgeMinutes) * time.Minute)
	client := feed.NewClient(feed.Config{
		WSURL:                cfg.Binance.WSURL,
		RestURL:              cfg.Binance.RestURL,
		Symbols:              cfg.Binance.Symbols,
		ReconnectBase:        time.Duration(cfg.Feed.ReconnectBaseMS) * time.Millisecond,
		MaxReconnectAttempts: cfg.Feed.MaxReconnectAttempts,
		PollInterval:         time.Duration(cfg.Feed.PollIntervalSec) * time.Second,
	}, window)

	an := analyzer.New(window)
	emitter := alert.NewEmitter(db, db, push, wsHub)
	evaluator := rules.NewEvaluator(db, an, emitter)

	client.Subscribe(evaluator.OnTick)
	client.Subscribe(func(t model.Tick) {
		payload := map[string]any{
			"type":      "price",
			"symbol":    t.Symbol,
			"price":     t.Price,
			"timestamp": t.Timestamp.UnixMilli(),
		}
		if t.Quantity > 0 {
			payload["volume"] = t.Quantity
		}
		wsHub.Publish(payload)
	})

	sched := scheduler.New(db, push, client, cfg.Binance.Symbols)
	if err := sched.RegisterCleanup(cfg.History.CleanupCron, cfg.History.RetentionDays); err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
	if err := sched.RegisterDigest(cfg.History.DigestCron); err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
	sched.Start()

	client.Start()

	server := api.NewServer(db, evaluator, client, window, wsHub)
	go func() {
		if err := server.Run(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
			log.Fatalf("[FATAL] api server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[INFO] shutting down...")
	client.Stop()
	sched.Stop()
	log.Println("[INFO] PriceSentinel stopped")
}
