package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopbot/internal/bot"
	"shopbot/internal/config"
	"shopbot/internal/db"
	"shopbot/internal/events"
	"shopbot/internal/handlers"
	"shopbot/internal/lock"
	"shopbot/internal/logger"
	"shopbot/internal/models"
	"shopbot/internal/money"
	"shopbot/internal/permissions"
	"shopbot/internal/resolver"
	"shopbot/internal/services"
	"shopbot/internal/store"
	"shopbot/internal/websocket"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.App.LogLevel, cfg.App.LogFormat)

	if cfg.Discord.Token == "" {
		log.Fatal("DISCORD_TOKEN is required")
	}
	sellFraction, err := money.ParseFraction(cfg.Shop.SellFraction)
	if err != nil {
		log.WithError(err).Fatal("invalid SHOP_SELL_FRACTION")
	}

	database, err := db.Connect(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("failed to connect database")
	}
	defer database.Close()

	items := store.NewItemStore(database)
	balances := store.NewBalanceStore(database)
	inventory := store.NewInventoryStore(database)
	stock := store.NewStockStore(database)
	usage := store.NewUsageStore(database)
	rules := store.NewPermissionStore(database)
	audit := store.NewAuditStore(database)
	work := store.NewWorkStore(database, models.WorkSettings{
		MinIncome: cfg.Work.MinIncome,
		MaxIncome: cfg.Work.MaxIncome,
		Cooldown:  cfg.Work.Cooldown,
	})
	txRunner := db.NewTxRunner(database, cfg.Database.TxMaxAttempts, log)
	hub := websocket.NewHub()

	locker, closeLocker := newLocker(cfg.Redis, log)
	defer closeLocker()
	publisher, closePublisher := newPublisher(cfg.RabbitMQ, log)
	defer closePublisher()

	platform, err := bot.NewDiscordPlatform(cfg.Discord.Token, log)
	if err != nil {
		log.WithError(err).Fatal("failed to create discord client")
	}

	catalog := services.NewCatalogService(txRunner, items, stock, audit, log)
	shop := services.NewShopService(services.ShopDeps{
		TxRunner:  txRunner,
		Locker:    locker,
		Items:     items,
		Balances:  balances,
		Inventory: inventory,
		Stock:     stock,
		Usage:     usage,
		Audit:     audit,
		Roles:     platform,
		Hub:       hub,
		Events:    publisher,
	}, sellFraction, log)
	economy := services.NewEconomyService(txRunner, locker, balances, work, audit, hub, log)
	holdings := services.NewInventoryService(txRunner, locker, items, inventory, audit, log)

	shopBot := bot.New(bot.Deps{
		Platform:  platform,
		Policy:    permissions.NewPolicy(rules),
		Resolver:  resolver.New(items, resolver.NewDisambiguator(cfg.Shop.ResolveTimeout, cfg.Shop.ResolveAttempts, log)),
		Catalog:   catalog,
		Shop:      shop,
		Inventory: holdings,
		Economy:   economy,
		Rules:     rules,
	}, bot.Settings{
		Prefix:         cfg.Discord.CommandPrefix,
		CurrencySymbol: cfg.Shop.CurrencySymbol,
		PageSize:       cfg.Shop.PageSize,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := platform.Open(ctx, shopBot.Handle); err != nil {
		log.WithError(err).Fatal("failed to connect to discord")
	}
	defer platform.Close()
	log.WithField("env", cfg.App.Env).Info("discord bot connected")

	handler := handlers.New(cfg.HTTP, catalog, holdings, economy, audit, hub, log)
	server := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("admin API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown
	log.Info("shutting down")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
	}
}

// newLocker shares locks through Redis when it is configured, so several
// replicas can serve one guild.
func newLocker(cfg config.RedisConfig, log logrus.FieldLogger) (lock.Locker, func()) {
	if cfg.Addr == "" {
		log.Info("using in-process locks")
		return lock.NewLocal(), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("failed to connect redis")
	}
	log.WithField("addr", cfg.Addr).Info("using redis locks")
	return lock.NewRedis(client, cfg.LockTTL, cfg.LockRetry, cfg.MaxRetries), func() { _ = client.Close() }
}

func newPublisher(cfg config.RabbitMQConfig, log logrus.FieldLogger) (events.Publisher, func()) {
	if cfg.URL == "" {
		return events.NopPublisher{}, func() {}
	}
	publisher, err := events.NewAMQPPublisher(cfg.URL, cfg.Exchange)
	if err != nil {
		log.WithError(err).Warn("rabbitmq unavailable, events disabled")
		return events.NopPublisher{}, func() {}
	}
	return publisher, func() { _ = publisher.Close() }
}
