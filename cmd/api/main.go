package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tickethub/whatsapp-bridge/internal/config"
	"github.com/tickethub/whatsapp-bridge/internal/gateway"
	"github.com/tickethub/whatsapp-bridge/internal/handlers"
	"github.com/tickethub/whatsapp-bridge/internal/ownership"
	"github.com/tickethub/whatsapp-bridge/internal/queue"
	"github.com/tickethub/whatsapp-bridge/internal/repository"
	"github.com/tickethub/whatsapp-bridge/internal/router"
	xhttp "github.com/tickethub/whatsapp-bridge/pkg/http"
	"github.com/tickethub/whatsapp-bridge/pkg/logger"
	"github.com/tickethub/whatsapp-bridge/pkg/pg"
	"github.com/tickethub/whatsapp-bridge/pkg/prom"
	"github.com/tickethub/whatsapp-bridge/pkg/redis"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(time.Second * 5))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	relayQueue, err := queue.New(redisAdap, queue.Config{
		Name:          config.Get().RelayStreamName,
		ConsumerGroup: config.Get().RelayConsumerGroup,
		MaxLen:        config.Get().RelayStreamMaxLen,
	})
	if err != nil {
		logger.Error("failed creating relay queue", "error", err)
		return
	}

	tickets := gateway.NewTicketingClient(gateway.TicketingConfig{
		URL:     config.Get().TicketingServiceURL,
		APIKey:  config.Get().TicketingAPIKey,
		Timeout: config.Get().TicketingTimeout,
	})
	sender := gateway.NewWhatsAppClient(gateway.WhatsAppConfig{
		URL:     config.Get().WhatsAppServiceURL,
		APIKey:  config.Get().WhatsAppAPIKey,
		Timeout: config.Get().WhatsAppTimeout,
	})

	bridge := config.Get().Bridge()
	mappingRepo := repository.NewMappingRepository(db)
	verifier := ownership.NewVerifier(tickets, bridge)
	dedup := router.NewDeduper(redisAdap, config.Get().DedupTTL)
	inbound := router.New(mappingRepo, tickets, tickets, sender, verifier, bridge, dedup)
	cleaner := router.NewCleaner(mappingRepo, tickets)

	webhookHandler := handlers.NewWebhookHandler(inbound, cleaner, config.Get().WebhookSecret)
	eventHandler := handlers.NewEventHandler(relayQueue, config.Get().WebhookSecret)
	mappingHandler := handlers.NewMappingHandler(mappingRepo, config.Get().WebhookSecret)
	healthHandler := handlers.NewHealthHandler()

	g := s.Router.Group("/api/v1")
	handlers.RegisterWebhookRoutes(g, webhookHandler)
	handlers.RegisterEventRoutes(g, eventHandler)
	handlers.RegisterMappingRoutes(g, mappingHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}
	if config.Get().AppDebugMetricsAddr != "" {
		go func() {
			prom.ListenAndServe(config.Get().AppDebugMetricsAddr, config.Get().AppDebugMetricsURI)
		}()
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	<-c
	s.Shutdown()
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
