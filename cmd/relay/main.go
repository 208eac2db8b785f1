package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/tickethub/whatsapp-bridge/internal/config"
	"github.com/tickethub/whatsapp-bridge/internal/gateway"
	"github.com/tickethub/whatsapp-bridge/internal/queue"
	"github.com/tickethub/whatsapp-bridge/internal/relay"
	"github.com/tickethub/whatsapp-bridge/internal/repository"
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

	// Unique consumer name so parallel replicas share the group cleanly.
	consumerName := "relay-" + uuid.NewString()
	relayQueue, err := queue.New(redisAdap, queue.Config{
		Name:              config.Get().RelayStreamName,
		ConsumerGroup:     config.Get().RelayConsumerGroup,
		ConsumerName:      consumerName,
		MaxRetries:        config.Get().RelayMaxRetries,
		VisibilityTimeout: config.Get().RelayClaimMinIdle,
		PollInterval:      config.Get().RelayPollInterval,
		BatchSize:         config.Get().RelayBatchSize,
		MaxLen:            config.Get().RelayStreamMaxLen,
		EnableDLQ:         true,
	})
	if err != nil {
		logger.Error("failed creating relay queue", "error", err)
		return
	}

	sender := gateway.NewWhatsAppClient(gateway.WhatsAppConfig{
		URL:     config.Get().WhatsAppServiceURL,
		APIKey:  config.Get().WhatsAppAPIKey,
		Timeout: config.Get().WhatsAppTimeout,
	})

	mappingRepo := repository.NewMappingRepository(db)
	processor := relay.NewProcessor(mappingRepo, sender, config.Get().Bridge())

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

	if err := relayQueue.Consume(processor.Process); err != nil {
		logger.Error("failed to start relay consumer", "error", err)
		return
	}
	logger.Info("relay consumer started",
		"stream", config.Get().RelayStreamName, "consumer", consumerName)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	if err := relayQueue.Stop(10 * time.Second); err != nil {
		logger.Error("relay consumer did not stop cleanly", "error", err)
	}
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
