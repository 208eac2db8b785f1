package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/tickethub/whatsapp-bridge/pkg/logger"
)

var config *Config

// Config holds every environment-sourced value. Only this struct may be used
// to read configuration; no direct env access elsewhere.
type Config struct {
	AppEnv              string `env:"APP_ENV" default:"dev"`
	AppName             string `env:"APP_NAME" default:"whatsapp_bridge"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI"`

	HttpListenAddr string `env:"HTTP_LISTEN_ADDR" default:":8090"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	PromNamespace string `env:"PROM_NAMESPACE" default:"whatsapp_bridge"`

	// WhatsApp service endpoint (outbound sends)
	WhatsAppServiceURL string        `env:"WHATSAPP_SERVICE_URL" default:"http://127.0.0.1:3000"`
	WhatsAppAPIKey     string        `env:"WHATSAPP_API_KEY"`
	WhatsAppTimeout    time.Duration `env:"WHATSAPP_TIMEOUT" default:"10s"`

	// Ticketing backend API (tickets and users)
	TicketingServiceURL string        `env:"TICKETING_SERVICE_URL" default:"http://127.0.0.1:8080"`
	TicketingAPIKey     string        `env:"TICKETING_API_KEY"`
	TicketingTimeout    time.Duration `env:"TICKETING_TIMEOUT" default:"10s"`

	// Shared secret for inbound webhook authentication
	WebhookSecret string `env:"WEBHOOK_SECRET"`

	// Inbound dedup marker lifetime (0 disables dedup)
	DedupTTL time.Duration `env:"DEDUP_TTL" default:"24h"`

	// Reply relay stream
	RelayStreamName       string        `env:"RELAY_STREAM_NAME" default:"agent_events"`
	RelayConsumerGroup    string        `env:"RELAY_CONSUMER_GROUP" default:"relay"`
	RelayMaxRetries       int           `env:"RELAY_MAX_RETRIES" default:"3"`
	RelayClaimMinIdle     time.Duration `env:"RELAY_CLAIM_MIN_IDLE" default:"1m"`
	RelayPollInterval     time.Duration `env:"RELAY_POLL_INTERVAL" default:"2s"`
	RelayBatchSize        int64         `env:"RELAY_BATCH_SIZE" default:"16"`
	RelayStreamMaxLen     int64         `env:"RELAY_STREAM_MAX_LEN" default:"100000"`

	// Bridge behaviour (see bridge.go for defaults)
	BridgeCloseKeyword    string `env:"BRIDGE_CLOSE_KEYWORD"`
	BridgeSwitchKeyword   string `env:"BRIDGE_SWITCH_KEYWORD"`
	BridgeNewKeyword      string `env:"BRIDGE_NEW_KEYWORD"`
	BridgeListKeyword     string `env:"BRIDGE_LIST_KEYWORD"`
	BridgeSignalWords     []string `env:"BRIDGE_SIGNAL_WORDS"`
	BridgeSupportEmail    string `env:"BRIDGE_SUPPORT_EMAIL"`
	BridgeSignature       string `env:"BRIDGE_SIGNATURE"`
	BridgeAddressPrefix   string `env:"BRIDGE_ADDRESS_PREFIX"`
	BridgeAddressDomain   string `env:"BRIDGE_ADDRESS_DOMAIN"`
	BridgeDefaultTopicID  int64  `env:"BRIDGE_DEFAULT_TOPIC_ID"`
	BridgeDefaultDeptID   int64  `env:"BRIDGE_DEFAULT_DEPT_ID"`
	BridgeAutoResponse    bool   `env:"BRIDGE_AUTO_RESPONSE" default:"1"`
	BridgeAckOnUpdate     bool   `env:"BRIDGE_ACK_ON_UPDATE" default:"0"`
	BridgeOwnershipStrict bool   `env:"BRIDGE_OWNERSHIP_STRICT" default:"0"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		err = godotenv.Load(path)
		if err != nil {
			return errors.New("failed to load configuration file " + path + " error: " + err.Error())
		}
	}

	_, err = env.UnmarshalFromEnviron(c)
	if err != nil {
		return errors.New("failed to map env variables to Configuration object error: " + err.Error())
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}
