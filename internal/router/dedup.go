package router

import (
	"strconv"
	"time"

	"github.com/tickethub/whatsapp-bridge/pkg/logger"
	"github.com/tickethub/whatsapp-bridge/pkg/redis"
)

const dedupKeyPrefix = "dedup:"

// Deduper suppresses webhook redeliveries by claiming the external message
// id with SETNX. The marker is removed again when routing fails, so the
// channel's retry gets a clean attempt.
type Deduper struct {
	redis redis.RedisAdapter
	ttl   time.Duration
}

// NewDeduper returns a Deduper; a non-positive ttl disables deduplication
// entirely (every Acquire succeeds).
func NewDeduper(redisAdapter redis.RedisAdapter, ttl time.Duration) *Deduper {
	return &Deduper{redis: redisAdapter, ttl: ttl}
}

// Acquire claims the message id. It returns false when another delivery of
// the same message already holds the marker. Redis trouble is logged and
// treated as acquired: a duplicate ticket beats a dropped message.
func (d *Deduper) Acquire(messageID string) bool {
	if d == nil || d.ttl <= 0 || messageID == "" {
		return true
	}

	value := []byte(strconv.FormatInt(time.Now().UnixNano(), 10))
	acquired, err := d.redis.SetNX(dedupKeyPrefix+messageID, value, d.ttl)
	if err != nil {
		logger.Warn("dedup check failed, processing anyway", "message_id", messageID, "error", err)
		return true
	}
	return acquired
}

// Release drops the marker after a failed routing attempt.
func (d *Deduper) Release(messageID string) {
	if d == nil || d.ttl <= 0 || messageID == "" {
		return
	}
	if err := d.redis.Del(dedupKeyPrefix + messageID); err != nil {
		logger.Warn("failed to release dedup marker", "message_id", messageID, "error", err)
	}
}
