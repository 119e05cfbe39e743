package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/iamafoodie/buddy/internal/config"
)

const keyChatDaily = "chat:daily:%s:%s"

// The counter is incremented atomically and given a ttl on first use so
// abandoned keys clean themselves up after the day rolls over.
const dailyCountScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return count
`

// ChatLimiter caps how many questions a single identity may ask per
// calendar day, across all server instances. A nil limiter allows
// everything.
type ChatLimiter struct {
	enabled bool

	client *redis.Client
	script *redis.Script
	limit  int
}

func NewChatLimiter(cfg config.Config) (*ChatLimiter, error) {
	limitCfg := cfg.ChatRate
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("chat rate limit redis addr is required")
	}
	if limitCfg.DailyLimit <= 0 {
		return nil, errors.New("chat daily limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &ChatLimiter{
		enabled: true,
		client:  client,
		script:  redis.NewScript(dailyCountScript),
		limit:   limitCfg.DailyLimit,
	}, nil
}

func (l *ChatLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow counts one question against today's window for identity. Days
// roll over at midnight UTC.
func (l *ChatLimiter) Allow(ctx context.Context, identity string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}

	now := time.Now().UTC()
	key := fmt.Sprintf(keyChatDaily, strings.TrimSpace(identity), now.Format("2006-01-02"))
	endOfDay := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	ttl := int(endOfDay.Sub(now).Seconds()) + 60

	count, err := l.script.Run(ctx, l.client, []string{key}, ttl).Int()
	if err != nil {
		return false, err
	}
	return count <= l.limit, nil
}
