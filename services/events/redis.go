package eventsvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/masomo/attendance/core"
	"github.com/trezcool/masomo/attendance/core/catchup"
)

const (
	historyLen = 200
	historyTTL = 24 * time.Hour
)

// RedisPublisher publishes notifications on a redis channel and keeps a capped per-session history.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

var _ catchup.EventPublisher = (*RedisPublisher)(nil)

// NewRedisPublisher connects to redis and checks the connection.
func NewRedisPublisher(ctx context.Context, conf core.RedisConfig) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        conf.Address,
		Password:    conf.Password,
		DB:          conf.DB,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	return newRedisPublisher(rdb, conf.Channel), nil
}

func newRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel}
}

func historyKey(channel, sessionID string) string {
	return channel + ":session:" + sessionID
}

func (p *RedisPublisher) Publish(ctx context.Context, n catchup.Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "encoding notification")
	}
	key := historyKey(p.channel, n.SessionID)
	_, err = p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, p.channel, raw)
		pipe.RPush(ctx, key, raw)
		pipe.LTrim(ctx, key, -historyLen, -1)
		pipe.Expire(ctx, key, historyTTL)
		return nil
	})
	return errors.Wrap(err, "publishing notification")
}

// History returns the last notifications recorded for a session, oldest first.
func (p *RedisPublisher) History(ctx context.Context, sessionID string) ([]catchup.Notification, error) {
	raws, err := p.rdb.LRange(ctx, historyKey(p.channel, sessionID), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "reading session history")
	}
	res := make([]catchup.Notification, 0, len(raws))
	for _, raw := range raws {
		var n catchup.Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			return nil, errors.Wrap(err, "decoding notification")
		}
		res = append(res, n)
	}
	return res, nil
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
