// Package presence tracks live subscribers per conversation in Redis, so every
// relay node sees the same online list.
package presence

import (
	"chat-relay/contract"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ contract.PresenceTracker = (*Store)(nil)

const keyPrefix = "presence:"

type Settings struct {
	Addr     string
	Password string
	Database int
	Timeout  time.Duration
}

// Store keeps one sorted set per conversation: members are subscribers, scores
// their expiry as unix seconds.
type Store struct {
	cli *redis.Client
	now func() time.Time
}

func New(cfg Settings) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis: missing address")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	cli := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.Database,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
	return &Store{cli: cli, now: time.Now}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.cli.Ping(ctx).Err() }

func (s *Store) Close() error { return s.cli.Close() }

func key(conversationSID string) string { return keyPrefix + conversationSID }

func (s *Store) Join(ctx context.Context, conversationSID, subscriber string, ttl time.Duration) error {
	k := key(conversationSID)
	expiry := s.now().Add(ttl)
	pipe := s.cli.TxPipeline()
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(expiry.Unix()), Member: subscriber})
	pipe.ExpireAt(ctx, k, expiry)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) Leave(ctx context.Context, conversationSID, subscriber string) error {
	return s.cli.ZRem(ctx, key(conversationSID), subscriber).Err()
}

// Online drops expired members before listing the rest.
func (s *Store) Online(ctx context.Context, conversationSID string) ([]string, error) {
	k := key(conversationSID)
	now := strconv.FormatInt(s.now().Unix(), 10)
	if err := s.cli.ZRemRangeByScore(ctx, k, "-inf", "("+now).Err(); err != nil {
		return nil, err
	}
	members, err := s.cli.ZRange(ctx, k, 0, -1).Result()
	if err == redis.Nil {
		return nil, nil
	}
	return members, err
}
