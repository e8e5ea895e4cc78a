package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSpeechCache implements SpeechCache on Redis. Keys are derived from the
// exact reply text; values are raw WAV bytes. No expiry: text equality is the
// only invalidation key.
type RedisSpeechCache struct {
	rdb    *redis.Client
	prefix string
}

// OpenRedisSpeechCache creates the client and validates connectivity via PING.
func OpenRedisSpeechCache(ctx context.Context, addr string) (*RedisSpeechCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisSpeechCache{rdb: rdb, prefix: "speech:"}, nil
}

func (c *RedisSpeechCache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *RedisSpeechCache) GetCachedSpeech(ctx context.Context, text string) ([]byte, error) {
	audio, err := c.rdb.Get(ctx, c.key(text)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("speech cache get: %w", err)
	}
	return audio, nil
}

func (c *RedisSpeechCache) PutCachedSpeech(ctx context.Context, text string, audio []byte) error {
	if err := c.rdb.Set(ctx, c.key(text), audio, 0).Err(); err != nil {
		return fmt.Errorf("speech cache put: %w", err)
	}
	return nil
}

func (c *RedisSpeechCache) Close() error { return c.rdb.Close() }
