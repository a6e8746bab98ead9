package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheVersionKey = "ledger:version"
	// BumpChannel carries version bumps published after postings.
	BumpChannel = "ledger.bump"
)

// Cache keeps ledger read models in Redis under versioned keys. A nil Cache
// or one without a client calls loaders directly.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		// SETNX keeps a concurrent Bump from being overwritten.
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// Key composes a cache key from parts and the current version.
func (c *Cache) Key(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(append([]string{"ledger"}, parts...), ":")
	if !c.enabled() {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// FetchJSON loads key into dest, populating it with loader on a miss.
// Concurrent misses on one key share a single loader call.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("ledger: cache loader required")
	}
	if c.enabled() {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}
	}
	var raw []byte
	if c != nil {
		v, err, _ := c.group.Do(key, func() (any, error) {
			return c.load(ctx, key, loader)
		})
		if err != nil {
			return err
		}
		raw = v.([]byte)
	} else {
		var err error
		if raw, err = marshalLoad(ctx, loader); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, dest)
}

func (c *Cache) load(ctx context.Context, key string, loader func(context.Context) (any, error)) ([]byte, error) {
	raw, err := marshalLoad(ctx, loader)
	if err != nil {
		return nil, err
	}
	if c.enabled() {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

func marshalLoad(ctx context.Context, loader func(context.Context) (any, error)) ([]byte, error) {
	value, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(value)
}

// Bump invalidates cached read models and announces the new version.
func (c *Cache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, BumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation follows version bumps published by other writers,
// such as the worker. It returns once the subscription is established.
func (c *Cache) ListenForInvalidation(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, BumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					_ = c.client.Incr(ctx, cacheVersionKey).Err()
					continue
				}
				if cur, err := c.client.Get(ctx, cacheVersionKey).Int64(); err != nil || cur < ver {
					_ = c.client.Set(ctx, cacheVersionKey, ver, 0).Err()
				}
			}
		}
	}()
	return nil
}
