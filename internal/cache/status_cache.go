// Package cache mirrors committed entity operational statuses into
// Redis so dashboards can read them without touching Postgres. The
// mirror is best-effort and post-commit only: the database remains the
// source of truth.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/statusdeck-dev/statusdeck/internal/types"
)

const writeTimeout = 5 * time.Second

type StatusCache struct {
	rdb *redis.Client
}

func NewStatusCache(addr, password string, db int) (*StatusCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  writeTimeout,
		ReadTimeout:  writeTimeout,
		WriteTimeout: writeTimeout,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &StatusCache{rdb: rdb}, nil
}

func statusKey(ref types.EntityRef) string {
	return fmt.Sprintf("entity:%s:%s:status", ref.Type, ref.ID)
}

func (c *StatusCache) SetEntityStatus(ctx context.Context, ref types.EntityRef, status types.OperationalStatus) error {
	return c.rdb.Set(ctx, statusKey(ref), string(status), 0).Err()
}

func (c *StatusCache) GetEntityStatus(ctx context.Context, ref types.EntityRef) (types.OperationalStatus, bool, error) {
	value, err := c.rdb.Get(ctx, statusKey(ref)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return types.OperationalStatus(value), true, nil
}

func (c *StatusCache) Close() error {
	return c.rdb.Close()
}
