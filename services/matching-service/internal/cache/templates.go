// Package cache keeps provider week templates in Redis in front of PostgreSQL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/apptmatch/services/matching-service/internal/model"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "matching:template:"

type TemplateStore interface {
	GetWeekTemplate(ctx context.Context, providerID string) (model.WeekTimePeriods, error)
	UpsertWeekTemplate(ctx context.Context, providerID string, week model.WeekTimePeriods) error
}

// Templates is a read-through cache. Redis failures are logged and fall back to the store.
type Templates struct {
	rdb    redis.Cmdable
	store  TemplateStore
	ttl    time.Duration
	logger *slog.Logger
}

func NewTemplates(rdb redis.Cmdable, store TemplateStore, ttl time.Duration, logger *slog.Logger) *Templates {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Templates{rdb: rdb, store: store, ttl: ttl, logger: logger}
}

func key(providerID string) string {
	return keyPrefix + providerID
}

func (c *Templates) GetWeekTemplate(ctx context.Context, providerID string) (model.WeekTimePeriods, error) {
	raw, err := c.rdb.Get(ctx, key(providerID)).Bytes()
	switch {
	case err == nil:
		var week model.WeekTimePeriods
		if err := json.Unmarshal(raw, &week); err == nil {
			return week, nil
		}
		c.logger.Warn("discarding undecodable cached template", "provider_id", providerID)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("template cache read failed", "provider_id", providerID, "err", err)
	}

	week, err := c.store.GetWeekTemplate(ctx, providerID)
	if err != nil {
		return model.WeekTimePeriods{}, err
	}
	if raw, err := json.Marshal(week); err == nil {
		if err := c.rdb.Set(ctx, key(providerID), raw, c.ttl).Err(); err != nil {
			c.logger.Warn("template cache write failed", "provider_id", providerID, "err", err)
		}
	}
	return week, nil
}

// UpsertWeekTemplate writes through to the store and drops the cached copy.
func (c *Templates) UpsertWeekTemplate(ctx context.Context, providerID string, week model.WeekTimePeriods) error {
	if err := c.store.UpsertWeekTemplate(ctx, providerID, week); err != nil {
		return err
	}
	if err := c.rdb.Del(ctx, key(providerID)).Err(); err != nil {
		c.logger.Warn("template cache invalidate failed", "provider_id", providerID, "err", err)
	}
	return nil
}

// ReadyCheck pings Redis.
func ReadyCheck(rdb redis.Cmdable) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
