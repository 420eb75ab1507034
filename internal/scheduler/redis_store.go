package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"threatrelay/pkg/models"
)

// RedisConfig configures Redis access for schedule persistence.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore persists schedules in Redis. Each schedule is a JSON value;
// active schedules are additionally indexed in a ZSET scored by
// NextExecution so due lookups are a single range read.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a Redis-backed schedule store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "threatrelay"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis schedule store: %w", err)
	}

	return &RedisStore{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix)}, nil
}

// Insert adds a schedule and indexes it when active.
func (s *RedisStore) Insert(ctx context.Context, sched *models.Schedule) error {
	return s.write(ctx, sched)
}

// Get returns one schedule by ID.
func (s *RedisStore) Get(ctx context.Context, id string) (*models.Schedule, error) {
	raw, err := s.client.Get(ctx, s.scheduleKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read schedule %s: %w", id, err)
	}
	var sched models.Schedule
	if err := json.Unmarshal(raw, &sched); err != nil {
		return nil, fmt.Errorf("decode schedule %s: %w", id, err)
	}
	return &sched, nil
}

// List returns schedules, optionally only active ones.
func (s *RedisStore) List(ctx context.Context, activeOnly bool) ([]*models.Schedule, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("read schedule index: %w", err)
	}

	out := make([]*models.Schedule, 0, len(ids))
	for _, id := range ids {
		sched, err := s.Get(ctx, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if activeOnly && !sched.IsActive {
			continue
		}
		out = append(out, sched)
	}
	return out, nil
}

// Update replaces a schedule and reindexes it.
func (s *RedisStore) Update(ctx context.Context, sched *models.Schedule) error {
	exists, err := s.client.SIsMember(ctx, s.indexKey(), sched.ID).Result()
	if err != nil {
		return fmt.Errorf("check schedule %s: %w", sched.ID, err)
	}
	if !exists {
		return ErrNotFound
	}
	return s.write(ctx, sched)
}

// Delete removes a schedule and its index entries.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	removed, err := s.client.SRem(ctx, s.indexKey(), id).Result()
	if err != nil {
		return fmt.Errorf("remove schedule %s from index: %w", id, err)
	}
	if removed == 0 {
		return ErrNotFound
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.scheduleKey(id))
	pipe.ZRem(ctx, s.dueKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete schedule %s: %w", id, err)
	}
	return nil
}

// Due returns active schedules with NextExecution at or before now.
func (s *RedisStore) Due(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.dueKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read due schedules: %w", err)
	}

	out := make([]*models.Schedule, 0, len(ids))
	for _, id := range ids {
		sched, err := s.Get(ctx, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if sched.Due(now) {
			out = append(out, sched)
		}
	}
	return out, nil
}

// Advance writes post-firing timestamps for one schedule.
func (s *RedisStore) Advance(ctx context.Context, id string, last, next time.Time) error {
	sched, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sched.LastExecution = last
	sched.NextExecution = next
	sched.UpdatedAt = last
	return s.write(ctx, sched)
}

// Close closes Redis resources.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) write(ctx context.Context, sched *models.Schedule) error {
	payload, err := json.Marshal(sched)
	if err != nil {
		return fmt.Errorf("encode schedule %s: %w", sched.ID, err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.scheduleKey(sched.ID), payload, 0)
	pipe.SAdd(ctx, s.indexKey(), sched.ID)
	if sched.IsActive {
		pipe.ZAdd(ctx, s.dueKey(), redis.Z{
			Score:  float64(sched.NextExecution.Unix()),
			Member: sched.ID,
		})
	} else {
		pipe.ZRem(ctx, s.dueKey(), sched.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write schedule %s: %w", sched.ID, err)
	}
	return nil
}

func (s *RedisStore) scheduleKey(id string) string {
	return s.prefix + ":schedule:" + id
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":schedules"
}

func (s *RedisStore) dueKey() string {
	return s.prefix + ":schedules:due"
}
