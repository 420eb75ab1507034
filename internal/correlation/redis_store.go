package correlation

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"threatrelay/pkg/models"
)

// RedisConfig configures Redis access for record persistence.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore persists threat and correlation records in Redis. Records
// are JSON values keyed by ID; per-agent history is a ZSET index scored
// by creation time so reads come back newest first.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a Redis-backed record store.
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
		return nil, fmt.Errorf("ping redis record store: %w", err)
	}

	return &RedisStore{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix)}, nil
}

// InsertThreat stores one threat record and updates confidence counters.
func (s *RedisStore) InsertThreat(ctx context.Context, rec *models.ThreatRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: threat record missing id", ErrStorage)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode threat record: %v", ErrStorage, err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.threatKey(rec.ID), payload, 0)
	pipe.HIncrByFloat(ctx, s.statsKey(), "confidence_sum", rec.Confidence)
	pipe.HIncrBy(ctx, s.statsKey(), "threat_count", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: write threat record: %v", ErrStorage, err)
	}
	return nil
}

// InsertCorrelation stores one correlation record and indexes it under
// its agent for history reads.
func (s *RedisStore) InsertCorrelation(ctx context.Context, rec *models.CorrelationRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: correlation record missing id", ErrStorage)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode correlation record: %v", ErrStorage, err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.correlationKey(rec.ID), payload, 0)
	pipe.ZAdd(ctx, s.historyKey(rec.AgentID), redis.Z{
		Score:  float64(rec.CreatedAt.UnixNano()),
		Member: rec.ID,
	})
	pipe.HIncrBy(ctx, s.statsKey(), "tier:"+string(rec.Severity), 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: write correlation record: %v", ErrStorage, err)
	}
	return nil
}

// History yields correlation records for agentID, newest first. Record
// bodies are fetched lazily while the sequence is consumed.
func (s *RedisStore) History(ctx context.Context, agentID string, limit int) iter.Seq2[models.CorrelationRecord, error] {
	return func(yield func(models.CorrelationRecord, error) bool) {
		stop := int64(-1)
		if limit > 0 {
			stop = int64(limit) - 1
		}
		ids, err := s.client.ZRevRange(ctx, s.historyKey(agentID), 0, stop).Result()
		if err != nil {
			yield(models.CorrelationRecord{}, fmt.Errorf("%w: read history index: %v", ErrStorage, err))
			return
		}

		for _, id := range ids {
			raw, err := s.client.Get(ctx, s.correlationKey(id)).Bytes()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				if !yield(models.CorrelationRecord{}, fmt.Errorf("%w: read correlation %s: %v", ErrStorage, id, err)) {
					return
				}
				continue
			}
			var rec models.CorrelationRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				if !yield(models.CorrelationRecord{}, fmt.Errorf("%w: decode correlation %s: %v", ErrStorage, id, err)) {
					return
				}
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Statistics reads the tier counters and average confidence.
func (s *RedisStore) Statistics(ctx context.Context) (models.ThreatStats, error) {
	hash, err := s.client.HGetAll(ctx, s.statsKey()).Result()
	if err != nil {
		return models.ThreatStats{}, fmt.Errorf("%w: read statistics: %v", ErrStorage, err)
	}

	stats := models.ThreatStats{
		Critical: parseCount(hash, models.TierCritical),
		High:     parseCount(hash, models.TierHigh),
		Medium:   parseCount(hash, models.TierMedium),
		Low:      parseCount(hash, models.TierLow),
		Info:     parseCount(hash, models.TierInfo),
	}
	stats.TotalThreats = stats.Critical + stats.High + stats.Medium + stats.Low + stats.Info

	count, _ := strconv.ParseInt(hash["threat_count"], 10, 64)
	sum, _ := strconv.ParseFloat(hash["confidence_sum"], 64)
	if count > 0 {
		stats.AvgConfidence = roundConfidence(sum / float64(count))
	}
	return stats, nil
}

// Close closes Redis resources.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func parseCount(hash map[string]string, tier models.EscalationTier) int64 {
	n, _ := strconv.ParseInt(hash["tier:"+string(tier)], 10, 64)
	return n
}

func (s *RedisStore) threatKey(id string) string {
	return s.prefix + ":threat:" + id
}

func (s *RedisStore) correlationKey(id string) string {
	return s.prefix + ":correlation:" + id
}

func (s *RedisStore) historyKey(agentID string) string {
	return s.prefix + ":history:" + agentID
}

func (s *RedisStore) statsKey() string {
	return s.prefix + ":stats"
}
