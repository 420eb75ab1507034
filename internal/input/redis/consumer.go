package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"threatrelay/internal/logger"
	"threatrelay/pkg/models"
)

// Config configures the finding consumer.
type Config struct {
	Addr         string
	Password     string
	DB           int
	Key          string
	BlockTimeout time.Duration
}

// Consumer pops externally reported findings off a Redis list and
// decodes them at the edge, so downstream workers only ever see
// well-formed execution results. Malformed payloads are dropped with a
// warning rather than surfaced as errors.
type Consumer struct {
	client       *redis.Client
	key          string
	blockTimeout time.Duration
}

// NewConsumer creates a Redis consumer for the finding intake list.
func NewConsumer(cfg Config) (*Consumer, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis intake key is required")
	}
	if cfg.BlockTimeout == 0 {
		cfg.BlockTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Consumer{
		client:       client,
		key:          cfg.Key,
		blockTimeout: cfg.BlockTimeout,
	}, nil
}

// Pop pops one finding off the list. A nil result with nil error means
// no usable message arrived before the block timeout.
func (c *Consumer) Pop(ctx context.Context) (*models.ExecutionResult, error) {
	res, err := c.client.BLPop(ctx, c.blockTimeout, c.key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, nil
	}

	finding, err := decodeFinding([]byte(res[1]))
	if err != nil {
		logger.Warnf("Dropping malformed intake finding: %v", err)
		return nil, nil
	}
	return finding, nil
}

// Close closes the consumer.
func (c *Consumer) Close() error {
	return c.client.Close()
}

// decodeFinding validates a raw detector payload and backfills the
// fields external reporters routinely omit.
func decodeFinding(payload []byte) (*models.ExecutionResult, error) {
	var result models.ExecutionResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode finding: %w", err)
	}
	if result.AgentID == "" {
		result.AgentID = "external"
	}
	if result.Status == "" {
		result.Status = "reported"
	}
	return &result, nil
}
