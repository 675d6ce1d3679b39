package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/relayer/internal/core/domain"
)

const deadLetterKey = "relayer:deadletter"

// Client wraps Redis operations for the dead-letter queue.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// DeadLetter is a relay attempt parked for operator replay after the
// executor gave up on it.
type DeadLetter struct {
	ID                 string `json:"id"`
	EventKey           string `json:"event_key"`
	Sender             string `json:"sender"`
	Token              string `json:"token"`
	Amount             string `json:"amount"`
	DestinationChainID uint64 `json:"destination_chain_id"`
	Recipient          []byte `json:"recipient"`
	Error              string `json:"error"`
	FailedAt           int64  `json:"failed_at"`
}

// PushDeadLetter parks a failed relay on the dead-letter list.
func (c *Client) PushDeadLetter(ctx context.Context, ev domain.ValidatedEvent, cause error) error {
	entry := DeadLetter{
		ID:                 uuid.New().String(),
		EventKey:           ev.Key().String(),
		Sender:             ev.Sender,
		Token:              ev.Token,
		Amount:             ev.Amount.String(),
		DestinationChainID: ev.DestinationChainID,
		Recipient:          ev.Recipient,
		Error:              cause.Error(),
		FailedAt:           time.Now().Unix(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}
	if err := c.rdb.LPush(ctx, deadLetterKey, data).Err(); err != nil {
		return fmt.Errorf("lpush failed: %w", err)
	}
	return nil
}

// DeadLetters returns all parked entries, newest first.
func (c *Client) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	raw, err := c.rdb.LRange(ctx, deadLetterKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange failed: %w", err)
	}

	entries := make([]DeadLetter, 0, len(raw))
	for _, item := range raw {
		var entry DeadLetter
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("invalid dead letter entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// DeadLetterCount returns the queue depth.
func (c *Client) DeadLetterCount(ctx context.Context) (int64, error) {
	return c.rdb.LLen(ctx, deadLetterKey).Result()
}
