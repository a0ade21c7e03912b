// Package redis provides a Redis-backed memory.Driver. Each session is a
// list of JSON encoded turns under "<prefix><session id>".
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/papercomputeco/folio/pkg/memory"
	"github.com/papercomputeco/folio/pkg/rag"
)

// DefaultKeyPrefix namespaces session keys.
const DefaultKeyPrefix = "folio:session:"

// Config holds configuration for the Redis memory driver.
type Config struct {
	// URL is a redis:// connection URL.
	URL string

	// KeyPrefix defaults to DefaultKeyPrefix.
	KeyPrefix string

	// TTL expires idle sessions. Zero keeps them forever.
	TTL time.Duration

	Limits memory.Limits
}

// Driver implements memory.Driver on Redis lists.
type Driver struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
	limits memory.Limits
	logger *slog.Logger
}

// NewDriver parses the URL and verifies the server responds to PING.
func NewDriver(ctx context.Context, c Config, logger *slog.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, errors.New("redis URL is required")
	}

	opts, err := goredis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewDriverWithClient(client, c, logger), nil
}

// NewDriverWithClient wraps an existing client.
func NewDriverWithClient(client *goredis.Client, c Config, logger *slog.Logger) *Driver {
	prefix := c.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Driver{
		client: client,
		prefix: prefix,
		ttl:    c.TTL,
		limits: c.Limits.WithDefaults(),
		logger: logger,
	}
}

func (d *Driver) key(sessionID string) string {
	return d.prefix + sessionID
}

// History reads the whole session list.
func (d *Driver) History(ctx context.Context, sessionID string) (rag.History, error) {
	if sessionID == "" {
		return nil, memory.ErrEmptySession
	}

	raw, err := d.client.LRange(ctx, d.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", sessionID, err)
	}

	return decodeTurns(raw, d.logger), nil
}

// Append pushes the turns, trims to the most recent TrimTo entries when the
// list grows past MaxTurns and refreshes the TTL.
func (d *Driver) Append(ctx context.Context, sessionID string, turns ...rag.Turn) error {
	if sessionID == "" {
		return memory.ErrEmptySession
	}
	if len(turns) == 0 {
		return nil
	}

	values, err := encodeTurns(turns)
	if err != nil {
		return err
	}

	key := d.key(sessionID)
	n, err := d.client.RPush(ctx, key, values...).Result()
	if err != nil {
		return fmt.Errorf("appending to session %s: %w", sessionID, err)
	}

	pipe := d.client.Pipeline()
	if n > int64(d.limits.MaxTurns) {
		pipe.LTrim(ctx, key, int64(-d.limits.TrimTo), -1)
	}
	if d.ttl > 0 {
		pipe.Expire(ctx, key, d.ttl)
	}
	if pipe.Len() > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("trimming session %s: %w", sessionID, err)
		}
	}

	return nil
}

// Clear deletes the session key.
func (d *Driver) Clear(ctx context.Context, sessionID string) error {
	if err := d.client.Del(ctx, d.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("clearing session %s: %w", sessionID, err)
	}
	return nil
}

// Close closes the client.
func (d *Driver) Close() error {
	return d.client.Close()
}

func encodeTurns(turns []rag.Turn) ([]any, error) {
	values := make([]any, len(turns))
	for i, t := range turns {
		b, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("encoding turn: %w", err)
		}
		values[i] = string(b)
	}
	return values, nil
}

// decodeTurns skips entries that are not valid turns.
func decodeTurns(raw []string, logger *slog.Logger) rag.History {
	if len(raw) == 0 {
		return nil
	}
	h := make(rag.History, 0, len(raw))
	for _, r := range raw {
		var t rag.Turn
		if err := json.Unmarshal([]byte(r), &t); err != nil {
			logger.Warn("skipping malformed session turn", "error", err)
			continue
		}
		h = append(h, t)
	}
	return h
}

var _ memory.Driver = (*Driver)(nil)
