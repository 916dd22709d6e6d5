// Package redisseq mints human-code sequences with Redis INCR.
//
// INCR is atomic on the server, so any number of engine processes can share
// one counter space. Sequences minted here are not rolled back when the
// surrounding creation fails, which leaves a gap but never a duplicate.
package redisseq

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/warp/motor-insurance/insurance"
)

// DefaultKeyPrefix namespaces counter keys.
const DefaultKeyPrefix = "motor-insurance:counter:"

// Sequencer implements insurance.SequenceStore.
type Sequencer struct {
	client *redis.Client
	prefix string
}

var _ insurance.SequenceStore = (*Sequencer)(nil)

// ParseAddr accepts either a bare host:port or a redis:// (rediss://) URL.
func ParseAddr(addr string) (*redis.Options, error) {
	if addr == "" {
		return nil, fmt.Errorf("empty redis address")
	}
	if !strings.Contains(addr, "://") {
		return &redis.Options{Addr: addr}, nil
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return opts, nil
}

// New connects to the Redis server at addr (host:port or
// redis://host:port/db) and verifies the connection.
func New(ctx context.Context, addr string) (*Sequencer, error) {
	opts, err := ParseAddr(addr)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewWithClient(client, DefaultKeyPrefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string) *Sequencer {
	return &Sequencer{client: client, prefix: prefix}
}

// NextSequence increments and returns the named counter.
func (s *Sequencer) NextSequence(ctx context.Context, name string) (int64, error) {
	n, err := s.client.Incr(ctx, s.prefix+name).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", name, err)
	}
	return n, nil
}

// Seed raises the counter to at least floor, e.g. when switching over from
// the SQL counters table. Lower values are left untouched.
func (s *Sequencer) Seed(ctx context.Context, name string, floor int64) error {
	key := s.prefix + name
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur >= floor {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, floor, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("seed %s: %w", name, err)
	}
	return nil
}

// Ping checks the connection.
func (s *Sequencer) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Sequencer) Close() error {
	return s.client.Close()
}
