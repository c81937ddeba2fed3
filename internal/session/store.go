package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store persists sessions across service replicas.
type Store interface {
	// GetOrCreate loads the session for id, creating and persisting a
	// fresh one on a read miss. Expired sessions are indistinguishable
	// from never-seen identifiers.
	GetOrCreate(ctx context.Context, id string) (*Session, error)

	// Save persists the session unconditionally and refreshes its TTL.
	// Last writer wins; there is no optimistic concurrency.
	Save(ctx context.Context, s *Session) error

	Close() error
}

// RedisStore implements Store on a shared Redis backend.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// RedisStoreConfig represents configuration for the Redis session store
type RedisStoreConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// NewRedisStore creates a session store and verifies connectivity with a
// ping, failing fast at startup when Redis is unreachable.
func NewRedisStore(ctx context.Context, cfg RedisStoreConfig, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	if cfg.TTL <= 0 {
		cfg.TTL = 1800 * time.Second
	}

	logger.Info("Session store connected", zap.String("addr", cfg.Addr), zap.Duration("ttl", cfg.TTL))

	return &RedisStore{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.TTL,
		logger:    logger,
	}, nil
}

func (r *RedisStore) key(id string) string {
	return r.keyPrefix + id
}

// GetOrCreate loads the session for id or creates a fresh one on miss.
func (r *RedisStore) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s := NewSession(id)
			if saveErr := r.Save(ctx, s); saveErr != nil {
				return nil, saveErr
			}
			r.logger.Debug("Created session", zap.String("session_id", id))
			return s, nil
		}
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		// A corrupt record is unrecoverable; start over rather than
		// wedging the conversation.
		r.logger.Warn("Discarding undecodable session record", zap.String("session_id", id), zap.Error(err))
		s2 := NewSession(id)
		if saveErr := r.Save(ctx, s2); saveErr != nil {
			return nil, saveErr
		}
		return s2, nil
	}

	s.migrate()
	return &s, nil
}

// Save persists the session and refreshes its TTL.
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	s.LastActiveAt = time.Now().UTC()
	s.Version = schemaVersion

	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to serialize session %s: %w", s.ID, err)
	}

	if err := r.client.Set(ctx, r.key(s.ID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.ID, err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
