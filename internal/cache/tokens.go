package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"zola/internal/models"
)

// TokenStore keeps refresh tokens and revoked access-token ids.
type TokenStore interface {
	SaveRefresh(ctx context.Context, token string, userID uuid.UUID, ttl time.Duration) error
	// ConsumeRefresh returns the owner of token and deletes it in the same
	// step. A missing or already used token yields models.ErrTokenRevoked.
	ConsumeRefresh(ctx context.Context, token string) (uuid.UUID, error)
	RevokeRefresh(ctx context.Context, token string) (bool, error)
	Blacklist(ctx context.Context, jti string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// NewTokenStore returns a Redis store when rdb is set, otherwise an in-process one.
func NewTokenStore(rdb *redis.Client) TokenStore {
	if rdb == nil {
		return NewMemoryTokenStore()
	}
	return &RedisTokenStore{rdb: rdb}
}

// RedisTokenStore stores tokens as plain keys with TTLs.
type RedisTokenStore struct {
	rdb *redis.Client
}

func (s *RedisTokenStore) SaveRefresh(ctx context.Context, token string, userID uuid.UUID, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, refreshKey(token), userID.String(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) ConsumeRefresh(ctx context.Context, token string) (uuid.UUID, error) {
	val, err := s.rdb.GetDel(ctx, refreshKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, models.ErrTokenRevoked
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to consume refresh token: %w", err)
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, models.ErrInvalidToken
	}
	return id, nil
}

func (s *RedisTokenStore) RevokeRefresh(ctx context.Context, token string) (bool, error) {
	n, err := s.rdb.Del(ctx, refreshKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return n > 0, nil
}

func (s *RedisTokenStore) Blacklist(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, blacklistKey(jti), 1, ttl).Err()
}

func (s *RedisTokenStore) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := s.rdb.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type memoryEntry struct {
	userID  uuid.UUID
	expires time.Time
}

// memorySweepInterval bounds how often writes scan for expired entries.
const memorySweepInterval = time.Minute

// MemoryTokenStore is a single-process TokenStore. Expired entries are
// dropped by the writes that follow them.
type MemoryTokenStore struct {
	mu        sync.Mutex
	refresh   map[string]memoryEntry
	blacklist map[string]time.Time
	nextSweep time.Time
	now       func() time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		refresh:   make(map[string]memoryEntry),
		blacklist: make(map[string]time.Time),
		now:       time.Now,
	}
}

func (s *MemoryTokenStore) SaveRefresh(_ context.Context, token string, userID uuid.UUID, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.sweep(now)
	s.refresh[token] = memoryEntry{userID: userID, expires: now.Add(ttl)}
	return nil
}

func (s *MemoryTokenStore) ConsumeRefresh(_ context.Context, token string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.refresh[token]
	if !ok {
		return uuid.Nil, models.ErrTokenRevoked
	}
	delete(s.refresh, token)
	if s.now().After(entry.expires) {
		return uuid.Nil, models.ErrExpiredToken
	}
	return entry.userID, nil
}

func (s *MemoryTokenStore) RevokeRefresh(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.refresh[token]
	if !ok {
		return false, nil
	}
	delete(s.refresh, token)
	return s.now().Before(entry.expires), nil
}

func (s *MemoryTokenStore) Blacklist(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.sweep(now)
	s.blacklist[jti] = now.Add(ttl)
	return nil
}

// sweep must be called with mu held.
func (s *MemoryTokenStore) sweep(now time.Time) {
	if now.Before(s.nextSweep) {
		return
	}
	s.nextSweep = now.Add(memorySweepInterval)
	for token, entry := range s.refresh {
		if now.After(entry.expires) {
			delete(s.refresh, token)
		}
	}
	for jti, exp := range s.blacklist {
		if now.After(exp) {
			delete(s.blacklist, jti)
		}
	}
}

func (s *MemoryTokenStore) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.blacklist[jti]
	if !ok {
		return false, nil
	}
	if s.now().After(exp) {
		delete(s.blacklist, jti)
		return false, nil
	}
	return true, nil
}
