package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SuspicionStore tracks throttled attempts per IP inside a rolling window.
// The in-memory implementation covers a single instance; the redis one is for
// deployments running more than one replica behind a balancer.
type SuspicionStore interface {
	RecordThrottled(ctx context.Context, ip string) (int, error)
	Count(ctx context.Context, ip string) (int, error)
	Sweep(ctx context.Context) error
}

type suspicionEntry struct {
	count       int
	lastAttempt time.Time
}

type MemorySuspicionStore struct {
	window  time.Duration
	mutex   sync.Mutex
	entries map[string]*suspicionEntry
}

func NewMemorySuspicionStore(window time.Duration) *MemorySuspicionStore {
	return &MemorySuspicionStore{
		window:  window,
		entries: make(map[string]*suspicionEntry),
	}
}

func (s *MemorySuspicionStore) RecordThrottled(_ context.Context, ip string) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now()

	entry, exists := s.entries[ip]
	if !exists || now.Sub(entry.lastAttempt) >= s.window {
		entry = &suspicionEntry{}
		s.entries[ip] = entry
	}

	entry.count++
	entry.lastAttempt = now
	return entry.count, nil
}

func (s *MemorySuspicionStore) Count(_ context.Context, ip string) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, exists := s.entries[ip]
	if !exists || time.Since(entry.lastAttempt) >= s.window {
		return 0, nil
	}
	return entry.count, nil
}

func (s *MemorySuspicionStore) Sweep(_ context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for ip, entry := range s.entries {
		if time.Since(entry.lastAttempt) >= s.window {
			delete(s.entries, ip)
		}
	}
	return nil
}

type RedisSuspicionStore struct {
	window time.Duration
	client *redis.Client
}

func NewRedisSuspicionStore(window time.Duration, client *redis.Client) *RedisSuspicionStore {
	return &RedisSuspicionStore{
		window: window,
		client: client,
	}
}

func suspicionKey(ip string) string {
	return fmt.Sprintf("authcore:suspicion:%s", ip)
}

func (s *RedisSuspicionStore) RecordThrottled(ctx context.Context, ip string) (int, error) {
	key := suspicionKey(ip)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	// The expiry slides with every throttled attempt
	if err := s.client.Expire(ctx, key, s.window).Err(); err != nil {
		return 0, err
	}

	return int(count), nil
}

func (s *RedisSuspicionStore) Count(ctx context.Context, ip string) (int, error) {
	count, err := s.client.Get(ctx, suspicionKey(ip)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *RedisSuspicionStore) Sweep(_ context.Context) error {
	// Redis expires keys on its own
	return nil
}
