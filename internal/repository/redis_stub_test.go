package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// stubRedis answers the commands the repository issues from an in-memory map.
// Any other command panics through the nil embedded client.
type stubRedis struct {
	redis.UniversalClient

	mu        sync.Mutex
	values    map[string]string
	ttls      map[string]time.Duration
	published map[string][]string
	unlinked  []string
	err       error
}

func newStubRedis() *stubRedis {
	return &stubRedis{
		values:    make(map[string]string),
		ttls:      make(map[string]time.Duration),
		published: make(map[string][]string),
	}
}

func (s *stubRedis) Get(_ context.Context, key string) *redis.StringCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return redis.NewStringResult("", s.err)
	}
	val, ok := s.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (s *stubRedis) SetArgs(_ context.Context, key string, value interface{}, a redis.SetArgs) *redis.StatusCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return redis.NewStatusResult("", s.err)
	}
	s.values[key] = asString(value)
	s.ttls[key] = a.TTL
	return redis.NewStatusResult("OK", nil)
}

func (s *stubRedis) Unlink(_ context.Context, keys ...string) *redis.IntCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return redis.NewIntResult(0, s.err)
	}
	var n int64
	for _, key := range keys {
		s.unlinked = append(s.unlinked, key)
		if _, ok := s.values[key]; ok {
			delete(s.values, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (s *stubRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return redis.NewIntResult(0, s.err)
	}
	s.published[channel] = append(s.published[channel], asString(message))
	return redis.NewIntResult(1, nil)
}

func asString(value interface{}) string {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
