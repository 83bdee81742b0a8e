package cache

import (
	stderrors "errors"
	"strings"
	"time"

	"sjsage522/farewatch/logger"
	"sjsage522/farewatch/pkg/errors"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcacheService implements CacheService using memcache
type MemcacheService struct {
	client *memcache.Client
	log    *logger.Logger
}

// NewMemcacheService creates a new memcache service.
// serverAddr may list several servers separated by commas.
func NewMemcacheService(serverAddr string, timeout time.Duration) *MemcacheService {
	client := memcache.New(strings.Split(serverAddr, ",")...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	return &MemcacheService{
		client: client,
		log:    logger.ForCache().WithField("servers", serverAddr),
	}
}

// Ping checks that every server answers
func (m *MemcacheService) Ping() error {
	if err := m.client.Ping(); err != nil {
		return errors.NewCache("", "memcache ping failed", err)
	}
	return nil
}

// Get retrieves a value from memcache
func (m *MemcacheService) Get(key string) ([]byte, error) {
	item, err := m.client.Get(sanitize(key))
	if stderrors.Is(err, memcache.ErrCacheMiss) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, errors.NewCache(key, "get failed", err)
	}
	return item.Value, nil
}

// Set stores a value in memcache with an expiration time
func (m *MemcacheService) Set(key string, value []byte, expiration time.Duration) error {
	err := m.client.Set(&memcache.Item{
		Key:        sanitize(key),
		Value:      value,
		Expiration: int32(expiration.Seconds()),
	})
	if err != nil {
		return errors.NewCache(key, "set failed", err)
	}
	m.log.Debug().Str("key", key).Dur("ttl", expiration).Msg("Cached")
	return nil
}

// Delete removes a value from memcache
func (m *MemcacheService) Delete(key string) error {
	err := m.client.Delete(sanitize(key))
	if err == nil || stderrors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return errors.NewCache(key, "delete failed", err)
}

// sanitize replaces characters memcache rejects in keys
func sanitize(key string) string {
	return strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return '_'
		}
		return r
	}, key)
}
