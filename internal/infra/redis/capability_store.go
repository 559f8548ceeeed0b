package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/calldispatch/internal/core/domain"
)

// DefaultCapabilityTTL bounds how long a detection result is shared.
const DefaultCapabilityTTL = 30 * time.Minute

// CapabilityStore shares capability detection results across processes.
type CapabilityStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCapabilityStore creates a Redis-backed capability store.
func NewCapabilityStore(client *Client, ttl time.Duration) *CapabilityStore {
	if ttl <= 0 {
		ttl = DefaultCapabilityTTL
	}
	return &CapabilityStore{rdb: client.rdb, ttl: ttl}
}

func capabilityKey(identity string) string {
	return fmt.Sprintf("capability:dataSuffix:%s", identity)
}

// Get returns the stored support for a wallet identity.
func (s *CapabilityStore) Get(ctx context.Context, identity string) (domain.CapabilitySupport, bool, error) {
	val, err := s.rdb.Get(ctx, capabilityKey(identity)).Result()
	if err == redis.Nil {
		return domain.CapabilityUnknown, false, nil
	}
	if err != nil {
		return domain.CapabilityUnknown, false, fmt.Errorf("get failed: %w", err)
	}

	support := decodeSupport(val)
	return support, support != domain.CapabilityUnknown, nil
}

// Set stores the support for a wallet identity. Unknown is never stored.
func (s *CapabilityStore) Set(ctx context.Context, identity string, support domain.CapabilitySupport) error {
	if support == domain.CapabilityUnknown {
		return nil
	}
	if err := s.rdb.Set(ctx, capabilityKey(identity), support.String(), s.ttl).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

// Delete forgets the stored support for a wallet identity.
func (s *CapabilityStore) Delete(ctx context.Context, identity string) error {
	return s.rdb.Del(ctx, capabilityKey(identity)).Err()
}

func decodeSupport(val string) domain.CapabilitySupport {
	switch val {
	case domain.CapabilitySupported.String():
		return domain.CapabilitySupported
	case domain.CapabilityUnsupported.String():
		return domain.CapabilityUnsupported
	default:
		return domain.CapabilityUnknown
	}
}
