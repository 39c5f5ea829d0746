package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/danieledinun/aitreon-sub004/internal/core/ports"
)

var _ ports.IngestLock = (*IngestLock)(nil)

const lockPrefix = "replica:ingest-lock:"

// IngestLock is a per-video SETNX lock owned by this process.
type IngestLock struct {
	client  redis.UniversalClient
	ownerID string
}

func NewIngestLock(client redis.UniversalClient) *IngestLock {
	return &IngestLock{
		client:  client,
		ownerID: generateOwnerID(),
	}
}

func generateOwnerID() string {
	hostname, _ := os.Hostname()
	randomBytes := make([]byte, 8)
	_, _ = rand.Read(randomBytes)
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), hex.EncodeToString(randomBytes))
}

func (l *IngestLock) Acquire(ctx context.Context, videoID string, ttl time.Duration) (bool, error) {
	acquired, err := l.client.SetNX(ctx, lockPrefix+videoID, l.ownerID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire ingest lock %s: %w", videoID, err)
	}
	return acquired, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Release is a no-op when the lock expired or belongs to another worker.
func (l *IngestLock) Release(ctx context.Context, videoID string) error {
	_, err := releaseScript.Run(ctx, l.client, []string{lockPrefix + videoID}, l.ownerID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release ingest lock %s: %w", videoID, err)
	}
	return nil
}

func (l *IngestLock) OwnerID() string {
	return l.ownerID
}
