package cache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const deviceKeyPrefix = "steamguard:deviceid:"

// RedisDeviceStore keeps account to device id bindings in Redis, for deployments
// where several companion servers share one account.
type RedisDeviceStore struct {
	client *redis.Client
}

// NewRedisDeviceStore creates a device id store over client.
func NewRedisDeviceStore(client *redis.Client) *RedisDeviceStore {
	return &RedisDeviceStore{client: client}
}

func deviceKey(accountID string) string {
	return deviceKeyPrefix + accountID
}

func (s *RedisDeviceStore) Load(ctx context.Context, accountID string) (string, error) {
	id, err := s.client.Get(ctx, deviceKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

// Save stores the binding without expiry. SetNX keeps the first writer's id
// when two processes race; the loser gets nil and adopts it on the next Load.
func (s *RedisDeviceStore) Save(ctx context.Context, accountID, deviceID string) error {
	return s.client.SetNX(ctx, deviceKey(accountID), deviceID, 0).Err()
}

// Delete drops the binding so the next resolve picks a new id.
func (s *RedisDeviceStore) Delete(ctx context.Context, accountID string) error {
	return s.client.Del(ctx, deviceKey(accountID)).Err()
}
