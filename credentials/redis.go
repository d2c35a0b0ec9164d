package credentials

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "lims:client:credentials"

// RedisKeyring mirrors the credential pair into a Redis hash. It serves
// deployments where several LIMS terminals share one service-account session
// and must all pick up a rotation performed by any of them.
type RedisKeyring struct {
	client *redis.Client
	key    string
}

// NewRedisKeyring describes the newrediskeyring operation and its observable behavior.
//
// NewRedisKeyring may return an error when input validation, dependency calls, or security checks fail.
// NewRedisKeyring does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewRedisKeyring(client *redis.Client, key string) *RedisKeyring {
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisKeyring{client: client, key: key}
}

// Key reports the Redis hash key this keyring writes under.
func (k *RedisKeyring) Key() string {
	return k.key
}

// Save describes the save operation and its observable behavior.
//
// Save may return an error when input validation, dependency calls, or security checks fail.
// Save does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (k *RedisKeyring) Save(ctx context.Context, access, refresh string) error {
	err := k.client.HSet(ctx, k.key,
		KeyAccessToken, access,
		KeyRefreshToken, refresh,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

// Load describes the load operation and its observable behavior.
//
// Load may return an error when input validation, dependency calls, or security checks fail.
// Load does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (k *RedisKeyring) Load(ctx context.Context) (string, string, error) {
	values, err := k.client.HGetAll(ctx, k.key).Result()
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return values[KeyAccessToken], values[KeyRefreshToken], nil
}

// Delete describes the delete operation and its observable behavior.
//
// Delete may return an error when input validation, dependency calls, or security checks fail.
// Delete does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (k *RedisKeyring) Delete(ctx context.Context) error {
	if err := k.client.Del(ctx, k.key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return nil
}
