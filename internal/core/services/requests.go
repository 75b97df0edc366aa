// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// DefaultRequestTTL is how long a started request id stays claimed.
const DefaultRequestTTL = 24 * time.Hour

// ErrDuplicateRequest rejects a request id that was already started.
var ErrDuplicateRequest = errors.New("generation request was already started")

// RequestRegistry remembers which request ids have been started, so a
// replayed request is refused instead of run a second time.
//
// Claim returns false when the id is already claimed. Release gives up a
// claim for a request that never began running.
type RequestRegistry interface {
	Claim(ctx context.Context, userID string, requestID string) (bool, error)
	Release(ctx context.Context, userID string, requestID string) error
}

// MemoryRequestRegistry keeps claims in process.
type MemoryRequestRegistry struct {
	claims *cache.Cache
}

func NewMemoryRequestRegistry(ttl time.Duration) *MemoryRequestRegistry {
	if ttl <= 0 {
		ttl = DefaultRequestTTL
	}
	return &MemoryRequestRegistry{claims: cache.New(ttl, ttl)}
}

func (r *MemoryRequestRegistry) Claim(ctx context.Context, userID string, requestID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	// Add fails when the key exists, which makes the claim atomic.
	return r.claims.Add(userID+"/"+requestID, struct{}{}, cache.DefaultExpiration) == nil, nil
}

func (r *MemoryRequestRegistry) Release(_ context.Context, userID string, requestID string) error {
	r.claims.Delete(userID + "/" + requestID)
	return nil
}

// RedisRequestRegistry shares claims between replicas, so a Pub/Sub
// redelivery to another instance is refused as well.
type RedisRequestRegistry struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisRequestRegistry(client redis.Cmdable, prefix string, ttl time.Duration) *RedisRequestRegistry {
	if ttl < time.Second {
		ttl = DefaultRequestTTL
	}
	return &RedisRequestRegistry{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisRequestRegistry) key(userID string, requestID string) string {
	return fmt.Sprintf("%s:started:%s:%s", r.prefix, userID, requestID)
}

func (r *RedisRequestRegistry) Claim(ctx context.Context, userID string, requestID string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(userID, requestID), 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim request %s: %w", requestID, err)
	}
	return ok, nil
}

func (r *RedisRequestRegistry) Release(ctx context.Context, userID string, requestID string) error {
	if err := r.client.Del(ctx, r.key(userID, requestID)).Err(); err != nil {
		return fmt.Errorf("failed to release request %s: %w", requestID, err)
	}
	return nil
}
