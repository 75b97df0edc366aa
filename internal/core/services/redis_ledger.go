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

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// applyScript initialises the balance on first use, skips keys that were
// already applied and refuses to go below zero. It returns {balance, status}
// with status 0 applied, 1 duplicate, -1 insufficient.
var applyScript = redis.NewScript(`
local balance = redis.call('GET', KEYS[1])
if not balance then
  redis.call('SET', KEYS[1], ARGV[2])
  balance = ARGV[2]
end
balance = tonumber(balance)
if redis.call('EXISTS', KEYS[2]) == 1 then
  return {balance, 1}
end
local delta = tonumber(ARGV[1])
if balance + delta < 0 then
  return {balance, -1}
end
balance = redis.call('INCRBY', KEYS[1], delta)
redis.call('SET', KEYS[2], '1', 'EX', ARGV[3])
return {balance, 0}
`)

// RedisLedger stores balances in Redis so several replicas share them. Each
// operation is a single Lua script, which makes the idempotency check and
// the balance update atomic.
type RedisLedger struct {
	client          redis.Cmdable
	prefix          string
	startingBalance int
	ttl             time.Duration
}

func NewRedisLedger(client redis.Cmdable, prefix string, startingBalance int, ttl time.Duration) *RedisLedger {
	if ttl < time.Second {
		ttl = 24 * time.Hour
	}
	return &RedisLedger{client: client, prefix: prefix, startingBalance: startingBalance, ttl: ttl}
}

func (l *RedisLedger) balanceKey(userID string) string {
	return fmt.Sprintf("%s:balance:%s", l.prefix, userID)
}

func (l *RedisLedger) appliedKey(userID string, key string) string {
	return fmt.Sprintf("%s:applied:%s:%s", l.prefix, userID, key)
}

func (l *RedisLedger) Balance(ctx context.Context, userID string) (int, error) {
	v, err := l.client.Get(ctx, l.balanceKey(userID)).Int()
	if errors.Is(err, redis.Nil) {
		return l.startingBalance, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance for %s: %w", userID, err)
	}
	return v, nil
}

func (l *RedisLedger) Debit(ctx context.Context, userID string, amount int, key string) (int, error) {
	if amount < 0 {
		return 0, fmt.Errorf("debit amount must not be negative: %d", amount)
	}
	return l.apply(ctx, userID, -amount, key)
}

func (l *RedisLedger) Credit(ctx context.Context, userID string, amount int, key string) (int, error) {
	if amount < 0 {
		return 0, fmt.Errorf("credit amount must not be negative: %d", amount)
	}
	return l.apply(ctx, userID, amount, key)
}

func (l *RedisLedger) apply(ctx context.Context, userID string, delta int, key string) (int, error) {
	if key == "" {
		key = uuid.NewString()
	}
	keys := []string{l.balanceKey(userID), l.appliedKey(userID, key)}
	out, err := applyScript.Run(ctx, l.client, keys, delta, l.startingBalance, int64(l.ttl/time.Second)).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("failed to update balance for %s: %w", userID, err)
	}
	if len(out) != 2 {
		return 0, fmt.Errorf("unexpected ledger script result %v", out)
	}
	switch out[1] {
	case -1:
		return int(out[0]), ErrInsufficientCredit
	case 1:
		return int(out[0]), ErrAlreadyApplied
	}
	return int(out[0]), nil
}
