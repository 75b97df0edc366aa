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

package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-script-factory/internal/core/services"
)

func ledgers(t *testing.T) map[string]services.Ledger {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]services.Ledger{
		"memory": services.NewMemoryLedger(10, time.Hour),
		"redis":  services.NewRedisLedger(client, "credits", 10, time.Hour),
	}
}

func TestLedgerStartingBalance(t *testing.T) {
	for name, ledger := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			b, err := ledger.Balance(context.Background(), "new-user")
			require.NoError(t, err)
			assert.Equal(t, 10, b)
		})
	}
}

func TestLedgerDebitCredit(t *testing.T) {
	ctx := context.Background()
	for name, ledger := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			b, err := ledger.Debit(ctx, "u1", 4, "r1:debit")
			require.NoError(t, err)
			assert.Equal(t, 6, b)

			b, err = ledger.Debit(ctx, "u1", 4, "r1:debit")
			assert.ErrorIs(t, err, services.ErrAlreadyApplied)
			assert.Equal(t, 6, b, "a repeated key is not applied twice")

			b, err = ledger.Credit(ctx, "u1", 4, "r1:refund")
			require.NoError(t, err)
			assert.Equal(t, 10, b)

			b, err = ledger.Credit(ctx, "u1", 4, "r1:refund")
			assert.ErrorIs(t, err, services.ErrAlreadyApplied)
			assert.Equal(t, 10, b)

			b, err = ledger.Debit(ctx, "u1", 11, "r2:debit")
			assert.ErrorIs(t, err, services.ErrInsufficientCredit)
			assert.Equal(t, 10, b)

			b, err = ledger.Debit(ctx, "u1", 10, "r2:debit")
			require.NoError(t, err, "a rejected key can be retried")
			assert.Equal(t, 0, b)

			_, err = ledger.Debit(ctx, "u1", -1, "r3")
			assert.Error(t, err)

			other, err := ledger.Balance(ctx, "u2")
			require.NoError(t, err)
			assert.Equal(t, 10, other, "balances are per user")
		})
	}
}

func TestLedgerConcurrentDebits(t *testing.T) {
	ctx := context.Background()
	for name, ledger := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, _ = ledger.Debit(ctx, "u1", 1, string(rune('a'+i)))
				}(i)
			}
			wg.Wait()
			b, err := ledger.Balance(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, 0, b, "never below zero")
		})
	}
}

func TestRedisLedgerKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ledger := services.NewRedisLedger(client, "credits", 10, time.Minute)

	_, err := ledger.Debit(context.Background(), "u1", 3, "r1:debit")
	require.NoError(t, err)

	v, err := mr.Get("credits:balance:u1")
	require.NoError(t, err)
	assert.Equal(t, "7", v)
	assert.True(t, mr.Exists("credits:applied:u1:r1:debit"))
	assert.Equal(t, time.Minute, mr.TTL("credits:applied:u1:r1:debit"))
}

func TestMemoryLedgerHonoursContext(t *testing.T) {
	ledger := services.NewMemoryLedger(10, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ledger.Debit(ctx, "u1", 1, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRequestRegistryClaims(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	registries := map[string]services.RequestRegistry{
		"memory": services.NewMemoryRequestRegistry(time.Hour),
		"redis":  services.NewRedisRequestRegistry(client, "credits", time.Hour),
	}
	ctx := context.Background()
	for name, registry := range registries {
		t.Run(name, func(t *testing.T) {
			ok, err := registry.Claim(ctx, "u1", "r1")
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = registry.Claim(ctx, "u1", "r1")
			require.NoError(t, err)
			assert.False(t, ok, "a request id is claimed once")

			ok, err = registry.Claim(ctx, "u2", "r1")
			require.NoError(t, err)
			assert.True(t, ok, "claims are per user")

			require.NoError(t, registry.Release(ctx, "u1", "r1"))
			ok, err = registry.Claim(ctx, "u1", "r1")
			require.NoError(t, err)
			assert.True(t, ok, "a released id can be claimed again")
		})
	}
	assert.Equal(t, time.Hour, mr.TTL("credits:started:u1:r1"))
}
