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
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// ErrInsufficientCredit is returned by a debit that would take a balance
// below zero, and wrapped by a start request the caller cannot afford.
var ErrInsufficientCredit = errors.New("insufficient credit")

// ErrAlreadyApplied is returned with the unchanged balance when a debit or
// credit key was applied before.
var ErrAlreadyApplied = errors.New("ledger key already applied")

// InsufficientCreditMessage is shown when a start request costs more than the
// caller's balance. The arguments are the cost and the balance.
const InsufficientCreditMessage = "⚠️ เครดิตไม่พอครับ! ต้องใช้ %d เครดิต แต่มีแค่ %d"

// Ledger holds per-user credit balances.
//
// Debit and Credit are idempotent by key: a key that was already applied
// leaves the balance untouched and returns it together with
// ErrAlreadyApplied. Users that were never seen start with the configured
// starting balance.
type Ledger interface {
	Balance(ctx context.Context, userID string) (int, error)
	Debit(ctx context.Context, userID string, amount int, key string) (int, error)
	Credit(ctx context.Context, userID string, amount int, key string) (int, error)
}

// DebitKey and RefundKey derive the idempotency keys of a run from its
// request id, so a redelivered request cannot charge or refund twice.
func DebitKey(requestID string) string  { return requestID + ":debit" }
func RefundKey(requestID string) string { return requestID + ":refund" }

// MemoryLedger keeps balances in process. It is used when no Redis address is
// configured and in tests.
type MemoryLedger struct {
	mu              sync.Mutex
	balances        *cache.Cache
	applied         *cache.Cache
	startingBalance int
}

// NewMemoryLedger creates a ledger where new users start with
// startingBalance credits and idempotency keys are remembered for ttl.
func NewMemoryLedger(startingBalance int, ttl time.Duration) *MemoryLedger {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &MemoryLedger{
		balances:        cache.New(cache.NoExpiration, 0),
		applied:         cache.New(ttl, ttl),
		startingBalance: startingBalance,
	}
}

func (l *MemoryLedger) Balance(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(userID), nil
}

func (l *MemoryLedger) Debit(ctx context.Context, userID string, amount int, key string) (int, error) {
	if amount < 0 {
		return 0, fmt.Errorf("debit amount must not be negative: %d", amount)
	}
	return l.apply(ctx, userID, -amount, key)
}

func (l *MemoryLedger) Credit(ctx context.Context, userID string, amount int, key string) (int, error) {
	if amount < 0 {
		return 0, fmt.Errorf("credit amount must not be negative: %d", amount)
	}
	return l.apply(ctx, userID, amount, key)
}

func (l *MemoryLedger) apply(ctx context.Context, userID string, delta int, key string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.balance(userID)
	appliedKey := userID + "/" + key
	if key != "" {
		if _, found := l.applied.Get(appliedKey); found {
			return balance, ErrAlreadyApplied
		}
	}
	if balance+delta < 0 {
		return balance, ErrInsufficientCredit
	}
	balance += delta
	l.balances.Set(userID, balance, cache.NoExpiration)
	if key != "" {
		l.applied.Set(appliedKey, struct{}{}, cache.DefaultExpiration)
	}
	return balance, nil
}

func (l *MemoryLedger) balance(userID string) int {
	if v, found := l.balances.Get(userID); found {
		return v.(int)
	}
	return l.startingBalance
}
