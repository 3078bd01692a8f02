// Copyright (C) 2025 timevault.app <dev@timevault.app>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package redis holds the Redis-backed password attempt limiter. Shares
// have no account behind them, so the access code is the only thing a
// guess budget can hang off; Redis keeps the counters shared across
// replicas and they expire on their own.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const attemptPrefix = "share:attempts:" // share:attempts:{accessCode}

type AttemptLimiter struct {
	rdb    *redis.Client
	max    int
	window time.Duration
}

func NewAttemptLimiter(rdb *redis.Client, max int, window time.Duration) *AttemptLimiter {
	return &AttemptLimiter{rdb: rdb, max: max, window: window}
}

// Allow reports whether another password attempt for this access code is
// inside the budget. The counter starts its window on the first failure.
func (l *AttemptLimiter) Allow(ctx context.Context, accessCode string) (bool, error) {
	count, err := l.rdb.Get(ctx, attemptPrefix+accessCode).Int()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read attempt counter: %w", err)
	}
	return count < l.max, nil
}

// RecordFailure bumps the counter for a wrong password.
func (l *AttemptLimiter) RecordFailure(ctx context.Context, accessCode string) error {
	key := attemptPrefix + accessCode
	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to bump attempt counter: %w", err)
	}
	if count == 1 {
		l.rdb.Expire(ctx, key, l.window)
	}
	return nil
}

// Reset clears the counter after a correct password.
func (l *AttemptLimiter) Reset(ctx context.Context, accessCode string) error {
	return l.rdb.Del(ctx, attemptPrefix+accessCode).Err()
}
