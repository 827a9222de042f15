// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package peer

import (
	"math/rand"
	"time"
)

// backoffBase is the first retry delay, doubled for every subsequent failed attempt.
const backoffBase = time.Second

// backoffCap bounds how large an un-jittered delay is allowed to grow before jitter is applied.
const backoffCap = 60 * time.Second

// nextBackoff returns the delay to wait before the next connection attempt, given the number of consecutive
// failures observed so far. It implements "full jitter", as described by the AWS Architecture Blog's exponential
// backoff article: the un-jittered delay doubles with every attempt up to backoffCap, and the actual delay
// returned is chosen uniformly at random between zero and that bound. Full jitter avoids the thundering-herd
// reconnect pattern a fixed or capped-only backoff produces when many peers fail at once.
func nextBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	bound := backoffBase
	for i := 0; i < attempt && bound < backoffCap; i++ {
		bound *= 2
	}
	if bound > backoffCap {
		bound = backoffCap
	}

	return time.Duration(rand.Int63n(int64(bound) + 1))
}
