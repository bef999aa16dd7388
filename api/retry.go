// Copyright 2025 Nguyen Nhat Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"math"
	"slices"
	"time"
)

// Retry defaults applied to zero fields of a RetryPolicy.
const (
	DefaultRetryInitialInterval    = time.Second
	DefaultRetryBackoffCoefficient = 2.0
	defaultRetryMaxIntervalFactor  = 100
)

// NextDelay returns the backoff before attempt+1 after attempt attempts
// (1-based): InitialInterval * BackoffCoefficient^(attempt-1), capped at
// MaximumInterval.
func (p *RetryPolicy) NextDelay(attempt int32) time.Duration {
	initialInterval := DefaultRetryInitialInterval
	backoffCoefficient := DefaultRetryBackoffCoefficient
	var maxInterval time.Duration
	if p != nil {
		if p.InitialInterval > 0 {
			initialInterval = p.InitialInterval
		}
		if p.BackoffCoefficient > 0 {
			backoffCoefficient = p.BackoffCoefficient
		}
		maxInterval = p.MaximumInterval
	}
	if maxInterval == 0 {
		maxInterval = defaultRetryMaxIntervalFactor * initialInterval
	}
	if attempt < 1 {
		attempt = 1
	}

	nextDelay := float64(initialInterval) * math.Pow(backoffCoefficient, float64(attempt-1))
	// Pow overflows to +Inf for large attempts.
	if math.IsInf(nextDelay, 0) || nextDelay > float64(maxInterval) {
		return maxInterval
	}
	return time.Duration(nextDelay)
}

// ShouldRetry reports whether another attempt is allowed after attempt
// attempts failed with failure. A nil policy never retries.
func (p *RetryPolicy) ShouldRetry(attempt int32, failure *Failure) bool {
	if p == nil {
		return false
	}
	if p.MaximumAttempts > 0 && attempt >= p.MaximumAttempts {
		return false
	}
	if failure == nil {
		return true
	}
	if failure.NonRetryable {
		return false
	}
	switch failure.Kind {
	case FailureKindCanceled, FailureKindTerminated:
		return false
	case FailureKindTimeout:
		if failure.TimeoutType == TimeoutTypeScheduleToClose {
			return false
		}
	}
	return !slices.Contains(p.NonRetryableErrorTypes, failure.Type)
}
