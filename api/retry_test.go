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
	"testing"
	"time"
)

func TestRetryPolicy_NextDelay(t *testing.T) {
	tests := []struct {
		name    string
		policy  *RetryPolicy
		attempt int32
		want    time.Duration
	}{
		{"nil policy uses defaults", nil, 1, time.Second},
		{"defaults double", nil, 3, 4 * time.Second},
		{"defaults cap at 100x initial", nil, 20, 100 * time.Second},
		{"first attempt is the initial interval", &RetryPolicy{InitialInterval: 500 * time.Millisecond, BackoffCoefficient: 3}, 1, 500 * time.Millisecond},
		{"coefficient applied", &RetryPolicy{InitialInterval: 500 * time.Millisecond, BackoffCoefficient: 3}, 3, 4500 * time.Millisecond},
		{"maximum interval caps", &RetryPolicy{InitialInterval: time.Second, BackoffCoefficient: 2, MaximumInterval: 5 * time.Second}, 4, 5 * time.Second},
		{"overflow caps", &RetryPolicy{InitialInterval: time.Second, BackoffCoefficient: 10, MaximumInterval: time.Hour}, 1000, time.Hour},
		{"attempt below one treated as first", &RetryPolicy{InitialInterval: time.Second}, 0, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.NextDelay(tt.attempt); got != tt.want {
				t.Errorf("NextDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	policy := &RetryPolicy{MaximumAttempts: 3, NonRetryableErrorTypes: []string{"ValidationError"}}

	tests := []struct {
		name    string
		policy  *RetryPolicy
		attempt int32
		failure *Failure
		want    bool
	}{
		{"nil policy never retries", nil, 1, &Failure{Kind: FailureKindApplication}, false},
		{"application failure retried", policy, 1, &Failure{Kind: FailureKindApplication, Type: "IOError"}, true},
		{"attempts exhausted", policy, 3, &Failure{Kind: FailureKindApplication}, false},
		{"unlimited attempts", &RetryPolicy{}, 50, &Failure{Kind: FailureKindApplication}, true},
		{"non retryable flag", policy, 1, &Failure{Kind: FailureKindApplication, NonRetryable: true}, false},
		{"non retryable type", policy, 1, &Failure{Kind: FailureKindApplication, Type: "ValidationError"}, false},
		{"canceled", policy, 1, &Failure{Kind: FailureKindCanceled}, false},
		{"terminated", policy, 1, &Failure{Kind: FailureKindTerminated}, false},
		{"start to close timeout retried", policy, 1, &Failure{Kind: FailureKindTimeout, TimeoutType: TimeoutTypeStartToClose}, true},
		{"schedule to close timeout final", policy, 1, &Failure{Kind: FailureKindTimeout, TimeoutType: TimeoutTypeScheduleToClose}, false},
		{"nil failure", policy, 1, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.ShouldRetry(tt.attempt, tt.failure); got != tt.want {
				t.Errorf("ShouldRetry(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}
