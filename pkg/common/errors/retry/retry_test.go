/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package retry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finclarity/settlement-gateway/pkg/common/errors/status"
)

func transientError() error {
	return status.New(status.TestStatus, status.GenericTransient.ToInt32(), "temporary outage", nil)
}

func fastOpts(attempts int) Opts {
	return Opts{
		Attempts:       attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestRequiredExhaustsAttempts(t *testing.T) {
	handler := New(fastOpts(3))

	for i := 0; i < 3; i++ {
		assert.True(t, handler.Required(transientError()), "attempt %d should be retryable", i)
	}
	assert.False(t, handler.Required(transientError()), "budget should be exhausted")
}

func TestRequiredNonRetryable(t *testing.T) {
	handler := New(fastOpts(3))

	commitTimeout := status.New(status.CommitStatus, status.CommitTimeout.ToInt32(), "ambiguous", nil)
	assert.False(t, handler.Required(commitTimeout), "ambiguous outcomes must never be retried")

	validation := status.New(status.ClientStatus, status.ValidationFailed.ToInt32(), "bad input", nil)
	assert.False(t, handler.Required(validation))

	assert.False(t, handler.Required(errors.New("untyped")))
}

func TestBackoffJitterBounds(t *testing.T) {
	h := &impl{opts: fastOpts(5)}

	// first retry uses the initial backoff, jittered by +/-50%
	for i := 0; i < 50; i++ {
		period := h.backoffPeriod()
		assert.GreaterOrEqual(t, period, 500*time.Microsecond)
		assert.LessOrEqual(t, period, 1500*time.Microsecond)
	}

	// deep into the schedule the period is capped at MaxBackoff before jitter
	h.retries = 10
	for i := 0; i < 50; i++ {
		period := h.backoffPeriod()
		assert.LessOrEqual(t, period, 6*time.Millisecond)
	}
}

func TestInvokerSucceedsAfterTransientErrors(t *testing.T) {
	attempts := 0
	retried := 0

	invoker := NewInvoker(New(fastOpts(5)), WithBeforeRetry(func(error) { retried++ }))
	value, err := invoker.Invoke(context.Background(), func() (interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, transientError()
		}
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", value)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2, retried)
}

func TestInvokerStopsOnNonRetryable(t *testing.T) {
	attempts := 0

	invoker := NewInvoker(New(fastOpts(5)))
	_, err := invoker.Invoke(context.Background(), func() (interface{}, error) {
		attempts++
		return nil, status.New(status.ChaincodeStatus, 409, "insufficient funds", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestInvokerPrefersAttemptErrorOverExpiredContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	commitTimeout := status.New(status.CommitStatus, status.CommitTimeout.ToInt32(),
		"commit wait deadline elapsed", []interface{}{"tx-42"})

	invoker := NewInvoker(New(fastOpts(5)))
	_, err := invoker.Invoke(ctx, func() (interface{}, error) {
		return nil, commitTimeout
	})

	// the ambiguous classification must survive: callers rely on it to flag
	// the outcome for reconciliation
	require.Error(t, err)
	s, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, status.CommitStatus, s.Group)
	assert.EqualValues(t, status.CommitTimeout, status.Code(s.Code))
	assert.Equal(t, []interface{}{"tx-42"}, s.Details)
}

func TestInvokerReturnsValueWithError(t *testing.T) {
	invoker := NewInvoker(New(fastOpts(3)))
	value, err := invoker.Invoke(context.Background(), func() (interface{}, error) {
		return "partial result", status.New(status.OrdererServerStatus, status.ServerBadRequest,
			"malformed envelope", nil)
	})

	require.Error(t, err)
	assert.Equal(t, "partial result", value, "the failed attempt's value must be preserved")
}

func TestInvokerHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	invoker := NewInvoker(New(fastOpts(5)))
	_, err := invoker.Invoke(ctx, func() (interface{}, error) {
		attempts++
		cancel()
		return nil, transientError()
	})

	require.Error(t, err)
	s, ok := status.FromError(err)
	require.True(t, ok)
	assert.EqualValues(t, status.Cancelled, status.Code(s.Code))
	assert.Equal(t, 1, attempts, "no attempt may follow a cancellation")
}
