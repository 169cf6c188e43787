/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package futurevalue

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Initializer initializes the value
type Initializer func() (interface{}, error)

// Value implements a Future Value in which a reference is initialized once
// (and only once) using the Initialize function. Only one Go routine may call
// Initialize whereas multiple Go routines may invoke Get, and will wait
// until the reference has been initialized or their context is done.
// Regardless of whether Initialize returns success or error,
// the value cannot be initialized again.
type Value struct {
	initializer Initializer
	done        chan struct{}
	value       interface{}
	err         error
	set         int32
}

// New returns a new future value
func New(initializer Initializer) *Value {
	return &Value{
		initializer: initializer,
		done:        make(chan struct{}),
	}
}

// Initialize initializes the future value and releases all waiters.
// This function must be called only once.
func (f *Value) Initialize() (interface{}, error) {
	value, err := f.initializer()
	f.value = value
	f.err = err
	atomic.StoreInt32(&f.set, 1)
	close(f.done)

	return value, err
}

// Get returns the value and/or error that occurred during initialization,
// waiting for the value to be set if necessary. If the context is done before
// the value is set, the context error is returned and the value remains
// pending for other waiters.
func (f *Value) Get(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, errors.WithMessage(ctx.Err(), "timed out waiting for value")
	}
}

// MustGet returns the value without waiting. It panics if the value has not
// been set or if an error resulted during initialization.
func (f *Value) MustGet() interface{} {
	if !f.IsSet() {
		panic("value is not set")
	}
	if f.err != nil {
		panic("get returned error: " + f.err.Error())
	}
	return f.value
}

// IsSet returns true if the value has been set, otherwise false is returned
func (f *Value) IsSet() bool {
	return atomic.LoadInt32(&f.set) == 1
}
