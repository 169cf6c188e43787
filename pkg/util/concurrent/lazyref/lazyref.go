/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package lazyref

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Initializer is a function that initializes the value
type Initializer func() (interface{}, error)

// Finalizer is a function that is called when a value is discarded,
// either because it expired or because the reference was closed
type Finalizer func(value interface{})

// Reference holds a value that is initialized on first access using the
// provided Initializer function. The Reference has an optional expiring
// feature wherein the value is discarded after the provided period of time
// and a subsequent call to Get causes the Initializer function to be invoked
// again. Reset may be called to discard the value ahead of its expiration,
// which is how externally-signalled credential rotation is handled.
type Reference struct {
	lock        sync.Mutex
	initializer Initializer
	finalizer   Finalizer
	expiration  time.Duration
	value       interface{}
	initialized bool
	initTime    time.Time
	closed      bool
}

// Opt is a reference option
type Opt func(ref *Reference)

// WithFinalizer sets a finalizer that is invoked with the old value
// whenever the value is discarded
func WithFinalizer(finalizer Finalizer) Opt {
	return func(ref *Reference) {
		ref.finalizer = finalizer
	}
}

// WithExpiration sets the expiration period of the value. A zero
// expiration means the value never expires.
func WithExpiration(expiration time.Duration) Opt {
	return func(ref *Reference) {
		ref.expiration = expiration
	}
}

// New creates a new reference
func New(initializer Initializer, opts ...Opt) *Reference {
	ref := &Reference{
		initializer: initializer,
	}
	for _, opt := range opts {
		opt(ref)
	}
	return ref
}

// Get returns the value, initializing it if necessary. If the value has
// expired then it is discarded and initialized again.
func (r *Reference) Get() (interface{}, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.closed {
		return nil, errors.New("reference is closed")
	}

	if r.initialized && !r.expired() {
		return r.value, nil
	}

	r.discard()

	value, err := r.initializer()
	if err != nil {
		return nil, err
	}

	r.value = value
	r.initialized = true
	r.initTime = time.Now()

	return value, nil
}

// MustGet returns the value. If an error resulted
// during initialization then this function will panic.
func (r *Reference) MustGet() interface{} {
	value, err := r.Get()
	if err != nil {
		panic("get returned error: " + err.Error())
	}
	return value
}

// Reset discards the current value (if any) so that the next call
// to Get invokes the initializer again
func (r *Reference) Reset() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.discard()
}

// IsSet returns true if a current, unexpired value is held
func (r *Reference) IsSet() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.initialized && !r.expired()
}

// Close discards the value and marks the reference unusable
func (r *Reference) Close() {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.closed {
		return
	}
	r.discard()
	r.closed = true
}

func (r *Reference) expired() bool {
	return r.expiration > 0 && time.Since(r.initTime) >= r.expiration
}

// discard must be called with the lock held
func (r *Reference) discard() {
	if r.initialized && r.finalizer != nil {
		r.finalizer(r.value)
	}
	r.value = nil
	r.initialized = false
}
