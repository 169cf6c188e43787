/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package futurevalue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetReleasesAllWaiters(t *testing.T) {
	fv := New(func() (interface{}, error) {
		return "value", nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := fv.Get(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "value", value)
		}()
	}

	value, err := fv.Initialize()
	require.NoError(t, err)
	assert.Equal(t, "value", value)

	wg.Wait()
	assert.True(t, fv.IsSet())
}

func TestGetTimesOut(t *testing.T) {
	fv := New(func() (interface{}, error) {
		return "value", nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := fv.Get(ctx)
	require.Error(t, err)
	assert.False(t, fv.IsSet())
}

func TestInitializeError(t *testing.T) {
	fv := New(func() (interface{}, error) {
		return nil, errors.New("init failed")
	})

	_, err := fv.Initialize()
	require.Error(t, err)

	// waiters observe the same error
	_, err = fv.Get(context.Background())
	require.EqualError(t, err, "init failed")
	assert.True(t, fv.IsSet())
}

func TestMustGetPanicsWhenUnset(t *testing.T) {
	fv := New(func() (interface{}, error) {
		return "value", nil
	})
	assert.Panics(t, func() { fv.MustGet() })

	_, err := fv.Initialize()
	require.NoError(t, err)
	assert.Equal(t, "value", fv.MustGet())
}
