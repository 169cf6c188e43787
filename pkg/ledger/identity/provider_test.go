/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finclarity/settlement-gateway/pkg/common/errors/status"
	"github.com/finclarity/settlement-gateway/pkg/ledger"
)

// countingStore wraps a StaticStore and counts loads
type countingStore struct {
	store *StaticStore
	loads int
}

func (s *countingStore) Load(tenant string) (*ledger.Identity, error) {
	s.loads++
	return s.store.Load(tenant)
}

func newTestStore() *countingStore {
	store := NewStaticStore()
	store.Register(&ledger.Identity{
		Tenant:  "acme",
		MSPID:   "AcmeMSP",
		Channel: "settlement",
		KeyRef:  "kms://acme-signer",
	})
	return &countingStore{store: store}
}

func TestResolveIdentityCaches(t *testing.T) {
	store := newTestStore()
	provider := NewProvider(store, time.Minute)
	defer provider.Close()

	for i := 0; i < 5; i++ {
		id, err := provider.ResolveIdentity(context.Background(), "acme")
		require.NoError(t, err)
		assert.Equal(t, "AcmeMSP", id.MSPID)
		assert.Equal(t, "settlement", id.Channel)
	}

	assert.Equal(t, 1, store.loads, "repeated resolutions must be served from cache")
	assert.Equal(t, 1, provider.Count())
}

func TestResolveIdentityUnknownTenant(t *testing.T) {
	provider := NewProvider(newTestStore(), time.Minute)
	defer provider.Close()

	_, err := provider.ResolveIdentity(context.Background(), "ghost")
	require.Error(t, err)

	s, ok := status.FromError(err)
	require.True(t, ok)
	assert.EqualValues(t, status.IdentityUnresolved, status.Code(s.Code))
}

func TestResolveIdentityEmptyTenant(t *testing.T) {
	provider := NewProvider(newTestStore(), time.Minute)
	defer provider.Close()

	_, err := provider.ResolveIdentity(context.Background(), "")
	require.Error(t, err)
}

func TestResolveIdentityIncompleteCredentials(t *testing.T) {
	store := NewStaticStore()
	store.Register(&ledger.Identity{Tenant: "broken", MSPID: "BrokenMSP"})

	provider := NewProvider(&countingStore{store: store}, time.Minute)
	defer provider.Close()

	_, err := provider.ResolveIdentity(context.Background(), "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incomplete credentials")
}

func TestInvalidateForcesReload(t *testing.T) {
	store := newTestStore()
	provider := NewProvider(store, time.Minute)
	defer provider.Close()

	_, err := provider.ResolveIdentity(context.Background(), "acme")
	require.NoError(t, err)

	provider.Invalidate("acme")
	assert.Equal(t, 0, provider.Count())

	_, err = provider.ResolveIdentity(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, store.loads, "invalidation must force a reload from the store")
}

func TestCacheExpiry(t *testing.T) {
	store := newTestStore()
	provider := NewProvider(store, 10*time.Millisecond)
	defer provider.Close()

	_, err := provider.ResolveIdentity(context.Background(), "acme")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = provider.ResolveIdentity(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, store.loads)
}

func TestResolveIdentityCancelledContext(t *testing.T) {
	provider := NewProvider(newTestStore(), time.Minute)
	defer provider.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.ResolveIdentity(ctx, "acme")
	require.Error(t, err)

	s, ok := status.FromError(err)
	require.True(t, ok)
	assert.EqualValues(t, status.Cancelled, status.Code(s.Code))
}

func TestProviderClosed(t *testing.T) {
	provider := NewProvider(newTestStore(), time.Minute)
	provider.Close()

	_, err := provider.ResolveIdentity(context.Background(), "acme")
	require.Error(t, err)
}
