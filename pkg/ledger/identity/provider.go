/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package identity resolves the ledger identity of logical tenants with a
// read-through TTL cache. Credential material itself is held by an external
// store; the gateway only caches the resolved, immutable identity.
package identity

import (
	reqContext "context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/finclarity/settlement-gateway/pkg/common/errors/status"
	"github.com/finclarity/settlement-gateway/pkg/common/logging"
	"github.com/finclarity/settlement-gateway/pkg/ledger"
	"github.com/finclarity/settlement-gateway/pkg/util/concurrent/lazyref"
)

var logger = logging.NewLogger("gateway/identity")

// CredentialStore loads credential material for a tenant from the external
// secret store
type CredentialStore interface {
	Load(tenant string) (*ledger.Identity, error)
}

// Provider implements ledger.IdentityProvider with per-tenant TTL caching.
// Cache entries expire on the configured TTL and are force-invalidated by
// Invalidate when the secret store signals a credential rotation.
type Provider struct {
	store    CredentialStore
	cacheTTL time.Duration
	lock     sync.Mutex
	cache    map[string]*lazyref.Reference
	closed   bool
}

// NewProvider returns a caching identity provider over the given store
func NewProvider(store CredentialStore, cacheTTL time.Duration) *Provider {
	return &Provider{
		store:    store,
		cacheTTL: cacheTTL,
		cache:    make(map[string]*lazyref.Reference),
	}
}

// ResolveIdentity returns the ledger identity of the tenant, resolving and
// caching it on first use
func (p *Provider) ResolveIdentity(ctx reqContext.Context, tenant string) (*ledger.Identity, error) {
	if tenant == "" {
		return nil, identityError("tenant is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, status.New(status.ClientStatus, status.Cancelled.ToInt32(), err.Error(), nil)
	}

	ref, err := p.ref(tenant)
	if err != nil {
		return nil, err
	}

	value, err := ref.Get()
	if err != nil {
		logger.Debugf("Resolving identity for tenant [%s] failed: %s", tenant, err)
		return nil, identityError(errors.WithMessagef(err, "resolving identity for tenant %s failed", tenant).Error())
	}

	return value.(*ledger.Identity), nil
}

func (p *Provider) ref(tenant string) (*lazyref.Reference, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return nil, errors.New("identity provider is closed")
	}

	ref, ok := p.cache[tenant]
	if !ok {
		ref = lazyref.New(
			func() (interface{}, error) {
				return p.load(tenant)
			},
			lazyref.WithExpiration(p.cacheTTL),
		)
		p.cache[tenant] = ref
	}
	return ref, nil
}

func (p *Provider) load(tenant string) (interface{}, error) {
	identity, err := p.store.Load(tenant)
	if err != nil {
		return nil, err
	}
	if identity.MSPID == "" || identity.Channel == "" {
		return nil, errors.Errorf("incomplete credentials for tenant %s", tenant)
	}
	if identity.Tenant == "" {
		identity.Tenant = tenant
	}
	return identity, nil
}

// Invalidate discards the cached identity for the tenant so that the next
// resolution reloads from the credential store
func (p *Provider) Invalidate(tenant string) {
	p.lock.Lock()
	ref, ok := p.cache[tenant]
	p.lock.Unlock()

	if ok {
		logger.Infof("Invalidating cached identity for tenant [%s]", tenant)
		ref.Reset()
	}
}

// Count returns the number of currently cached identities
func (p *Provider) Count() int {
	p.lock.Lock()
	defer p.lock.Unlock()

	count := 0
	for _, ref := range p.cache {
		if ref.IsSet() {
			count++
		}
	}
	return count
}

// Close releases all cached identities
func (p *Provider) Close() {
	p.lock.Lock()
	defer p.lock.Unlock()

	for _, ref := range p.cache {
		ref.Close()
	}
	p.cache = make(map[string]*lazyref.Reference)
	p.closed = true
}

func identityError(msg string) *status.Status {
	return status.New(status.ClientStatus, status.IdentityUnresolved.ToInt32(), msg, nil)
}

// StaticStore is a CredentialStore backed by an in-process map. It serves
// deployments where tenant credentials are provisioned at startup, and tests.
type StaticStore struct {
	lock       sync.RWMutex
	identities map[string]*ledger.Identity
}

// NewStaticStore returns an empty static credential store
func NewStaticStore() *StaticStore {
	return &StaticStore{identities: make(map[string]*ledger.Identity)}
}

// Register adds or replaces the identity for a tenant
func (s *StaticStore) Register(identity *ledger.Identity) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.identities[identity.Tenant] = identity
}

// Load implements CredentialStore
func (s *StaticStore) Load(tenant string) (*ledger.Identity, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	identity, ok := s.identities[tenant]
	if !ok {
		return nil, errors.Errorf("no credentials registered for tenant %s", tenant)
	}
	return identity, nil
}
