/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	reqContext "context"

	"github.com/pkg/errors"

	"github.com/finclarity/settlement-gateway/pkg/ledger"
	"github.com/finclarity/settlement-gateway/pkg/ledger/comm"
	"github.com/finclarity/settlement-gateway/pkg/ledger/peer"
	"github.com/finclarity/settlement-gateway/pkg/ledger/pool"
)

// poolEndorserProvider leases endorser clients from the connection pool for
// the duration of an invocation. Every acquired handle is released when the
// invocation returns, regardless of success, failure or cancellation.
type poolEndorserProvider struct {
	pool *pool.Pool

	// fullSet is the number of endorsers a policy-complete endorsement
	// requires, normally the number of configured peers
	fullSet int
}

func newPoolEndorserProvider(p *pool.Pool, fullSet int) *poolEndorserProvider {
	if fullSet < 1 {
		fullSet = 1
	}
	return &poolEndorserProvider{pool: p, fullSet: fullSet}
}

// WithEndorsers acquires up to count pooled connections and invokes fn with
// endorsers bound to them. A count < 1 requests the full policy-required set.
func (p *poolEndorserProvider) WithEndorsers(ctx reqContext.Context, count int, fn func([]ledger.Endorser) error) error {
	if count < 1 || count > p.fullSet {
		count = p.fullSet
	}

	handles := make([]*pool.Handle, 0, count)
	defer func() {
		for _, h := range handles {
			p.pool.Release(h)
		}
	}()

	endorsers := make([]ledger.Endorser, 0, count)
	for len(endorsers) < count {
		h, err := p.pool.Acquire(ctx)
		if err != nil {
			return err
		}
		handles = append(handles, h)

		conn, ok := h.Conn().(*comm.GRPCConnection)
		if !ok {
			return errors.Errorf("pooled connection to %s does not carry a gRPC transport", h.Conn().Target())
		}
		endorsers = append(endorsers, peer.New(conn))
	}

	return fn(endorsers)
}
