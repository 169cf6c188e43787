/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package ledger defines the provider contracts and wire structures used to
// interact with the permissioned ledger network. Implementations live in the
// subpackages; mocks for testing live in the mocks subpackage.
package ledger

import (
	"context"
)

// Identity is the resolved ledger identity of a logical tenant. It is
// immutable once returned by an IdentityProvider; rotation is handled by
// invalidating the provider's cache entry, never by mutating an Identity.
type Identity struct {
	// Tenant is the logical tenant the identity was resolved for
	Tenant string
	// MSPID is the membership service provider (organization) identifier
	MSPID string
	// Channel is the ledger channel the tenant operates on
	Channel string
	// EnrollmentCert is the signing certificate (PEM)
	EnrollmentCert []byte
	// KeyRef references the signing key held by the external key store
	KeyRef string
}

// SignedProposal is a transaction proposal addressed by channel, chaincode,
// function name and string-encoded arguments
type SignedProposal struct {
	TxID      string   `json:"txId"`
	Channel   string   `json:"channel"`
	Chaincode string   `json:"chaincode"`
	Fn        string   `json:"fn"`
	Args      []string `json:"args"`
	Creator   string   `json:"creator"`
	Nonce     []byte   `json:"nonce"`
	Signature []byte   `json:"signature,omitempty"`
}

// ProposalResponse is an endorsing peer's response to a simulated proposal.
// Payload is an opaque byte sequence; the gateway does not assume a schema.
type ProposalResponse struct {
	TxID        string `json:"txId"`
	Status      int32  `json:"status"`
	Message     string `json:"message,omitempty"`
	Payload     []byte `json:"payload,omitempty"`
	Endorser    string `json:"endorser"`
	Endorsement []byte `json:"endorsement,omitempty"`
}

// Envelope is an endorsed transaction submitted to the ordering service
type Envelope struct {
	TxID         string          `json:"txId"`
	Channel      string          `json:"channel"`
	Proposal     *SignedProposal `json:"proposal"`
	Endorsements [][]byte        `json:"endorsements"`
	Payload      []byte          `json:"payload,omitempty"`
}

// BroadcastResponse is the ordering service's acknowledgement of a broadcast
type BroadcastResponse struct {
	Status int32  `json:"status"`
	Info   string `json:"info,omitempty"`
}

// CommitEvent reports that an ordered transaction was committed to the ledger
type CommitEvent struct {
	TxID           string `json:"txId"`
	BlockNumber    uint64 `json:"blockNumber"`
	ValidationCode int32  `json:"validationCode"`
}

// Endorser simulates proposals against one peer's local state
type Endorser interface {
	// ProcessProposal sends the proposal to the peer for simulation and
	// endorsement. A non-nil response may accompany a non-nil error when the
	// peer rejected the proposal with a server status.
	ProcessProposal(ctx context.Context, proposal *SignedProposal) (*ProposalResponse, error)
}

// Broadcaster submits endorsed envelopes to the ordering service
type Broadcaster interface {
	Broadcast(ctx context.Context, envelope *Envelope) (*BroadcastResponse, error)
}

// CommitWaiter waits for an ordered transaction to be committed
type CommitWaiter interface {
	// WaitForCommit blocks until the transaction identified by txID is
	// committed on the channel, or the context is done
	WaitForCommit(ctx context.Context, channel string, txID string) (*CommitEvent, error)
}

// IdentityProvider resolves tenant identities with caching
type IdentityProvider interface {
	// ResolveIdentity returns the ledger identity of the tenant
	ResolveIdentity(ctx context.Context, tenant string) (*Identity, error)
	// Invalidate discards any cached identity for the tenant. It is called on
	// a credential-rotation signal from the external secret store.
	Invalidate(tenant string)
	// Count returns the number of currently cached identities
	Count() int
}
