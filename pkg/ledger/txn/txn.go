/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package txn assembles transaction proposals and endorsed envelopes.
package txn

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/finclarity/settlement-gateway/pkg/common/errors/status"
	"github.com/finclarity/settlement-gateway/pkg/ledger"
)

// NewNonce returns a random nonce for a transaction header
func NewNonce() []byte {
	id := uuid.New()
	return id[:]
}

// NewID computes a transaction ID from the creator and nonce
func NewID(creator string, nonce []byte) string {
	h := sha256.New()
	h.Write(nonce)
	h.Write([]byte(creator))
	return hex.EncodeToString(h.Sum(nil))
}

// NewProposal creates a signed proposal for the given identity, addressed by
// channel, chaincode, function name and string arguments
func NewProposal(identity *ledger.Identity, chaincode string, fn string, args []string) (*ledger.SignedProposal, error) {
	if identity == nil {
		return nil, errors.New("identity is required")
	}
	if fn == "" {
		return nil, errors.New("function name is required")
	}

	nonce := NewNonce()
	creator := identity.MSPID + "/" + identity.Tenant

	return &ledger.SignedProposal{
		TxID:      NewID(creator, nonce),
		Channel:   identity.Channel,
		Chaincode: chaincode,
		Fn:        fn,
		Args:      args,
		Creator:   creator,
		Nonce:     nonce,
	}, nil
}

// NewEnvelope builds an ordering-service envelope from a proposal and the
// endorsements collected for it. The proposal simulations must agree: peers
// returning divergent payloads indicate non-deterministic chaincode or a
// byzantine peer, and the transaction must not be submitted.
func NewEnvelope(proposal *ledger.SignedProposal, responses []*ledger.ProposalResponse) (*ledger.Envelope, error) {
	if len(responses) == 0 {
		return nil, status.New(status.EndorserClientStatus, status.MissingEndorsement.ToInt32(),
			"no endorsements were collected", nil)
	}

	payload := responses[0].Payload
	endorsements := make([][]byte, 0, len(responses))
	for _, r := range responses {
		if !bytes.Equal(payload, r.Payload) {
			return nil, status.New(status.EndorserClientStatus, status.EndorsementMismatch.ToInt32(),
				"endorsing peers returned different results", []interface{}{responses[0].Endorser, r.Endorser})
		}
		endorsements = append(endorsements, r.Endorsement)
	}

	return &ledger.Envelope{
		TxID:         proposal.TxID,
		Channel:      proposal.Channel,
		Proposal:     proposal,
		Endorsements: endorsements,
		Payload:      payload,
	}, nil
}
