/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finclarity/settlement-gateway/pkg/common/errors/status"
	"github.com/finclarity/settlement-gateway/pkg/ledger"
)

func testIdentity() *ledger.Identity {
	return &ledger.Identity{
		Tenant:  "acme",
		MSPID:   "AcmeMSP",
		Channel: "settlement",
	}
}

func TestNewID(t *testing.T) {
	nonce := []byte("fixed-nonce")

	id1 := NewID("AcmeMSP/acme", nonce)
	id2 := NewID("AcmeMSP/acme", nonce)
	assert.Equal(t, id1, id2, "same creator and nonce must produce the same id")
	assert.Len(t, id1, 64)

	assert.NotEqual(t, id1, NewID("OtherMSP/acme", nonce))
	assert.NotEqual(t, id1, NewID("AcmeMSP/acme", []byte("other-nonce")))
}

func TestNewProposal(t *testing.T) {
	proposal, err := NewProposal(testIdentity(), "settlecc", "Transfer", []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, "settlement", proposal.Channel)
	assert.Equal(t, "settlecc", proposal.Chaincode)
	assert.Equal(t, "Transfer", proposal.Fn)
	assert.Equal(t, []string{"a", "b"}, proposal.Args)
	assert.Equal(t, "AcmeMSP/acme", proposal.Creator)
	assert.NotEmpty(t, proposal.Nonce)
	assert.Equal(t, NewID(proposal.Creator, proposal.Nonce), proposal.TxID)
}

func TestNewProposalValidation(t *testing.T) {
	_, err := NewProposal(nil, "settlecc", "Transfer", nil)
	assert.Error(t, err)

	_, err = NewProposal(testIdentity(), "settlecc", "", nil)
	assert.Error(t, err)
}

func TestNewEnvelope(t *testing.T) {
	proposal, err := NewProposal(testIdentity(), "settlecc", "Transfer", nil)
	require.NoError(t, err)

	responses := []*ledger.ProposalResponse{
		{TxID: proposal.TxID, Payload: []byte("result"), Endorser: "peer0", Endorsement: []byte("sig0")},
		{TxID: proposal.TxID, Payload: []byte("result"), Endorser: "peer1", Endorsement: []byte("sig1")},
	}

	envelope, err := NewEnvelope(proposal, responses)
	require.NoError(t, err)

	assert.Equal(t, proposal.TxID, envelope.TxID)
	assert.Equal(t, "settlement", envelope.Channel)
	assert.Equal(t, []byte("result"), envelope.Payload)
	assert.Equal(t, [][]byte{[]byte("sig0"), []byte("sig1")}, envelope.Endorsements)
}

func TestNewEnvelopeMissingEndorsements(t *testing.T) {
	proposal, err := NewProposal(testIdentity(), "settlecc", "Transfer", nil)
	require.NoError(t, err)

	_, err = NewEnvelope(proposal, nil)
	require.Error(t, err)

	s, ok := status.FromError(err)
	require.True(t, ok)
	assert.EqualValues(t, status.MissingEndorsement, status.Code(s.Code))
}

func TestNewEnvelopeMismatch(t *testing.T) {
	proposal, err := NewProposal(testIdentity(), "settlecc", "Transfer", nil)
	require.NoError(t, err)

	responses := []*ledger.ProposalResponse{
		{TxID: proposal.TxID, Payload: []byte("result"), Endorser: "peer0"},
		{TxID: proposal.TxID, Payload: []byte("divergent"), Endorser: "peer1"},
	}

	_, err = NewEnvelope(proposal, responses)
	require.Error(t, err)

	s, ok := status.FromError(err)
	require.True(t, ok)
	assert.EqualValues(t, status.EndorsementMismatch, status.Code(s.Code))
	assert.Equal(t, []interface{}{"peer0", "peer1"}, s.Details)
}
