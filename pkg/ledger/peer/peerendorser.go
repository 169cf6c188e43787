/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package peer enables access to a gRPC-based endorser for running transaction
// proposal simulations against a ledger peer.
package peer

import (
	reqContext "context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/finclarity/settlement-gateway/pkg/common/errors/status"
	"github.com/finclarity/settlement-gateway/pkg/ledger"
	"github.com/finclarity/settlement-gateway/pkg/ledger/comm"
)

const processProposalMethod = "/gateway.Endorser/ProcessProposal"

// endorser sends signed proposals to one peer over an established connection
type endorser struct {
	conn *comm.GRPCConnection
}

// New returns an Endorser backed by the given connection
func New(conn *comm.GRPCConnection) ledger.Endorser {
	return &endorser{conn: conn}
}

// ProcessProposal sends the proposal for simulation and returns the peer's
// response. A response carrying a server status outside the success range is
// returned together with a typed error so callers can both classify the
// failure and inspect the rejection payload.
func (e *endorser) ProcessProposal(ctx reqContext.Context, proposal *ledger.SignedProposal) (*ledger.ProposalResponse, error) {
	frame, err := json.Marshal(proposal)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling proposal failed")
	}

	out, err := e.conn.Invoke(ctx, processProposalMethod, frame)
	if err != nil {
		return nil, err
	}

	response := &ledger.ProposalResponse{}
	if err := json.Unmarshal(out, response); err != nil {
		return nil, status.New(status.EndorserClientStatus, status.Unknown.ToInt32(),
			errors.Wrapf(err, "unmarshalling proposal response from %s failed", e.conn.Target()).Error(), nil)
	}
	if response.Endorser == "" {
		response.Endorser = e.conn.Target()
	}

	if response.Status < status.ServerOK || response.Status >= status.ServerBadRequest {
		return response, status.New(status.EndorserServerStatus, response.Status,
			response.Message, []interface{}{response.Endorser, response.Payload})
	}

	return response, nil
}
