/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package invoke provides the handler chain that orchestrates a transaction
// invocation: proposal simulation for reads, and the full
// endorse/order/commit-wait pipeline for writes. Handlers record their
// progress on the request context so that every outcome reports the stage it
// reached.
package invoke

import (
	reqContext "context"
	"time"

	"github.com/finclarity/settlement-gateway/pkg/common/errors/retry"
	"github.com/finclarity/settlement-gateway/pkg/ledger"
)

// Stage tracks the progress of an invocation through its state machine
type Stage int32

// Invocation stages.
const (
	StageCreated Stage = iota
	StageProposing
	StageExecuting
	StageEndorsing
	StageOrdering
	StageCommitWait
	StageSucceeded
	StageFailed
)

var stageNames = map[Stage]string{
	StageCreated:    "CREATED",
	StageProposing:  "PROPOSING",
	StageExecuting:  "EXECUTING",
	StageEndorsing:  "ENDORSING",
	StageOrdering:   "ORDERING",
	StageCommitWait: "COMMIT_WAIT",
	StageSucceeded:  "SUCCEEDED",
	StageFailed:     "FAILED",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Request contains the parameters of an invocation transaction
type Request struct {
	Chaincode string
	Fn        string
	Args      []string
}

// Opts allows the user to specify more advanced options
type Opts struct {
	Timeout time.Duration
	Retry   retry.Opts
}

// Response contains the result of an invocation
type Response struct {
	Payload       []byte
	TransactionID string
	CommitHeight  uint64
	Proposal      *ledger.SignedProposal
	Responses     []*ledger.ProposalResponse
}

// RequestContext contains the state of one invocation as it moves through the
// handler chain
type RequestContext struct {
	Request      Request
	Opts         Opts
	Response     Response
	Error        error
	Stage        Stage
	RetryHandler retry.Handler
	Ctx          reqContext.Context

	// envelope carries the endorsed transaction between the validation and
	// commit handlers
	envelope *ledger.Envelope
}

// EndorserProvider leases endorser clients from the connection pool for the
// duration of fn. Connections are always released when fn returns, regardless
// of success, failure or cancellation.
type EndorserProvider interface {
	// WithEndorsers invokes fn with up to count endorsers. A count < 1
	// requests the full policy-required set.
	WithEndorsers(ctx reqContext.Context, count int, fn func([]ledger.Endorser) error) error
}

// ClientContext holds the providers an invocation runs against
type ClientContext struct {
	Identity     *ledger.Identity
	Endorsers    EndorserProvider
	Broadcaster  ledger.Broadcaster
	CommitWaiter ledger.CommitWaiter
}

// Handler for invoking a chain of requests
type Handler interface {
	Handle(requestContext *RequestContext, clientContext *ClientContext)
}
