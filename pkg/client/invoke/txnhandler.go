/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package invoke

import (
	"sync"

	"github.com/finclarity/settlement-gateway/pkg/common/errors/multi"
	"github.com/finclarity/settlement-gateway/pkg/common/errors/status"
	"github.com/finclarity/settlement-gateway/pkg/common/logging"
	"github.com/finclarity/settlement-gateway/pkg/ledger"
	"github.com/finclarity/settlement-gateway/pkg/ledger/txn"
)

var logger = logging.NewLogger("gateway/invoke")

// NewQueryHandler returns the handler chain for a READ invocation: the
// proposal is executed against one peer's local state only, with no ordering
// or commit step
func NewQueryHandler(next ...Handler) Handler {
	return &ProposalHandler{
		targets: 1,
		stage:   StageExecuting,
		next: &QueryValidationHandler{
			next: chain(next),
		},
	}
}

// NewExecuteHandler returns the handler chain for a WRITE invocation: the
// proposal is endorsed by the policy-required set of peers, submitted to the
// ordering service, and held until the commit event arrives or the deadline
// elapses
func NewExecuteHandler(next ...Handler) Handler {
	return &ProposalHandler{
		targets: allTargets,
		stage:   StageEndorsing,
		next: &EndorsementValidationHandler{
			next: &CommitHandler{
				next: chain(next),
			},
		},
	}
}

func chain(next []Handler) Handler {
	if len(next) > 0 {
		return next[0]
	}
	return nil
}

const allTargets = -1

// ProposalHandler creates the transaction proposal and collects simulation
// responses from the leased endorsers
type ProposalHandler struct {
	targets int
	stage   Stage
	next    Handler
}

// Handle creates and sends the transaction proposal
func (h *ProposalHandler) Handle(requestContext *RequestContext, clientContext *ClientContext) {
	requestContext.Stage = StageProposing

	proposal, err := txn.NewProposal(clientContext.Identity, requestContext.Request.Chaincode,
		requestContext.Request.Fn, requestContext.Request.Args)
	if err != nil {
		requestContext.Error = err
		requestContext.Stage = StageFailed
		return
	}
	requestContext.Response.Proposal = proposal
	requestContext.Response.TransactionID = proposal.TxID

	err = clientContext.Endorsers.WithEndorsers(requestContext.Ctx, h.targets, func(endorsers []ledger.Endorser) error {
		if len(endorsers) == 0 {
			return status.New(status.ClientStatus, status.NoPeersFound.ToInt32(), "no endorsers were provided", nil)
		}
		requestContext.Stage = h.stage
		responses, err := sendProposal(requestContext, proposal, endorsers)
		requestContext.Response.Responses = responses
		return err
	})
	if err != nil {
		requestContext.Error = err
		requestContext.Stage = StageFailed
		return
	}

	if len(requestContext.Response.Responses) > 0 {
		requestContext.Response.Payload = requestContext.Response.Responses[0].Payload
	}

	if h.next != nil {
		h.next.Handle(requestContext, clientContext)
	}
}

// sendProposal sends the proposal to all endorsers concurrently and collects
// the responses. Individual failures are aggregated into a multi error so the
// retry handler can inspect every peer's status.
func sendProposal(requestContext *RequestContext, proposal *ledger.SignedProposal, endorsers []ledger.Endorser) ([]*ledger.ProposalResponse, error) {
	var wg sync.WaitGroup
	responses := make([]*ledger.ProposalResponse, len(endorsers))
	errs := make([]error, len(endorsers))

	for i, endorser := range endorsers {
		wg.Add(1)
		go func(i int, endorser ledger.Endorser) {
			defer wg.Done()
			responses[i], errs[i] = endorser.ProcessProposal(requestContext.Ctx, proposal)
		}(i, endorser)
	}
	wg.Wait()

	var collected []*ledger.ProposalResponse
	var errors multi.Errors
	for i := range endorsers {
		if errs[i] != nil {
			errors = append(errors, errs[i])
			continue
		}
		collected = append(collected, responses[i])
	}

	if len(errors) > 0 {
		return collected, errors.ToError()
	}
	return collected, nil
}

// QueryValidationHandler validates the READ response. An empty ledger payload
// is NotFound, which is distinct from a transport-level failure.
type QueryValidationHandler struct {
	next Handler
}

// Handle validates the query response
func (h *QueryValidationHandler) Handle(requestContext *RequestContext, clientContext *ClientContext) {
	if len(requestContext.Response.Payload) == 0 {
		requestContext.Error = status.New(status.ClientStatus, status.NotFound.ToInt32(),
			"no ledger state for the requested key", nil)
		requestContext.Stage = StageFailed
		return
	}

	requestContext.Stage = StageSucceeded

	if h.next != nil {
		h.next.Handle(requestContext, clientContext)
	}
}

// EndorsementValidationHandler checks that the collected endorsements agree
// before the transaction is submitted for ordering
type EndorsementValidationHandler struct {
	next Handler
}

// Handle validates the endorsements
func (h *EndorsementValidationHandler) Handle(requestContext *RequestContext, clientContext *ClientContext) {
	envelope, err := txn.NewEnvelope(requestContext.Response.Proposal, requestContext.Response.Responses)
	if err != nil {
		requestContext.Error = err
		requestContext.Stage = StageFailed
		return
	}

	requestContext.Response.Payload = envelope.Payload
	requestContext.envelope = envelope

	if h.next != nil {
		h.next.Handle(requestContext, clientContext)
	}
}

// CommitHandler broadcasts the endorsed envelope to the ordering service and
// waits for the commit event
type CommitHandler struct {
	next Handler
}

// Handle broadcasts the envelope and waits for the commit
func (h *CommitHandler) Handle(requestContext *RequestContext, clientContext *ClientContext) {
	envelope := requestContext.envelope
	if envelope == nil {
		requestContext.Error = status.New(status.ClientStatus, status.Unknown.ToInt32(),
			"no endorsed envelope to commit", nil)
		requestContext.Stage = StageFailed
		return
	}

	requestContext.Stage = StageOrdering

	if _, err := clientContext.Broadcaster.Broadcast(requestContext.Ctx, envelope); err != nil {
		requestContext.Error = err
		requestContext.Stage = StageFailed
		return
	}

	requestContext.Stage = StageCommitWait

	event, err := clientContext.CommitWaiter.WaitForCommit(requestContext.Ctx, envelope.Channel, envelope.TxID)
	if err != nil {
		requestContext.Error = err
		requestContext.Stage = StageFailed
		return
	}

	logger.Debugf("Transaction %s committed at block %d", event.TxID, event.BlockNumber)
	requestContext.Response.CommitHeight = event.BlockNumber
	requestContext.Stage = StageSucceeded

	if h.next != nil {
		h.next.Handle(requestContext, clientContext)
	}
}
