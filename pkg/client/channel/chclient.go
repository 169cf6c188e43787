/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package channel enables access to a channel on the ledger network.
package channel

import (
	reqContext "context"
	"time"

	"github.com/pkg/errors"

	"github.com/finclarity/settlement-gateway/pkg/client/invoke"
	"github.com/finclarity/settlement-gateway/pkg/common/errors/multi"
	"github.com/finclarity/settlement-gateway/pkg/common/errors/retry"
	"github.com/finclarity/settlement-gateway/pkg/common/errors/status"
	"github.com/finclarity/settlement-gateway/pkg/common/logging"
)

var logger = logging.NewLogger("gateway/channel")

const (
	defaultInvocationTimeout = 30 * time.Second

	// terminationGrace bounds how long the client waits, after the invocation
	// deadline has expired, for the handler chain to surface its own stage
	// classification (for example CommitTimeout during commit wait)
	terminationGrace = 2 * time.Second
)

// Client orchestrates invocations on one channel. An application that
// requires interaction with multiple channels should create a separate
// instance of the channel client for each channel.
type Client struct {
	context *invoke.ClientContext
}

// New returns a Client instance bound to the given providers
func New(clientContext *invoke.ClientContext) (*Client, error) {
	if clientContext == nil || clientContext.Identity == nil {
		return nil, errors.New("client context with a resolved identity is required")
	}
	if clientContext.Endorsers == nil {
		return nil, errors.New("endorser provider is required")
	}

	return &Client{context: clientContext}, nil
}

// Query evaluates a transaction function against one peer's local state and
// returns its result. Nothing is sent to the ordering service.
func (cc *Client) Query(request Request, options ...RequestOption) (Response, error) {
	return cc.InvokeHandler(invoke.NewQueryHandler(), request, options...)
}

// Execute prepares and executes a transaction: the proposal is endorsed,
// submitted for ordering, and the call completes when the commit event
// arrives or the invocation deadline elapses
func (cc *Client) Execute(request Request, options ...RequestOption) (Response, error) {
	return cc.InvokeHandler(invoke.NewExecuteHandler(), request, options...)
}

// InvokeHandler invokes the given handler chain using the request and options
// provided
func (cc *Client) InvokeHandler(handler invoke.Handler, request Request, options ...RequestOption) (Response, error) {
	txnOpts, err := cc.prepareOptsFromOptions(options...)
	if err != nil {
		return Response{}, err
	}

	parent := txnOpts.ParentContext
	if parent == nil {
		parent = reqContext.Background()
	}
	ctx, cancel := reqContext.WithTimeout(parent, txnOpts.Timeout)
	defer cancel()

	requestContext := &invoke.RequestContext{
		Request: invoke.Request{
			Chaincode: request.Chaincode,
			Fn:        request.Fn,
			Args:      request.Args,
		},
		Opts: invoke.Opts{
			Timeout: txnOpts.Timeout,
			Retry:   txnOpts.Retry,
		},
		Stage:        invoke.StageCreated,
		RetryHandler: retry.New(txnOpts.Retry),
		Ctx:          ctx,
	}

	start := time.Now()

	complete := make(chan bool, 1)
	go func() {
		for {
			handler.Handle(requestContext, cc.context)
			if !cc.resolveRetry(requestContext) {
				break
			}
		}
		complete <- true
	}()

	select {
	case <-complete:
	case <-ctx.Done():
		// Handlers honor the context at every await point; give the chain a
		// moment to classify the expiry itself (commit wait reports
		// CommitTimeout, which the caller must distinguish from a plain
		// timeout)
		select {
		case <-complete:
		case <-time.After(terminationGrace):
			return Response{}, status.New(status.ClientStatus, status.Timeout.ToInt32(),
				"request timed out", nil)
		}
	}

	response := Response{
		Payload:       requestContext.Response.Payload,
		TransactionID: requestContext.Response.TransactionID,
		CommitHeight:  requestContext.Response.CommitHeight,
		Stage:         requestContext.Stage,
		Elapsed:       time.Since(start),
		Responses:     requestContext.Response.Responses,
	}
	return response, requestContext.Error
}

func (cc *Client) resolveRetry(ctx *invoke.RequestContext) bool {
	if ctx.Error == nil {
		return false
	}
	errs, ok := ctx.Error.(multi.Errors)
	if !ok {
		errs = append(errs, ctx.Error)
	}
	for _, e := range errs {
		if ctx.RetryHandler.Required(e) {
			logger.Infof("Retrying on error %s", e)

			// Reset context parameters for the next attempt
			ctx.Error = nil
			ctx.Response = invoke.Response{}
			ctx.Stage = invoke.StageCreated

			return true
		}
	}
	return false
}

func (cc *Client) prepareOptsFromOptions(options ...RequestOption) (requestOptions, error) {
	txnOpts := requestOptions{}
	for _, param := range options {
		if err := param(&txnOpts); err != nil {
			return txnOpts, errors.WithMessage(err, "failed to read request opts")
		}
	}
	if txnOpts.Timeout == 0 {
		txnOpts.Timeout = defaultInvocationTimeout
	}
	return txnOpts, nil
}
