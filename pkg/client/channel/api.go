/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package channel

import (
	reqContext "context"
	"time"

	"github.com/finclarity/settlement-gateway/pkg/client/invoke"
	"github.com/finclarity/settlement-gateway/pkg/common/errors/retry"
	"github.com/finclarity/settlement-gateway/pkg/ledger"
)

// Request contains the parameters to query and execute an invocation
// transaction
type Request struct {
	Chaincode string
	Fn        string
	Args      []string
}

// Response contains response parameters for query and execute an invocation
// transaction
type Response struct {
	Payload       []byte
	TransactionID string
	CommitHeight  uint64
	Stage         invoke.Stage
	Elapsed       time.Duration
	Responses     []*ledger.ProposalResponse
}

// requestOptions allows the user to specify more advanced options
type requestOptions struct {
	Timeout       time.Duration
	Retry         retry.Opts
	ParentContext reqContext.Context
}

// RequestOption func for each Opts argument
type RequestOption func(opts *requestOptions) error

// WithTimeout encapsulates time.Duration to Option
func WithTimeout(timeout time.Duration) RequestOption {
	return func(o *requestOptions) error {
		o.Timeout = timeout
		return nil
	}
}

// WithRetry option to configure retries
func WithRetry(retryOpt retry.Opts) RequestOption {
	return func(o *requestOptions) error {
		o.Retry = retryOpt
		return nil
	}
}

// WithParentContext encapsulates the caller's context, propagating its
// cancellation to every await point of the invocation
func WithParentContext(ctx reqContext.Context) RequestOption {
	return func(o *requestOptions) error {
		o.ParentContext = ctx
		return nil
	}
}
