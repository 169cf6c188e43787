/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package retry

import (
	"time"

	"github.com/finclarity/settlement-gateway/pkg/common/errors/status"
)

const (
	// DefaultAttempts number of retry attempts made by default
	DefaultAttempts = 5
	// DefaultInitialBackoff default initial backoff
	DefaultInitialBackoff = 100 * time.Millisecond
	// DefaultMaxBackoff default maximum backoff
	DefaultMaxBackoff = 10 * time.Second
	// DefaultBackoffFactor default backoff factor
	DefaultBackoffFactor = 2.0
)

// DefaultOpts default retry options
var DefaultOpts = Opts{
	Attempts:       DefaultAttempts,
	InitialBackoff: DefaultInitialBackoff,
	MaxBackoff:     DefaultMaxBackoff,
	BackoffFactor:  DefaultBackoffFactor,
	RetryableCodes: DefaultRetryableCodes,
}

// DefaultRetryableCodes these are the error codes, grouped by source of error,
// that are considered to be transient error conditions by default.
//
// Deliberately absent: CommitTimeout (ambiguous outcome, resubmission risks a
// duplicate settlement), Cancelled, ValidationFailed, IdentityUnresolved and
// the entire ChaincodeStatus group (business rejections).
var DefaultRetryableCodes = map[status.Group][]status.Code{
	status.ClientStatus: {
		status.ConnectionFailed,
		status.PoolExhausted,
	},
	status.EndorserClientStatus: {
		status.ConnectionFailed,
		status.EndorsementMismatch,
	},
	status.EndorserServerStatus: {
		status.Code(status.ServerUnavailable),
		status.Code(status.ServerInternalError),
	},
	status.OrdererServerStatus: {
		status.Code(status.ServerUnavailable),
	},
	status.TestStatus: {
		status.GenericTransient,
	},
}

// ChannelClientRetryableCodes are the suggested codes for the channel client
var ChannelClientRetryableCodes = DefaultRetryableCodes
