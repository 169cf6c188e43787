/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"time"

	"github.com/finclarity/settlement-gateway/pkg/common/errors/status"
	"github.com/finclarity/settlement-gateway/pkg/ledger/pool"
)

// Mode selects between a ledger read and a ledger write
type Mode string

// Invocation modes.
const (
	Read  Mode = "READ"
	Write Mode = "WRITE"
)

// InvocationRequest is the single inbound call shape of the gateway. The
// request is assumed already authenticated and authorized by the API layer.
type InvocationRequest struct {
	// Mode selects the read (evaluate) or write (submit) path
	Mode Mode `json:"mode"`
	// Fn is the contract function to invoke
	Fn string `json:"fn"`
	// Args are the string-encoded arguments, in order
	Args []string `json:"args,omitempty"`
	// IdempotencyKey deduplicates WRITE submissions. For settlement-style
	// dedup it must be the settlement UUID.
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
	// Timeout is the end-to-end invocation deadline; zero selects the
	// configured default
	Timeout time.Duration `json:"timeout,omitempty"`
	// Tenant selects the ledger identity; empty selects the default tenant
	Tenant string `json:"tenant,omitempty"`
}

// OutcomeStatus is the terminal status of an invocation
type OutcomeStatus string

// Outcome statuses.
const (
	StatusSuccess OutcomeStatus = "SUCCESS"
	StatusFailed  OutcomeStatus = "FAILED"
)

// ErrorKind classifies a failed invocation. Callers pattern-match on the
// kind rather than on message strings.
type ErrorKind string

// Error kinds.
const (
	ErrorNone              ErrorKind = ""
	ErrorValidation        ErrorKind = "ValidationError"
	ErrorIdentity          ErrorKind = "IdentityError"
	ErrorConnection        ErrorKind = "ConnectionError"
	ErrorPoolExhausted     ErrorKind = "PoolExhausted"
	ErrorEndorsement       ErrorKind = "EndorsementFailure"
	ErrorCommitTimeout     ErrorKind = "CommitTimeout"
	ErrorCancelled         ErrorKind = "Cancelled"
	ErrorNotFound          ErrorKind = "NotFound"
	ErrorTimeout           ErrorKind = "Timeout"
	ErrorBusinessRejection ErrorKind = "BusinessRejection"
	ErrorUnknown           ErrorKind = "Unknown"
)

// InvocationOutcome is the terminal result of an invocation. Outcomes are
// values: once returned they are owned by the caller and never mutated by
// the gateway. Every outcome carries enough detail (ErrorKind, LedgerTxID,
// IdempotencyKey) for an operator to look up the true ledger state
// independently of the gateway's in-memory view.
type InvocationOutcome struct {
	Status OutcomeStatus `json:"status"`
	// RawPayload is the ledger response exactly as received
	RawPayload []byte `json:"rawPayload,omitempty"`
	// Decoded is the structured form of RawPayload, nil when the payload is
	// not well-formed JSON
	Decoded interface{} `json:"decoded,omitempty"`
	// LedgerTxID identifies the submission on the ledger, when one was made
	LedgerTxID string `json:"ledgerTxId,omitempty"`
	// CommitHeight is the block number the transaction committed at
	CommitHeight uint64 `json:"commitHeight,omitempty"`
	// ErrorKind classifies the failure; empty on success
	ErrorKind ErrorKind `json:"errorKind,omitempty"`
	// ErrorMessage is the failure detail; empty on success
	ErrorMessage string `json:"errorMessage,omitempty"`
	// DecodeWarning is set when the payload could not be decoded. It never
	// escalates to a failure: the ledger operation succeeded or failed
	// independently of decodability.
	DecodeWarning string `json:"decodeWarning,omitempty"`
	// ReconcileRequired flags an ambiguous outcome (commit timeout) that must
	// be reconciled against the ledger before any resubmission
	ReconcileRequired bool `json:"reconcileRequired,omitempty"`
	// IdempotencyKey echoes the request key
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
	// Elapsed is the wall time the invocation took inside the gateway
	Elapsed time.Duration `json:"elapsed"`
}

// Health is a point-in-time operational snapshot of the gateway
type Health struct {
	Pool       pool.Stats `json:"pool"`
	Identities int        `json:"identities"`
	InFlight   int        `json:"inFlight"`
}

// classifyError maps a typed error to the caller-facing kind
func classifyError(err error) ErrorKind {
	s, ok := status.FromError(err)
	if !ok {
		return ErrorUnknown
	}

	switch status.Code(s.Code) {
	case status.ValidationFailed:
		return ErrorValidation
	case status.IdentityUnresolved:
		return ErrorIdentity
	case status.ConnectionFailed:
		return ErrorConnection
	case status.PoolExhausted:
		return ErrorPoolExhausted
	case status.CommitTimeout:
		return ErrorCommitTimeout
	case status.Cancelled:
		return ErrorCancelled
	case status.NotFound:
		return ErrorNotFound
	case status.Timeout:
		return ErrorTimeout
	case status.EndorsementMismatch, status.MissingEndorsement, status.NoPeersFound:
		return ErrorEndorsement
	}

	switch s.Group {
	case status.ChaincodeStatus:
		return ErrorBusinessRejection
	case status.EndorserServerStatus:
		if s.Code == status.ServerUnavailable || s.Code == status.ServerInternalError {
			return ErrorEndorsement
		}
		return ErrorBusinessRejection
	case status.OrdererServerStatus:
		if s.Code == status.ServerUnavailable {
			return ErrorConnection
		}
		return ErrorBusinessRejection
	case status.GRPCTransportStatus:
		return ErrorConnection
	}

	return ErrorUnknown
}
