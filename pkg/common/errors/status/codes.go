/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package status

import (
	"strconv"

	grpcCodes "google.golang.org/grpc/codes"
)

// Code represents a status code
type Code uint32

const (
	// OK is returned on success.
	OK Code = 0

	// Unknown represents status codes that are uncategorized or unknown to the gateway
	Unknown Code = 1

	// ConnectionFailed is returned when a network connection attempt to a peer or orderer fails
	ConnectionFailed Code = 2

	// PoolExhausted is returned when no pooled connection became free within the acquire timeout
	PoolExhausted Code = 3

	// Timeout operation timed out
	Timeout Code = 4

	// CommitTimeout is returned when the commit wait deadline elapsed before a commit
	// event arrived. The transaction may still have committed; callers must treat the
	// outcome as unknown and reconcile against the ledger.
	CommitTimeout Code = 5

	// Cancelled is returned when the caller cancelled the invocation
	Cancelled Code = 6

	// ValidationFailed is returned when request normalization rejects the input
	ValidationFailed Code = 7

	// IdentityUnresolved is returned when tenant credentials are missing, expired
	// or reference an unknown channel
	IdentityUnresolved Code = 8

	// EndorsementMismatch is returned when endorsing peers returned inconsistent results
	EndorsementMismatch Code = 9

	// MissingEndorsement is returned when fewer endorsements were collected than the
	// endorsement policy requires
	MissingEndorsement Code = 10

	// NoPeersFound no peers were configured or available for the proposal
	NoPeersFound Code = 11

	// NotFound is returned when a READ invocation produced an empty ledger payload
	NotFound Code = 12

	// MultipleErrors multiple errors occurred
	MultipleErrors Code = 13

	// GenericTransient is generally used by tests to indicate that a retry is possible
	GenericTransient Code = 14
)

// CodeName maps the codes in this package to human-readable strings
var CodeName = map[int32]string{
	0:  "OK",
	1:  "UNKNOWN",
	2:  "CONNECTION_FAILED",
	3:  "POOL_EXHAUSTED",
	4:  "TIMEOUT",
	5:  "COMMIT_TIMEOUT",
	6:  "CANCELLED",
	7:  "VALIDATION_FAILED",
	8:  "IDENTITY_UNRESOLVED",
	9:  "ENDORSEMENT_MISMATCH",
	10: "MISSING_ENDORSEMENT",
	11: "NO_PEERS_FOUND",
	12: "NOT_FOUND",
	13: "MULTIPLE_ERRORS",
	14: "GENERIC_TRANSIENT",
}

// Server status codes carried verbatim from peer and orderer responses.
const (
	// ServerOK the server processed the request successfully
	ServerOK int32 = 200
	// ServerBadRequest the request was rejected by business logic
	ServerBadRequest int32 = 400
	// ServerForbidden the signer is not authorized for the operation
	ServerForbidden int32 = 403
	// ServerInternalError the server failed while processing the request
	ServerInternalError int32 = 500
	// ServerUnavailable the server is temporarily unable to process requests
	ServerUnavailable int32 = 503
)

// ToInt32 cast to int32
func (c Code) ToInt32() int32 {
	return int32(c)
}

// String representation of the code
func (c Code) String() string {
	if s, ok := CodeName[c.ToInt32()]; ok {
		return s
	}
	return strconv.Itoa(int(c))
}

// ToGatewayStatusCode cast to gateway status code
func ToGatewayStatusCode(c int32) Code {
	return Code(c)
}

// ToGRPCStatusCode cast to gRPC status code
func ToGRPCStatusCode(c int32) grpcCodes.Code {
	return grpcCodes.Code(c)
}
