/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package status defines metadata for errors returned by the settlement
// gateway. This information may be used by callers to make decisions about how
// to handle certain error conditions, such as whether a retry is safe or a
// reconciliation against the ledger is required.
// Status codes are divided by group, where each group represents a particular
// component and the codes correspond to those returned by the component.
package status

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/finclarity/settlement-gateway/pkg/common/errors/multi"
	grpcCodes "google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Status provides additional information about an unsuccessful operation
// performed by the settlement gateway. Essentially, this object contains
// metadata about an error returned by the gateway.
type Status struct {
	// Group status group
	Group Group
	// Code status code
	Code int32
	// Message status message
	Message string
	// Details any additional status details
	Details []interface{}
}

// Group of status to help users infer status codes from various components
type Group int32

const (
	// UnknownStatus unknown status group
	UnknownStatus Group = iota

	// GRPCTransportStatus is the status associated with requests made over
	// gRPC connections
	GRPCTransportStatus

	// EndorserServerStatus status returned by an endorsing peer
	EndorserServerStatus
	// OrdererServerStatus status returned by the ordering service
	OrdererServerStatus
	// CommitStatus status produced while waiting for a transaction commit
	CommitStatus

	// EndorserClientStatus status inferred by the gateway from endorsement
	// responses - for example, a mismatch detected while validating endorsements
	EndorserClientStatus
	// OrdererClientStatus status inferred by the gateway from orderer responses
	OrdererClientStatus
	// ClientStatus is a generic gateway-side status
	ClientStatus

	// ChaincodeStatus defines the status codes returned by chaincode
	ChaincodeStatus

	// TestStatus is used by tests to create retry codes
	TestStatus
)

// GroupName maps the groups in this package to human-readable strings
var GroupName = map[int32]string{
	0: "Unknown",
	1: "gRPC Transport Status",
	2: "Endorser Server Status",
	3: "Orderer Server Status",
	4: "Commit Status",
	5: "Endorser Client Status",
	6: "Orderer Client Status",
	7: "Client Status",
	8: "Chaincode Status",
	9: "Test Status",
}

func (g Group) String() string {
	if s, ok := GroupName[int32(g)]; ok {
		return s
	}
	return GroupName[int32(UnknownStatus)]
}

// FromError returns a Status representing err if available,
// otherwise it returns nil, false.
func FromError(err error) (s *Status, ok bool) {
	if err == nil {
		return &Status{Code: OK.ToInt32()}, true
	}
	if s, ok := err.(*Status); ok {
		return s, true
	}
	unwrappedErr := errors.Cause(err)
	if s, ok := unwrappedErr.(*Status); ok {
		return s, true
	}
	if m, ok := unwrappedErr.(multi.Errors); ok {
		// Return all of the errors in the details
		var errors []interface{}
		for _, err := range m {
			errors = append(errors, err)
		}
		return New(ClientStatus, MultipleErrors.ToInt32(), m.Error(), errors), true
	}

	return nil, false
}

func (s *Status) Error() string {
	return fmt.Sprintf("%s Code: (%d) %s. Description: %s", s.Group.String(), s.Code, s.codeString(), s.Message)
}

func (s *Status) codeString() string {
	switch s.Group {
	case GRPCTransportStatus:
		return ToGRPCStatusCode(s.Code).String()
	case EndorserServerStatus, OrdererServerStatus:
		return serverCodeString(s.Code)
	case EndorserClientStatus, OrdererClientStatus, ClientStatus, CommitStatus:
		return ToGatewayStatusCode(s.Code).String()
	default:
		return Unknown.String()
	}
}

func serverCodeString(c int32) string {
	switch c {
	case ServerOK:
		return "OK"
	case ServerBadRequest:
		return "BAD_REQUEST"
	case ServerForbidden:
		return "FORBIDDEN"
	case ServerInternalError:
		return "INTERNAL_SERVER_ERROR"
	case ServerUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return fmt.Sprintf("%d", c)
	}
}

// New returns a Status with the given parameters
func New(group Group, code int32, msg string, details []interface{}) *Status {
	return &Status{Group: group, Code: code, Message: msg, Details: details}
}

// NewFromGRPCStatus new Status from a gRPC status response
func NewFromGRPCStatus(s *grpcstatus.Status) *Status {
	if s == nil {
		return nil
	}
	details := make([]interface{}, len(s.Proto().Details))
	for i, detail := range s.Proto().Details {
		details[i] = detail
	}

	return &Status{Group: GRPCTransportStatus, Code: s.Proto().Code,
		Message: s.Message(), Details: details}
}

// FromGRPCError classifies a transport-level error returned by a gRPC call.
// Cancellation and deadline expiry are mapped to gateway codes so that the
// retry controller never retries a caller-initiated abort.
func FromGRPCError(err error) *Status {
	if err == nil {
		return nil
	}
	grpcStatus, ok := grpcstatus.FromError(err)
	if !ok {
		return New(GRPCTransportStatus, int32(grpcCodes.Unknown), err.Error(), nil)
	}
	switch grpcStatus.Code() {
	case grpcCodes.Canceled:
		return New(ClientStatus, Cancelled.ToInt32(), grpcStatus.Message(), nil)
	case grpcCodes.DeadlineExceeded:
		return New(ClientStatus, Timeout.ToInt32(), grpcStatus.Message(), nil)
	case grpcCodes.Unavailable:
		return New(ClientStatus, ConnectionFailed.ToInt32(), grpcStatus.Message(), nil)
	default:
		return NewFromGRPCStatus(grpcStatus)
	}
}

// NewFromExtractedChaincodeError returns Status when a chaincode error occurs.
// Chaincode rejections are business outcomes and are never retried.
func NewFromExtractedChaincodeError(code int, message string) *Status {
	return &Status{Group: ChaincodeStatus, Code: int32(code),
		Message: message, Details: nil}
}
