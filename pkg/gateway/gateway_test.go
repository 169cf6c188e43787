/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finclarity/settlement-gateway/pkg/client/idempotency"
	"github.com/finclarity/settlement-gateway/pkg/common/errors/status"
	"github.com/finclarity/settlement-gateway/pkg/core/config"
	"github.com/finclarity/settlement-gateway/pkg/ledger"
	"github.com/finclarity/settlement-gateway/pkg/ledger/identity"
	"github.com/finclarity/settlement-gateway/pkg/ledger/mocks"
)

const settlementKey = "2f9f1d6e-3e93-4be1-8d37-94a4e2f6a002"

func testConfig() *config.Config {
	return &config.Config{
		Channel:     config.ChannelConfig{Name: "settlement", Chaincode: "settlecc"},
		Pool:        config.PoolConfig{MaxSize: 2, AcquireTimeout: time.Second},
		Invocation:  config.InvocationConfig{DefaultTimeout: 2 * time.Second},
		Retry:       config.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond, BackoffFactor: 2},
		Idempotency: config.IdempotencyConfig{TTL: time.Minute, SweepInterval: time.Minute},
		Identity:    config.IdentityConfig{CacheTTL: time.Minute},
	}
}

func newTestGateway(t *testing.T, endorsers []ledger.Endorser, broadcaster ledger.Broadcaster, waiter ledger.CommitWaiter) *Gateway {
	t.Helper()

	if broadcaster == nil {
		broadcaster = &mocks.MockBroadcaster{}
	}
	if waiter == nil {
		waiter = &mocks.MockCommitWaiter{}
	}

	store := identity.NewStaticStore()
	store.Register(&ledger.Identity{Tenant: DefaultTenant, MSPID: "GatewayMSP", Channel: "settlement"})
	store.Register(&ledger.Identity{Tenant: "acme", MSPID: "AcmeMSP", Channel: "settlement"})

	gw, err := Connect(context.Background(),
		WithConfig(testConfig()),
		WithCredentialStore(store),
		WithEndorserProvider(&mocks.MockEndorserProvider{Endorsers: endorsers}),
		WithOrderer(broadcaster, waiter),
	)
	require.NoError(t, err)
	t.Cleanup(gw.Close)
	return gw
}

func TestReadSuccess(t *testing.T) {
	endorser := &mocks.MockEndorser{Payload: []byte(`{"settlementId":"stl-1","state":"SETTLED"}`), Target: "peer0"}
	gw := newTestGateway(t, []ledger.Endorser{endorser}, nil, nil)

	outcome := gw.Invoke(context.Background(), InvocationRequest{
		Mode: Read,
		Fn:   "GetSettlement",
		Args: []string{"stl-1"},
	})

	assert.Equal(t, StatusSuccess, outcome.Status)
	assert.Equal(t, []byte(`{"settlementId":"stl-1","state":"SETTLED"}`), outcome.RawPayload)
	require.NotNil(t, outcome.Decoded)
	payload := outcome.Decoded.(map[string]interface{})
	assert.Equal(t, "SETTLED", payload["state"])
	assert.Empty(t, outcome.DecodeWarning)
	assert.Empty(t, outcome.ErrorKind)
	assert.NotEmpty(t, outcome.LedgerTxID)
	assert.Equal(t, 1, endorser.CallCount())
}

func TestReadNotFound(t *testing.T) {
	endorser := &mocks.MockEndorser{Payload: nil, Target: "peer0"}
	gw := newTestGateway(t, []ledger.Endorser{endorser}, nil, nil)

	outcome := gw.Invoke(context.Background(), InvocationRequest{
		Mode: Read,
		Fn:   "GetSettlement",
		Args: []string{"ghost"},
	})

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, ErrorNotFound, outcome.ErrorKind)
	assert.Equal(t, 1, endorser.CallCount(), "not-found is terminal, not retryable")
}

func TestReadUndecodablePayloadIsNotAFailure(t *testing.T) {
	endorser := &mocks.MockEndorser{Payload: []byte("legacy|record|format"), Target: "peer0"}
	gw := newTestGateway(t, []ledger.Endorser{endorser}, nil, nil)

	outcome := gw.Invoke(context.Background(), InvocationRequest{Mode: Read, Fn: "GetSettlement", Args: []string{"stl-1"}})

	assert.Equal(t, StatusSuccess, outcome.Status)
	assert.Equal(t, []byte("legacy|record|format"), outcome.RawPayload)
	assert.Nil(t, outcome.Decoded)
	assert.NotEmpty(t, outcome.DecodeWarning)
}

func TestWriteSuccessAndIdempotentReplay(t *testing.T) {
	endorser := &mocks.MockEndorser{Payload: []byte(`{"state":"SETTLED"}`), Endorsement: []byte("sig0"), Target: "peer0"}
	broadcaster := &mocks.MockBroadcaster{}
	waiter := &mocks.MockCommitWaiter{BlockNumber: 12}
	gw := newTestGateway(t, []ledger.Endorser{endorser}, broadcaster, waiter)

	request := InvocationRequest{
		Mode:           Write,
		Fn:             "SubmitSettlement",
		Args:           []string{`{"amount":125.50,"currency":"USD"}`},
		IdempotencyKey: settlementKey,
	}

	outcome := gw.Invoke(context.Background(), request)
	assert.Equal(t, StatusSuccess, outcome.Status)
	assert.EqualValues(t, 12, outcome.CommitHeight)
	assert.NotEmpty(t, outcome.LedgerTxID)
	assert.Equal(t, settlementKey, outcome.IdempotencyKey)
	assert.Equal(t, 1, broadcaster.CallCount())

	// the replay is answered from the record: nothing touches the ledger again
	replay := gw.Invoke(context.Background(), request)
	assert.Equal(t, StatusSuccess, replay.Status)
	assert.EqualValues(t, 12, replay.CommitHeight)
	assert.Equal(t, outcome.LedgerTxID, replay.LedgerTxID)
	assert.Equal(t, 1, endorser.CallCount())
	assert.Equal(t, 1, broadcaster.CallCount())

	stored, state, ok := gw.Outcome(settlementKey)
	require.True(t, ok)
	assert.Equal(t, idempotency.StateCompleted, state)
	assert.Equal(t, StatusSuccess, stored.Status)
}

func TestWriteCommitTimeoutRequiresReconciliation(t *testing.T) {
	endorser := &mocks.MockEndorser{Payload: []byte(`{"state":"PENDING"}`), Target: "peer0"}
	broadcaster := &mocks.MockBroadcaster{}
	waiter := &mocks.MockCommitWaiter{Block: true}
	gw := newTestGateway(t, []ledger.Endorser{endorser}, broadcaster, waiter)

	request := InvocationRequest{
		Mode:           Write,
		Fn:             "SubmitSettlement",
		Args:           []string{`{"amount":10}`},
		IdempotencyKey: settlementKey,
		Timeout:        150 * time.Millisecond,
	}

	outcome := gw.Invoke(context.Background(), request)
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, ErrorCommitTimeout, outcome.ErrorKind)
	assert.True(t, outcome.ReconcileRequired)
	assert.NotEmpty(t, outcome.LedgerTxID, "the outcome must identify the ambiguous submission")
	assert.Equal(t, 1, endorser.CallCount(), "an ambiguous outcome must not be resubmitted")

	// a replay returns the recorded ambiguous outcome without resubmitting
	replay := gw.Invoke(context.Background(), request)
	assert.Equal(t, ErrorCommitTimeout, replay.ErrorKind)
	assert.True(t, replay.ReconcileRequired)
	assert.Equal(t, 1, endorser.CallCount())
	assert.Equal(t, 1, broadcaster.CallCount())

	stored, state, ok := gw.Outcome(settlementKey)
	require.True(t, ok)
	assert.Equal(t, idempotency.StateFailed, state)
	assert.True(t, stored.ReconcileRequired)
}

func TestWriteBroadcastFailureCarriesTransactionID(t *testing.T) {
	endorser := &mocks.MockEndorser{Payload: []byte(`{"state":"PENDING"}`), Endorsement: []byte("sig0"), Target: "peer0"}
	broadcaster := &mocks.MockBroadcaster{Error: status.New(status.OrdererServerStatus, status.ServerBadRequest,
		"malformed envelope", nil)}
	gw := newTestGateway(t, []ledger.Endorser{endorser}, broadcaster, &mocks.MockCommitWaiter{})

	outcome := gw.Invoke(context.Background(), InvocationRequest{
		Mode:           Write,
		Fn:             "SubmitSettlement",
		Args:           []string{`{"amount":10}`},
		IdempotencyKey: settlementKey,
	})

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.NotEmpty(t, outcome.LedgerTxID, "a failure after submission must still identify the transaction")
	assert.Contains(t, outcome.ErrorMessage, "malformed envelope")
	assert.Equal(t, 1, broadcaster.CallCount())
}

func TestWriteBusinessRejection(t *testing.T) {
	endorser := &mocks.MockEndorser{Status: status.ServerBadRequest, Message: "insufficient funds", Target: "peer0"}
	gw := newTestGateway(t, []ledger.Endorser{endorser}, &mocks.MockBroadcaster{}, &mocks.MockCommitWaiter{})

	outcome := gw.Invoke(context.Background(), InvocationRequest{
		Mode: Write,
		Fn:   "SubmitSettlement",
		Args: []string{`{"amount":10}`},
	})

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, ErrorBusinessRejection, outcome.ErrorKind)
	assert.Contains(t, outcome.ErrorMessage, "insufficient funds")
	assert.Equal(t, 1, endorser.CallCount(), "business rejections are never retried")
}

func TestValidationFailureNeverReachesLedger(t *testing.T) {
	endorser := &mocks.MockEndorser{Payload: []byte("x"), Target: "peer0"}
	gw := newTestGateway(t, []ledger.Endorser{endorser}, &mocks.MockBroadcaster{}, &mocks.MockCommitWaiter{})

	outcome := gw.Invoke(context.Background(), InvocationRequest{
		Mode: Write,
		Fn:   "bad fn;",
	})

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, ErrorValidation, outcome.ErrorKind)
	assert.Equal(t, 0, endorser.CallCount())
}

func TestUnknownTenant(t *testing.T) {
	gw := newTestGateway(t, []ledger.Endorser{&mocks.MockEndorser{Payload: []byte("x")}}, nil, nil)

	outcome := gw.Invoke(context.Background(), InvocationRequest{
		Mode:   Read,
		Fn:     "GetSettlement",
		Tenant: "ghost",
	})

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, ErrorIdentity, outcome.ErrorKind)
}

func TestTenantSelection(t *testing.T) {
	endorser := &mocks.MockEndorser{Payload: []byte(`{"ok":true}`), Target: "peer0"}
	gw := newTestGateway(t, []ledger.Endorser{endorser}, nil, nil)

	outcome := gw.Invoke(context.Background(), InvocationRequest{
		Mode:   Read,
		Fn:     "GetSettlement",
		Args:   []string{"stl-1"},
		Tenant: "acme",
	})

	assert.Equal(t, StatusSuccess, outcome.Status)
}

func TestOutcomeUnknownKey(t *testing.T) {
	gw := newTestGateway(t, []ledger.Endorser{&mocks.MockEndorser{}}, nil, nil)

	_, _, ok := gw.Outcome("never-seen")
	assert.False(t, ok)
}

func TestHealth(t *testing.T) {
	endorser := &mocks.MockEndorser{Payload: []byte(`{"ok":true}`), Target: "peer0"}
	gw := newTestGateway(t, []ledger.Endorser{endorser}, nil, nil)

	gw.Invoke(context.Background(), InvocationRequest{Mode: Read, Fn: "GetSettlement", Args: []string{"stl-1"}})

	health := gw.Health()
	assert.Equal(t, 1, health.Identities, "the default tenant identity is cached after first use")
	assert.Equal(t, 0, health.InFlight)
}

func TestInvalidate(t *testing.T) {
	endorser := &mocks.MockEndorser{Payload: []byte(`{"ok":true}`), Target: "peer0"}
	gw := newTestGateway(t, []ledger.Endorser{endorser}, nil, nil)

	gw.Invoke(context.Background(), InvocationRequest{Mode: Read, Fn: "GetSettlement", Args: []string{"stl-1"}})
	require.Equal(t, 1, gw.Health().Identities)

	gw.Invalidate(DefaultTenant)
	assert.Equal(t, 0, gw.Health().Identities)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"validation", status.New(status.ClientStatus, status.ValidationFailed.ToInt32(), "", nil), ErrorValidation},
		{"identity", status.New(status.ClientStatus, status.IdentityUnresolved.ToInt32(), "", nil), ErrorIdentity},
		{"connection", status.New(status.ClientStatus, status.ConnectionFailed.ToInt32(), "", nil), ErrorConnection},
		{"pool", status.New(status.ClientStatus, status.PoolExhausted.ToInt32(), "", nil), ErrorPoolExhausted},
		{"commit timeout", status.New(status.CommitStatus, status.CommitTimeout.ToInt32(), "", nil), ErrorCommitTimeout},
		{"cancelled", status.New(status.ClientStatus, status.Cancelled.ToInt32(), "", nil), ErrorCancelled},
		{"not found", status.New(status.ClientStatus, status.NotFound.ToInt32(), "", nil), ErrorNotFound},
		{"timeout", status.New(status.ClientStatus, status.Timeout.ToInt32(), "", nil), ErrorTimeout},
		{"mismatch", status.New(status.EndorserClientStatus, status.EndorsementMismatch.ToInt32(), "", nil), ErrorEndorsement},
		{"missing endorsement", status.New(status.EndorserClientStatus, status.MissingEndorsement.ToInt32(), "", nil), ErrorEndorsement},
		{"endorser unavailable", status.New(status.EndorserServerStatus, status.ServerUnavailable, "", nil), ErrorEndorsement},
		{"endorser rejection", status.New(status.EndorserServerStatus, status.ServerBadRequest, "", nil), ErrorBusinessRejection},
		{"orderer unavailable", status.New(status.OrdererServerStatus, status.ServerUnavailable, "", nil), ErrorConnection},
		{"chaincode", status.NewFromExtractedChaincodeError(409, "rejected"), ErrorBusinessRejection},
		{"untyped", errors.New("mystery"), ErrorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, classifyError(tt.err))
		})
	}
}
