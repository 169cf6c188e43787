/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package mocks provides hand-written test doubles for the ledger provider
// contracts. The mocks count their invocations so that tests can assert how
// often the ledger was actually touched.
package mocks

import (
	reqContext "context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/finclarity/settlement-gateway/pkg/client/invoke"
	"github.com/finclarity/settlement-gateway/pkg/common/errors/status"
	"github.com/finclarity/settlement-gateway/pkg/ledger"
)

// MockEndorser is a configurable ledger.Endorser
type MockEndorser struct {
	// Payload is returned as the simulation result
	Payload []byte
	// Endorsement is attached to successful responses
	Endorsement []byte
	// Status is the peer status returned; defaults to ServerOK
	Status int32
	// Message accompanies a non-success status
	Message string
	// Error, when set, fails the call before any response is produced
	Error error
	// Target names the peer in responses
	Target string
	// Delay is applied before responding
	Delay time.Duration

	calls int32
}

// ProcessProposal implements ledger.Endorser
func (m *MockEndorser) ProcessProposal(ctx reqContext.Context, proposal *ledger.SignedProposal) (*ledger.ProposalResponse, error) {
	atomic.AddInt32(&m.calls, 1)

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, status.New(status.ClientStatus, status.Cancelled.ToInt32(), ctx.Err().Error(), nil)
		}
	}

	if m.Error != nil {
		return nil, m.Error
	}

	st := m.Status
	if st == 0 {
		st = status.ServerOK
	}

	response := &ledger.ProposalResponse{
		TxID:        proposal.TxID,
		Status:      st,
		Message:     m.Message,
		Payload:     m.Payload,
		Endorser:    m.Target,
		Endorsement: m.Endorsement,
	}

	if st < status.ServerOK || st >= status.ServerBadRequest {
		return response, status.New(status.EndorserServerStatus, st, m.Message,
			[]interface{}{m.Target, m.Payload})
	}
	return response, nil
}

// CallCount returns the number of proposals processed
func (m *MockEndorser) CallCount() int {
	return int(atomic.LoadInt32(&m.calls))
}

// MockEndorserProvider serves a fixed set of endorsers
type MockEndorserProvider struct {
	Endorsers []ledger.Endorser
	// Error, when set, fails the lease before fn runs
	Error error
}

// WithEndorsers implements invoke.EndorserProvider
func (m *MockEndorserProvider) WithEndorsers(ctx reqContext.Context, count int, fn func([]ledger.Endorser) error) error {
	if m.Error != nil {
		return m.Error
	}
	endorsers := m.Endorsers
	if count >= 1 && count < len(endorsers) {
		endorsers = endorsers[:count]
	}
	return fn(endorsers)
}

var _ invoke.EndorserProvider = (*MockEndorserProvider)(nil)

// MockBroadcaster is a configurable ledger.Broadcaster
type MockBroadcaster struct {
	// Error, when set, fails the broadcast
	Error error

	lock      sync.Mutex
	calls     int
	envelopes []*ledger.Envelope
}

// Broadcast implements ledger.Broadcaster
func (m *MockBroadcaster) Broadcast(ctx reqContext.Context, envelope *ledger.Envelope) (*ledger.BroadcastResponse, error) {
	m.lock.Lock()
	m.calls++
	m.envelopes = append(m.envelopes, envelope)
	m.lock.Unlock()

	if m.Error != nil {
		return nil, m.Error
	}
	return &ledger.BroadcastResponse{Status: status.ServerOK}, nil
}

// CallCount returns the number of broadcasts received
func (m *MockBroadcaster) CallCount() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.calls
}

// LastEnvelope returns the most recently broadcast envelope
func (m *MockBroadcaster) LastEnvelope() *ledger.Envelope {
	m.lock.Lock()
	defer m.lock.Unlock()
	if len(m.envelopes) == 0 {
		return nil
	}
	return m.envelopes[len(m.envelopes)-1]
}

// MockCommitWaiter is a configurable ledger.CommitWaiter
type MockCommitWaiter struct {
	// BlockNumber is reported on the commit event
	BlockNumber uint64
	// Error, when set, fails the wait
	Error error
	// Block, when true, holds until the context is done and then reports a
	// commit timeout, mimicking a commit that never arrives
	Block bool

	calls int32
}

// WaitForCommit implements ledger.CommitWaiter
func (m *MockCommitWaiter) WaitForCommit(ctx reqContext.Context, channel string, txID string) (*ledger.CommitEvent, error) {
	atomic.AddInt32(&m.calls, 1)

	if m.Block {
		<-ctx.Done()
		return nil, status.New(status.CommitStatus, status.CommitTimeout.ToInt32(),
			"commit wait deadline elapsed; transaction outcome unknown, reconcile required", []interface{}{txID})
	}

	if m.Error != nil {
		return nil, m.Error
	}
	return &ledger.CommitEvent{TxID: txID, BlockNumber: m.BlockNumber}, nil
}

// CallCount returns the number of commit waits started
func (m *MockCommitWaiter) CallCount() int {
	return int(atomic.LoadInt32(&m.calls))
}

// MockConn is a pool-compatible connection double
type MockConn struct {
	TargetAddr string

	unhealthy int32
	closed    int32
}

// Target returns the configured address
func (m *MockConn) Target() string {
	return m.TargetAddr
}

// Healthy reports the health flag
func (m *MockConn) Healthy() bool {
	return atomic.LoadInt32(&m.unhealthy) == 0
}

// SetHealthy flips the health flag
func (m *MockConn) SetHealthy(healthy bool) {
	if healthy {
		atomic.StoreInt32(&m.unhealthy, 0)
	} else {
		atomic.StoreInt32(&m.unhealthy, 1)
	}
}

// Close marks the connection closed
func (m *MockConn) Close() {
	atomic.AddInt32(&m.closed, 1)
}

// Closed reports whether Close was called
func (m *MockConn) Closed() bool {
	return atomic.LoadInt32(&m.closed) > 0
}
