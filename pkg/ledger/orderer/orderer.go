/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package orderer allows the gateway to broadcast endorsed transactions to the
// ordering service and to wait for their commit on the ledger.
package orderer

import (
	reqContext "context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/finclarity/settlement-gateway/pkg/common/errors/status"
	"github.com/finclarity/settlement-gateway/pkg/common/logging"
	"github.com/finclarity/settlement-gateway/pkg/ledger"
	"github.com/finclarity/settlement-gateway/pkg/ledger/comm"
)

var logger = logging.NewLogger("gateway/orderer")

const (
	broadcastMethod    = "/gateway.Orderer/Broadcast"
	commitStatusMethod = "/gateway.Deliver/CommitStatus"

	defaultCommitPollInterval = 500 * time.Millisecond
)

// Client broadcasts envelopes and tracks their commit status over a single
// orderer connection
type Client struct {
	conn         *comm.GRPCConnection
	pollInterval time.Duration
}

// Opt is a client option
type Opt func(*Client)

// WithCommitPollInterval overrides the commit status polling interval
func WithCommitPollInterval(interval time.Duration) Opt {
	return func(c *Client) {
		c.pollInterval = interval
	}
}

// New returns an orderer client backed by the given connection
func New(conn *comm.GRPCConnection, opts ...Opt) *Client {
	c := &Client{conn: conn, pollInterval: defaultCommitPollInterval}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Broadcast submits the endorsed envelope to the ordering service
func (c *Client) Broadcast(ctx reqContext.Context, envelope *ledger.Envelope) (*ledger.BroadcastResponse, error) {
	frame, err := json.Marshal(envelope)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling envelope failed")
	}

	out, err := c.conn.Invoke(ctx, broadcastMethod, frame)
	if err != nil {
		return nil, err
	}

	response := &ledger.BroadcastResponse{}
	if err := json.Unmarshal(out, response); err != nil {
		return nil, status.New(status.OrdererClientStatus, status.Unknown.ToInt32(),
			errors.Wrap(err, "unmarshalling broadcast response failed").Error(), nil)
	}

	if response.Status != status.ServerOK {
		return response, status.New(status.OrdererServerStatus, response.Status, response.Info, nil)
	}

	return response, nil
}

// commitStatusRequest asks the delivery service for the commit state of one
// transaction
type commitStatusRequest struct {
	Channel string `json:"channel"`
	TxID    string `json:"txId"`
}

type commitStatusResult struct {
	Committed      bool   `json:"committed"`
	BlockNumber    uint64 `json:"blockNumber"`
	ValidationCode int32  `json:"validationCode"`
}

// WaitForCommit polls the delivery service until the transaction commits or
// the context is done. A deadline expiry is reported as CommitTimeout: the
// transaction may still commit after the gateway stops watching, so the
// outcome is ambiguous and must be reconciled by the caller.
func (c *Client) WaitForCommit(ctx reqContext.Context, channel string, txID string) (*ledger.CommitEvent, error) {
	frame, err := json.Marshal(&commitStatusRequest{Channel: channel, TxID: txID})
	if err != nil {
		return nil, errors.Wrap(err, "marshalling commit status request failed")
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		out, err := c.conn.Invoke(ctx, commitStatusMethod, frame)
		if err != nil {
			if s, ok := status.FromError(err); ok && status.Code(s.Code) == status.Timeout {
				return nil, commitTimeout(txID)
			}
			return nil, err
		}

		result := &commitStatusResult{}
		if err := json.Unmarshal(out, result); err != nil {
			return nil, status.New(status.OrdererClientStatus, status.Unknown.ToInt32(),
				errors.Wrap(err, "unmarshalling commit status failed").Error(), nil)
		}

		if result.Committed {
			logger.Debugf("Transaction %s committed at block %d", txID, result.BlockNumber)
			return &ledger.CommitEvent{
				TxID:           txID,
				BlockNumber:    result.BlockNumber,
				ValidationCode: result.ValidationCode,
			}, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), reqContext.DeadlineExceeded) {
				return nil, commitTimeout(txID)
			}
			return nil, status.New(status.ClientStatus, status.Cancelled.ToInt32(), ctx.Err().Error(), nil)
		}
	}
}

func commitTimeout(txID string) *status.Status {
	return status.New(status.CommitStatus, status.CommitTimeout.ToInt32(),
		"commit wait deadline elapsed; transaction outcome unknown, reconcile required", []interface{}{txID})
}
