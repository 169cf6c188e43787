/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package comm provides gRPC connection management for peer and orderer
// endpoints. Establishing a connection performs the TLS handshake up front so
// that pooled connections never pay that cost on the request hot path.
package comm

import (
	reqContext "context"
	"crypto/tls"
	"crypto/x509"
	"os"
	"time"

	"github.com/pkg/errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	coreconfig "github.com/finclarity/settlement-gateway/pkg/core/config"
	"github.com/finclarity/settlement-gateway/pkg/common/errors/status"
	"github.com/finclarity/settlement-gateway/pkg/common/logging"
)

var logger = logging.NewLogger("gateway/comm")

const (
	// GRPC max message size (same as the ledger peers)
	maxCallRecvMsgSize = 100 * 1024 * 1024
	maxCallSendMsgSize = 100 * 1024 * 1024

	defaultDialTimeout = 10 * time.Second
)

// GRPCConnection is an established session to one ledger endpoint. It wraps a
// gRPC client connection that natively multiplexes concurrent calls.
type GRPCConnection struct {
	target string
	conn   *grpc.ClientConn
}

// DialOpts control connection establishment
type DialOpts struct {
	TLS         *coreconfig.TLSConfig
	DialTimeout time.Duration
	KeepAlive   keepalive.ClientParameters
}

// Dial establishes a connection to the target, blocking until the transport
// is ready or the dial timeout elapses
func Dial(ctx reqContext.Context, target string, opts DialOpts) (*GRPCConnection, error) {
	if target == "" {
		return nil, errors.New("target is required")
	}

	grpcOpts := []grpc.DialOption{
		grpc.WithDefaultCallOptions(
			grpc.WaitForReady(true),
			grpc.MaxCallRecvMsgSize(maxCallRecvMsgSize),
			grpc.MaxCallSendMsgSize(maxCallSendMsgSize),
		),
	}
	if opts.KeepAlive.Time > 0 {
		grpcOpts = append(grpcOpts, grpc.WithKeepaliveParams(opts.KeepAlive))
	}

	creds, err := transportCredentials(opts.TLS)
	if err != nil {
		return nil, err
	}
	grpcOpts = append(grpcOpts, grpc.WithTransportCredentials(creds))

	dialTimeout := opts.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = defaultDialTimeout
	}
	ctx, cancel := reqContext.WithTimeout(ctx, dialTimeout)
	defer cancel()

	grpcOpts = append(grpcOpts, grpc.WithBlock()) //nolint:staticcheck

	conn, err := grpc.DialContext(ctx, target, grpcOpts...) //nolint:staticcheck
	if err != nil {
		return nil, status.New(status.ClientStatus, status.ConnectionFailed.ToInt32(),
			errors.Wrapf(err, "dialing %s failed", target).Error(), nil)
	}

	logger.Debugf("Connected to %s", target)

	return &GRPCConnection{target: target, conn: conn}, nil
}

func transportCredentials(cfg *coreconfig.TLSConfig) (credentials.TransportCredentials, error) {
	if cfg == nil || !cfg.Enabled {
		return insecure.NewCredentials(), nil
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: cfg.ServerNameOverride,
	}

	if cfg.CACertFile != "" {
		pem, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, errors.Wrapf(err, "reading CA cert %s failed", cfg.CACertFile)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.Errorf("no CA certificates found in %s", cfg.CACertFile)
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "loading client TLS key pair failed")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return credentials.NewTLS(tlsConfig), nil
}

// Invoke performs a unary call carrying raw byte frames
func (c *GRPCConnection) Invoke(ctx reqContext.Context, method string, request []byte) ([]byte, error) {
	var response []byte
	err := c.conn.Invoke(ctx, method, &request, &response, grpc.CallContentSubtype(rawCodecName))
	if err != nil {
		return nil, status.FromGRPCError(err)
	}
	return response, nil
}

// Target returns the endpoint address of the connection
func (c *GRPCConnection) Target() string {
	return c.target
}

// Healthy reports whether the underlying transport is usable. Idle is
// considered healthy since gRPC reconnects transparently on next use.
func (c *GRPCConnection) Healthy() bool {
	switch c.conn.GetState() {
	case connectivity.Ready, connectivity.Idle, connectivity.Connecting:
		return true
	default:
		return false
	}
}

// Close tears down the connection
func (c *GRPCConnection) Close() {
	if err := c.conn.Close(); err != nil {
		logger.Warnf("Closing connection to %s failed: %s", c.target, err)
	}
}
