/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package gateway is the settlement gateway facade. It accepts normalized
// invocation requests from the API layer, resolves the tenant's ledger
// identity, routes reads to proposal evaluation and writes through the
// endorse/order/commit-wait pipeline, and reports every result as a terminal
// InvocationOutcome.
package gateway

import (
	reqContext "context"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/finclarity/settlement-gateway/pkg/client/channel"
	"github.com/finclarity/settlement-gateway/pkg/client/idempotency"
	"github.com/finclarity/settlement-gateway/pkg/client/invoke"
	"github.com/finclarity/settlement-gateway/pkg/common/errors/retry"
	"github.com/finclarity/settlement-gateway/pkg/common/errors/status"
	"github.com/finclarity/settlement-gateway/pkg/common/logging"
	"github.com/finclarity/settlement-gateway/pkg/core/config"
	"github.com/finclarity/settlement-gateway/pkg/ledger"
	"github.com/finclarity/settlement-gateway/pkg/ledger/comm"
	"github.com/finclarity/settlement-gateway/pkg/ledger/identity"
	"github.com/finclarity/settlement-gateway/pkg/ledger/orderer"
	"github.com/finclarity/settlement-gateway/pkg/ledger/pool"
	"github.com/finclarity/settlement-gateway/pkg/metrics"
)

var logger = logging.NewLogger("gateway")

// DefaultTenant is used when a request does not name a tenant
const DefaultTenant = "default"

// Gateway is a connected settlement gateway instance. It is safe for
// concurrent use; one instance serves all tenants and invocations.
type Gateway struct {
	cfg         *config.Config
	identities  ledger.IdentityProvider
	pool        *pool.Pool
	endorsers   invoke.EndorserProvider
	broadcaster ledger.Broadcaster
	waiter      ledger.CommitWaiter
	controller  *idempotency.Controller
	metrics     *metrics.Metrics
	retryOpts   retry.Opts

	closers   []func()
	closeOnce sync.Once
}

type options struct {
	cfg         *config.Config
	store       identity.CredentialStore
	identities  ledger.IdentityProvider
	pool        *pool.Pool
	endorsers   invoke.EndorserProvider
	broadcaster ledger.Broadcaster
	waiter      ledger.CommitWaiter
	metrics     *metrics.Metrics
}

// Option configures Connect
type Option func(*options) error

// WithConfig supplies the configuration; without it the environment is read
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		o.cfg = cfg
		return nil
	}
}

// WithCredentialStore supplies the store tenant credentials are loaded from
func WithCredentialStore(store identity.CredentialStore) Option {
	return func(o *options) error {
		o.store = store
		return nil
	}
}

// WithIdentityProvider replaces the default caching identity provider
func WithIdentityProvider(provider ledger.IdentityProvider) Option {
	return func(o *options) error {
		o.identities = provider
		return nil
	}
}

// WithConnectionPool supplies an externally managed connection pool
func WithConnectionPool(p *pool.Pool) Option {
	return func(o *options) error {
		o.pool = p
		return nil
	}
}

// WithEndorserProvider replaces the default pool-backed endorser provider
func WithEndorserProvider(provider invoke.EndorserProvider) Option {
	return func(o *options) error {
		o.endorsers = provider
		return nil
	}
}

// WithOrderer replaces the default orderer client
func WithOrderer(broadcaster ledger.Broadcaster, waiter ledger.CommitWaiter) Option {
	return func(o *options) error {
		o.broadcaster = broadcaster
		o.waiter = waiter
		return nil
	}
}

// WithMetrics enables prometheus instrumentation
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) error {
		o.metrics = m
		return nil
	}
}

// Connect builds a gateway from the given options, establishing the minimum
// pool connections and the orderer connection up front so that a
// misconfigured deployment fails at startup rather than on the first request.
func Connect(ctx reqContext.Context, opts ...Option) (*Gateway, error) {
	o := options{}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	cfg := o.cfg
	if cfg == nil {
		var err error
		cfg, err = config.FromEnv()
		if err != nil {
			return nil, err
		}
	}

	g := &Gateway{
		cfg:     cfg,
		metrics: o.metrics,
		retryOpts: retry.Opts{
			Attempts:       cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
			BackoffFactor:  cfg.Retry.BackoffFactor,
			RetryableCodes: retry.ChannelClientRetryableCodes,
		},
	}

	if err := g.initIdentities(&o); err != nil {
		return nil, err
	}
	if err := g.initEndorsers(ctx, &o); err != nil {
		g.Close()
		return nil, err
	}
	if err := g.initOrderer(ctx, &o); err != nil {
		g.Close()
		return nil, err
	}

	g.controller = idempotency.New(idempotency.Config{
		TTL:           cfg.Idempotency.TTL,
		SweepInterval: cfg.Idempotency.SweepInterval,
		Retry:         g.retryOpts,
		BeforeRetry: func(error) {
			g.metrics.IncRetry()
		},
	})
	g.closers = append(g.closers, g.controller.Close)

	logger.Infof("Gateway connected: %d peer(s), orderer %s, channel %s",
		len(cfg.Peers), cfg.Orderer.URL, cfg.Channel.Name)

	return g, nil
}

func (g *Gateway) initIdentities(o *options) error {
	if o.identities != nil {
		g.identities = o.identities
		return nil
	}

	store := o.store
	if store == nil {
		static, err := staticStoreFromConfig(g.cfg)
		if err != nil {
			return err
		}
		store = static
	}

	provider := identity.NewProvider(store, g.cfg.Identity.CacheTTL)
	g.identities = provider
	g.closers = append(g.closers, provider.Close)
	return nil
}

func (g *Gateway) initEndorsers(ctx reqContext.Context, o *options) error {
	if o.endorsers != nil {
		g.endorsers = o.endorsers
		g.pool = o.pool
		return nil
	}

	g.pool = o.pool
	if g.pool == nil {
		p, err := pool.New(ctx, pool.Config{
			Targets:               g.cfg.PeerURLs(),
			MinSize:               g.cfg.Pool.MinSize,
			MaxSize:               g.cfg.Pool.MaxSize,
			AcquireTimeout:        g.cfg.Pool.AcquireTimeout,
			ProbeInterval:         g.cfg.Pool.ProbeInterval,
			ProbeFailureThreshold: g.cfg.Pool.ProbeFailureThreshold,
			DialOpts:              comm.DialOpts{TLS: &g.cfg.TLS},
		})
		if err != nil {
			return errors.WithMessage(err, "creating peer connection pool failed")
		}
		g.pool = p
		g.closers = append(g.closers, p.Close)
	}

	fullSet := len(g.cfg.Peers)
	if fullSet > g.cfg.Pool.MaxSize {
		fullSet = g.cfg.Pool.MaxSize
	}
	g.endorsers = newPoolEndorserProvider(g.pool, fullSet)
	return nil
}

func (g *Gateway) initOrderer(ctx reqContext.Context, o *options) error {
	if o.broadcaster != nil && o.waiter != nil {
		g.broadcaster = o.broadcaster
		g.waiter = o.waiter
		return nil
	}

	conn, err := comm.Dial(ctx, g.cfg.Orderer.URL, comm.DialOpts{TLS: &g.cfg.TLS})
	if err != nil {
		return errors.WithMessage(err, "connecting to orderer failed")
	}
	g.closers = append(g.closers, conn.Close)

	client := orderer.New(conn)
	g.broadcaster = client
	g.waiter = client
	return nil
}

func staticStoreFromConfig(cfg *config.Config) (*identity.StaticStore, error) {
	store := identity.NewStaticStore()
	for _, t := range cfg.Tenants {
		id := &ledger.Identity{
			Tenant:  t.Tenant,
			MSPID:   t.MSPID,
			Channel: cfg.Channel.Name,
			KeyRef:  t.KeyRef,
		}
		if t.CertFile != "" {
			pem, err := os.ReadFile(t.CertFile)
			if err != nil {
				return nil, errors.Wrapf(err, "reading enrollment cert for tenant %s failed", t.Tenant)
			}
			id.EnrollmentCert = pem
		}
		store.Register(id)
	}
	return store, nil
}

// Invoke runs one invocation to its terminal outcome. Every failure is
// classified on the outcome; Invoke itself never returns an error so that the
// API layer has exactly one result shape to translate.
func (g *Gateway) Invoke(ctx reqContext.Context, req InvocationRequest) InvocationOutcome {
	start := time.Now()

	normalized, err := normalize(req)
	if err != nil {
		return g.observed(req.Mode, req.Fn, g.outcomeFrom(req, channel.Response{}, err, start))
	}

	tenant := normalized.Tenant
	if tenant == "" {
		tenant = DefaultTenant
	}

	id, err := g.identities.ResolveIdentity(ctx, tenant)
	if err != nil {
		return g.observed(normalized.Mode, normalized.Fn, g.outcomeFrom(normalized, channel.Response{}, err, start))
	}

	client, err := channel.New(&invoke.ClientContext{
		Identity:     id,
		Endorsers:    g.endorsers,
		Broadcaster:  g.broadcaster,
		CommitWaiter: g.waiter,
	})
	if err != nil {
		return g.observed(normalized.Mode, normalized.Fn, g.outcomeFrom(normalized, channel.Response{}, err, start))
	}

	timeout := normalized.Timeout
	if timeout <= 0 {
		timeout = g.cfg.Invocation.DefaultTimeout
	}

	request := channel.Request{
		Chaincode: g.cfg.Channel.Chaincode,
		Fn:        normalized.Fn,
		Args:      normalized.Args,
	}

	if normalized.Mode == Read {
		resp, err := client.Query(request,
			channel.WithTimeout(timeout),
			channel.WithRetry(g.retryOpts),
			channel.WithParentContext(ctx))
		return g.observed(Read, normalized.Fn, g.outcomeFrom(normalized, resp, err, start))
	}

	if normalized.IdempotencyKey != "" {
		if _, _, _, ok := g.controller.Outcome(normalized.IdempotencyKey); ok {
			g.metrics.IncIdempotencyHit()
		}
	}

	// The retry budget for writes is owned by the idempotency controller, so
	// each channel attempt runs without its own retries
	value, err := g.controller.Execute(ctx, normalized.IdempotencyKey, func() (interface{}, error) {
		return client.Execute(request,
			channel.WithTimeout(timeout),
			channel.WithParentContext(ctx))
	})

	var resp channel.Response
	if r, ok := value.(channel.Response); ok {
		resp = r
	}
	return g.observed(Write, normalized.Fn, g.outcomeFrom(normalized, resp, err, start))
}

// Outcome returns the recorded outcome for a WRITE idempotency key. An
// in-flight record reports with ok=true and an empty outcome so that callers
// can distinguish "still being settled" from "never seen".
func (g *Gateway) Outcome(key string) (InvocationOutcome, idempotency.State, bool) {
	value, err, state, ok := g.controller.Outcome(key)
	if !ok {
		return InvocationOutcome{}, state, false
	}
	if state == idempotency.StateInFlight {
		return InvocationOutcome{IdempotencyKey: key}, state, true
	}

	var resp channel.Response
	if r, ok := value.(channel.Response); ok {
		resp = r
	}
	outcome := g.outcomeFrom(InvocationRequest{Mode: Write, IdempotencyKey: key}, resp, err, time.Now())
	outcome.Elapsed = 0
	return outcome, state, true
}

// Invalidate discards the cached identity for the tenant. It is called on a
// credential-rotation signal from the secret store.
func (g *Gateway) Invalidate(tenant string) {
	g.identities.Invalidate(tenant)
}

// Health returns a point-in-time operational snapshot
func (g *Gateway) Health() Health {
	h := Health{}
	if g.pool != nil {
		h.Pool = g.pool.Stats()
	}
	if g.identities != nil {
		h.Identities = g.identities.Count()
	}
	if g.controller != nil {
		h.InFlight = g.controller.InFlight()
	}
	return h
}

// RegisterPoolMetrics exposes pool occupancy gauges on the registerer
func (g *Gateway) RegisterPoolMetrics(reg prometheus.Registerer) {
	if g.pool == nil {
		return
	}
	p := g.pool
	g.metrics.RegisterPoolStats(reg,
		func() float64 { return float64(p.Stats().Open) },
		func() float64 { return float64(p.Stats().InUse) },
		func() float64 { return float64(p.Stats().WaitCount) })
}

// Close releases all gateway resources in reverse construction order
func (g *Gateway) Close() {
	g.closeOnce.Do(func() {
		for i := len(g.closers) - 1; i >= 0; i-- {
			g.closers[i]()
		}
	})
}

func (g *Gateway) outcomeFrom(req InvocationRequest, resp channel.Response, err error, start time.Time) InvocationOutcome {
	outcome := InvocationOutcome{
		LedgerTxID:     resp.TransactionID,
		CommitHeight:   resp.CommitHeight,
		IdempotencyKey: req.IdempotencyKey,
		Elapsed:        time.Since(start),
	}

	if err != nil {
		outcome.Status = StatusFailed
		outcome.ErrorKind = classifyError(err)
		outcome.ErrorMessage = err.Error()
		if idempotency.IsReconcileRequired(err) {
			outcome.ReconcileRequired = true
			if outcome.LedgerTxID == "" {
				outcome.LedgerTxID = txIDFromStatus(err)
			}
		}
		logger.Debugf("Invocation [%s] failed at kind %s: %s", req.Fn, outcome.ErrorKind, err)
		return outcome
	}

	outcome.Status = StatusSuccess
	outcome.RawPayload = resp.Payload
	outcome.Decoded, outcome.DecodeWarning = decodePayload(resp.Payload)
	return outcome
}

// observed records the outcome on the mode's metric family and returns it
func (g *Gateway) observed(mode Mode, fn string, outcome InvocationOutcome) InvocationOutcome {
	if mode == Write {
		g.metrics.ObserveExecution(fn, outcome.Elapsed, string(outcome.ErrorKind))
	} else {
		g.metrics.ObserveQuery(fn, outcome.Elapsed, string(outcome.ErrorKind))
	}
	return outcome
}

// txIDFromStatus recovers the transaction id carried in a commit timeout's
// status details
func txIDFromStatus(err error) string {
	s, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range s.Details {
		if txID, ok := d.(string); ok {
			return txID
		}
	}
	return ""
}
