/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package pool maintains a bounded set of long-lived connections to ledger
// peers, reused across concurrent invocations. Establishing a connection
// performs a TLS handshake and is expensive; beyond pool top-up it never
// happens on the request hot path.
package pool

import (
	reqContext "context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/finclarity/settlement-gateway/pkg/common/errors/status"
	"github.com/finclarity/settlement-gateway/pkg/common/logging"
	"github.com/finclarity/settlement-gateway/pkg/ledger/comm"
)

var logger = logging.NewLogger("gateway/pool")

// Conn is the subset of a connection's behavior the pool manages. It is
// satisfied by *comm.GRPCConnection.
type Conn interface {
	Target() string
	Healthy() bool
	Close()
}

// Dialer establishes a new connection to a target
type Dialer func(ctx reqContext.Context, target string) (Conn, error)

// Handle is a pooled connection lease. A handle is owned by exactly one
// in-flight invocation between Acquire and Release.
type Handle struct {
	conn     Conn
	failures int
	evicted  bool
}

// Conn returns the underlying connection
func (h *Handle) Conn() Conn {
	return h.conn
}

// Config bounds the pool
type Config struct {
	// Targets are the peer endpoints connections are balanced across
	Targets []string
	// MinSize connections are established at startup
	MinSize int
	// MaxSize bounds the total number of connections
	MaxSize int
	// AcquireTimeout bounds how long Acquire blocks for a free handle
	AcquireTimeout time.Duration
	// ProbeInterval is how often idle handles are health checked
	ProbeInterval time.Duration
	// ProbeFailureThreshold is the number of consecutive failed probes after
	// which a handle is evicted
	ProbeFailureThreshold int
	// Dialer establishes connections; defaults to comm.Dial
	Dialer Dialer
	// DialOpts are passed to the default dialer
	DialOpts comm.DialOpts
}

// Pool is a bounded connection pool with periodic health probing. Evicted
// handles are replaced lazily on the next acquisition.
type Pool struct {
	cfg  Config
	free chan *Handle

	lock      sync.Mutex
	open      int
	next      int
	waitCount uint64
	evictions uint64
	closed    bool

	done chan struct{}
	wg   sync.WaitGroup
}

// Stats is a point-in-time snapshot of pool occupancy
type Stats struct {
	Open      int    `json:"open"`
	InUse     int    `json:"inUse"`
	Free      int    `json:"free"`
	WaitCount uint64 `json:"waitCount"`
	Evictions uint64 `json:"evictions"`
}

// New creates the pool and establishes MinSize connections up front
func New(ctx reqContext.Context, cfg Config) (*Pool, error) {
	if len(cfg.Targets) == 0 {
		return nil, errors.New("at least one target is required")
	}
	if cfg.MaxSize <= 0 || cfg.MinSize > cfg.MaxSize {
		return nil, errors.Errorf("invalid pool bounds: min %d max %d", cfg.MinSize, cfg.MaxSize)
	}
	if cfg.Dialer == nil {
		dialOpts := cfg.DialOpts
		cfg.Dialer = func(ctx reqContext.Context, target string) (Conn, error) {
			return comm.Dial(ctx, target, dialOpts)
		}
	}
	if cfg.ProbeFailureThreshold <= 0 {
		cfg.ProbeFailureThreshold = 3
	}

	p := &Pool{
		cfg:  cfg,
		free: make(chan *Handle, cfg.MaxSize),
		done: make(chan struct{}),
	}

	for i := 0; i < cfg.MinSize; i++ {
		h, err := p.dial(ctx)
		if err != nil {
			p.Close()
			return nil, errors.WithMessage(err, "establishing initial pool connections failed")
		}
		p.free <- h
	}

	if cfg.ProbeInterval > 0 {
		p.wg.Add(1)
		go p.janitor()
	}

	return p, nil
}

// Acquire leases a handle, blocking up to the acquire timeout for one to
// become free. Unhealthy handles encountered on the way are discarded and
// replaced if the bound allows.
func (p *Pool) Acquire(ctx reqContext.Context) (*Handle, error) {
	timeout := p.cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case h := <-p.free:
			if !h.conn.Healthy() {
				p.discard(h)
				continue
			}
			return h, nil
		default:
		}

		if h, ok, err := p.topUp(ctx); ok {
			return h, err
		}

		p.noteWait()

		select {
		case h := <-p.free:
			if !h.conn.Healthy() {
				p.discard(h)
				continue
			}
			return h, nil
		case <-timer.C:
			return nil, status.New(status.ClientStatus, status.PoolExhausted.ToInt32(),
				"no pooled connection became available within the acquire timeout", nil)
		case <-ctx.Done():
			return nil, status.New(status.ClientStatus, status.Cancelled.ToInt32(), ctx.Err().Error(), nil)
		}
	}
}

// topUp dials a new connection if the bound allows. The slot is reserved
// before dialing so concurrent acquisitions cannot overshoot MaxSize.
func (p *Pool) topUp(ctx reqContext.Context) (*Handle, bool, error) {
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return nil, true, errors.New("pool is closed")
	}
	if p.open >= p.cfg.MaxSize {
		p.lock.Unlock()
		return nil, false, nil
	}
	p.open++
	p.lock.Unlock()

	h, err := p.dialReserved(ctx)
	if err != nil {
		return nil, true, err
	}
	return h, true, nil
}

// Release returns the handle to the pool. Evicted or unhealthy handles, and
// handles released after Close, are closed instead of requeued.
func (p *Pool) Release(h *Handle) {
	if h == nil {
		return
	}
	if h.evicted || !h.conn.Healthy() {
		p.discard(h)
		return
	}

	// requeue under the lock: Close flips closed under the same lock before
	// draining, so a handle is either observed by the drain or discarded here
	p.lock.Lock()
	if !p.closed {
		select {
		case p.free <- h:
			p.lock.Unlock()
			return
		default:
			// free channel is sized MaxSize; overflow means the handle no
			// longer belongs to this pool generation
		}
	}
	p.lock.Unlock()
	p.discard(h)
}

// WithConnection acquires a handle, runs fn, and guarantees the release
// regardless of success, failure or cancellation
func (p *Pool) WithConnection(ctx reqContext.Context, fn func(h *Handle) error) error {
	h, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(h)
	return fn(h)
}

// Stats returns a snapshot of pool occupancy
func (p *Pool) Stats() Stats {
	p.lock.Lock()
	defer p.lock.Unlock()
	free := len(p.free)
	return Stats{
		Open:      p.open,
		InUse:     p.open - free,
		Free:      free,
		WaitCount: p.waitCount,
		Evictions: p.evictions,
	}
}

// Close drains and closes all pooled connections. Handles still leased are
// closed when released.
func (p *Pool) Close() {
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return
	}
	p.closed = true
	p.lock.Unlock()

	close(p.done)
	p.wg.Wait()

	for {
		select {
		case h := <-p.free:
			p.discard(h)
		default:
			return
		}
	}
}

// janitor periodically probes idle handles and evicts those failing the
// threshold. Replacement is lazy: the next Acquire tops the pool back up.
func (p *Pool) janitor() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.probeIdle()
		case <-p.done:
			return
		}
	}
}

func (p *Pool) probeIdle() {
	var idle []*Handle
	for {
		select {
		case h := <-p.free:
			idle = append(idle, h)
		default:
			goto probe
		}
	}

probe:
	for _, h := range idle {
		if h.conn.Healthy() {
			h.failures = 0
			p.free <- h
			continue
		}
		h.failures++
		logger.Debugf("Probe failed for %s (%d consecutive)", h.conn.Target(), h.failures)
		if h.failures >= p.cfg.ProbeFailureThreshold {
			logger.Warnf("Evicting connection to %s after %d failed probes", h.conn.Target(), h.failures)
			h.evicted = true
			p.discard(h)
			continue
		}
		p.free <- h
	}
}

func (p *Pool) dial(ctx reqContext.Context) (*Handle, error) {
	p.lock.Lock()
	p.open++
	p.lock.Unlock()
	return p.dialReserved(ctx)
}

// dialReserved dials the next target round-robin; the open slot must already
// be reserved
func (p *Pool) dialReserved(ctx reqContext.Context) (*Handle, error) {
	p.lock.Lock()
	target := p.cfg.Targets[p.next%len(p.cfg.Targets)]
	p.next++
	p.lock.Unlock()

	conn, err := p.cfg.Dialer(ctx, target)
	if err != nil {
		p.lock.Lock()
		p.open--
		p.lock.Unlock()
		return nil, err
	}
	return &Handle{conn: conn}, nil
}

func (p *Pool) discard(h *Handle) {
	h.conn.Close()
	p.lock.Lock()
	p.open--
	if h.evicted {
		p.evictions++
	}
	p.lock.Unlock()
}

func (p *Pool) noteWait() {
	p.lock.Lock()
	p.waitCount++
	p.lock.Unlock()
}
