/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package idempotency deduplicates WRITE submissions keyed by a
// caller-supplied idempotency key and applies the retry budget to transient
// failures. For any one key, at most one ledger submission is ever in flight:
// concurrent callers with the same key wait for, and receive, the first
// caller's outcome. Terminal records are retained for a bounded window so
// that ambiguous outcomes (commit timeouts) remain queryable for
// reconciliation; the ledger itself stays the durable source of truth.
package idempotency

import (
	reqContext "context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/finclarity/settlement-gateway/pkg/common/errors/retry"
	"github.com/finclarity/settlement-gateway/pkg/common/errors/status"
	"github.com/finclarity/settlement-gateway/pkg/common/logging"
	"github.com/finclarity/settlement-gateway/pkg/util/concurrent/futurevalue"
)

var logger = logging.NewLogger("gateway/idempotency")

// State is the lifecycle state of an idempotency record
type State int32

// Record states.
const (
	StateInFlight State = iota
	StateCompleted
	StateFailed
)

var stateNames = map[State]string{
	StateInFlight:  "IN_FLIGHT",
	StateCompleted: "COMPLETED",
	StateFailed:    "FAILED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Invocation is the orchestrator call being deduplicated
type Invocation func() (interface{}, error)

// record tracks one idempotency key. The state field transitions via
// compare-and-set only, so two goroutines can never both conclude they own
// the submission.
type record struct {
	key       string
	firstSeen time.Time
	state     int32
	future    *futurevalue.Value
}

func (r *record) getState() State {
	return State(atomic.LoadInt32(&r.state))
}

func (r *record) transition(from State, to State) bool {
	return atomic.CompareAndSwapInt32(&r.state, int32(from), int32(to))
}

// Config bounds the controller
type Config struct {
	// TTL is how long terminal records are retained
	TTL time.Duration
	// SweepInterval is how often expired records are collected
	SweepInterval time.Duration
	// Retry is the budget applied to transient failures
	Retry retry.Opts
	// BeforeRetry is invoked before every retry attempt (used for metrics)
	BeforeRetry func(error)
}

// Controller deduplicates keyed invocations and retries transient failures
type Controller struct {
	cfg     Config
	records sync.Map
	done    chan struct{}
	wg      sync.WaitGroup
	closed  int32
}

// New returns a started controller
func New(cfg Config) *Controller {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}

	c := &Controller{
		cfg:  cfg,
		done: make(chan struct{}),
	}

	c.wg.Add(1)
	go c.sweeper()

	return c
}

// Execute runs the invocation under the idempotency contract:
//   - an empty key executes fresh with retries but no dedup;
//   - a key with a terminal record returns the stored outcome without
//     touching the ledger;
//   - a key with an in-flight record waits for that invocation's outcome;
//   - otherwise this caller owns the submission.
func (c *Controller) Execute(ctx reqContext.Context, key string, call Invocation) (interface{}, error) {
	if key == "" {
		return c.invoke(ctx, call)
	}

	newRec := &record{
		key:       key,
		firstSeen: time.Now(),
		state:     int32(StateInFlight),
	}
	newRec.future = futurevalue.New(func() (interface{}, error) {
		outcome, err := c.invoke(ctx, call)
		if err != nil {
			newRec.transition(StateInFlight, StateFailed)
		} else {
			newRec.transition(StateInFlight, StateCompleted)
		}
		return outcome, err
	})

	actual, loaded := c.records.LoadOrStore(key, newRec)
	rec := actual.(*record)

	if loaded {
		logger.Debugf("Idempotency key [%s] already %s; waiting for its outcome", key, rec.getState())
		return rec.future.Get(ctx)
	}

	return rec.future.Initialize()
}

// Outcome returns the stored outcome for a key, if any. The boolean reports
// whether a record exists; an in-flight record returns with ok=true and a nil
// outcome.
func (c *Controller) Outcome(key string) (interface{}, error, State, bool) {
	actual, ok := c.records.Load(key)
	if !ok {
		return nil, nil, StateInFlight, false
	}
	rec := actual.(*record)
	if !rec.future.IsSet() {
		return nil, nil, rec.getState(), true
	}
	outcome, err := rec.future.Get(reqContext.Background())
	return outcome, err, rec.getState(), true
}

// InFlight returns the number of records currently awaiting an outcome
func (c *Controller) InFlight() int {
	count := 0
	c.records.Range(func(_, value interface{}) bool {
		if value.(*record).getState() == StateInFlight {
			count++
		}
		return true
	})
	return count
}

// Close stops the sweeper. Records are left readable for callers holding the
// controller.
func (c *Controller) Close() {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return
	}
	close(c.done)
	c.wg.Wait()
}

func (c *Controller) invoke(ctx reqContext.Context, call Invocation) (interface{}, error) {
	var opts []retry.InvokerOpt
	if c.cfg.BeforeRetry != nil {
		opts = append(opts, retry.WithBeforeRetry(c.cfg.BeforeRetry))
	}
	invoker := retry.NewInvoker(retry.New(c.cfg.Retry), opts...)
	return invoker.Invoke(ctx, retry.Invocation(call))
}

// sweeper garbage collects terminal records past their retention window
func (c *Controller) sweeper() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *Controller) sweep() {
	cutoff := time.Now().Add(-c.cfg.TTL)
	c.records.Range(func(key, value interface{}) bool {
		rec := value.(*record)
		if rec.getState() != StateInFlight && rec.firstSeen.Before(cutoff) {
			logger.Debugf("Expiring idempotency record [%s]", rec.key)
			c.records.Delete(key)
		}
		return true
	})
}

// IsReconcileRequired reports whether the error is an ambiguous commit
// timeout that must be reconciled against the ledger before any resubmission
func IsReconcileRequired(err error) bool {
	s, ok := status.FromError(err)
	return ok && s.Group == status.CommitStatus && status.Code(s.Code) == status.CommitTimeout
}
