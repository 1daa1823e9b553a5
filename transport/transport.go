// Package transport is a small HTTP/1.1 client working directly on sockets.
//
// A Transport holds a set of candidate addresses and at most one keep-alive
// connection per address. Each call picks an address at random, writes the
// request and reads the whole response under a single timeout budget shared
// by both phases. Any failure closes the connection that was used; there are
// no retries and no failover, that policy belongs to the caller.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Config configures a Transport. Only Addrs is required.
type Config struct {
	// Addrs lists the candidate servers as host:port.
	Addrs []string

	// Timeout is the budget shared by the write and read phases of a call.
	Timeout time.Duration

	// DialTimeout bounds connection establishment, which is not part of the
	// request budget. Zero means no limit besides the caller context.
	DialTimeout time.Duration

	// MaxLineBytes limits status, header and chunk-size lines.
	MaxLineBytes int

	// MaxBodyBytes limits response bodies. Zero selects the default, a
	// negative value disables the limit.
	MaxBodyBytes int64

	Dial    DialFunc
	Logger  *slog.Logger
	Metrics *Metrics
}

// Transport executes requests against a pool of addresses. It is safe for
// concurrent use; requests to the same address are serialized.
type Transport struct {
	addrs   *AddressPool
	conns   *ConnPool
	timeout time.Duration
	limits  readLimits
	log     *slog.Logger
	metrics *Metrics
}

// New returns a Transport for cfg.
func New(cfg Config) (*Transport, error) {
	addrs, err := NewAddressPool(cfg.Addrs)
	if err != nil {
		return nil, err
	}
	t := &Transport{
		addrs:   addrs,
		timeout: cfg.Timeout,
		limits:  readLimits{maxLine: cfg.MaxLineBytes, maxBody: cfg.MaxBodyBytes},
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}
	if t.timeout <= 0 {
		t.timeout = DefaultTimeout
	}
	if t.limits.maxLine <= 0 {
		t.limits.maxLine = defaultMaxLineBytes
	}
	switch {
	case t.limits.maxBody == 0:
		t.limits.maxBody = defaultMaxBodyBytes
	case t.limits.maxBody < 0:
		t.limits.maxBody = 0
	}
	if t.log == nil {
		t.log = slog.Default()
	}
	t.conns = NewConnPool(cfg.Dial, cfg.DialTimeout, t.log, t.metrics)
	return t, nil
}

// Addrs returns the configured addresses.
func (t *Transport) Addrs() []string {
	return t.addrs.Addrs()
}

// Timeout returns the per-call budget.
func (t *Transport) Timeout() time.Duration {
	return t.timeout
}

// Conns returns the connection pool.
func (t *Transport) Conns() *ConnPool {
	return t.conns
}

// Close closes all pooled connections once in-flight calls have finished.
func (t *Transport) Close() error {
	return t.conns.Close()
}

// Execute performs req against one randomly picked address and returns the
// complete response. On failure the connection used is closed and dropped
// from the pool; the error wraps one of the package sentinels.
func (t *Transport) Execute(ctx context.Context, req *Request) (*Response, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	budget := NewBudget(t.timeout)

	addr := t.addrs.Pick()
	lease, err := t.conns.Acquire(ctx, addr)
	if err != nil {
		t.metrics.failure("dial")
		return nil, err
	}

	// a cancelled caller context interrupts blocked socket operations
	stop := context.AfterFunc(ctx, func() {
		_ = lease.Conn().SetDeadline(time.Now())
	})
	defer stop()

	if err := writeRequest(ctx, lease.Conn(), addr, req, budget); err != nil {
		return nil, t.fail(ctx, lease, "write", err)
	}
	t.metrics.phase("write", budget.Elapsed("write"))

	res, err := readResponse(ctx, lease.Reader(), lease.Conn(), budget, t.limits)
	if err != nil {
		return nil, t.fail(ctx, lease, "read", err)
	}
	t.metrics.phase("read", budget.Elapsed("read"))

	switch {
	case !stop():
		// the context fired while we were finishing; the deadline it set
		// would break the next request on this connection
		lease.Evict("cancelled")
	case res.closes():
		lease.Evict("close")
	default:
		lease.Release()
	}

	res.Addr = addr
	t.metrics.request(req.Method, res.StatusCode, time.Since(start))
	t.log.DebugContext(ctx, fmt.Sprintf("[transport] %s %s => %d in %s", req.Method, req.Path, res.StatusCode, budget.Spent()),
		"event", "transport:request", "addr", addr, "reused", lease.Reused(),
		"write", budget.Elapsed("write"), "read", budget.Elapsed("read"))
	return res, nil
}

func (t *Transport) fail(ctx context.Context, lease *Lease, stage string, err error) error {
	if ctx.Err() != nil && isTimeout(err) {
		err = fmt.Errorf("%w: %w", err, ctx.Err())
	}
	reason := stage
	if isTimeout(err) {
		reason = "timeout"
	} else if errors.Is(err, ErrAmbiguousFraming) || errors.Is(err, ErrUnknownFraming) ||
		errors.Is(err, ErrMalformedChunk) || errors.Is(err, ErrMalformedStatus) || errors.Is(err, ErrMalformedHeader) {
		reason = "protocol"
	}
	lease.Evict(reason)
	t.metrics.failure(stage)
	t.log.DebugContext(ctx, fmt.Sprintf("[transport] %s failed on %s: %s", stage, lease.Addr(), err),
		"event", "transport:"+stage+"_fail", "addr", lease.Addr())
	return &OpError{Op: stage, Addr: lease.Addr(), Err: err}
}

// Get issues a GET request.
func (t *Transport) Get(ctx context.Context, path string, query Values, header Values) (*Response, error) {
	return t.Execute(ctx, &Request{Method: "GET", Path: path, Query: query, Header: header})
}

// Put issues a PUT request with a form body.
func (t *Transport) Put(ctx context.Context, path string, query, form Values, header Values) (*Response, error) {
	return t.Execute(ctx, &Request{Method: "PUT", Path: path, Query: query, Form: form, Header: header})
}

// Post issues a POST request with a form body.
func (t *Transport) Post(ctx context.Context, path string, query, form Values, header Values) (*Response, error) {
	return t.Execute(ctx, &Request{Method: "POST", Path: path, Query: query, Form: form, Header: header})
}

// Delete issues a DELETE request.
func (t *Transport) Delete(ctx context.Context, path string, query Values, header Values) (*Response, error) {
	return t.Execute(ctx, &Request{Method: "DELETE", Path: path, Query: query, Header: header})
}
