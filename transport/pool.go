package transport

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DialFunc opens a stream connection to addr.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// ConnPool keeps at most one live connection per address. Connections are
// opened lazily, reused by later requests and evicted on any failure, since a
// keep-alive stream left mid-message cannot be resynchronized.
//
// Each address slot is held exclusively for the lifetime of a Lease, so two
// concurrent requests to the same address are serialized instead of
// interleaving on one stream.
type ConnPool struct {
	dial        DialFunc
	dialTimeout time.Duration
	log         *slog.Logger
	metrics     *Metrics

	mu     sync.Mutex
	slots  map[string]*slot
	closed bool

	inflight *numeralWaitGroup
}

type slot struct {
	sem  chan struct{}
	conn *conn
}

type conn struct {
	net.Conn
	id      string
	addr    string
	br      *bufio.Reader
	created time.Time
	uses    int
}

// Lease is exclusive use of the connection to one address for one request.
// It must end with exactly one call to Release or Evict.
type Lease struct {
	pool   *ConnPool
	addr   string
	slot   *slot
	conn   *conn
	reused bool
	done   bool
}

// NewConnPool returns an empty pool. A nil dial uses net.Dialer.
func NewConnPool(dial DialFunc, dialTimeout time.Duration, log *slog.Logger, metrics *Metrics) *ConnPool {
	if dial == nil {
		dial = (&net.Dialer{}).DialContext
	}
	if log == nil {
		log = slog.Default()
	}
	return &ConnPool{
		dial:        dial,
		dialTimeout: dialTimeout,
		log:         log,
		metrics:     metrics,
		slots:       make(map[string]*slot),
		inflight:    newNWG(),
	}
}

func (p *ConnPool) slotFor(addr string) (*slot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	s, ok := p.slots[addr]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		p.slots[addr] = s
	}
	p.inflight.Add(1)
	return s, nil
}

// Acquire returns a lease on the cached connection for addr, dialing a new
// one if there is none. It blocks while another request holds addr.
func (p *ConnPool) Acquire(ctx context.Context, addr string) (*Lease, error) {
	s, err := p.slotFor(addr)
	if err != nil {
		return nil, err
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		p.inflight.Done()
		return nil, &OpError{Op: "dial", Addr: addr, Err: fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())}
	}

	l := &Lease{pool: p, addr: addr, slot: s}
	if c := p.cached(s); c != nil {
		l.conn = c
		l.reused = true
		l.conn.uses++
		p.log.DebugContext(ctx, "reusing connection", "event", "transport:reuse", "addr", addr, "conn", l.conn.id, "uses", l.conn.uses)
		return l, nil
	}

	c, err := p.open(ctx, addr)
	if err != nil {
		<-s.sem
		p.inflight.Done()
		p.metrics.connectFailed()
		p.log.WarnContext(ctx, fmt.Sprintf("failed to connect to %s: %s", addr, err), "event", "transport:dial_fail", "addr", addr)
		return nil, &OpError{Op: "dial", Addr: addr, Err: fmt.Errorf("%w: %w", ErrConnect, err)}
	}
	p.mu.Lock()
	s.conn = c
	p.mu.Unlock()
	l.conn = c
	p.metrics.connOpened()
	p.log.DebugContext(ctx, "opened connection", "event", "transport:dial", "addr", addr, "conn", c.id)
	return l, nil
}

func (p *ConnPool) cached(s *slot) *conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return s.conn
}

func (p *ConnPool) open(ctx context.Context, addr string) (*conn, error) {
	if p.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.dialTimeout)
		defer cancel()
	}
	nc, err := p.dial(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &conn{
		Conn:    nc,
		id:      uuid.NewString(),
		addr:    addr,
		br:      bufio.NewReader(nc),
		created: time.Now(),
		uses:    1,
	}, nil
}

// Len returns the number of cached connections.
func (p *ConnPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, s := range p.slots {
		if s.conn != nil {
			n++
		}
	}
	return n
}

// Inflight returns the number of requests holding or waiting for a lease.
func (p *ConnPool) Inflight() int {
	return p.inflight.Count()
}

// Close waits for outstanding leases to end, then closes every cached
// connection. Acquire fails with ErrClosed afterwards.
func (p *ConnPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.inflight.Wait(0)

	p.mu.Lock()
	defer p.mu.Unlock()

	var first error
	for addr, s := range p.slots {
		if s.conn != nil {
			if err := s.conn.Close(); err != nil && first == nil {
				first = err
			}
			s.conn = nil
		}
		delete(p.slots, addr)
	}
	return first
}

// Addr returns the address the lease is bound to.
func (l *Lease) Addr() string {
	return l.addr
}

// Reused reports whether the connection served an earlier request.
func (l *Lease) Reused() bool {
	return l.reused
}

// Conn returns the leased connection.
func (l *Lease) Conn() net.Conn {
	return l.conn
}

// Reader returns the buffered reader bound to the leased connection. It must
// be used for every read so buffered bytes are not lost between requests.
func (l *Lease) Reader() *bufio.Reader {
	return l.conn.br
}

// Release ends the lease and keeps the connection cached for reuse.
func (l *Lease) Release() {
	if l.done {
		return
	}
	l.done = true
	_ = l.conn.SetDeadline(time.Time{})
	<-l.slot.sem
	l.pool.inflight.Done()
}

// Evict ends the lease, closing the connection and dropping it from the pool
// so the next request to the address dials again.
func (l *Lease) Evict(reason string) {
	if l.done {
		return
	}
	l.done = true
	l.pool.mu.Lock()
	if l.slot.conn == l.conn {
		l.slot.conn = nil
	}
	l.pool.mu.Unlock()
	_ = l.conn.Close()
	l.pool.metrics.connEvicted(reason)
	l.pool.log.Debug(fmt.Sprintf("evicted connection to %s: %s", l.addr, reason), "event", "transport:evict", "addr", l.addr, "conn", l.conn.id, "reason", reason)
	<-l.slot.sem
	l.pool.inflight.Done()
}
