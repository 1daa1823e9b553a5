package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeDialer(t *testing.T) (DialFunc, *int) {
	n := 0
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		n++
		c, s := net.Pipe()
		t.Cleanup(func() { s.Close() })
		return c, nil
	}, &n
}

func TestConnPoolLease(t *testing.T) {
	dial, n := pipeDialer(t)
	p := NewConnPool(dial, 0, nil, nil)
	ctx := context.Background()

	l, err := p.Acquire(ctx, "a:1")
	require.NoError(t, err)
	assert.False(t, l.Reused())
	assert.Equal(t, "a:1", l.Addr())
	first := l.Conn()
	l.Release()
	l.Release()

	l, err = p.Acquire(ctx, "a:1")
	require.NoError(t, err)
	assert.True(t, l.Reused())
	assert.Same(t, first, l.Conn())
	l.Evict("test")
	assert.Equal(t, 0, p.Len())

	l, err = p.Acquire(ctx, "a:1")
	require.NoError(t, err)
	assert.False(t, l.Reused())
	l.Release()

	l, err = p.Acquire(ctx, "b:2")
	require.NoError(t, err)
	l.Release()

	assert.Equal(t, 3, *n)
	assert.Equal(t, 2, p.Len())
	require.NoError(t, p.Close())
	assert.Equal(t, 0, p.Len())

	_, err = p.Acquire(ctx, "a:1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConnPoolWaitsForHolder(t *testing.T) {
	dial, _ := pipeDialer(t)
	p := NewConnPool(dial, 0, nil, nil)

	l, err := p.Acquire(context.Background(), "a:1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx, "a:1")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// another address is not blocked
	l2, err := p.Acquire(context.Background(), "b:2")
	require.NoError(t, err)
	l2.Release()

	l.Release()
	l, err = p.Acquire(context.Background(), "a:1")
	require.NoError(t, err)
	l.Release()
}

func TestConnPoolDialFailure(t *testing.T) {
	boom := errors.New("boom")
	p := NewConnPool(func(context.Context, string, string) (net.Conn, error) {
		return nil, boom
	}, 0, nil, nil)

	_, err := p.Acquire(context.Background(), "a:1")
	assert.ErrorIs(t, err, ErrConnect)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, p.Len())

	// the slot was freed
	_, err = p.Acquire(context.Background(), "a:1")
	assert.ErrorIs(t, err, ErrConnect)
	assert.NoError(t, p.Close())
}

func TestConnPoolCloseWaitsForLeases(t *testing.T) {
	dial, _ := pipeDialer(t)
	p := NewConnPool(dial, 0, nil, nil)

	l, err := p.Acquire(context.Background(), "a:1")
	require.NoError(t, err)

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a lease was outstanding")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, 1, p.Inflight())
	l.Release()
	<-closed
	assert.Equal(t, 0, p.Inflight())
}

func TestConnPoolInflight(t *testing.T) {
	dial, _ := pipeDialer(t)
	p := NewConnPool(dial, 0, nil, nil)
	defer p.Close()

	assert.Equal(t, 0, p.Inflight())
	a, err := p.Acquire(context.Background(), "a:1")
	require.NoError(t, err)
	b, err := p.Acquire(context.Background(), "b:2")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Inflight())

	a.Release()
	b.Evict("test")
	assert.Equal(t, 0, p.Inflight())
}
