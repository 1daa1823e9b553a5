package etcd

import (
	"log/slog"
	"time"

	"github.com/KarpelesLab/etcd/transport"
)

const (
	DefaultAddr        = "127.0.0.1:2379"
	DefaultDialTimeout = time.Second
)

// Options configures a Client. The zero value talks to a local etcd.
type Options struct {
	Addrs        []string
	Timeout      time.Duration // shared write+read budget, defaults to 200ms
	DialTimeout  time.Duration
	MaxBodyBytes int64

	Metrics *transport.Metrics
	Logger  *slog.Logger
}

func (o Options) withDefaults() Options {
	if len(o.Addrs) == 0 {
		o.Addrs = []string{DefaultAddr}
	}
	if o.Timeout <= 0 {
		o.Timeout = transport.DefaultTimeout
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func (o Options) config() transport.Config {
	return transport.Config{
		Addrs:        o.Addrs,
		Timeout:      o.Timeout,
		DialTimeout:  o.DialTimeout,
		MaxBodyBytes: o.MaxBodyBytes,
		Logger:       o.Logger,
		Metrics:      o.Metrics,
	}
}

// Client talks to the etcd v2 keys API through a shared Transport.
type Client struct {
	tr  *transport.Transport
	log *slog.Logger
}

// New returns a client using the transport DefaultRegistry holds for opts,
// so clients created with the same options share connections.
func New(opts Options) (*Client, error) {
	opts = opts.withDefaults()
	tr, err := DefaultRegistry.Get(opts)
	if err != nil {
		return nil, err
	}
	return &Client{tr: tr, log: opts.Logger}, nil
}

// NewClient returns a client on an existing transport.
func NewClient(tr *transport.Transport, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{tr: tr, log: log}
}

// Transport returns the underlying transport.
func (c *Client) Transport() *transport.Transport {
	return c.tr
}
