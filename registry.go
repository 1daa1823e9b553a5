package etcd

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/KarpelesLab/etcd/transport"
	"github.com/KarpelesLab/pjson"
)

// Registry shares one Transport between every client created with the same
// addresses and limits, so a process keeps a single connection per server.
type Registry struct {
	mu sync.Mutex
	m  map[string]*transport.Transport
}

// DefaultRegistry is used by New.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{m: make(map[string]*transport.Transport)}
}

type registryKey struct {
	Addrs        []string      `json:"addrs"`
	Timeout      time.Duration `json:"timeout"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	MaxBodyBytes int64         `json:"max_body"`
}

// key identifies opts. Logger and Metrics are not part of it: the first
// caller's values are kept.
func (opts Options) key() (string, error) {
	data, err := pjson.Marshal(registryKey{
		Addrs:        opts.Addrs,
		Timeout:      opts.Timeout,
		DialTimeout:  opts.DialTimeout,
		MaxBodyBytes: opts.MaxBodyBytes,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Get returns the transport for opts, creating it on first use.
func (r *Registry) Get(opts Options) (*transport.Transport, error) {
	opts = opts.withDefaults()
	k, err := opts.key()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if tr, ok := r.m[k]; ok {
		return tr, nil
	}
	tr, err := transport.New(opts.config())
	if err != nil {
		return nil, err
	}
	r.m[k] = tr
	return tr, nil
}

// Len returns the number of transports held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

// Close closes and forgets every transport.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for k, tr := range r.m {
		if err := tr.Close(); err != nil && first == nil {
			first = err
		}
		delete(r.m, k)
	}
	return first
}
