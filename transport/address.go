package transport

import (
	"fmt"
	"math/rand/v2"
	"net"
	"slices"
)

// AddressPool holds the candidate server addresses. Pick spreads requests
// uniformly at random; there is no stickiness and no health tracking, a
// broken address simply gets its connection evicted and redialed later.
type AddressPool struct {
	addrs []string
	intn  func(n int) int
}

// NewAddressPool validates addrs (each must be host:port) and returns a pool
// over a private copy of the list.
func NewAddressPool(addrs []string) (*AddressPool, error) {
	if len(addrs) == 0 {
		return nil, ErrNoAddress
	}
	for _, a := range addrs {
		if _, _, err := net.SplitHostPort(a); err != nil {
			return nil, fmt.Errorf("transport: invalid address %q: %w", a, err)
		}
	}
	return &AddressPool{addrs: slices.Clone(addrs), intn: rand.IntN}, nil
}

// Pick returns one of the configured addresses.
func (p *AddressPool) Pick() string {
	if len(p.addrs) == 1 {
		return p.addrs[0]
	}
	return p.addrs[p.intn(len(p.addrs))]
}

// Addrs returns a copy of the configured addresses, in configuration order.
func (p *AddressPool) Addrs() []string {
	return slices.Clone(p.addrs)
}
