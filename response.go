package etcd

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Response is the decoded result of a keys API call.
type Response struct {
	Action   string `json:"action"`
	Node     *Node  `json:"node,omitempty"`
	PrevNode *Node  `json:"prevNode,omitempty"`

	// from the X-Etcd-Index, X-Raft-Index and X-Raft-Term headers
	EtcdIndex uint64 `json:"-"`
	RaftIndex uint64 `json:"-"`
	RaftTerm  uint64 `json:"-"`
}

// Node is a key or a directory.
type Node struct {
	Key           string  `json:"key"`
	Value         string  `json:"value,omitempty"`
	Dir           bool    `json:"dir,omitempty"`
	Expiration    *Time   `json:"expiration,omitempty"`
	TTL           int64   `json:"ttl,omitempty"`
	Nodes         []*Node `json:"nodes,omitempty"`
	CreatedIndex  uint64  `json:"createdIndex,omitempty"`
	ModifiedIndex uint64  `json:"modifiedIndex,omitempty"`
}

// SkipDir can be returned by a Walk callback to skip the children of a
// directory.
var SkipDir = errors.New("skip this directory")

// Walk calls fn for n and every node below it, parents first.
func (n *Node) Walk(fn func(*Node) error) error {
	if n == nil {
		return nil
	}
	if err := fn(n); err != nil {
		if errors.Is(err, SkipDir) {
			return nil
		}
		return err
	}
	for _, sub := range n.Nodes {
		if err := sub.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the node at path, relative to n. Path elements are the last
// component of each child's key.
func (n *Node) Get(path string) (*Node, error) {
	cur := n
	for _, sub := range strings.Split(path, "/") {
		if sub == "" {
			continue
		}
		var next *Node
		for _, c := range cur.Nodes {
			if c.Name() == sub {
				next = c
				break
			}
		}
		if next == nil {
			return nil, fs.ErrNotExist
		}
		cur = next
	}
	return cur, nil
}

// GetString returns the value of the key at path, relative to n.
func (n *Node) GetString(path string) (string, error) {
	res, err := n.Get(path)
	if err != nil {
		return "", err
	}
	if res.Dir {
		return "", fmt.Errorf("%w: %s", ErrIsDir, res.Key)
	}
	return res.Value, nil
}

// Name returns the last component of the node key.
func (n *Node) Name() string {
	k := strings.TrimRight(n.Key, "/")
	if i := strings.LastIndexByte(k, '/'); i >= 0 {
		return k[i+1:]
	}
	return k
}

// Version is the answer of the /version endpoint.
type Version struct {
	Server  string `json:"etcdserver"`
	Cluster string `json:"etcdcluster"`
}
