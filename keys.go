package etcd

import (
	"context"
	"strconv"
	"time"

	"github.com/KarpelesLab/etcd/transport"
)

// SetOptions are the optional parts of a Set. Conditions go in the query
// string, the TTL in the form body.
type SetOptions struct {
	TTL time.Duration // whole seconds, zero means no TTL

	PrevValue string
	PrevIndex uint64
	PrevExist string // "true", "false" or empty for no condition
}

func (o *SetOptions) query() transport.Values {
	var q transport.Values
	if o == nil {
		return q
	}
	if o.PrevExist != "" {
		q = q.Add("prevExist", o.PrevExist)
	}
	if o.PrevValue != "" {
		q = q.Add("prevValue", o.PrevValue)
	}
	if o.PrevIndex != 0 {
		q = q.Add("prevIndex", strconv.FormatUint(o.PrevIndex, 10))
	}
	return q
}

func ttlValue(ttl time.Duration) string {
	return strconv.FormatInt(int64(ttl/time.Second), 10)
}

func withTTL(form transport.Values, ttl time.Duration) transport.Values {
	if ttl > 0 {
		form = form.Add("ttl", ttlValue(ttl))
	}
	return form
}

// Version returns the server and cluster versions.
func (c *Client) Version(ctx context.Context) (*Version, error) {
	v := &Version{}
	if _, err := c.Apply(ctx, &transport.Request{Method: "GET", Path: versionPath}, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Set writes value at key.
func (c *Client) Set(ctx context.Context, key, value string, opts *SetOptions) (*Response, error) {
	form := transport.Values{}.Add("value", value)
	if opts != nil {
		form = withTTL(form, opts.TTL)
	}
	return c.keys(ctx, &transport.Request{Method: "PUT", Path: keyPath(key), Query: opts.query(), Form: form})
}

// Create writes value at key without any condition.
func (c *Client) Create(ctx context.Context, key, value string, ttl time.Duration) (*Response, error) {
	return c.Set(ctx, key, value, &SetOptions{TTL: ttl})
}

// Update writes value at key only if the key already exists and cond, if
// any, holds.
func (c *Client) Update(ctx context.Context, key, value string, ttl time.Duration, cond *SetOptions) (*Response, error) {
	opts := SetOptions{}
	if cond != nil {
		opts = *cond
	}
	opts.TTL = ttl
	opts.PrevExist = "true"
	return c.Set(ctx, key, value, &opts)
}

// GetNode returns the node at key.
func (c *Client) GetNode(ctx context.Context, key string) (*Node, error) {
	res, err := c.keys(ctx, &transport.Request{Method: "GET", Path: keyPath(key)})
	if err != nil {
		return nil, err
	}
	if res.Node == nil {
		return &Node{}, nil
	}
	return res.Node, nil
}

// Get returns the value stored at key, or an empty string for a directory.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	n, err := c.GetNode(ctx, key)
	if err != nil {
		return "", err
	}
	return n.Value, nil
}

// Mkdir creates a directory. It fails with fs.ErrExist if key exists.
func (c *Client) Mkdir(ctx context.Context, key string, ttl time.Duration) (*Response, error) {
	form := withTTL(transport.Values{}.Add("dir", "true"), ttl)
	query := transport.Values{}.Add("prevExist", "false")
	return c.keys(ctx, &transport.Request{Method: "PUT", Path: keyPath(key), Query: query, Form: form})
}

// UpdateDir sets the TTL of an existing directory. A zero ttl removes it.
func (c *Client) UpdateDir(ctx context.Context, key string, ttl time.Duration) (*Response, error) {
	query := transport.Values{}.Add("dir", "true").Add("prevExist", "true")
	form := transport.Values{}
	if ttl > 0 {
		form = form.Add("ttl", ttlValue(ttl))
	} else {
		form = form.Add("ttl", "")
	}
	return c.keys(ctx, &transport.Request{Method: "PUT", Path: keyPath(key), Query: query, Form: form})
}

// Rm removes a key.
func (c *Client) Rm(ctx context.Context, key string) (*Response, error) {
	return c.keys(ctx, &transport.Request{Method: "DELETE", Path: keyPath(key)})
}

// Rmdir removes a directory, which must be empty unless recursive is set.
func (c *Client) Rmdir(ctx context.Context, key string, recursive bool) (*Response, error) {
	query := transport.Values{}.Add("dir", "true")
	if recursive {
		query = query.Add("recursive", "true")
	}
	return c.keys(ctx, &transport.Request{Method: "DELETE", Path: keyPath(key), Query: query})
}

// ListDir returns the directory at key with its children, and their own
// children if recursive is set.
func (c *Client) ListDir(ctx context.Context, key string, recursive bool) (*Response, error) {
	var query transport.Values
	if recursive {
		query = query.Add("recursive", "true")
	}
	return c.keys(ctx, &transport.Request{Method: "GET", Path: keyPath(key), Query: query})
}

// Ls returns every key found by ListDir, parents first. The root key is
// omitted.
func (c *Client) Ls(ctx context.Context, key string, recursive bool) ([]string, error) {
	res, err := c.ListDir(ctx, key, recursive)
	if err != nil {
		return nil, err
	}
	var keys []string
	res.Node.Walk(func(n *Node) error {
		if n.Key != "" && n.Key != "/" {
			keys = append(keys, n.Key)
		}
		return nil
	})
	return keys, nil
}

// KeysValue returns the values of every key below root, indexed by key.
func (c *Client) KeysValue(ctx context.Context, root string, recursive bool) (map[string]string, error) {
	res, err := c.ListDir(ctx, root, recursive)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string)
	res.Node.Walk(func(n *Node) error {
		if !n.Dir && n.Key != "" {
			values[n.Key] = n.Value
		}
		return nil
	})
	return values, nil
}

// CreateInOrder creates a key with an increasing, server-chosen name below
// dir.
func (c *Client) CreateInOrder(ctx context.Context, dir, value string, ttl time.Duration) (*Response, error) {
	form := withTTL(transport.Values{}.Add("value", value), ttl)
	return c.keys(ctx, &transport.Request{Method: "POST", Path: keyPath(dir), Form: form})
}

// MkdirInOrder creates a directory with an increasing, server-chosen name
// below dir.
func (c *Client) MkdirInOrder(ctx context.Context, dir string, ttl time.Duration) (*Response, error) {
	form := withTTL(transport.Values{}.Add("dir", "true"), ttl)
	return c.keys(ctx, &transport.Request{Method: "POST", Path: keyPath(dir), Form: form})
}
