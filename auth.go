package etcd

import (
	"context"
	"encoding/base64"
)

// Credentials are sent as HTTP basic authentication on every request made
// with a context returned by Use.
type Credentials struct {
	Username string
	Password string
}

type credentialsValue int

type withCredentials struct {
	context.Context
	cred *Credentials
}

func (w *withCredentials) Value(v any) any {
	if _, ok := v.(credentialsValue); ok {
		return w.cred
	}

	return w.Context.Value(v)
}

// Use returns a context carrying c.
func (c *Credentials) Use(ctx context.Context) context.Context {
	return &withCredentials{ctx, c}
}

func (c *Credentials) header() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.Username+":"+c.Password))
}
