// Package etcd provides a client for the etcd v2 keys API.
// Requests go through the transport package, which keeps one persistent
// connection per server address and bounds each call with a short timeout
// budget. This package handles key paths, credentials and response decoding.
package etcd

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/KarpelesLab/etcd/transport"
	"github.com/KarpelesLab/pjson"
	"github.com/KarpelesLab/webutil"
)

var (
	// Debug enables verbose logging of etcd requests and responses
	Debug = false
)

const (
	versionPath = "/version"
	keysPath    = "/v2/keys"
)

// keyPath returns the request path for key, which may or may not start with
// a slash. Each segment is escaped, the separators are kept.
func keyPath(key string) string {
	segs := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return keysPath + "/" + strings.Join(segs, "/")
}

// Apply runs a request and unmarshals the decoded body into target.
//
// A transport failure is wrapped, a redirect turns into a webutil redirect
// error, an etcd error document into *Error, and any other non-2xx or empty
// response into *HttpError.
func (c *Client) Apply(ctx context.Context, req *transport.Request, target any) (*transport.Response, error) {
	res, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := decode(ctx, res, target); err != nil {
		return res, err
	}
	return res, nil
}

// Do executes req and returns the raw response. Credentials attached to ctx
// with Credentials.Use are sent as basic authentication.
func (c *Client) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	if cred, ok := ctx.Value(credentialsValue(0)).(*Credentials); ok && cred != nil {
		req.Header = req.Header.Add("Authorization", cred.header())
	}

	t := time.Now()
	res, err := c.tr.Execute(ctx, req)
	if err != nil {
		if Debug {
			c.log.ErrorContext(ctx, fmt.Sprintf("[etcd] %s %s failed: %s", req.Method, req.Path, err), "event", "etcd:query_fail")
		}
		return nil, fmt.Errorf("failed to run etcd query: %w", err)
	}

	if Debug {
		d := time.Since(t)
		c.log.DebugContext(ctx, fmt.Sprintf("[etcd] %s %s => %d in %s", req.Method, req.Path, res.StatusCode, d),
			"event", "etcd:debug_query", "etcd:method", req.Method, "etcd:request", req.Path, "etcd:addr", res.Addr, "etcd:duration", d)
	}
	return res, nil
}

func decode(ctx context.Context, res *transport.Response, target any) error {
	if res.StatusCode >= 300 && res.StatusCode < 400 {
		if loc := res.Header.Get("Location"); loc != "" {
			u, err := url.Parse(loc)
			if err != nil {
				return err
			}
			return webutil.RedirectErrorCode(u, res.StatusCode)
		}
	}

	var docErr error
	if len(res.Body) > 0 {
		e := &Error{Status: res.StatusCode}
		docErr = pjson.UnmarshalContext(ctx, res.Body, e)
		if docErr == nil && e.Code != 0 {
			return e
		}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 || len(res.Body) == 0 {
		// e carries the reason the body was not an etcd document, if any
		return &HttpError{Code: res.StatusCode, Body: res.Body, e: docErr}
	}

	if err := pjson.UnmarshalContext(ctx, res.Body, target); err != nil {
		if Debug {
			slog.ErrorContext(ctx, fmt.Sprintf("failed to parse json: %s\n%s", err, res.Body), "event", "etcd:not_json")
		}
		return fmt.Errorf("invalid json response from etcd: %w", err)
	}
	return nil
}

// keys runs a request against the keys API and fills in the cluster indexes
// carried by the response headers.
func (c *Client) keys(ctx context.Context, req *transport.Request) (*Response, error) {
	result := &Response{}
	res, err := c.Apply(ctx, req, result)
	if err != nil {
		return nil, err
	}
	result.EtcdIndex = headerIndex(res.Header, "X-Etcd-Index")
	result.RaftIndex = headerIndex(res.Header, "X-Raft-Index")
	result.RaftTerm = headerIndex(res.Header, "X-Raft-Term")
	return result, nil
}

func headerIndex(h transport.Header, name string) uint64 {
	v, err := strconv.ParseUint(h.Get(name), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
