package transport

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Values is an ordered list of key/value pairs, used for query strings, form
// bodies and request headers. Unlike url.Values the order of insertion is the
// order on the wire.
type Values []KV

type KV struct {
	Key   string
	Value string
}

// Add appends a pair and returns the extended list.
func (v Values) Add(key, value string) Values {
	return append(v, KV{Key: key, Value: value})
}

// Get returns the first value stored under key.
func (v Values) Get(key string) string {
	for _, kv := range v {
		if kv.Key == key {
			return kv.Value
		}
	}
	return ""
}

// Has reports whether key is present.
func (v Values) Has(key string) bool {
	for _, kv := range v {
		if kv.Key == key {
			return true
		}
	}
	return false
}

// Encode returns the pairs in application/x-www-form-urlencoded form, keeping
// their order.
func (v Values) Encode() string {
	if len(v) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, kv := range v {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(kv.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(kv.Value))
	}
	return sb.String()
}

// Request is one call to the remote service.
type Request struct {
	Method string
	Path   string
	Query  Values
	Header Values

	// Form, when not empty, is sent url-encoded as the body. Otherwise Body is
	// sent as is.
	Form Values
	Body []byte
}

const formContentType = "application/x-www-form-urlencoded"

var allowedMethods = map[string]bool{
	"GET":    true,
	"PUT":    true,
	"POST":   true,
	"DELETE": true,
}

func (r *Request) validate() error {
	if !allowedMethods[r.Method] {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, r.Method)
	}
	for i := 0; i < len(r.Path); i++ {
		// space, CR, LF and other controls would break the request line
		if c := r.Path[i]; c <= ' ' || c == 0x7f {
			return fmt.Errorf("%w: %q", ErrInvalidPath, r.Path)
		}
	}
	return nil
}

func (r *Request) body() []byte {
	if len(r.Form) > 0 {
		return []byte(r.Form.Encode())
	}
	return r.Body
}

func (r *Request) target() string {
	path := r.Path
	if path == "" {
		path = "/"
	}
	if q := r.Query.Encode(); q != "" {
		path += "?" + q
	}
	return path
}

// encodeRequest serializes r as an HTTP/1.1 request to host.
func encodeRequest(host string, r *Request) []byte {
	body := r.body()

	var buf bytes.Buffer
	buf.WriteString(r.Method)
	buf.WriteByte(' ')
	buf.WriteString(r.target())
	buf.WriteString(" HTTP/1.1\r\n")

	writeHeader(&buf, "Host", host)
	for _, h := range r.Header {
		k := sanitizeHeaderKey(h.Key)
		if k == "" {
			continue
		}
		switch strings.ToLower(k) {
		case "host", "content-length", "content-type":
			// set from the request itself
			continue
		}
		writeHeader(&buf, k, h.Value)
	}
	if len(body) > 0 {
		writeHeader(&buf, "Content-Type", formContentType)
		writeHeader(&buf, "Content-Length", strconv.Itoa(len(body)))
	} else {
		writeHeader(&buf, "Content-Length", "0")
	}
	buf.WriteString("\r\n")
	buf.Write(body)
	return buf.Bytes()
}

func writeHeader(buf *bytes.Buffer, k, v string) {
	buf.WriteString(k)
	buf.WriteString(": ")
	buf.WriteString(sanitizeHeaderValue(v))
	buf.WriteString("\r\n")
}

// writeRequest sends r on c within the budget. Any error leaves the stream in
// an unknown state; the caller must evict the connection.
func writeRequest(ctx context.Context, c net.Conn, host string, r *Request, b *Budget) error {
	b.Begin(ctx)
	if err := b.Err(); err != nil {
		return err
	}
	if err := c.SetWriteDeadline(b.Deadline()); err != nil {
		return ioError(ErrWrite, err)
	}

	raw := encodeRequest(host, r)
	for len(raw) > 0 {
		n, err := c.Write(raw)
		raw = raw[n:]
		if err != nil {
			return ioError(ErrWrite, err)
		}
		if len(raw) > 0 {
			if err := b.Err(); err != nil {
				return err
			}
		}
	}
	b.Spend("write")
	return nil
}

// sanitizeHeaderKey returns k if it is a valid token, or an empty string.
func sanitizeHeaderKey(k string) string {
	if k == "" {
		return ""
	}
	for i := 0; i < len(k); i++ {
		if !isTokenChar(k[i]) {
			return ""
		}
	}
	return k
}

// sanitizeHeaderValue removes CR/LF and control chars except HTAB.
func sanitizeHeaderValue(v string) string {
	if v == "" {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == '\r' || c == '\n' || c == 0x7f {
			continue
		}
		if c < 0x20 && c != '\t' {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isTokenChar(c byte) bool {
	if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}
