package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Header maps header names, as received, to their values in order of
// appearance.
type Header map[string][]string

// Get returns the first value of name. An exact match is preferred, then a
// case-insensitive one.
func (h Header) Get(name string) string {
	if vv := h.Values(name); len(vv) > 0 {
		return vv[0]
	}
	return ""
}

// Values returns every value of name.
func (h Header) Values(name string) []string {
	if vv, ok := h[name]; ok {
		return vv
	}
	for k, vv := range h {
		if strings.EqualFold(k, name) {
			return vv
		}
	}
	return nil
}

// Has reports whether name was received.
func (h Header) Has(name string) bool {
	return h.Values(name) != nil
}

// Response is a fully read HTTP response.
type Response struct {
	Addr       string
	Proto      string
	StatusCode int
	Reason     string
	Header     Header
	Body       []byte
}

// closes reports whether the server announced it will close the connection
// after this response.
func (r *Response) closes() bool {
	keepAlive := false
	for _, v := range r.Header.Values("Connection") {
		for _, tok := range strings.Split(v, ",") {
			switch strings.ToLower(strings.TrimSpace(tok)) {
			case "close":
				return true
			case "keep-alive":
				keepAlive = true
			}
		}
	}
	return r.Proto == "HTTP/1.0" && !keepAlive
}

const (
	defaultMaxLineBytes = 8 << 10
	defaultMaxBodyBytes = 32 << 20
)

type readLimits struct {
	maxLine int
	maxBody int64
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// readResponse reads one response from br. The read deadline of c is armed
// from the budget; any error leaves the stream unusable.
func readResponse(ctx context.Context, br *bufio.Reader, c readDeadliner, b *Budget, lim readLimits) (*Response, error) {
	b.Begin(ctx)
	if err := b.Err(); err != nil {
		return nil, err
	}
	if err := c.SetReadDeadline(b.Deadline()); err != nil {
		return nil, ioError(ErrRead, err)
	}

	// wait for the response to start
	if _, err := br.Peek(1); err != nil {
		return nil, ioError(ErrRead, err)
	}

	res := &Response{Header: make(Header)}
	if err := readStatusLine(br, res, lim.maxLine); err != nil {
		return nil, err
	}
	if err := readHeaders(br, res.Header, lim.maxLine); err != nil {
		return nil, err
	}

	body, err := readBody(br, res, lim)
	if err != nil {
		return nil, err
	}
	res.Body = body
	b.Spend("read")
	return res, nil
}

func readStatusLine(br *bufio.Reader, res *Response, maxLine int) error {
	for {
		line, err := readLine(br, maxLine)
		if err != nil {
			return err
		}
		if strings.TrimSpace(line) == "" {
			// tolerate stray empty lines ahead of the response
			continue
		}
		return parseStatusLine(line, res)
	}
}

func parseStatusLine(line string, res *Response) error {
	proto, rest, ok := strings.Cut(line, " ")
	if !ok || (proto != "HTTP/1.1" && proto != "HTTP/1.0") {
		return fmt.Errorf("%w: %q", ErrMalformedStatus, line)
	}
	rest = strings.TrimLeft(rest, " ")
	code, reason, _ := strings.Cut(rest, " ")
	if len(code) != 3 {
		return fmt.Errorf("%w: %q", ErrMalformedStatus, line)
	}
	n, err := strconv.Atoi(code)
	if err != nil || n < 100 {
		return fmt.Errorf("%w: %q", ErrMalformedStatus, line)
	}
	res.Proto = proto
	res.StatusCode = n
	res.Reason = strings.TrimSpace(reason)
	return nil
}

// framing headers must not be ambiguous
var criticalHeaders = []string{"Content-Length", "Transfer-Encoding"}

func criticalName(k string) (string, bool) {
	for _, c := range criticalHeaders {
		if strings.EqualFold(k, c) {
			return c, true
		}
	}
	return "", false
}

func readHeaders(br *bufio.Reader, h Header, maxLine int) error {
	for {
		line, err := readLine(br, maxLine)
		if err != nil {
			return err
		}
		if line == "" {
			return nil
		}
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			return fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}
		k := strings.TrimRight(line[:i], " \t")
		if sanitizeHeaderKey(k) == "" {
			return fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}
		v := strings.TrimSpace(line[i+1:])

		if name, ok := criticalName(k); ok {
			if prev := h.Values(name); prev != nil {
				if prev[0] != v {
					return fmt.Errorf("%w: %s %q and %q", ErrAmbiguousFraming, name, prev[0], v)
				}
				continue
			}
		}
		h[k] = append(h[k], v)
	}
}

func hasBody(status int) bool {
	return status >= 200 && status != 204 && status != 304
}

func readBody(br *bufio.Reader, res *Response, lim readLimits) ([]byte, error) {
	if !hasBody(res.StatusCode) {
		return nil, nil
	}

	if te := res.Header.Get("Transfer-Encoding"); te != "" {
		if !strings.EqualFold(te, "chunked") {
			return nil, fmt.Errorf("%w: transfer-encoding %q", ErrUnknownFraming, te)
		}
		return readChunked(br, lim)
	}

	if cl := res.Header.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: content-length %q", ErrUnknownFraming, cl)
		}
		if n == 0 {
			// a body is expected for this status, an empty one is not a valid answer
			return nil, fmt.Errorf("%w: content-length 0 on status %d", ErrUnknownFraming, res.StatusCode)
		}
		if lim.maxBody > 0 && n > lim.maxBody {
			return nil, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, n)
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(br, body); err != nil {
			return nil, bodyError(err)
		}
		return body, nil
	}

	return nil, ErrUnknownFraming
}

// readChunked decodes a chunked body (RFC 7230 section 4.1). Chunk extensions
// are checked then dropped; trailer fields are consumed so the stream stays
// aligned, but not kept.
func readChunked(br *bufio.Reader, lim readLimits) ([]byte, error) {
	var body bytes.Buffer
	for {
		line, err := readLine(br, lim.maxLine)
		if err != nil {
			return nil, err
		}
		size, err := parseChunkSize(line)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			break
		}
		if lim.maxBody > 0 && int64(body.Len())+size > lim.maxBody {
			return nil, fmt.Errorf("%w: chunked body over %d bytes", ErrBodyTooLarge, lim.maxBody)
		}
		if _, err := io.CopyN(&body, br, size); err != nil {
			return nil, bodyError(err)
		}
		if err := expectCRLF(br); err != nil {
			return nil, err
		}
	}

	for {
		line, err := readLine(br, lim.maxLine)
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}
	}
	return body.Bytes(), nil
}

func parseChunkSize(line string) (int64, error) {
	size, ext, _ := strings.Cut(line, ";")
	size = strings.TrimRight(size, " \t")
	if size == "" || len(size) > 16 {
		return 0, fmt.Errorf("%w: size line %q", ErrMalformedChunk, line)
	}
	n, err := strconv.ParseInt(size, 16, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: size line %q", ErrMalformedChunk, line)
	}
	if ext != "" && !validChunkExt(ext) {
		return 0, fmt.Errorf("%w: extension %q", ErrMalformedChunk, ext)
	}
	return n, nil
}

// validChunkExt checks `name[=value] *(";" name[=value])` where value is a
// token or a quoted string. The leading ';' has already been removed.
func validChunkExt(ext string) bool {
	for _, part := range splitChunkExt(ext) {
		name, val, hasVal := strings.Cut(strings.Trim(part, " \t"), "=")
		if sanitizeHeaderKey(name) == "" {
			return false
		}
		if !hasVal {
			continue
		}
		if len(val) >= 2 && val[0] == '"' && val[len(val)-1] == '"' {
			continue
		}
		if sanitizeHeaderKey(val) == "" {
			return false
		}
	}
	return true
}

// splitChunkExt splits on ';' outside of quoted strings.
func splitChunkExt(ext string) []string {
	var parts []string
	quoted := false
	start := 0
	for i := 0; i < len(ext); i++ {
		switch ext[i] {
		case '"':
			quoted = !quoted
		case '\\':
			if quoted {
				i++
			}
		case ';':
			if !quoted {
				parts = append(parts, ext[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, ext[start:])
}

func expectCRLF(br *bufio.Reader) error {
	var crlf [2]byte
	if _, err := io.ReadFull(br, crlf[:]); err != nil {
		return bodyError(err)
	}
	if crlf[0] != '\r' || crlf[1] != '\n' {
		return fmt.Errorf("%w: expected CRLF after chunk data, got %q", ErrMalformedChunk, crlf[:])
	}
	return nil
}

func bodyError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrShortBody, err)
	}
	return ioError(ErrShortBody, err)
}

// readLine reads one CRLF (or bare LF) terminated line without its line ending.
func readLine(br *bufio.Reader, limit int) (string, error) {
	var sb strings.Builder
	for {
		frag, err := br.ReadSlice('\n')
		sb.Write(frag)
		if limit > 0 && sb.Len() > limit+2 {
			return "", ErrLineTooLong
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return "", ioError(ErrRead, err)
	}
	line := strings.TrimSuffix(sb.String(), "\n")
	return strings.TrimSuffix(line, "\r"), nil
}
