// Package httpwire implements the gateway's wire format: an HTTP-shaped
// line-based request/response protocol parsed directly off raw connections.
// The gateway deliberately does not sit behind a web framework; this package
// is the entire surface between a net.Conn and the dispatcher.
package httpwire

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

// ErrBodyTooLarge reports a declared request body exceeding the configured
// limit. The dispatcher maps it to a client error before buffering starts.
var ErrBodyTooLarge = fmt.Errorf("request body exceeds limit")

// Request is a fully parsed inbound request.
type Request struct {
	// Method is the request method, upper-case as received.
	Method string

	// Path is the absolute request path with any query string removed.
	Path string

	// Query holds the parsed query parameters. Never nil.
	Query url.Values

	// headers maps lower-cased header names to their first value.
	headers map[string]string

	// Body is the raw request body, sized by Content-Length. Empty when
	// the request carried none.
	Body []byte
}

// Header returns a header value by case-insensitive name, or "".
func (r *Request) Header(name string) string {
	return r.headers[strings.ToLower(name)]
}

// BearerToken extracts the token from an "Authorization: Bearer ..." header.
// Returns "" when the header is absent or uses a different scheme.
func (r *Request) BearerToken() string {
	auth := r.Header("Authorization")
	const prefix = "bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

// QueryParam returns the first value of a query parameter, or "".
func (r *Request) QueryParam(name string) string {
	return r.Query.Get(name)
}

// ReadRequest parses one request from the reader: request line, header
// block, then a Content-Length-sized body. maxBody caps how large a declared
// body may be; a larger declaration fails with ErrBodyTooLarge without
// reading the payload.
func ReadRequest(br *bufio.Reader, maxBody int64) (*Request, error) {
	line, err := readLine(br)
	if err != nil {
		return nil, err
	}

	method, target, err := parseRequestLine(line)
	if err != nil {
		return nil, err
	}

	headers, err := readHeaders(br)
	if err != nil {
		return nil, err
	}

	path, query, err := splitTarget(target)
	if err != nil {
		return nil, err
	}

	req := &Request{
		Method:  method,
		Path:    path,
		Query:   query,
		headers: headers,
	}

	if lengthValue, ok := headers["content-length"]; ok {
		length, err := strconv.ParseInt(lengthValue, 10, 64)
		if err != nil || length < 0 {
			return nil, fmt.Errorf("invalid Content-Length %q", lengthValue)
		}
		if length > maxBody {
			return nil, ErrBodyTooLarge
		}
		body := make([]byte, length)
		if _, err := io.ReadFull(br, body); err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		req.Body = body
	}

	return req, nil
}

// readLine reads a single CRLF-terminated line, tolerating bare LF.
func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// parseRequestLine splits "METHOD SP target SP HTTP/x.y".
func parseRequestLine(line string) (method, target string, err error) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return "", "", fmt.Errorf("malformed request line %q", line)
	}
	if !strings.HasPrefix(parts[2], "HTTP/") {
		return "", "", fmt.Errorf("unsupported protocol %q", parts[2])
	}
	if parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed request line %q", line)
	}
	return strings.ToUpper(parts[0]), parts[1], nil
}

// readHeaders consumes header lines up to the blank line ending the block.
// Only the first occurrence of a header is kept; the routes served here
// never depend on repeated headers.
func readHeaders(br *bufio.Reader) (map[string]string, error) {
	headers := make(map[string]string)
	for {
		line, err := readLine(br)
		if err != nil {
			return nil, fmt.Errorf("read header line: %w", err)
		}
		if line == "" {
			return headers, nil
		}

		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			return nil, fmt.Errorf("malformed header line %q", line)
		}
		name := strings.ToLower(strings.TrimSpace(line[:colon]))
		value := strings.TrimSpace(line[colon+1:])
		if _, exists := headers[name]; !exists {
			headers[name] = value
		}
	}
}

// splitTarget separates the request path from its query string and decodes
// both. Percent-encoded traversal sequences decode here, before the sandbox
// resolver sees the path, so its raw ".." check operates on decoded text.
func splitTarget(target string) (string, url.Values, error) {
	rawPath := target
	rawQuery := ""
	if i := strings.IndexByte(target, '?'); i >= 0 {
		rawPath = target[:i]
		rawQuery = target[i+1:]
	}

	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return "", nil, fmt.Errorf("undecodable request path %q", rawPath)
	}

	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", nil, fmt.Errorf("undecodable query string %q", rawQuery)
	}

	return path, query, nil
}
