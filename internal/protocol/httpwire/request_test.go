package httpwire

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, raw string, maxBody int64) (*Request, error) {
	t.Helper()
	return ReadRequest(bufio.NewReader(strings.NewReader(raw)), maxBody)
}

func TestReadRequestBasic(t *testing.T) {
	raw := "GET /api/files/list?path=/docs HTTP/1.1\r\n" +
		"Host: localhost:8080\r\n" +
		"Authorization: Bearer abc123\r\n" +
		"\r\n"

	req, err := parse(t, raw, 1<<20)
	require.NoError(t, err)

	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/api/files/list", req.Path)
	assert.Equal(t, "/docs", req.QueryParam("path"))
	assert.Equal(t, "localhost:8080", req.Header("Host"))
	assert.Equal(t, "abc123", req.BearerToken())
	assert.Empty(t, req.Body)
}

func TestReadRequestWithBody(t *testing.T) {
	body := `{"username":"alice","password":"pw"}`
	raw := "POST /api/login HTTP/1.1\r\n" +
		"Content-Type: application/json\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n" +
		"\r\n" + body

	req, err := parse(t, raw, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, []byte(body), req.Body)
}

func TestReadRequestHeaderCaseInsensitive(t *testing.T) {
	raw := "GET / HTTP/1.1\r\ncontent-type: text/plain\r\n\r\n"
	req, err := parse(t, raw, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", req.Header("Content-Type"))
}

func TestReadRequestBearerVariants(t *testing.T) {
	cases := []struct {
		header string
		token  string
	}{
		{"Bearer tok", "tok"},
		{"bearer tok", "tok"},
		{"Basic dXNlcjpwdw==", ""},
		{"", ""},
		{"Bearer", ""},
	}
	for _, tc := range cases {
		raw := "GET / HTTP/1.1\r\n"
		if tc.header != "" {
			raw += "Authorization: " + tc.header + "\r\n"
		}
		raw += "\r\n"

		req, err := parse(t, raw, 1<<20)
		require.NoError(t, err)
		assert.Equal(t, tc.token, req.BearerToken(), "header %q", tc.header)
	}
}

func TestReadRequestDecodesPercentEncodedPath(t *testing.T) {
	req, err := parse(t, "GET /api/files/list?path=%2e%2e%2f%2e%2e HTTP/1.1\r\n\r\n", 1<<20)
	require.NoError(t, err)
	// The traversal sequence must reach the resolver in decoded form.
	assert.Equal(t, "../..", req.QueryParam("path"))
}

func TestReadRequestBodyTooLarge(t *testing.T) {
	raw := "POST /api/files/save HTTP/1.1\r\nContent-Length: 2048\r\n\r\n"
	_, err := parse(t, raw, 1024)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestReadRequestMalformed(t *testing.T) {
	cases := []string{
		"GARBAGE\r\n\r\n",
		"GET /\r\n\r\n",
		"GET / SMTP/1.0\r\n\r\n",
		"GET / HTTP/1.1\r\nbroken header line\r\n\r\n",
		"POST / HTTP/1.1\r\nContent-Length: nope\r\n\r\n",
	}
	for _, raw := range cases {
		_, err := parse(t, raw, 1<<20)
		assert.Error(t, err, "raw %q", raw)
	}
}

func TestResponseWriteTo(t *testing.T) {
	var buf bytes.Buffer
	resp := NewResponse(200).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Extra", "1")
	resp.Body = []byte(`{"success":true}`)

	require.NoError(t, resp.WriteTo(&buf))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, out, "Access-Control-Allow-Origin: *\r\n")
	assert.Contains(t, out, "Content-Type: application/json\r\n")
	assert.Contains(t, out, "Content-Length: 16\r\n")
	assert.True(t, strings.HasSuffix(out, "\r\n\r\n"+`{"success":true}`))
}

func TestResponseWriteToStreams(t *testing.T) {
	var buf bytes.Buffer
	payload := "streamed payload"
	resp := NewResponse(200)
	resp.BodyReader = strings.NewReader(payload)
	resp.BodyLength = int64(len(payload))

	require.NoError(t, resp.WriteTo(&buf))
	assert.Contains(t, buf.String(), "Content-Length: 16\r\n")
	assert.True(t, strings.HasSuffix(buf.String(), payload))
}
