package httpwire

import (
	"fmt"
	"io"
	"strconv"
)

// Reason phrases for the status codes the gateway emits.
var reasonPhrases = map[int]string{
	200: "OK",
	400: "Bad Request",
	401: "Unauthorized",
	404: "Not Found",
	405: "Method Not Allowed",
	409: "Conflict",
	500: "Internal Server Error",
}

type header struct {
	name  string
	value string
}

// Response is an outbound response under construction. Headers preserve
// insertion order; Content-Length and the CORS allow-origin header are
// emitted automatically.
type Response struct {
	StatusCode int
	headers    []header

	// Body holds an in-memory payload. Ignored when BodyReader is set.
	Body []byte

	// BodyReader streams the payload without buffering it; BodyLength
	// must carry its exact size. If the reader is also an io.Closer it
	// is closed after streaming.
	BodyReader io.Reader
	BodyLength int64
}

// NewResponse creates a response with the given status code.
func NewResponse(statusCode int) *Response {
	return &Response{StatusCode: statusCode}
}

// SetHeader appends a header. Callers set each header at most once.
func (r *Response) SetHeader(name, value string) *Response {
	r.headers = append(r.headers, header{name: name, value: value})
	return r
}

// WriteTo serializes the response onto the wire: status line, headers,
// blank line, body. Every response carries the permissive CORS origin
// header and closes the connection.
func (r *Response) WriteTo(w io.Writer) error {
	reason, ok := reasonPhrases[r.StatusCode]
	if !ok {
		reason = "Unknown"
	}

	length := int64(len(r.Body))
	if r.BodyReader != nil {
		length = r.BodyLength
	}

	var head []byte
	head = append(head, "HTTP/1.1 "+strconv.Itoa(r.StatusCode)+" "+reason+"\r\n"...)
	head = append(head, "Access-Control-Allow-Origin: *\r\n"...)
	for _, h := range r.headers {
		head = append(head, h.name+": "+h.value+"\r\n"...)
	}
	head = append(head, "Content-Length: "+strconv.FormatInt(length, 10)+"\r\n"...)
	head = append(head, "Connection: close\r\n\r\n"...)

	if _, err := w.Write(head); err != nil {
		return fmt.Errorf("write response head: %w", err)
	}

	if r.BodyReader != nil {
		// A file-backed reader is closed here once streamed.
		if closer, ok := r.BodyReader.(io.Closer); ok {
			defer closer.Close()
		}
		if _, err := io.Copy(w, r.BodyReader); err != nil {
			return fmt.Errorf("stream response body: %w", err)
		}
		return nil
	}
	if len(r.Body) > 0 {
		if _, err := w.Write(r.Body); err != nil {
			return fmt.Errorf("write response body: %w", err)
		}
	}
	return nil
}
