package httpwire

import (
	"bytes"
	"strings"
)

// FilePart is the filename and content extracted from a multipart body.
type FilePart struct {
	Filename string
	Content  []byte
}

var crlfcrlf = []byte("\r\n\r\n")

// ExtractFilePart scans a raw multipart body for its first file part.
//
// The scanner is intentionally minimal: it handles exactly one file part,
// which is all the upload route accepts. It locates the opening boundary,
// the blank line ending the part headers, the filename attribute, and the
// closing boundary; the bytes in between are the file content. A single
// trailing CRLF immediately before the closing boundary belongs to the
// boundary delimiter, not the content, and is trimmed.
//
// Returns ok=false when the content type carries no boundary, the boundary
// never appears, the header block is unterminated, or no filename attribute
// is present.
func ExtractFilePart(contentType string, body []byte) (FilePart, bool) {
	boundary := boundaryParam(contentType)
	if boundary == "" {
		return FilePart{}, false
	}
	delimiter := []byte("--" + boundary)

	start := bytes.Index(body, delimiter)
	if start < 0 {
		return FilePart{}, false
	}

	headerStart := start + len(delimiter)
	headerEnd := bytes.Index(body[headerStart:], crlfcrlf)
	if headerEnd < 0 {
		return FilePart{}, false
	}
	headerBlock := body[headerStart : headerStart+headerEnd]

	filename := filenameAttr(headerBlock)
	if filename == "" {
		return FilePart{}, false
	}

	contentStart := headerStart + headerEnd + len(crlfcrlf)
	contentEnd := bytes.Index(body[contentStart:], delimiter)
	if contentEnd < 0 {
		return FilePart{}, false
	}

	content := body[contentStart : contentStart+contentEnd]
	content = bytes.TrimSuffix(content, []byte("\r\n"))

	// Copy out of the request buffer so the part outlives it.
	return FilePart{
		Filename: filename,
		Content:  append([]byte(nil), content...),
	}, true
}

// boundaryParam pulls the boundary token out of a Content-Type header value
// such as `multipart/form-data; boundary=----WebKitFormBoundaryX`.
func boundaryParam(contentType string) string {
	for _, param := range strings.Split(contentType, ";") {
		param = strings.TrimSpace(param)
		if rest, ok := strings.CutPrefix(param, "boundary="); ok {
			return strings.Trim(rest, `"`)
		}
	}
	return ""
}

// filenameAttr extracts the filename="..." attribute from a part's header
// block. Only the base attribute is honored; RFC 5987 filename* extensions
// are not produced by the clients this gateway serves.
func filenameAttr(headerBlock []byte) string {
	const marker = `filename="`
	i := bytes.Index(headerBlock, []byte(marker))
	if i < 0 {
		return ""
	}
	rest := headerBlock[i+len(marker):]
	end := bytes.IndexByte(rest, '"')
	if end < 0 {
		return ""
	}
	return string(rest[:end])
}
