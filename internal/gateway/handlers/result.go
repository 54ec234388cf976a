package handlers

// Status is the outcome of a handler, independent of the wire protocol. The
// dispatcher converts it to an HTTP status code at the outermost boundary;
// handlers themselves never touch response serialization.
type Status int

const (
	StatusOK Status = iota
	StatusBadRequest
	StatusUnauthorized
	StatusNotFound
	StatusMethodNotAllowed
	StatusConflict
	StatusInternal
)

// HTTPCode maps a Status onto its response code.
func (s Status) HTTPCode() int {
	switch s {
	case StatusOK:
		return 200
	case StatusBadRequest:
		return 400
	case StatusUnauthorized:
		return 401
	case StatusNotFound:
		return 404
	case StatusMethodNotAllowed:
		return 405
	case StatusConflict:
		return 409
	default:
		return 500
	}
}

// FileDownload describes a file the dispatcher should stream to the client.
// Handlers return the resolved path; the dispatcher opens and copies it so
// large files never pass through an in-memory payload.
type FileDownload struct {
	Path        string
	ContentType string
	Filename    string
}

// Result is what every handler returns. Exactly one of Payload, File or HTML
// is populated on success; Message carries the human-readable text included
// in the JSON envelope.
type Result struct {
	Status  Status
	Message string

	// Payload holds operation-specific JSON fields merged into the
	// response envelope next to "success" and "message".
	Payload map[string]any

	// File, when set, makes the dispatcher stream a file instead of
	// writing a JSON envelope.
	File *FileDownload

	// HTML, when set, is served verbatim as text/html.
	HTML string
}

func ok(message string) Result {
	return Result{Status: StatusOK, Message: message}
}

func okPayload(message string, payload map[string]any) Result {
	return Result{Status: StatusOK, Message: message, Payload: payload}
}

func fail(status Status, message string) Result {
	return Result{Status: status, Message: message}
}
