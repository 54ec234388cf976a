package gateway

import (
	"encoding/json"
	"errors"
	"os"

	"sandgate/internal/gateway/handlers"
	"sandgate/internal/logger"
	"sandgate/internal/protocol/httpwire"
)

// route is one row of the fixed dispatch table: exact path, single method,
// and whether a valid session is required before the handler runs.
type route struct {
	method string
	public bool
	handle func(*httpwire.Request) handlers.Result
}

// buildRoutes constructs the exact-path route table once at startup. There
// are no wildcards; anything not listed is a 404.
func (g *Gateway) buildRoutes() map[string]route {
	h := g.handler
	return map[string]route{
		"/":                   {method: "GET", public: true, handle: h.Page},
		"/api/login":          {method: "POST", public: true, handle: h.Login},
		"/api/logout":         {method: "POST", public: true, handle: h.Logout},
		"/api/files/list":     {method: "GET", handle: h.List},
		"/api/files/upload":   {method: "POST", handle: h.Upload},
		"/api/files/download": {method: "GET", handle: h.Download},
		"/api/files/create":   {method: "POST", handle: h.Create},
		"/api/files/delete":   {method: "POST", handle: h.Delete},
		"/api/files/save":     {method: "POST", handle: h.Save},
		"/api/files/rename":   {method: "POST", handle: h.Rename},
	}
}

// dispatch routes one parsed request and converts the handler's result into
// a wire response. This is the only place status codes are decided.
func (g *Gateway) dispatch(req *httpwire.Request, remote string) *httpwire.Response {
	// CORS preflight short-circuits before routing.
	if req.Method == "OPTIONS" {
		return httpwire.NewResponse(200).
			SetHeader("Access-Control-Allow-Methods", "GET, POST, OPTIONS").
			SetHeader("Access-Control-Allow-Headers", "Authorization, Content-Type")
	}

	rt, found := g.routes[req.Path]
	if !found {
		return envelopeResponse(404, false, "Not found", nil)
	}
	if req.Method != rt.method {
		return envelopeResponse(405, false, "Method not allowed", nil)
	}

	if !rt.public {
		if _, valid := g.handler.Sessions.Validate(req.BearerToken()); !valid {
			logger.Security("Unauthorized request: %s %s from %s", req.Method, req.Path, remote)
			return envelopeResponse(401, false, "Unauthorized", nil).
				SetHeader("WWW-Authenticate", "Bearer")
		}
	}

	result := g.invoke(rt, req, remote)
	return g.respond(req, result)
}

// invoke runs the handler with a panic guard so one bad request cannot take
// down the accept loop.
func (g *Gateway) invoke(rt route, req *httpwire.Request, remote string) (result handlers.Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Handler panic: %s %s from %s: %v", req.Method, req.Path, remote, r)
			result = handlers.Result{Status: handlers.StatusInternal, Message: "Internal server error"}
		}
	}()
	return rt.handle(req)
}

// respond converts a handler result into a wire response: a streamed file,
// a verbatim HTML page, or the JSON envelope.
func (g *Gateway) respond(req *httpwire.Request, result handlers.Result) *httpwire.Response {
	if result.Status == handlers.StatusOK && result.File != nil {
		return g.fileResponse(req, result.File)
	}
	if result.Status == handlers.StatusOK && result.HTML != "" {
		resp := httpwire.NewResponse(200).SetHeader("Content-Type", "text/html; charset=utf-8")
		resp.Body = []byte(result.HTML)
		return resp
	}
	return envelopeResponse(result.Status.HTTPCode(), result.Status == handlers.StatusOK,
		result.Message, result.Payload)
}

// fileResponse opens the resolved file and streams it. The handler already
// confirmed existence, but the file can vanish in between; that reports as
// not found rather than an internal error.
func (g *Gateway) fileResponse(req *httpwire.Request, file *handlers.FileDownload) *httpwire.Response {
	f, err := os.Open(file.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return envelopeResponse(404, false, "File not found", nil)
		}
		logger.Error("Download open failed: path=%q err=%v", file.Path, err)
		return envelopeResponse(500, false, "Could not open file", nil)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		logger.Error("Download stat failed: path=%q err=%v", file.Path, err)
		return envelopeResponse(500, false, "Could not read file", nil)
	}

	resp := httpwire.NewResponse(200).
		SetHeader("Content-Type", file.ContentType).
		SetHeader("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
	resp.BodyReader = f
	resp.BodyLength = info.Size()

	logger.Info("Download: %s %s (%d bytes)", req.Method, file.Path, info.Size())
	return resp
}

// envelopeResponse builds the JSON envelope every non-file response uses.
func envelopeResponse(code int, success bool, message string, payload map[string]any) *httpwire.Response {
	envelope := make(map[string]any, len(payload)+2)
	envelope["success"] = success
	if message != "" {
		envelope["message"] = message
	}
	for key, value := range payload {
		envelope[key] = value
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		// Only reachable with an unmarshalable payload value.
		logger.Error("Envelope marshal failed: %v", err)
		code = 500
		body = []byte(`{"success":false,"message":"Internal server error"}`)
	}

	resp := httpwire.NewResponse(code).SetHeader("Content-Type", "application/json")
	resp.Body = body
	return resp
}

// parseFailureResponse maps a request-parse error onto a client error.
func parseFailureResponse(err error) *httpwire.Response {
	if errors.Is(err, httpwire.ErrBodyTooLarge) {
		return envelopeResponse(400, false, "Request body too large", nil)
	}
	return envelopeResponse(400, false, "Malformed request", nil)
}
