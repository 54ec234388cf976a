package gateway

import (
	"bufio"
	"net"
	"time"

	"sandgate/internal/logger"
	"sandgate/internal/protocol/httpwire"
)

// serveConn handles exactly one request on the connection and closes it.
// Parse failures get a best-effort error response; failures while writing
// are only logged, the client is already gone.
func (g *Gateway) serveConn(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()

	if g.config.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(g.config.ReadTimeout))
	}

	req, err := httpwire.ReadRequest(bufio.NewReader(conn), g.config.MaxBodyBytes)
	if err != nil {
		logger.Debug("Gateway request parse failed from %s: %v", remote, err)
		g.writeResponse(conn, remote, parseFailureResponse(err))
		return
	}

	resp := g.dispatch(req, remote)
	g.writeResponse(conn, remote, resp)
}

func (g *Gateway) writeResponse(conn net.Conn, remote string, resp *httpwire.Response) {
	if g.config.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(g.config.WriteTimeout))
	}
	if err := resp.WriteTo(conn); err != nil {
		logger.Debug("Gateway response write failed to %s: %v", remote, err)
	}
}
