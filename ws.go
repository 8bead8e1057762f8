package parlor

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// wsStream adapts a WebSocket connection to the net.Conn byte-stream model
// the connection layer expects. Each outbound Write becomes one binary
// WebSocket message; inbound binary messages are buffered and consumed as a
// stream, so protocol frames may span or share WebSocket messages.
type wsStream struct {
	net.Conn
	pending []byte
}

func (s *wsStream) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		data, err := wsutil.ReadClientBinary(s.Conn)
		if err != nil {
			return 0, err
		}
		s.pending = data
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *wsStream) Write(p []byte) (int, error) {
	if err := wsutil.WriteServerBinary(s.Conn, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WebsocketHandler is an http.Handler that upgrades requests to WebSocket
// and runs each connection with the configured options. Binary WebSocket
// messages carry the same frames as the TCP listener.
type WebsocketHandler struct {
	opts   []Option
	logger Logger
}

// NewWebsocketHandler validates the options and returns the handler. The
// same options as NewConn apply; a message handler is required.
func NewWebsocketHandler(opt ...Option) (*WebsocketHandler, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	return &WebsocketHandler{opts: opt, logger: opts.logger}, nil
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (h *WebsocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rawConn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	conn, err := NewConn(&wsStream{Conn: rawConn}, h.opts...)
	if err != nil {
		h.logger.Error("websocket connection setup failed", "remote_addr", r.RemoteAddr, "error", err)
		rawConn.Close()
		return
	}

	if err := conn.Run(r.Context()); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug("websocket connection ended", "id", conn.ID(), "error", err)
	}
}
