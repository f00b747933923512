package server

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"rpcdispatch/internal/jsonrpc"
	"rpcdispatch/internal/rpccontext"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// handleWS upgrades the connection and serves it until the peer goes away
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	id := uuid.NewString()
	client := &wsClient{
		id:        id,
		conn:      conn,
		server:    s,
		logger:    s.logger.With().Str("client", id).Str("remoteAddr", r.RemoteAddr).Logger(),
		sendChan:  make(chan []byte, sendBuffer),
		closeChan: make(chan struct{}),
	}

	s.addClient(client)
	client.logger.Info().Msg("new WebSocket connection")

	client.Run(r.Context())
}

// wsClient is one WebSocket connection. Frames are dispatched in the order
// they arrive and each produces at most one reply frame.
type wsClient struct {
	id     string
	conn   *websocket.Conn
	server *Server
	logger zerolog.Logger

	sendChan  chan []byte
	closeChan chan struct{}
	closeOnce sync.Once
}

// Run starts the write loop and reads until the connection closes
func (c *wsClient) Run(ctx context.Context) {
	if limit := c.server.cfg.MaxBodySize; limit > 0 {
		c.conn.SetReadLimit(limit)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *wsClient) readPump(ctx context.Context) {
	defer c.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeChan:
			return
		default:
		}

		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug().Err(err).Msg("read error")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		c.handleMessage(ctx, data)
	}
}

func (c *wsClient) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeChan:
			return
		case data := <-c.sendChan:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug().Err(err).Msg("write error")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one frame and queues the reply, if any
func (c *wsClient) handleMessage(ctx context.Context, data []byte) {
	if !c.server.allow(rpccontext.TransportWS) {
		if reply, err := jsonrpc.NewErrorResponse(jsonrpc.NewIDNull(), errRateLimited).Bytes(); err == nil {
			c.send(reply)
		}
		return
	}

	fw := newFrameWriter()
	rc := rpccontext.New(fw, rpccontext.TransportWS)
	rc.RemoteAddr = c.conn.RemoteAddr().String()
	rc.Parse(data)

	outcome := c.server.dispatcher.Dispatch(ctx, rc)

	if rc.Response.Aborted() {
		c.logger.Warn().Str("outcome", outcome.String()).Msg("dropping partially written reply")
		return
	}
	if fw.buf.Len() == 0 {
		return
	}
	c.send(fw.buf.Bytes())
}

// send queues data for the write loop
func (c *wsClient) send(data []byte) {
	select {
	case c.sendChan <- data:
	case <-c.closeChan:
	default:
		c.logger.Warn().Msg("send channel full, dropping message")
	}
}

// Close closes the client connection
func (c *wsClient) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		c.conn.Close()
		c.server.removeClient(c)
		c.logger.Debug().Msg("client closed")
	})
}

// frameWriter collects one reply in memory so it can be sent as a single
// frame. The status code has no wire representation on WebSocket.
type frameWriter struct {
	header http.Header
	status int
	buf    bytes.Buffer
}

func newFrameWriter() *frameWriter {
	return &frameWriter{header: make(http.Header)}
}

func (w *frameWriter) Header() http.Header {
	return w.header
}

func (w *frameWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *frameWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.buf.Write(p)
}
