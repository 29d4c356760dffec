package responder

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/0xReLogic/sensord/internal/logging"
	"github.com/0xReLogic/sensord/internal/sensor"
)

const (
	streamWriteWait = 10 * time.Second
	streamCloseWait = time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 1024,
}

// streamHub tracks open stream connections so Shutdown can close them;
// http.Server does not track hijacked connections.
type streamHub struct {
	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}

func newStreamHub() *streamHub {
	return &streamHub{conns: make(map[*websocket.Conn]struct{})}
}

func (h *streamHub) add(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[conn] = struct{}{}
	return true
}

func (h *streamHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

func (h *streamHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *streamHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for conn := range h.conns {
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamCloseWait))
		_ = conn.Close()
		delete(h.conns, conn)
	}
}

// handleStream pushes the encoded reading immediately and then every
// stream interval until the client goes away or the server shuts down.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	logger := logging.WithContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	if !s.streams.add(conn) {
		_ = conn.Close()
		return
	}
	s.metrics.StreamOpened()
	defer func() {
		s.streams.remove(conn)
		_ = conn.Close()
		s.metrics.StreamClosed()
	}()

	// The server's read deadline still applies to the hijacked connection.
	_ = conn.SetReadDeadline(time.Time{})
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Duration(s.cfg.Stream.Interval) * time.Second)
	defer ticker.Stop()

	logger.Info().Str("remote_addr", r.RemoteAddr).Msg("stream client connected")
	for {
		if err := s.pushReading(r.Context(), conn); err != nil {
			logger.Debug().Err(err).Msg("stream ended")
			return
		}
		select {
		case <-gone:
			logger.Info().Str("remote_addr", r.RemoteAddr).Msg("stream client disconnected")
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) pushReading(ctx context.Context, conn *websocket.Conn) error {
	reading, err := s.provider.Current(ctx)
	if err != nil {
		s.metrics.RecordReadingError()
		return fmt.Errorf("obtain reading: %w", err)
	}
	body, err := sensor.Encode(reading)
	if err != nil {
		s.metrics.RecordReadingError()
		return fmt.Errorf("encode reading: %w", err)
	}

	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		return fmt.Errorf("write reading: %w", err)
	}
	s.metrics.RecordStreamMessage()
	return nil
}
