package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	"kennel/internal/metrics"
	"kennel/internal/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Streaming is read-only for the client; origin policy is left to a
	// fronting proxy, matching the rest of the boundary layer.
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *Server) handleStdout(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.streamOutput(w, r, svc.Name(), "stdout", svc.Stdout())
}

func (s *Server) handleStderr(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.streamOutput(w, r, svc.Name(), "stderr", svc.Stderr())
}

// streamOutput upgrades the connection and forwards chunks as binary
// frames: the full history first, then live output, per the broadcaster's
// ordering guarantee. The subscription ends when the client disconnects or
// the broadcaster closes.
func (s *Server) streamOutput(w http.ResponseWriter, r *http.Request, name, streamName string, bc *stream.Broadcaster) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "service", name, "error", err)
		return
	}
	defer conn.Close()

	handle, ch := bc.Subscribe()
	defer bc.Unsubscribe(handle)

	gauge := metrics.StreamSubscribersActive.WithLabelValues(name, streamName)
	gauge.Inc()
	defer gauge.Dec()

	s.logger.Info("stream subscriber attached", "service", name, "stream", streamName, "remote", r.RemoteAddr)

	// Drain the client side so close frames are processed.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream closed")
				_ = conn.WriteMessage(websocket.CloseMessage, msg)
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				s.logger.Info("stream subscriber dropped", "service", name, "stream", streamName, "error", err)
				return
			}
		case <-clientGone:
			return
		}
	}
}
