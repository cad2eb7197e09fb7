package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The UI is served from the same host; captures run on a bench box,
	// not the public internet.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// liveStream upgrades to a websocket and forwards session events as JSON
// until the client disconnects or the session stops.
func (s *Server) liveStream(w http.ResponseWriter, r *http.Request) {
	sess := s.manager.Session()
	if sess == nil {
		s.writeJSONError(w, http.StatusConflict, "No capture is running")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	id, events := sess.Subscribe()
	defer sess.Unsubscribe(id)

	// Reader goroutine: we never expect client messages, but reading is
	// required to process close frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Session stopped.
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session stopped"))
				return
			}
			if ev.Frame != nil {
				frame := *ev.Frame
				s.convertFrameSpeed(&frame)
				ev.Frame = &frame
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
