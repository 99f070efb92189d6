package api

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/schuanhe/crawl-orch/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The UI is served from the same origin; the API carries no credentials
	CheckOrigin: func(r *http.Request) bool { return true },
}

const tailPollInterval = 500 * time.Millisecond

// tailLog streams a run's log over a websocket, following appended output
// until the run reaches a terminal status and the file is drained.
func (s *Server) tailLog(w http.ResponseWriter, r *http.Request, run *domain.CrawlerRun) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	f, err := os.Open(run.LogPath)
	if err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "log file not available"))
		return
	}
	defer f.Close()

	// Detect client disconnect; the read loop fails when the peer goes away
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	buf := make([]byte, 32*1024)
	ticker := time.NewTicker(tailPollInterval)
	defer ticker.Stop()

	for {
		drained := false
		for !drained {
			n, err := f.Read(buf)
			if n > 0 {
				if werr := conn.WriteMessage(websocket.TextMessage, buf[:n]); werr != nil {
					return
				}
			}
			if err == io.EOF {
				drained = true
			} else if err != nil {
				return
			}
		}

		// Once the run is terminal and the file is drained there is nothing
		// left to follow.
		current, err := s.manager.GetRun(run.ID)
		if err != nil || current.Status.Terminal() {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
			return
		}

		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
