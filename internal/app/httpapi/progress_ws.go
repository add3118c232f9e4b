package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The browser preview runs on a different origin than the API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

// jobProgress serves the job's progress. A websocket upgrade streams live
// stage messages until the job finishes; a plain GET returns the accumulated
// log.
func (h *handler) jobProgress(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if !websocket.IsWebSocketUpgrade(r) {
		j, err := h.app.Jobs.Get(r.Context(), jobID)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   j.Status,
			"progress": j.ProgressLog,
		})
		return
	}

	snapshot, ch, unsubscribe, err := h.app.Jobs.SubscribeProgress(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Replay the snapshot taken at subscription so a late subscriber sees the
	// full ordered sequence; the channel carries only later messages, so
	// nothing is sent twice.
	for _, msg := range snapshot {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(map[string]string{"stage": msg}); err != nil {
			return
		}
	}

	for msg := range ch {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(map[string]string{"stage": msg}); err != nil {
			return
		}
	}

	j, err := h.app.Jobs.Get(r.Context(), jobID)
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteJSON(map[string]string{"done": j.Status.String()})
}
