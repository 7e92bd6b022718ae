package uiproto

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// NewRouter builds the loopback HTTP surface for the detached-UI
// transport: a websocket upgrade endpoint at /ws and a small health/
// manifest-style status endpoint at /healthz, grounded on the teacher's
// cmd/server HTTP wiring but routed through gorilla/mux rather than the
// stdlib ServeMux the teacher uses for its two routes, since this
// dependency is otherwise unexercised anywhere else in the domain stack.
func NewRouter(b *Broadcaster, startedAt time.Time) *mux.Router {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		c, err := b.AddClient(conn)
		if err != nil {
			return
		}
		// Drain and discard inbound frames so the connection's read
		// deadline machinery notices disconnects; UI clients are
		// receive-only.
		go func() {
			defer b.RemoveClient(c)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}).Methods(http.MethodGet)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":        "ok",
			"uptimeSeconds": time.Since(startedAt).Seconds(),
			"clients":       b.ClientCount(),
			"hasSnapshot":   b.HasSnapshot(),
		})
	}).Methods(http.MethodGet)

	return r
}
