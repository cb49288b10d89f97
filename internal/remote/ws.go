package remote

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seguefm/segue/internal/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

type ack struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// WSHandler returns an HTTP handler that upgrades to WebSocket and
// publishes each received command onto the bus. Invalid commands get a
// per-message error ack; the connection stays up.
func WSHandler(bus *Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("websocket upgrade failed", logger.Err(err))
			return
		}
		client := r.RemoteAddr
		logger.Info("remote connected", logger.String("client", client))
		defer func() {
			conn.Close()
			logger.Info("remote disconnected", logger.String("client", client))
		}()

		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})

		acks := make(chan ack, 16)
		done := make(chan struct{})
		go writeLoop(conn, acks, done)
		defer close(done)

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn("remote read error", logger.Err(err))
				}
				return
			}

			cmd, err := Parse(raw)
			if err != nil {
				logger.Debug("bad remote command", logger.Err(err))
				acks <- ack{OK: false, Error: err.Error()}
				continue
			}
			bus.Publish(cmd)
			acks <- ack{ID: cmd.ID, OK: true}
		}
	}
}

// writeLoop owns all writes on the connection: acks plus keepalive pings.
func writeLoop(conn *websocket.Conn, acks <-chan ack, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case a := <-acks:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(a); err != nil {
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
