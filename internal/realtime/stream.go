package realtime

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval = 15 * time.Second
	writeWait    = 5 * time.Second
	pongWait     = 2 * pingInterval
)

// Stream writes snapshot and then every message from sub to ws until either side goes away.
// It unsubscribes before returning.
func (h *Hub) Stream(ws *websocket.Conn, sub *Subscriber, snapshot []byte) error {
	defer h.Unsubscribe(sub)

	// Reader loop only handles control frames and notices the peer closing.
	closed := make(chan struct{})
	ws.SetReadLimit(1024)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.write(ws, snapshot); err != nil {
		return err
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sub.C():
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "resync"),
					time.Now().Add(writeWait))
				return nil
			}
			if err := h.write(ws, msg); err != nil {
				return err
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				return err
			}
		case <-closed:
			h.logger.Debug("subscriber disconnected", slog.String("queue_id", sub.queueID))
			return nil
		}
	}
}

func (h *Hub) write(ws *websocket.Conn, msg []byte) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(websocket.TextMessage, msg)
}
