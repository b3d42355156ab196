package taskevents

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamBuffer = 64
	writeWait    = 10 * time.Second
	pingPeriod   = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Stream upgrades the request to a websocket and writes every status
// published on topic as a JSON message until the client goes away.
// Statuses are dropped for clients that do not keep up.
func (b *Bridge) Stream(w http.ResponseWriter, r *http.Request, topic string) {
	statuses := make(chan TaskStatus, streamBuffer)
	unsubscribe := b.hub.Subscribe(topic, func(_ string, data interface{}) {
		ts, ok := data.(TaskStatus)
		if !ok {
			return
		}
		select {
		case statuses <- ts:
		default:
			logger.Debugf("dropping %s status for slow client %s", topic, r.RemoteAddr)
		}
	})
	defer unsubscribe()

	// subscribed before the handshake, clients execute tasks as soon as
	// Dial returns
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("problem initiating websocket: %v", err)
		return
	}
	defer conn.Close()

	// the client never sends anything, reading only notices it leaving
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case ts := <-statuses:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ts); err != nil {
				logger.Debugf("websocket %s closed: %v", topic, err)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
