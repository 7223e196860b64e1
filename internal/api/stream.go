package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"sai-swap/internal/domain"
)

const maxClientMessage = 512

// StreamEvents upgrades to a websocket and pushes every journaled event as JSON.
// ?state=<key> restricts the stream to one configuration. Client messages are ignored.
func (s *Server) StreamEvents(w http.ResponseWriter, r *http.Request) {
	var filter domain.PublicKey
	if raw := r.URL.Query().Get("state"); raw != "" {
		key, err := parseField("state", raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		filter = key
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithFields(log.Fields{"module": logModule}).WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, cancel := s.hub.Subscribe(filter)
	defer cancel()

	fields := log.Fields{"module": logModule, "remote": r.RemoteAddr, "state": filter.String()}
	log.WithFields(fields).Info("stream subscriber connected")
	defer log.WithFields(fields).Info("stream subscriber disconnected")

	readTimeout := 2 * s.pingInterval
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(maxClientMessage)
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				log.WithFields(fields).WithError(err).Debug("stream write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
