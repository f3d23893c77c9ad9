package realtime

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cppla/eduxp/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 512
)

// Message is the frame written to WebSocket clients.
type Message struct {
	Type  string `json:"type"`
	Event *Event `json:"event,omitempty"`
}

// Stream upgrades HTTP requests into per-class change feeds.
type Stream struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewStream returns a Stream. An empty allowedOrigins accepts every origin.
func NewStream(hub *Hub, allowedOrigins []string) *Stream {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	return &Stream{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if len(allowed) == 0 || origin == "" {
					return true
				}
				_, ok := allowed[strings.TrimRight(origin, "/")]
				return ok
			},
		},
	}
}

// Serve upgrades the request and streams classID's events until the client
// goes away. The upgrader has already answered the request when it fails.
func (s *Stream) Serve(w http.ResponseWriter, r *http.Request, classID uint) error {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	sub := s.hub.Subscribe(classID)
	utils.Sugar.Debugw("realtime client connected", "subscriber", sub.ID, "class_id", classID)

	go s.readPump(conn, sub)
	s.writePump(conn, sub)
	return nil
}

// readPump only services control frames; anything the client sends is ignored.
func (s *Stream) readPump(conn *websocket.Conn, sub *Subscriber) {
	defer s.hub.Unsubscribe(sub)
	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.Sugar.Debugw("realtime read error", "subscriber", sub.ID, "err", err)
			}
			return
		}
	}
}

func (s *Stream) writePump(conn *websocket.Conn, sub *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.hub.Unsubscribe(sub)
		_ = conn.Close()
		utils.Sugar.Debugw("realtime client disconnected", "subscriber", sub.ID)
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(Message{Type: "subscribed"}); err != nil {
		return
	}
	for {
		select {
		case e, ok := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(Message{Type: "change", Event: &e}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
