package mapview

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ziadkadry99/nodemap/internal/cluster"
	"github.com/ziadkadry99/nodemap/internal/viewport"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientMessage is the incoming WebSocket message format.
type clientMessage struct {
	Type     string             `json:"type"` // "viewport" or "expand"
	Viewport *viewport.Viewport `json:"viewport,omitempty"`
	Handle   string             `json:"handle,omitempty"`
}

// serverMessage is the outgoing WebSocket message format.
type serverMessage struct {
	Type      string             `json:"type"` // "hello", "frame", "expansion" or "error"
	SessionID string             `json:"session_id"`
	Frame     *viewport.Frame    `json:"frame,omitempty"`
	Expansion *cluster.Expansion `json:"expansion,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// session is one connected renderer. Frames are published from timer
// goroutines, so writes are serialized.
type session struct {
	id   string
	conn *websocket.Conn
	ctrl *viewport.Controller

	writeMu sync.Mutex
}

func (s *session) send(msg serverMessage) {
	msg.SessionID = s.id
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(msg); err != nil {
		log.Printf("mapview: websocket write: %v", err)
	}
}

func (s *session) sendError(message string) {
	s.send(serverMessage{Type: "error", Error: message})
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("mapview: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	s := &session{id: uuid.NewString(), conn: conn}
	s.ctrl = viewport.New(h.cfg, func(f viewport.Frame) {
		s.send(serverMessage{Type: "frame", Frame: &f})
	})
	h.addSession(s)
	defer func() {
		h.removeSession(s)
		s.ctrl.Close()
	}()
	s.send(serverMessage{Type: "hello"})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("mapview: websocket read: %v", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendError("invalid message format")
			continue
		}

		switch msg.Type {
		case "viewport":
			if msg.Viewport == nil {
				s.sendError("viewport is required")
				continue
			}
			s.ctrl.OnViewportChanged(*msg.Viewport)
		case "expand":
			handle, err := cluster.ParseHandle(msg.Handle)
			if err != nil {
				s.sendError(err.Error())
				continue
			}
			exp, ok := s.ctrl.ExpandCluster(handle)
			if !ok {
				s.sendError("cluster not found or stale: " + msg.Handle)
				continue
			}
			s.send(serverMessage{Type: "expansion", Expansion: &exp})
		default:
			s.sendError("unknown message type: " + msg.Type)
		}
	}
}
