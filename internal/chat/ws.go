package chat

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/swapmeet/marketplace/backend/internal/apperr"
	"github.com/swapmeet/marketplace/backend/internal/models"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 16 << 10
	sendTimeout  = 10 * time.Second
)

// sendPayload is the data of an inbound sendMessage event. userName is
// accepted for compatibility and ignored; the stored author name wins.
type sendPayload struct {
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
	ItemID   int64  `json:"itemId"`
	Message  string `json:"message"`
	Text     string `json:"text"`
}

// session binds one websocket to one relay connection.
type session struct {
	relay *Relay
	ws    *websocket.Conn
	conn  *Conn
	log   logrus.FieldLogger
}

func (s *session) serve() {
	go s.writePump()
	s.readPump()
}

func (s *session) readPump() {
	defer func() {
		s.relay.Detach(s.conn)
		_ = s.ws.Close()
	}()
	s.ws.SetReadLimit(maxFrameSize)
	_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.WithError(err).Debug("relay: read failed")
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil || f.Event == "" {
			s.relay.SendError(s.conn, apperr.Validation("Invalid frame"))
			continue
		}
		s.dispatch(f)
	}
}

func (s *session) dispatch(f Frame) {
	switch f.Event {
	case EventJoinRoom, EventLeaveRoom:
		room, ok := roomArg(f.Data)
		if !ok {
			s.relay.SendError(s.conn, apperr.Validation("Invalid room name"))
			return
		}
		if f.Event == EventJoinRoom {
			s.relay.Join(s.conn, room)
		} else {
			s.relay.Leave(s.conn, room)
		}

	case EventSendMessage:
		var p sendPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			s.relay.SendError(s.conn, apperr.Validation("Invalid message payload"))
			return
		}
		author := p.UserID
		if s.conn.UserID != 0 {
			author = s.conn.UserID
		}
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		_, _ = s.relay.Send(ctx, s.conn, author, models.SendRequest{
			ItemID:  p.ItemID,
			Message: p.Message,
			Text:    p.Text,
		})

	case EventUserTyping, EventUserStoppedTyping:
		_ = s.relay.Typing(context.Background(), s.conn, f.Event, f.Data)

	default:
		s.relay.SendError(s.conn, apperr.Validation("Unsupported event "+strconv.Quote(f.Event)))
	}
}

// roomArg accepts a room name or a bare item id.
func roomArg(data json.RawMessage) (string, bool) {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		return name, name != ""
	}
	var id int64
	if err := json.Unmarshal(data, &id); err == nil && id > 0 {
		return RoomName(id), true
	}
	return "", false
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.ws.Close()
	}()
	frames := s.conn.Frames()
	for {
		select {
		case frame, ok := <-frames:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
