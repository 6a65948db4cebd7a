package websocket

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	writeWait = 10 * time.Second
	// PongWait bounds how long a silent client is kept.
	PongWait = 5 * time.Minute
)

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, code, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		Code:  code,
		Error: errMsg,
	})
}

// ReadMessage reads one raw frame. It sets a read deadline.
func ReadMessage(conn *websocket.Conn) ([]byte, error) {
	conn.SetReadDeadline(time.Now().Add(PongWait))
	_, data, err := conn.ReadMessage()
	return data, err
}

// FromNotice maps a session notice onto its wire event.
func FromNotice(n model.Notice) EventMessage {
	msg := EventMessage{
		Event:     EventNotice,
		Kind:      string(n.Kind),
		Message:   n.Message,
		Data:      n.Data,
		Timestamp: n.Timestamp,
	}
	switch n.Kind {
	case model.NoticeState:
		msg.Event = EventState
	case model.NoticeTick:
		msg.Event = EventTick
	case model.NoticeRequestFullscreen:
		msg.Event = EventRequestFullscreen
	case model.NoticeSuppressed:
		msg.Event = EventSuppress
	case model.NoticeCompleted:
		msg.Event = EventCompleted
	case model.NoticeError:
		msg.Event = EventError
	}
	return msg
}
