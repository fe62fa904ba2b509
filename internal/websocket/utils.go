package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// WriteJSON sends a frame with a write deadline.
func WriteJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteError sends an error event.
func WriteError(conn *websocket.Conn, errMsg string) error {
	return WriteJSON(conn, ResponsePayload{
		Event: EventError,
		Error: errMsg,
	})
}

// ReadJSON reads and decodes a message into the provided structure.
// It sets a read deadline.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetReadDeadline(time.Now().Add(readWait))
	return conn.ReadJSON(v)
}

// ReadJSONWithin reads one frame, failing after d.
func ReadJSONWithin(conn *websocket.Conn, v interface{}, d time.Duration) error {
	conn.SetReadDeadline(time.Now().Add(d))
	return conn.ReadJSON(v)
}
