package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteJSON sends an event with its data.
func WriteJSON(conn *websocket.Conn, event Event, data interface{}) error {
	return WriteTyped(conn, ResponsePayload{Event: event, Data: data})
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, code, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		Code:  code,
		Error: errMsg,
	})
}

// ReadJSON reads and decodes a message into the provided structure.
// It sets a read deadline.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetReadDeadline(time.Now().Add(readWait))
	return conn.ReadJSON(v)
}

// Writer serialises writes to a connection shared by the read loop and an
// event pump. gorilla/websocket allows one concurrent writer.
type Writer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWriter(conn *websocket.Conn) *Writer {
	return &Writer{conn: conn}
}

func (w *Writer) Typed(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WriteTyped(w.conn, v)
}

func (w *Writer) JSON(event Event, data interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WriteJSON(w.conn, event, data)
}

func (w *Writer) Error(code, errMsg string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WriteError(w.conn, code, errMsg)
}

// Close sends a close frame with the given reason. Errors are ignored; the
// peer may already be gone.
func (w *Writer) Close(code int, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
