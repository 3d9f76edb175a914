package stream

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// EventType classifies inbound events from the transcription source.
type EventType string

const (
	EventTranscript   EventType = "transcript"
	EventTurnComplete EventType = "turn_complete"
)

// Event is one inbound message on the live session.
type Event struct {
	Type EventType `json:"type"`
	Text string    `json:"text,omitempty"`
}

// Conn is one open duplex session: audio frames out, events in.
type Conn interface {
	ReadEvent() (Event, error)
	WriteFrame(frame []byte) error
	Close() error
}

// Dialer opens a session to the transcription source.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// WSDialer opens websocket sessions with bearer authentication.
type WSDialer struct {
	URL    string
	APIKey string
}

// Dial opens one websocket session.
func (d *WSDialer) Dial(ctx context.Context) (Conn, error) {
	header := http.Header{}
	if d.APIKey != "" {
		header.Set("Authorization", "Bearer "+d.APIKey)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.URL, header)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

// wsConn adapts a gorilla websocket connection to the Conn interface.
// Writes are serialized; gorilla permits one concurrent writer only.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// ReadEvent blocks for the next JSON event from the source.
func (c *wsConn) ReadEvent() (Event, error) {
	var event Event
	if err := c.conn.ReadJSON(&event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// WriteFrame sends one binary audio frame.
func (c *wsConn) WriteFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Close tears the session down.
func (c *wsConn) Close() error {
	return c.conn.Close()
}
