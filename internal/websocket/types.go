package websocket

import (
	"encoding/json"
	"time"
)

// Message types pushed to viewers.
const (
	MessageTitle   = "title"
	MessageContent = "content"
	MessageKill    = "kill"
)

// Message is one push event. It travels as a single JSON text frame.
type Message struct {
	Type      string    `json:"type"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TitleMessage announces the document name.
func TitleMessage(title string) Message {
	return Message{Type: MessageTitle, Content: title, Timestamp: time.Now()}
}

// ContentMessage carries rendered HTML replacing the whole viewer body.
func ContentMessage(html string) Message {
	return Message{Type: MessageContent, Content: html, Timestamp: time.Now()}
}

// KillMessage tells viewers the server is about to exit.
func KillMessage() Message {
	return Message{Type: MessageKill, Timestamp: time.Now()}
}

// Encode marshals the message into its wire form.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}
