// Package server exposes the HTTP surface: one message endpoint behind API
// key auth, plus health.
package server

import "time"

// IncomingMessage is one message within an event.
type IncomingMessage struct {
	Sender    string     `json:"sender" binding:"required"`
	Text      string     `json:"text" binding:"required,max=4000"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// EventMetadata carries optional channel hints from the caller.
type EventMetadata struct {
	Channel  string `json:"channel,omitempty"`
	Language string `json:"language,omitempty"`
	Locale   string `json:"locale,omitempty"`
}

// IncomingEvent is the request body of POST /v1/message.
type IncomingEvent struct {
	SessionID           string            `json:"sessionId" binding:"required,min=3,max=200"`
	Message             IncomingMessage   `json:"message" binding:"required"`
	ConversationHistory []IncomingMessage `json:"conversationHistory,omitempty"`
	Metadata            *EventMetadata    `json:"metadata,omitempty"`
}

// AgentResponse is the response body for both success and error cases.
type AgentResponse struct {
	Status string `json:"status"`
	Reply  string `json:"reply"`
}
