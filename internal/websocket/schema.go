package websocket

import "github.com/stemsi/exstem-exam-client/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// RequestPayload is every client frame; fields unused by an action stay empty.
type RequestPayload struct {
	Action  Action         `json:"action"`
	Answers []model.Answer `json:"answers,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError  Event = "error"
	EventGraded Event = "graded"
	EventPong   Event = "pong"
)

// ResponsePayload is every server frame.
type ResponsePayload struct {
	Event    Event  `json:"event"`
	Status   string `json:"status,omitempty"`
	Score    int    `json:"score,omitempty"`
	MaxScore int    `json:"max_score,omitempty"`
	Error    string `json:"error,omitempty"`
}
