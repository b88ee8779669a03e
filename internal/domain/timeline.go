package domain

// Session types recorded by the harness on task events.
const (
	SessionTypeInitializer = "initializer"
	SessionTypeCoding      = "coding"
	SessionTypeEval        = "eval"
)

// Event types recorded by the harness.
const (
	EventTypeStart    = "start"
	EventTypeFinished = "finished"
	EventTypeTests    = "tests"
)

type TaskEvent struct {
	ID          string `json:"id"`
	SessionType string `json:"session_type"`
	AgentRole   string `json:"agent_role"`
	EventType   string `json:"event_type"`
	Payload     JSONB  `json:"payload,omitempty"`
	CreatedAt   string `json:"created_at"`
}
