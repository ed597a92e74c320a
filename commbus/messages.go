// Package commbus message definitions.
//
// All message types for the conversation engine's bus, organized by domain.
//
// Categories:
//   - EVENT: fire-and-forget, fan-out to subscribers
//   - QUERY: request-response, single handler
//   - COMMAND: fire-and-forget, single handler
package commbus

// MessageCategory represents message routing categories.
type MessageCategory string

const (
	// MessageCategoryEvent represents fire-and-forget, fan-out to all subscribers.
	MessageCategoryEvent MessageCategory = "event"
	// MessageCategoryQuery represents request-response, single handler.
	MessageCategoryQuery MessageCategory = "query"
	// MessageCategoryCommand represents fire-and-forget, single handler.
	MessageCategoryCommand MessageCategory = "command"
)

// =============================================================================
// SESSION LIFECYCLE EVENTS
// =============================================================================

// SessionRouted is emitted once per session, when the query router assigns a
// handler to the opening message.
// Subscribers: telemetry, analytics export.
type SessionRouted struct {
	SessionID  string  `json:"session_id"`
	UserID     string  `json:"user_id"`
	Handler    string  `json:"handler"`
	Confidence float64 `json:"confidence"`
	Priority   string  `json:"priority"`
	Rationale  string  `json:"rationale"`
}

// Category implements the Message interface.
func (m *SessionRouted) Category() string { return string(MessageCategoryEvent) }

// TurnCompleted is emitted after every processed turn.
// Subscribers: telemetry, analytics export.
type TurnCompleted struct {
	SessionID   string  `json:"session_id"`
	UserID      string  `json:"user_id"`
	Handler     string  `json:"handler"`
	Stage       string  `json:"stage"`
	Status      string  `json:"status"` // "success", "error", "terminated"
	DurationMS  int     `json:"duration_ms"`
	IsCompleted bool    `json:"is_completed"`
	Error       *string `json:"error,omitempty"`
}

// Category implements the Message interface.
func (m *TurnCompleted) Category() string { return string(MessageCategoryEvent) }

// StageAdvanced is emitted when a session moves to a new stage.
// Subscribers: telemetry, funnel analytics.
type StageAdvanced struct {
	SessionID string `json:"session_id"`
	Handler   string `json:"handler"`
	FromStage string `json:"from_stage"`
	ToStage   string `json:"to_stage"`
	// ForcedBy names the safety net that fired, empty for organic advances.
	ForcedBy string `json:"forced_by,omitempty"`
}

// Category implements the Message interface.
func (m *StageAdvanced) Category() string { return string(MessageCategoryEvent) }

// ContentDrafted is emitted when a content-creation stage produces a draft.
// Subscribers: draft archive, review tooling.
type ContentDrafted struct {
	SessionID   string `json:"session_id"`
	Handler     string `json:"handler"`
	Stage       string `json:"stage"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
	Channel     string `json:"channel,omitempty"`
}

// Category implements the Message interface.
func (m *ContentDrafted) Category() string { return string(MessageCategoryEvent) }

// =============================================================================
// DELIVERY COMMANDS
// =============================================================================

// DeliveryRequest asks the delivery collaborator (email, social posting) to
// ship finished content. The engine treats delivery as fire-and-forget; the
// collaborator owns retries and protocol details.
type DeliveryRequest struct {
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	Channel     string `json:"channel"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
}

// Category implements the Message interface.
func (m *DeliveryRequest) Category() string { return string(MessageCategoryCommand) }

// =============================================================================
// RETRIEVAL QUERIES
// =============================================================================

// RetrievalQuery asks the vector-search collaborator for reference material
// to ground a content draft. The result is opaque to the engine; it is
// embedded into the prompt verbatim.
type RetrievalQuery struct {
	SessionID string `json:"session_id"`
	Handler   string `json:"handler"`
	Text      string `json:"text"`
	Limit     int    `json:"limit"`
}

// Category implements the Message interface.
func (m *RetrievalQuery) Category() string { return string(MessageCategoryQuery) }

// IsQuery implements the Query interface.
func (m *RetrievalQuery) IsQuery() {}

// RetrievalResult is the response to a RetrievalQuery.
type RetrievalResult struct {
	Documents []string `json:"documents"`
}

// =============================================================================
// MESSAGE TYPE ROUTING
// =============================================================================

// GetMessageType returns the type name of a message for routing.
func GetMessageType(msg Message) string {
	// First check if the message can provide its own type
	if typed, ok := msg.(TypedMessage); ok {
		return typed.MessageType()
	}

	// Otherwise use the static type switch
	switch msg.(type) {
	case *SessionRouted:
		return "SessionRouted"
	case *TurnCompleted:
		return "TurnCompleted"
	case *StageAdvanced:
		return "StageAdvanced"
	case *ContentDrafted:
		return "ContentDrafted"
	case *DeliveryRequest:
		return "DeliveryRequest"
	case *RetrievalQuery:
		return "RetrievalQuery"
	default:
		return "Unknown"
	}
}
