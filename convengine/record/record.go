// Package record provides the ConversationRecord - the single mutable state
// structure for one dialogue session.
//
// A record is exclusively owned by the in-flight turn (the session manager
// guarantees single-writer access); all mutation goes through the methods
// below so a turn can never leave a record half-updated. Clone produces a
// deep copy for checkpointing and rollback.
package record

import (
	"time"

	"github.com/google/uuid"
)

// Stage identifies one node of the dialogue state machine.
type Stage string

const (
	StageInitial          Stage = "initial"
	StageGoalSetting      Stage = "goal_setting"
	StageTargetAnalysis   Stage = "target_analysis"
	StageStrategyPlanning Stage = "strategy_planning"
	StageContentCreation  Stage = "content_creation"
	StageContentFeedback  Stage = "content_feedback"
	StageExecution        Stage = "execution"
	StageCompleted        Stage = "completed"
	StageError            Stage = "error"
)

// IsTerminal reports whether the stage ends the conversation.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted
}

// Valid reports whether the stage is one of the known stages.
func (s Stage) Valid() bool {
	switch s {
	case StageInitial, StageGoalSetting, StageTargetAnalysis, StageStrategyPlanning,
		StageContentCreation, StageContentFeedback, StageExecution, StageCompleted, StageError:
		return true
	}
	return false
}

// Handler identifies the specialized stage graph + prompt set that owns a
// conversation. Selected once, by the query router, on the first turn.
type Handler string

const (
	HandlerMarketing Handler = "marketing"
	HandlerContent   Handler = "content"
	HandlerAnalytics Handler = "analytics"
)

// Valid reports whether the handler is one of the known handlers.
func (h Handler) Valid() bool {
	switch h {
	case HandlerMarketing, HandlerContent, HandlerAnalytics:
		return true
	}
	return false
}

// Role identifies the author of a logged message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// DefaultMessageWindow is the cap on the message log; the oldest entries are
// evicted first once the window is full.
const DefaultMessageWindow = 20

// Message is a single logged conversation turn entry.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Stage     Stage     `json:"stage"`
}

// ConversationRecord is the full state of one dialogue session.
//
// Invariants maintained by the methods below:
//   - IterationCount and FeedbackCount are non-negative and reset on stage entry
//   - Messages never exceeds MessageWindow entries
//   - CompletionRate is recomputed whenever CollectedFields changes
type ConversationRecord struct {
	SessionID string  `json:"session_id"`
	UserID    string  `json:"user_id"`
	Handler   Handler `json:"handler"`

	CurrentStage Stage     `json:"current_stage"`
	Messages     []Message `json:"messages"`

	// CollectedFields maps business attribute names (business_type,
	// campaign_goal, target_audience, ...) to extracted values.
	CollectedFields map[string]string `json:"collected_fields"`

	IterationCount int     `json:"iteration_count"`
	FeedbackCount  int     `json:"feedback_count"`
	CompletionRate float64 `json:"completion_rate"`

	LastError       *string `json:"last_error,omitempty"`
	RetryCount      int     `json:"retry_count"`
	FailureStreak   int     `json:"failure_streak"`
	ShouldTerminate bool    `json:"should_terminate"`

	MessageWindow int `json:"message_window"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a fresh record at the initial stage.
func New(sessionID, userID string, handler Handler) *ConversationRecord {
	now := time.Now().UTC()
	if sessionID == "" {
		sessionID = "sess_" + uuid.New().String()[:16]
	}
	return &ConversationRecord{
		SessionID:       sessionID,
		UserID:          userID,
		Handler:         handler,
		CurrentStage:    StageInitial,
		Messages:        []Message{},
		CollectedFields: make(map[string]string),
		MessageWindow:   DefaultMessageWindow,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// AppendMessage appends a message to the bounded log, evicting the oldest
// entry once the window is full.
func (r *ConversationRecord) AppendMessage(role Role, content string) {
	window := r.MessageWindow
	if window <= 0 {
		window = DefaultMessageWindow
	}
	msg := Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Stage:     r.CurrentStage,
	}
	r.Messages = append(r.Messages, msg)
	if len(r.Messages) > window {
		r.Messages = r.Messages[len(r.Messages)-window:]
	}
	r.touch()
}

// MergeFields merges non-empty extracted values into CollectedFields. A later
// extraction overwrites an earlier one only for the same key. Callers must
// recompute the completion rate afterwards (see SetCompletionRate); the stage
// node does this via the completeness evaluator.
func (r *ConversationRecord) MergeFields(fields map[string]string) {
	for key, value := range fields {
		if value == "" {
			continue
		}
		r.CollectedFields[key] = value
	}
	r.touch()
}

// SetCompletionRate stores the recomputed completion rate, clamped to [0,1].
func (r *ConversationRecord) SetCompletionRate(rate float64) {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	r.CompletionRate = rate
	r.touch()
}

// AdvanceStage moves the record to the given stage and resets the per-stage
// iteration counter. Entering content_feedback does not reset FeedbackCount;
// that counter only resets when the feedback loop is left behind.
func (r *ConversationRecord) AdvanceStage(next Stage) {
	leavingFeedbackLoop := r.CurrentStage == StageContentFeedback && next != StageContentCreation ||
		r.CurrentStage == StageContentCreation && next != StageContentFeedback
	r.CurrentStage = next
	r.IterationCount = 0
	if leavingFeedbackLoop {
		r.FeedbackCount = 0
	}
	r.touch()
}

// IncrementIteration bumps the per-stage iteration counter.
func (r *ConversationRecord) IncrementIteration() {
	r.IterationCount++
	r.touch()
}

// IncrementFeedback bumps the refinement-loop counter.
func (r *ConversationRecord) IncrementFeedback() {
	r.FeedbackCount++
	r.touch()
}

// RecordError stores the error and bumps both the retry count and the
// consecutive-failure streak.
func (r *ConversationRecord) RecordError(msg string) {
	r.LastError = &msg
	r.RetryCount++
	r.FailureStreak++
	r.touch()
}

// RecordFailure bumps only the consecutive-failure streak, for locally
// recovered model failures that should not consume an error-stage retry.
func (r *ConversationRecord) RecordFailure(msg string) {
	r.LastError = &msg
	r.FailureStreak++
	r.touch()
}

// ClearError resets the stored error and the failure streak. The retry count
// is left intact - it bounds the error-stage recovery loop.
func (r *ConversationRecord) ClearError() {
	r.LastError = nil
	r.FailureStreak = 0
	r.touch()
}

// Terminate marks the record as finished; subsequent turns short-circuit.
func (r *ConversationRecord) Terminate() {
	r.ShouldTerminate = true
	r.touch()
}

// MessageCount returns the number of logged messages.
func (r *ConversationRecord) MessageCount() int {
	return len(r.Messages)
}

// HasField reports whether a non-empty value was collected for the key.
func (r *ConversationRecord) HasField(key string) bool {
	v, ok := r.CollectedFields[key]
	return ok && v != ""
}

// Clone creates a deep copy of the record.
func (r *ConversationRecord) Clone() *ConversationRecord {
	clone := *r

	clone.Messages = make([]Message, len(r.Messages))
	copy(clone.Messages, r.Messages)

	clone.CollectedFields = make(map[string]string, len(r.CollectedFields))
	for k, v := range r.CollectedFields {
		clone.CollectedFields[k] = v
	}

	if r.LastError != nil {
		lastErr := *r.LastError
		clone.LastError = &lastErr
	}

	return &clone
}

func (r *ConversationRecord) touch() {
	r.UpdatedAt = time.Now().UTC()
}
