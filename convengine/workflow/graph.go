// Package workflow wires the stage nodes into the handler's directed graph
// and exposes the engine's single caller-facing operation, ProcessTurn.
//
// Transition safety is layered: every stage node bounds itself with the
// forced-advance valve, and the graph guard here re-applies the same caps as
// an independent second net. Either layer alone is enough to bound a
// conversation to the sum of the per-stage hard caps.
package workflow

import (
	"github.com/bloomline-ai/promoflow/convengine/config"
	"github.com/bloomline-ai/promoflow/convengine/record"
)

// Action is a graph guard verdict.
type Action string

const (
	// ActionContinue keeps the session in its current stage.
	ActionContinue Action = "continue"
	// ActionAdvance moves the session along the Target edge.
	ActionAdvance Action = "advance"
	// ActionEnd terminates the session.
	ActionEnd Action = "end"
	// ActionError marks a configuration problem for this request.
	ActionError Action = "error"
)

// Verdict is the guard's decision for one record.
type Verdict struct {
	Action Action
	// Target is the advance destination, set for ActionAdvance.
	Target record.Stage
	// Trigger names the rule that fired ("hard_cap", "feedback_cap",
	// "error_retry", "retries_exhausted").
	Trigger string
}

// Guard evaluates a handler's transition graph against a record.
type Guard struct {
	handler *config.HandlerConfig
	core    *config.CoreConfig
}

// NewGuard builds a guard for one handler.
func NewGuard(handler *config.HandlerConfig, core *config.CoreConfig) *Guard {
	return &Guard{handler: handler, core: core}
}

// Evaluate applies the guard rules to the record as it stands. It consults
// only the record, never the model output, so it bounds the conversation even
// against adversarial model behavior.
func (g *Guard) Evaluate(rec *record.ConversationRecord) Verdict {
	if rec.ShouldTerminate || rec.CurrentStage.IsTerminal() {
		return Verdict{Action: ActionEnd}
	}

	// The error stage allows a bounded number of returns to INITIAL before
	// the session is closed for good.
	if rec.CurrentStage == record.StageError {
		if rec.RetryCount <= g.core.ErrorMaxRetries {
			return Verdict{Action: ActionAdvance, Target: record.StageInitial, Trigger: "error_retry"}
		}
		return Verdict{Action: ActionEnd, Trigger: "retries_exhausted"}
	}

	cfg := g.handler.StageFor(rec.CurrentStage)
	if cfg == nil {
		return Verdict{Action: ActionError}
	}

	if rec.CurrentStage == record.StageContentFeedback && rec.FeedbackCount > g.core.FeedbackCap {
		return Verdict{Action: ActionAdvance, Target: record.StageExecution, Trigger: "feedback_cap"}
	}
	if rec.IterationCount >= cfg.HardCap {
		return Verdict{Action: ActionAdvance, Target: cfg.NextStage, Trigger: "hard_cap"}
	}

	return Verdict{Action: ActionContinue}
}

// AllowsEdge reports whether the handler's graph permits from -> to.
func (g *Guard) AllowsEdge(from, to record.Stage) bool {
	return g.handler.HasEdge(from, to)
}
