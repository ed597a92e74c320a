// Package config provides handler, stage, and engine configuration.
//
// Handlers are declared as data: a keyword list for routing, a set of stage
// configs, and the transition graph those stages are allowed to walk.
// Validate catches wiring mistakes (unknown targets, missing caps) at
// startup rather than mid-conversation.
package config

import (
	"fmt"
	"time"

	"github.com/bloomline-ai/promoflow/convengine/record"
)

// StageConfig is the declarative configuration for one dialogue stage.
type StageConfig struct {
	Stage record.Stage `json:"stage" yaml:"stage"`

	// SystemPrompt is the stage's instruction to the language model. It must
	// describe the control-token vocabulary the signal extractor expects.
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt"`

	// NextStage is the default advance target.
	NextStage record.Stage `json:"next_stage" yaml:"next_stage"`

	// HardCap bounds how many turns the conversation may spend in this stage
	// per entry. Later stages get slightly larger caps.
	HardCap int `json:"hard_cap" yaml:"hard_cap"`

	// TransitionMessage is the canned reply used on a forced advance.
	TransitionMessage string `json:"transition_message" yaml:"transition_message"`

	// Suggestions are stage-appropriate quick replies returned to the caller.
	Suggestions []string `json:"suggestions" yaml:"suggestions"`

	// UseRetrieval asks the vector-search collaborator for inspiration
	// context before the model call.
	UseRetrieval bool `json:"use_retrieval" yaml:"use_retrieval"`

	// Deliver dispatches the produced content to the delivery collaborators
	// after a successful turn.
	Deliver bool `json:"deliver" yaml:"deliver"`
}

// Validate validates the stage configuration.
func (s *StageConfig) Validate() error {
	if !s.Stage.Valid() {
		return fmt.Errorf("stage config: unknown stage %q", s.Stage)
	}
	if s.HardCap <= 0 {
		return fmt.Errorf("stage %q: hard_cap must be positive", s.Stage)
	}
	if s.NextStage != "" && !s.NextStage.Valid() {
		return fmt.Errorf("stage %q: unknown next_stage %q", s.Stage, s.NextStage)
	}
	if s.SystemPrompt == "" {
		return fmt.Errorf("stage %q: system_prompt is required", s.Stage)
	}
	return nil
}

// HandlerConfig declares one specialized handler: its routing keywords, its
// stages, and the transition graph that bounds them.
type HandlerConfig struct {
	Handler record.Handler `json:"handler" yaml:"handler"`

	// Keywords drive the query router's overlap heuristic.
	Keywords []string `json:"keywords" yaml:"keywords"`

	// EntryStage is where a fresh session starts.
	EntryStage record.Stage `json:"entry_stage" yaml:"entry_stage"`

	// Stages holds the stage configs, keyed by stage identifier.
	Stages map[record.Stage]*StageConfig `json:"stages" yaml:"stages"`

	// Graph lists the allowed transitions per stage. Every stage transition
	// the engine performs must be an edge here; the transition router
	// enforces this as a second safety net behind the stage nodes.
	Graph map[record.Stage][]record.Stage `json:"graph" yaml:"graph"`
}

// Validate validates the handler configuration.
func (h *HandlerConfig) Validate() error {
	if !h.Handler.Valid() {
		return fmt.Errorf("handler config: unknown handler %q", h.Handler)
	}
	if len(h.Keywords) == 0 {
		return fmt.Errorf("handler %q: keyword list is required", h.Handler)
	}
	if _, ok := h.Stages[h.EntryStage]; !ok {
		return fmt.Errorf("handler %q: entry_stage %q has no stage config", h.Handler, h.EntryStage)
	}

	for stage, cfg := range h.Stages {
		if cfg.Stage != stage {
			return fmt.Errorf("handler %q: stage config keyed %q declares stage %q", h.Handler, stage, cfg.Stage)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("handler %q: %w", h.Handler, err)
		}
		if cfg.NextStage != "" && !cfg.NextStage.IsTerminal() {
			if _, ok := h.Stages[cfg.NextStage]; !ok && cfg.NextStage != record.StageError {
				return fmt.Errorf("handler %q: stage %q routes to unconfigured stage %q",
					h.Handler, stage, cfg.NextStage)
			}
		}
	}

	for from, targets := range h.Graph {
		if _, ok := h.Stages[from]; !ok && from != record.StageError {
			return fmt.Errorf("handler %q: graph edge from unconfigured stage %q", h.Handler, from)
		}
		for _, to := range targets {
			if !to.Valid() {
				return fmt.Errorf("handler %q: graph edge %q -> unknown stage %q", h.Handler, from, to)
			}
		}
	}

	// Every configured stage must be able to leave itself.
	for stage, cfg := range h.Stages {
		if cfg.NextStage == "" {
			continue
		}
		if !h.HasEdge(stage, cfg.NextStage) {
			return fmt.Errorf("handler %q: stage %q default next %q is not a graph edge",
				h.Handler, stage, cfg.NextStage)
		}
	}

	return nil
}

// HasEdge reports whether from -> to is an allowed transition.
func (h *HandlerConfig) HasEdge(from, to record.Stage) bool {
	for _, target := range h.Graph[from] {
		if target == to {
			return true
		}
	}
	return false
}

// StageFor returns the stage config, or nil when the stage is not part of
// this handler's graph.
func (h *HandlerConfig) StageFor(stage record.Stage) *StageConfig {
	return h.Stages[stage]
}

// MaxTurns returns the sum of all per-stage hard caps - the termination
// bound for a conversation owned by this handler.
func (h *HandlerConfig) MaxTurns() int {
	total := 0
	for _, cfg := range h.Stages {
		total += cfg.HardCap
	}
	return total
}

// CoreConfig holds the engine-wide knobs.
type CoreConfig struct {
	// DefaultHandler receives conversations the router cannot place.
	DefaultHandler record.Handler `json:"default_handler" yaml:"default_handler"`

	// RoutingThreshold is the minimum confidence below which the routing
	// decision silently falls back to the default handler.
	RoutingThreshold float64 `json:"routing_threshold" yaml:"routing_threshold"`

	// KeywordConfidence is the heuristic confidence needed to skip the
	// generative classifier.
	KeywordConfidence float64 `json:"keyword_confidence" yaml:"keyword_confidence"`

	// LLMTimeout bounds every language-model call.
	LLMTimeout time.Duration `json:"llm_timeout" yaml:"llm_timeout"`

	// MessageWindow caps the per-session message log.
	MessageWindow int `json:"message_window" yaml:"message_window"`

	// FeedbackCap bounds the content refinement loop before the conversation
	// is forced on to execution.
	FeedbackCap int `json:"feedback_cap" yaml:"feedback_cap"`

	// ErrorMaxRetries bounds ERROR -> INITIAL recoveries before termination.
	ErrorMaxRetries int `json:"error_max_retries" yaml:"error_max_retries"`

	// FailureEscalation is the consecutive local-failure count that escalates
	// a session into the error stage.
	FailureEscalation int `json:"failure_escalation" yaml:"failure_escalation"`
}

// DefaultCoreConfig returns the production defaults.
func DefaultCoreConfig() *CoreConfig {
	return &CoreConfig{
		DefaultHandler:    record.HandlerMarketing,
		RoutingThreshold:  0.5,
		KeywordConfidence: 0.7,
		LLMTimeout:        20 * time.Second,
		MessageWindow:     record.DefaultMessageWindow,
		FeedbackCap:       4,
		ErrorMaxRetries:   2,
		FailureEscalation: 3,
	}
}

// Validate validates the core configuration.
func (c *CoreConfig) Validate() error {
	if !c.DefaultHandler.Valid() {
		return fmt.Errorf("core config: unknown default_handler %q", c.DefaultHandler)
	}
	if c.RoutingThreshold < 0 || c.RoutingThreshold > 1 {
		return fmt.Errorf("core config: routing_threshold must be in [0,1]")
	}
	if c.KeywordConfidence < 0 || c.KeywordConfidence > 1 {
		return fmt.Errorf("core config: keyword_confidence must be in [0,1]")
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("core config: llm_timeout must be positive")
	}
	if c.FeedbackCap <= 0 {
		return fmt.Errorf("core config: feedback_cap must be positive")
	}
	if c.ErrorMaxRetries < 0 {
		return fmt.Errorf("core config: error_max_retries must be non-negative")
	}
	if c.FailureEscalation <= 0 {
		return fmt.Errorf("core config: failure_escalation must be positive")
	}
	return nil
}
