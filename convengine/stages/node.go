package stages

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bloomline-ai/promoflow/convengine/config"
	"github.com/bloomline-ai/promoflow/convengine/llm"
	"github.com/bloomline-ai/promoflow/convengine/logging"
	"github.com/bloomline-ai/promoflow/convengine/observability"
	"github.com/bloomline-ai/promoflow/convengine/record"
)

// ApologyText is substituted for the model reply when generation fails or
// times out. The turn is treated as inconclusive, never as a crash.
const ApologyText = "죄송해요, 잠시 응답을 만드는 데 문제가 있었어요. 다시 한번 말씀해 주시겠어요?"

// Retriever is the optional vector-search collaborator. Stages flagged with
// UseRetrieval consult it for inspiration context before the model call; its
// result is an opaque string embedded into the prompt.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

// Outcome reports what one turn did to the record.
type Outcome struct {
	// Reply is the user-visible text for this turn, control tokens stripped.
	Reply string

	// Stage is the record's stage after the turn.
	Stage record.Stage

	// NextAction is "continue_<stage>" when the conversation stays put and
	// "advance_<stage>" when it moved.
	NextAction string

	// Advanced is true when the stage changed this turn.
	Advanced bool

	// ForcedBy names the safety net that fired ("hard_cap", "heuristic",
	// "feedback_cap"), empty for signal- or completeness-driven advances.
	ForcedBy string

	// Signal is the control token extracted from the model output.
	Signal Signal

	// Suggestions are quick replies appropriate to the resulting stage.
	Suggestions []string

	// Escalated is true when consecutive model failures pushed the session
	// into the error stage.
	Escalated bool
}

// Node processes turns for one stage of one handler's graph.
type Node struct {
	handler   *config.HandlerConfig
	stage     record.Stage
	cfg       *config.StageConfig
	core      *config.CoreConfig
	extractor FieldExtractor
	retriever Retriever
	log       logging.Logger
}

// NewNode builds the node for the given stage. The stage must be configured
// on the handler.
func NewNode(handler *config.HandlerConfig, stage record.Stage, core *config.CoreConfig, retriever Retriever, log logging.Logger) (*Node, error) {
	cfg := handler.StageFor(stage)
	if cfg == nil {
		return nil, fmt.Errorf("handler %q has no stage %q", handler.Handler, stage)
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Node{
		handler:   handler,
		stage:     stage,
		cfg:       cfg,
		core:      core,
		extractor: KeywordExtractor{},
		retriever: retriever,
		log:       log,
	}, nil
}

// Run processes one turn: bump counters, apply the forced-advance safety
// valve, otherwise call the model, harvest signal and fields, and decide
// whether to stay or move. The generator is passed per call so the engine can
// substitute a denied generator when a session is over its rate budget.
func (n *Node) Run(ctx context.Context, gen llm.Generator, rec *record.ConversationRecord, input string) *Outcome {
	rec.IncrementIteration()
	if n.stage == record.StageContentFeedback {
		rec.IncrementFeedback()
	}

	// Loop-prevention safety valve. Runs before the model call so an
	// adversarial model cannot keep a stage alive past its budget.
	if trigger := n.forcedTrigger(rec); trigger != "" {
		return n.forceAdvance(rec, input, trigger)
	}

	raw, err := gen.Generate(ctx, n.cfg.SystemPrompt, n.buildContext(ctx, rec, input))
	if err != nil {
		return n.recoverFailure(rec, input, err)
	}
	rec.ClearError()

	signal, clean := ExtractSignal(raw)
	if clean == "" {
		clean = ApologyText
	}

	rec.MergeFields(n.extractor.Extract(raw + " " + input))
	rec.AppendMessage(record.RoleUser, input)
	rec.AppendMessage(record.RoleAssistant, clean)
	rec.SetCompletionRate(Completeness(rec, n.stage))

	target := n.resolveTarget(signal, rec.CompletionRate)
	if target == "" {
		return &Outcome{
			Reply:       clean,
			Stage:       n.stage,
			NextAction:  "continue_" + string(n.stage),
			Signal:      signal,
			Suggestions: n.cfg.Suggestions,
		}
	}

	from := rec.CurrentStage
	rec.AdvanceStage(target)
	observability.RecordStageTransition(string(from), string(target))
	n.log.Info("stage advanced",
		"session_id", rec.SessionID, "from", from, "to", target, "signal", signal)

	return &Outcome{
		Reply:       clean,
		Stage:       target,
		NextAction:  "advance_" + string(target),
		Advanced:    true,
		Signal:      signal,
		Suggestions: n.suggestionsFor(target),
	}
}

// forcedTrigger reports which safety net fires for the current counters, or
// "" when the turn may proceed normally.
func (n *Node) forcedTrigger(rec *record.ConversationRecord) string {
	if n.stage == record.StageContentFeedback && rec.FeedbackCount > n.core.FeedbackCap {
		return "feedback_cap"
	}
	if rec.IterationCount >= n.cfg.HardCap {
		return "hard_cap"
	}
	if rec.IterationCount >= 3 && Completeness(rec, n.stage) >= 0.7 {
		return "heuristic"
	}
	return ""
}

func (n *Node) forceAdvance(rec *record.ConversationRecord, input, trigger string) *Outcome {
	next := n.cfg.NextStage
	reply := n.cfg.TransitionMessage
	if reply == "" {
		reply = "다음 단계로 넘어갈게요."
	}

	rec.AppendMessage(record.RoleUser, input)
	rec.AppendMessage(record.RoleAssistant, reply)
	from := rec.CurrentStage
	rec.AdvanceStage(next)
	rec.SetCompletionRate(Completeness(rec, next))

	observability.RecordForcedAdvance(string(from), trigger)
	observability.RecordStageTransition(string(from), string(next))
	n.log.Info("forced advance",
		"session_id", rec.SessionID, "from", from, "to", next, "trigger", trigger)

	return &Outcome{
		Reply:       reply,
		Stage:       next,
		NextAction:  "advance_" + string(next),
		Advanced:    true,
		ForcedBy:    trigger,
		Suggestions: n.suggestionsFor(next),
	}
}

// recoverFailure absorbs a model-call failure: substitute the apology, count
// the failure, and escalate into the error stage when the streak is long
// enough. The conversation never aborts here.
func (n *Node) recoverFailure(rec *record.ConversationRecord, input string, err error) *Outcome {
	rec.AppendMessage(record.RoleUser, input)
	rec.AppendMessage(record.RoleAssistant, ApologyText)
	rec.RecordFailure(err.Error())
	n.log.Warn("model call failed",
		"session_id", rec.SessionID, "stage", n.stage, "streak", rec.FailureStreak, "error", err)

	if rec.FailureStreak >= n.core.FailureEscalation {
		from := rec.CurrentStage
		rec.RecordError(err.Error())
		rec.AdvanceStage(record.StageError)
		observability.RecordStageTransition(string(from), string(record.StageError))
		n.log.Warn("escalating to error stage",
			"session_id", rec.SessionID, "from", from, "retries", rec.RetryCount)
		return &Outcome{
			Reply:      ApologyText,
			Stage:      record.StageError,
			NextAction: "advance_" + string(record.StageError),
			Advanced:   true,
			Escalated:  true,
		}
	}

	return &Outcome{
		Reply:       ApologyText,
		Stage:       n.stage,
		NextAction:  "continue_" + string(n.stage),
		Suggestions: n.cfg.Suggestions,
	}
}

// resolveTarget maps the extracted signal and recomputed completeness to an
// advance target, or "" to stay. Targets the graph does not allow are
// downgraded rather than rejected: COMPLETE falls back to the default next
// stage, REQUEST_CONTENT to staying put.
func (n *Node) resolveTarget(signal Signal, completeness float64) record.Stage {
	switch signal {
	case SignalComplete:
		if n.handler.HasEdge(n.stage, record.StageCompleted) {
			return record.StageCompleted
		}
		return n.cfg.NextStage
	case SignalAdvance:
		return n.cfg.NextStage
	case SignalRequestContent:
		if n.handler.HasEdge(n.stage, record.StageContentCreation) {
			return record.StageContentCreation
		}
		return ""
	}
	if completeness >= 0.8 {
		return n.cfg.NextStage
	}
	return ""
}

func (n *Node) suggestionsFor(stage record.Stage) []string {
	if cfg := n.handler.StageFor(stage); cfg != nil {
		return cfg.Suggestions
	}
	return nil
}

// buildContext assembles the compact user-context block for the model call:
// stage name, completion rate, known fields, optional retrieval context, and
// the raw user input.
func (n *Node) buildContext(ctx context.Context, rec *record.ConversationRecord, input string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[단계] %s\n", n.stage)
	fmt.Fprintf(&b, "[진행률] %.0f%%\n", rec.CompletionRate*100)

	if len(rec.CollectedFields) > 0 {
		keys := make([]string, 0, len(rec.CollectedFields))
		for k := range rec.CollectedFields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("[수집된 정보]\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, rec.CollectedFields[k])
		}
	}
	if missing := MissingFields(rec, n.stage); len(missing) > 0 {
		fmt.Fprintf(&b, "[필요한 정보] %s\n", strings.Join(missing, ", "))
	}

	if n.cfg.UseRetrieval && n.retriever != nil {
		if hint, err := n.retriever.Retrieve(ctx, input); err != nil {
			n.log.Warn("retrieval failed", "session_id", rec.SessionID, "error", err)
		} else if hint != "" {
			fmt.Fprintf(&b, "[참고 자료]\n%s\n", hint)
		}
	}

	fmt.Fprintf(&b, "[사용자 메시지] %s", input)
	return b.String()
}
