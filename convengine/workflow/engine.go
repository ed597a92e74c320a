package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bloomline-ai/promoflow/commbus"
	"github.com/bloomline-ai/promoflow/convengine/config"
	"github.com/bloomline-ai/promoflow/convengine/llm"
	"github.com/bloomline-ai/promoflow/convengine/logging"
	"github.com/bloomline-ai/promoflow/convengine/observability"
	"github.com/bloomline-ai/promoflow/convengine/record"
	"github.com/bloomline-ai/promoflow/convengine/routing"
	"github.com/bloomline-ai/promoflow/convengine/session"
	"github.com/bloomline-ai/promoflow/convengine/stages"
	"github.com/bloomline-ai/promoflow/convengine/store"
	"github.com/bloomline-ai/promoflow/convengine/typeutil"
)

// Configuration errors, the only error class surfaced to the caller. All
// model-call, parsing and retry failures are absorbed inside the turn.
var (
	ErrUnknownHandler = errors.New("workflow: unknown handler")
	ErrUnknownStage   = errors.New("workflow: unknown stage")
	ErrEmptyMessage   = errors.New("workflow: empty message")
)

var tracer = otel.Tracer("promoflow/workflow")

// Canned user-facing replies for the error-recovery paths.
const (
	retryText    = "문제가 계속되어 상담을 처음부터 다시 시작할게요. 불편을 드려 죄송해요."
	closedText   = "죄송해요, 지금은 상담을 이어가기 어려워요. 잠시 후 새로운 상담으로 다시 찾아주세요."
	finishedText = "이번 상담은 이미 마무리되었어요. 새로운 상담을 시작하려면 새 세션으로 문의해 주세요."
)

// TurnRequest is one user turn.
type TurnRequest struct {
	// SessionID identifies the conversation; empty starts a new session.
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
	// Handler is an optional explicit routing hint, honored only on the
	// first turn of a session.
	Handler record.Handler `json:"handler,omitempty"`
}

// TurnResponse is the caller-facing result of one turn.
type TurnResponse struct {
	SessionID        string            `json:"session_id"`
	ReplyText        string            `json:"reply_text"`
	Handler          record.Handler    `json:"handler"`
	CurrentStage     record.Stage      `json:"current_stage"`
	CompletionRate   float64           `json:"completion_rate"`
	CollectedFields  map[string]string `json:"collected_fields"`
	SuggestedReplies []string          `json:"suggested_replies,omitempty"`
	IsCompleted      bool              `json:"is_completed"`
}

// Engine owns the full turn pipeline: routing, session checkout, stage
// dispatch, graph enforcement, persistence, and event publication.
type Engine struct {
	handlers map[record.Handler]*config.HandlerConfig
	core     *config.CoreConfig

	router     *routing.Router
	guards     map[record.Handler]*Guard
	nodes      map[record.Handler]map[record.Stage]*stages.Node
	classifier llm.Generator
	gen        llm.Generator

	sessions *session.Manager
	limiter  *session.RateLimiter
	store    store.Store
	bus      commbus.CommBus
	log      logging.Logger
}

// NewEngine wires an engine from its collaborators. The bus is optional;
// without it retrieval and delivery are skipped. The limiter is optional;
// without it model calls are unthrottled.
func NewEngine(
	handlers map[record.Handler]*config.HandlerConfig,
	core *config.CoreConfig,
	gen llm.Generator,
	st store.Store,
	bus commbus.CommBus,
	limiter *session.RateLimiter,
	log logging.Logger,
) (*Engine, error) {
	if err := core.Validate(); err != nil {
		return nil, err
	}
	if err := config.ValidateHandlers(handlers); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Nop()
	}

	timed := llm.WithTimeout(gen, core.LLMTimeout)

	e := &Engine{
		handlers: handlers,
		core:     core,
		router:   routing.NewRouter(handlers, core, log),
		guards:   make(map[record.Handler]*Guard, len(handlers)),
		nodes:    make(map[record.Handler]map[record.Stage]*stages.Node, len(handlers)),
		// Classification prompts repeat across sessions; cache them by
		// content. Dialogue calls are never cached.
		classifier: llm.NewCached(timed, 512, 10*time.Minute),
		gen:        timed,
		sessions:   session.NewManager(),
		limiter:    limiter,
		store:      st,
		bus:        bus,
		log:        log.Bind("component", "engine"),
	}

	var retriever stages.Retriever
	if bus != nil {
		retriever = &busRetriever{bus: bus}
	}
	for name, handler := range handlers {
		e.guards[name] = NewGuard(handler, core)
		e.nodes[name] = make(map[record.Stage]*stages.Node, len(handler.Stages))
		for stage := range handler.Stages {
			node, err := stages.NewNode(handler, stage, core, retriever, log)
			if err != nil {
				return nil, err
			}
			e.nodes[name][stage] = node
		}
	}

	return e, nil
}

// Sessions exposes the session manager for lifecycle wiring (cleanup loop).
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// ProcessTurn processes one user turn end to end. Turns for the same session
// serialize in arrival order; distinct sessions run in parallel.
func (e *Engine) ProcessTurn(ctx context.Context, req *TurnRequest) (*TurnResponse, error) {
	if req.Message == "" {
		return nil, ErrEmptyMessage
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "sess_" + uuid.New().String()[:16]
	}

	ctx, span := tracer.Start(ctx, "engine.process_turn",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	release := e.sessions.Checkout(sessionID)
	defer release()

	started := time.Now()

	rec, err := e.store.Load(ctx, sessionID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		rec, err = e.openSession(ctx, sessionID, req)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	handler, ok := e.handlers[rec.Handler]
	if !ok {
		// Configuration error: fatal for this request only, and surfaced
		// before any record mutation.
		err := fmt.Errorf("%w: %q", ErrUnknownHandler, rec.Handler)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	guard := e.guards[rec.Handler]

	// A terminated or completed session short-circuits without stage logic.
	if v := guard.Evaluate(rec); v.Action == ActionEnd && (rec.ShouldTerminate || rec.CurrentStage.IsTerminal()) {
		return e.respond(rec, finishedText, nil), nil
	}

	var resp *TurnResponse
	if rec.CurrentStage == record.StageError {
		resp = e.runErrorStage(guard, rec, req.Message)
	} else {
		resp, err = e.runStage(ctx, handler, guard, rec, req.Message)
		if err != nil {
			// Unknown stage: surfaced without saving, so the stored record
			// stays uncorrupted.
			return nil, err
		}
	}

	if err := e.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save session %s: %w", sessionID, err)
	}

	span.SetAttributes(
		attribute.String("handler", string(rec.Handler)),
		attribute.String("stage", string(rec.CurrentStage)),
	)
	span.SetStatus(codes.Ok, "success")

	e.publishTurn(ctx, rec, resp, time.Since(started))
	return resp, nil
}

// openSession routes the opening message and creates a fresh record.
func (e *Engine) openSession(ctx context.Context, sessionID string, req *TurnRequest) (*record.ConversationRecord, error) {
	decision := e.router.Route(ctx, e.classifier, req.Message, req.Handler)

	handler, ok := e.handlers[decision.Handler]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandler, decision.Handler)
	}

	rec := record.New(sessionID, req.UserID, decision.Handler)
	rec.CurrentStage = handler.EntryStage
	rec.MessageWindow = e.core.MessageWindow

	e.log.Info("session routed",
		"session_id", sessionID,
		"handler", decision.Handler,
		"confidence", decision.Confidence,
		"priority", decision.Priority,
		"rationale", decision.Rationale)

	if e.bus != nil {
		_ = e.bus.Publish(ctx, &commbus.SessionRouted{
			SessionID:  sessionID,
			UserID:     req.UserID,
			Handler:    string(decision.Handler),
			Confidence: decision.Confidence,
			Priority:   string(decision.Priority),
			Rationale:  decision.Rationale,
		})
	}
	return rec, nil
}

// runStage dispatches the turn to the stage node and re-applies the graph
// guard as the second safety net.
func (e *Engine) runStage(ctx context.Context, handler *config.HandlerConfig, guard *Guard, rec *record.ConversationRecord, message string) (*TurnResponse, error) {
	node, ok := e.nodes[rec.Handler][rec.CurrentStage]
	if !ok {
		return nil, fmt.Errorf("%w: handler %q stage %q", ErrUnknownStage, rec.Handler, rec.CurrentStage)
	}

	gen := e.gen
	if e.limiter != nil && !e.limiter.Allow(rec.SessionID) {
		// The node's recoverable-failure path turns the denial into an
		// apology without burning provider budget.
		gen = llm.Denied(llm.ErrRateLimited)
	}

	from := rec.CurrentStage
	outcome := node.Run(ctx, gen, rec, message)

	// Second net: the node already bounds itself, but the guard re-checks
	// caps and edge legality so a single regression cannot unbound the
	// conversation.
	if !outcome.Advanced {
		if v := guard.Evaluate(rec); v.Action == ActionAdvance && guard.AllowsEdge(rec.CurrentStage, v.Target) {
			rec.AdvanceStage(v.Target)
			outcome.Stage = v.Target
			outcome.Advanced = true
			outcome.ForcedBy = v.Trigger
			if cfg := handler.StageFor(from); cfg != nil && cfg.TransitionMessage != "" {
				outcome.Reply = cfg.TransitionMessage
			}
			observability.RecordForcedAdvance(string(from), "guard")
		}
	}

	if outcome.Advanced && e.bus != nil {
		_ = e.bus.Publish(ctx, &commbus.StageAdvanced{
			SessionID: rec.SessionID,
			Handler:   string(rec.Handler),
			FromStage: string(from),
			ToStage:   string(outcome.Stage),
			ForcedBy:  outcome.ForcedBy,
		})
	}

	e.emitContent(ctx, handler, rec, from, outcome)

	return e.respond(rec, outcome.Reply, outcome.Suggestions), nil
}

// emitContent publishes drafts from content stages and dispatches delivery
// from stages flagged for it.
func (e *Engine) emitContent(ctx context.Context, handler *config.HandlerConfig, rec *record.ConversationRecord, from record.Stage, outcome *stages.Outcome) {
	if e.bus == nil || outcome.Escalated || outcome.ForcedBy != "" {
		return
	}
	cfg := handler.StageFor(from)
	if cfg == nil {
		return
	}

	if from == record.StageContentCreation {
		_ = e.bus.Publish(ctx, &commbus.ContentDrafted{
			SessionID:   rec.SessionID,
			Handler:     string(rec.Handler),
			Stage:       string(from),
			Content:     outcome.Reply,
			ContentType: rec.CollectedFields["content_type"],
			Channel:     rec.CollectedFields["channel"],
		})
	}

	if cfg.Deliver {
		_ = e.bus.Send(ctx, &commbus.DeliveryRequest{
			SessionID:   rec.SessionID,
			UserID:      rec.UserID,
			Channel:     rec.CollectedFields["channel"],
			Content:     outcome.Reply,
			ContentType: rec.CollectedFields["content_type"],
		})
	}
}

// runErrorStage applies the bounded ERROR -> INITIAL retry edge, or closes
// the session once retries are exhausted.
func (e *Engine) runErrorStage(guard *Guard, rec *record.ConversationRecord, message string) *TurnResponse {
	v := guard.Evaluate(rec)

	rec.AppendMessage(record.RoleUser, message)
	if v.Action == ActionAdvance {
		rec.AppendMessage(record.RoleAssistant, retryText)
		rec.ClearError()
		rec.AdvanceStage(record.StageInitial)
		observability.RecordStageTransition(string(record.StageError), string(record.StageInitial))
		e.log.Info("error stage retry", "session_id", rec.SessionID, "retries", rec.RetryCount)
		return e.respond(rec, retryText, nil)
	}

	rec.AppendMessage(record.RoleAssistant, closedText)
	rec.Terminate()
	observability.RecordStageTransition(string(record.StageError), string(record.StageCompleted))
	e.log.Warn("session terminated after exhausted retries",
		"session_id", rec.SessionID, "retries", rec.RetryCount)
	return e.respond(rec, closedText, nil)
}

func (e *Engine) respond(rec *record.ConversationRecord, reply string, suggestions []string) *TurnResponse {
	fields := make(map[string]string, len(rec.CollectedFields))
	for k, v := range rec.CollectedFields {
		fields[k] = v
	}
	return &TurnResponse{
		SessionID:        rec.SessionID,
		ReplyText:        reply,
		Handler:          rec.Handler,
		CurrentStage:     rec.CurrentStage,
		CompletionRate:   rec.CompletionRate,
		CollectedFields:  fields,
		SuggestedReplies: suggestions,
		IsCompleted:      rec.CurrentStage.IsTerminal() || rec.ShouldTerminate,
	}
}

func (e *Engine) publishTurn(ctx context.Context, rec *record.ConversationRecord, resp *TurnResponse, elapsed time.Duration) {
	status := "success"
	if rec.ShouldTerminate {
		status = "terminated"
	} else if rec.CurrentStage == record.StageError {
		status = "error"
	}
	durationMS := int(elapsed.Milliseconds())

	observability.RecordTurn(string(rec.Handler), string(rec.CurrentStage), status, durationMS)

	if e.bus != nil {
		_ = e.bus.Publish(ctx, &commbus.TurnCompleted{
			SessionID:   rec.SessionID,
			UserID:      rec.UserID,
			Handler:     string(rec.Handler),
			Stage:       string(rec.CurrentStage),
			Status:      status,
			DurationMS:  durationMS,
			IsCompleted: resp.IsCompleted,
			Error:       rec.LastError,
		})
	}
}

// busRetriever adapts the commbus retrieval query to the stages.Retriever
// interface.
type busRetriever struct {
	bus commbus.CommBus
}

func (r *busRetriever) Retrieve(ctx context.Context, query string) (string, error) {
	if !r.bus.HasHandler("RetrievalQuery") {
		return "", nil
	}
	res, err := r.bus.QuerySync(ctx, &commbus.RetrievalQuery{Text: query, Limit: 3})
	if err != nil {
		return "", err
	}

	// Collaborators answer with *RetrievalResult; tolerate bare document
	// slices from simpler handlers.
	var docs []string
	if result, ok := res.(*commbus.RetrievalResult); ok {
		docs = result.Documents
	} else {
		docs, _ = typeutil.SafeStringSlice(res)
	}
	if len(docs) == 0 {
		return "", nil
	}
	return strings.Join(docs, "\n"), nil
}
