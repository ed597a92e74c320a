// Package routing implements the top-level query router: given the first
// message of a session it selects which handler owns the conversation, using
// a keyword-overlap heuristic with a generative classifier fallback.
package routing

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

// Priority grades how urgently a routed conversation should be handled.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Decision is the result of routing one opening message.
type Decision struct {
	Handler         record.Handler `json:"handler"`
	Confidence      float64        `json:"confidence"`
	Priority        Priority       `json:"priority"`
	MatchedKeywords []string       `json:"matched_keywords,omitempty"`
	Rationale       string         `json:"rationale"`
}

// classifierPrompt instructs the fallback model to answer in a line-oriented
// format the lenient parser understands.
const classifierPrompt = `당신은 소상공인 마케팅 챗봇의 요청 분류기입니다.
사용자의 첫 메시지를 읽고 아래 형식으로만 답하세요.

AGENT: marketing, content, analytics 중 하나
CONFIDENCE: 0과 1 사이의 숫자
PRIORITY: low, medium, high, urgent 중 하나
KEYWORDS: 판단 근거가 된 단어들 (쉼표로 구분)
REASONING: 한 문장 요약`

// Router selects a handler for the opening message of a session.
type Router struct {
	handlers map[record.Handler]*config.HandlerConfig
	core     *config.CoreConfig
	log      logging.Logger
}

// NewRouter builds a router over the given handler set.
func NewRouter(handlers map[record.Handler]*config.HandlerConfig, core *config.CoreConfig, log logging.Logger) *Router {
	if log == nil {
		log = logging.Nop()
	}
	return &Router{handlers: handlers, core: core, log: log}
}

// Route classifies the message. A caller-supplied hint short-circuits
// everything; otherwise the keyword heuristic runs first and the generative
// classifier only fires when the heuristic is unsure. Routing is pure with
// respect to conversation state: its only side effect is the optional model
// invocation.
func (r *Router) Route(ctx context.Context, gen llm.Generator, message string, hint record.Handler) *Decision {
	if hint != "" && hint.Valid() {
		d := &Decision{
			Handler:    hint,
			Confidence: 1.0,
			Priority:   PriorityMedium,
			Rationale:  "explicit",
		}
		observability.RecordRoutingDecision(string(d.Handler), "explicit", string(d.Priority))
		return d
	}

	if d := r.keywordHeuristic(message); d != nil {
		observability.RecordRoutingDecision(string(d.Handler), "keyword", string(d.Priority))
		return d
	}

	d := r.classify(ctx, gen, message)
	method := "classifier"
	if d.Confidence < r.core.RoutingThreshold {
		d.Handler = r.core.DefaultHandler
		d.Rationale = fmt.Sprintf("below routing threshold %.2f, defaulted: %s",
			r.core.RoutingThreshold, d.Rationale)
		method = "fallback"
	}
	observability.RecordRoutingDecision(string(d.Handler), method, string(d.Priority))
	return d
}

// keywordHeuristic scores each handler by keyword overlap and returns a
// decision when the best score clears the configured confidence bar.
// Handlers are scanned in a fixed order so ties resolve deterministically.
func (r *Router) keywordHeuristic(message string) *Decision {
	lower := strings.ToLower(message)

	order := make([]record.Handler, 0, len(r.handlers))
	for h := range r.handlers {
		order = append(order, h)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	var best *Decision
	for _, h := range order {
		cfg := r.handlers[h]
		var matched []string
		for _, kw := range cfg.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				matched = append(matched, kw)
			}
		}
		if len(matched) == 0 {
			continue
		}

		score := float64(len(matched)) / float64(len(cfg.Keywords))
		confidence := score*2 + float64(len(matched))*0.1
		if confidence > 0.9 {
			confidence = 0.9
		}
		if best == nil || confidence > best.Confidence {
			priority := PriorityMedium
			if len(matched) >= 3 {
				priority = PriorityHigh
			}
			best = &Decision{
				Handler:         h,
				Confidence:      confidence,
				Priority:        priority,
				MatchedKeywords: matched,
				Rationale:       fmt.Sprintf("keyword overlap: %s", strings.Join(matched, ", ")),
			}
		}
	}

	if best == nil || best.Confidence < r.core.KeywordConfidence {
		return nil
	}
	return best
}

// classify runs the generative fallback. Any failure, malformed output
// included, degrades to the default handler at confidence 0.5 rather than
// surfacing an error.
func (r *Router) classify(ctx context.Context, gen llm.Generator, message string) *Decision {
	raw, err := gen.Generate(ctx, classifierPrompt, message)
	if err != nil {
		r.log.Warn("classifier call failed, using default handler", "error", err)
		return &Decision{
			Handler:    r.core.DefaultHandler,
			Confidence: 0.5,
			Priority:   PriorityMedium,
			Rationale:  "classifier unavailable",
		}
	}
	return r.parseClassifier(raw)
}

// parseClassifier reads the line-oriented classifier output leniently:
// missing or malformed fields fall back to defaults instead of failing.
func (r *Router) parseClassifier(raw string) *Decision {
	d := &Decision{
		Handler:    r.core.DefaultHandler,
		Confidence: 0.5,
		Priority:   PriorityMedium,
		Rationale:  "classifier",
	}

	for _, line := range strings.Split(raw, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "AGENT":
			h := record.Handler(strings.ToLower(value))
			if _, known := r.handlers[h]; known {
				d.Handler = h
			}
		case "CONFIDENCE":
			var c float64
			if _, err := fmt.Sscanf(value, "%f", &c); err == nil {
				if c < 0 {
					c = 0
				}
				if c > 1 {
					c = 1
				}
				d.Confidence = c
			}
		case "PRIORITY":
			if p := Priority(strings.ToLower(value)); p.Valid() {
				d.Priority = p
			}
		case "KEYWORDS":
			for _, kw := range strings.Split(value, ",") {
				if kw = strings.TrimSpace(kw); kw != "" {
					d.MatchedKeywords = append(d.MatchedKeywords, kw)
				}
			}
		case "REASONING":
			if value != "" {
				d.Rationale = value
			}
		}
	}

	return d
}
