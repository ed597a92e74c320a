// Package stages implements the per-stage turn processing loop: control
// signal extraction, completeness scoring, field harvesting, and the stage
// node that ties them to a language model call.
package stages

import "strings"

// Signal is a flow-control marker a stage prompt instructs the model to embed
// in its response.
type Signal string

const (
	// SignalNone means the response carried no control token.
	SignalNone Signal = ""
	// SignalNeedMoreInfo asks to stay in the current stage and keep probing.
	SignalNeedMoreInfo Signal = "NEED_MORE_INFO"
	// SignalAdvance asks to move to the next stage.
	SignalAdvance Signal = "ADVANCE"
	// SignalRequestContent asks to jump into content creation.
	SignalRequestContent Signal = "REQUEST_CONTENT"
	// SignalComplete declares the whole conversation finished.
	SignalComplete Signal = "COMPLETE"
)

// Token literals as they appear inside model output.
const (
	tokenNeedMoreInfo   = "[[NEED_MORE_INFO]]"
	tokenAdvance        = "[[ADVANCE]]"
	tokenRequestContent = "[[REQUEST_CONTENT]]"
	tokenComplete       = "[[COMPLETE]]"
)

// signalPrecedence orders conflicting tokens strongest first. A response that
// somehow carries several tokens resolves to the most decisive one.
var signalPrecedence = []struct {
	token  string
	signal Signal
}{
	{tokenComplete, SignalComplete},
	{tokenAdvance, SignalAdvance},
	{tokenRequestContent, SignalRequestContent},
	{tokenNeedMoreInfo, SignalNeedMoreInfo},
}

// ExtractSignal pulls the control signal out of a model response and returns
// the display text with every token removed. Extraction is independent of the
// surrounding text; a token anywhere in the response counts.
func ExtractSignal(response string) (Signal, string) {
	signal := SignalNone
	for _, p := range signalPrecedence {
		if strings.Contains(response, p.token) {
			signal = p.signal
			break
		}
	}

	clean := response
	for _, p := range signalPrecedence {
		clean = strings.ReplaceAll(clean, p.token, "")
	}
	return signal, strings.TrimSpace(clean)
}
