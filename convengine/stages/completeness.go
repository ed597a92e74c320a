package stages

import "github.com/bloomline-ai/promoflow/convengine/record"

// StageRequirements maps each gathering stage to the collected fields it is
// responsible for filling. Read-only; shared across all sessions.
var StageRequirements = map[record.Stage][]string{
	record.StageInitial:          {"business_type"},
	record.StageGoalSetting:      {"campaign_goal"},
	record.StageTargetAnalysis:   {"target_audience"},
	record.StageStrategyPlanning: {"channel", "budget"},
	record.StageContentCreation:  {"content_type"},
}

// Completeness scores how much of a stage's information need the record
// already satisfies. It is a pure function of the record: same input, same
// score. Stages without a rule score 0.5.
func Completeness(rec *record.ConversationRecord, stage record.Stage) float64 {
	switch stage {
	case record.StageInitial:
		hasBiz := rec.HasField("business_type")
		switch {
		case hasBiz && (rec.HasField("campaign_goal") || rec.MessageCount() >= 4):
			return 0.9
		case hasBiz:
			return 0.8
		case rec.MessageCount() >= 2:
			return 0.4
		default:
			return 0.3
		}

	case record.StageGoalSetting:
		switch {
		case rec.HasField("campaign_goal") && rec.HasField("business_type"):
			return 0.9
		case rec.HasField("campaign_goal"):
			return 0.8
		case rec.HasField("business_type"):
			return 0.4
		default:
			return 0.3
		}

	case record.StageTargetAnalysis:
		switch {
		case rec.HasField("target_audience") && rec.HasField("campaign_goal"):
			return 0.9
		case rec.HasField("target_audience"):
			return 0.8
		case rec.HasField("campaign_goal"):
			return 0.4
		default:
			return 0.3
		}

	case record.StageStrategyPlanning:
		switch {
		case rec.HasField("channel") && rec.HasField("budget"):
			return 0.9
		case rec.HasField("channel") || rec.HasField("budget"):
			return 0.5
		default:
			return 0.3
		}

	case record.StageContentCreation:
		switch {
		case rec.HasField("content_type") && rec.HasField("channel"):
			return 0.9
		case rec.HasField("content_type"):
			return 0.8
		case rec.HasField("channel"):
			return 0.4
		default:
			return 0.3
		}

	case record.StageContentFeedback:
		// Revision intent is not measurable from collected fields; the
		// feedback loop is bounded by feedbackCount, not completeness.
		return 0.5

	case record.StageExecution:
		if rec.HasField("channel") {
			return 0.9
		}
		return 0.8

	default:
		return 0.5
	}
}

// MissingFields lists the stage's required fields the record has not yet
// collected. Result order follows StageRequirements.
func MissingFields(rec *record.ConversationRecord, stage record.Stage) []string {
	var missing []string
	for _, f := range StageRequirements[stage] {
		if !rec.HasField(f) {
			missing = append(missing, f)
		}
	}
	return missing
}
