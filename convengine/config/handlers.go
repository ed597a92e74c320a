package config

import (
	"fmt"

	"github.com/bloomline-ai/promoflow/convengine/record"
)

// Control-token vocabulary shared by every stage prompt. The signal
// extractor strips these from the user-visible text.
const tokenInstructions = `응답 마지막에 반드시 아래 제어 토큰 중 하나를 붙이세요:
[[ADVANCE]] 이 단계에서 필요한 정보가 충분히 모였을 때
[[NEED_MORE_INFO]] 추가 질문이 필요할 때
[[REQUEST_CONTENT]] 콘텐츠 재작성이 필요할 때
[[COMPLETE]] 모든 작업이 끝났을 때`

// DefaultHandlers returns the built-in handler configurations: the full
// marketing funnel, the content-only short path, and the analytics path.
func DefaultHandlers() map[record.Handler]*HandlerConfig {
	return map[record.Handler]*HandlerConfig{
		record.HandlerMarketing: marketingHandler(),
		record.HandlerContent:   contentHandler(),
		record.HandlerAnalytics: analyticsHandler(),
	}
}

// ValidateHandlers validates every handler config in the set.
func ValidateHandlers(handlers map[record.Handler]*HandlerConfig) error {
	if len(handlers) == 0 {
		return fmt.Errorf("no handlers configured")
	}
	for kind, h := range handlers {
		if h.Handler != kind {
			return fmt.Errorf("handler map key %q does not match config handler %q", kind, h.Handler)
		}
		if err := h.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func marketingHandler() *HandlerConfig {
	return &HandlerConfig{
		Handler: record.HandlerMarketing,
		Keywords: []string{
			"마케팅", "홍보", "광고", "캠페인", "브랜딩", "프로모션", "신메뉴",
			"매출", "고객 유치", "marketing", "promotion", "campaign", "branding",
		},
		EntryStage: record.StageInitial,
		Stages: map[record.Stage]*StageConfig{
			record.StageInitial: {
				Stage: record.StageInitial,
				SystemPrompt: "당신은 소상공인을 위한 마케팅 어시스턴트입니다. " +
					"사용자의 업종과 홍보하려는 제품을 파악하세요. 한 번에 한 가지만 질문하세요.\n" + tokenInstructions,
				NextStage:         record.StageGoalSetting,
				HardCap:           5,
				TransitionMessage: "좋아요, 기본 정보는 충분히 파악했어요. 이제 마케팅 목표를 정해볼까요?",
				Suggestions: []string{
					"카페를 운영하고 있어요",
					"온라인 쇼핑몰을 하고 있어요",
					"신메뉴를 홍보하고 싶어요",
				},
			},
			record.StageGoalSetting: {
				Stage: record.StageGoalSetting,
				SystemPrompt: "사용자의 마케팅 목표(신규 고객 유치, 매출 증대, 브랜드 인지도 등)를 " +
					"구체화하세요. 측정 가능한 목표를 제안하세요.\n" + tokenInstructions,
				NextStage:         record.StageTargetAnalysis,
				HardCap:           5,
				TransitionMessage: "목표가 정리됐어요. 다음으로 타겟 고객을 분석해볼게요.",
				Suggestions: []string{
					"신규 고객을 늘리고 싶어요",
					"매출을 올리고 싶어요",
				},
			},
			record.StageTargetAnalysis: {
				Stage: record.StageTargetAnalysis,
				SystemPrompt: "목표에 맞는 타겟 고객층(연령대, 지역, 관심사)을 분석하고 " +
					"페르소나를 제안하세요.\n" + tokenInstructions,
				NextStage:         record.StageStrategyPlanning,
				HardCap:           6,
				TransitionMessage: "타겟 분석이 끝났어요. 이제 실행 전략을 세워볼게요.",
				Suggestions: []string{
					"20-30대 직장인이 주요 고객이에요",
					"동네 주민들이 많이 와요",
				},
			},
			record.StageStrategyPlanning: {
				Stage: record.StageStrategyPlanning,
				SystemPrompt: "타겟과 목표에 맞는 채널 전략(인스타그램, 블로그, 이메일 등)과 " +
					"예산 배분을 제안하세요.\n" + tokenInstructions,
				NextStage:         record.StageContentCreation,
				HardCap:           6,
				TransitionMessage: "전략이 준비됐어요. 바로 콘텐츠를 만들어볼게요.",
				Suggestions: []string{
					"인스타그램 위주로 하고 싶어요",
					"예산은 월 10만원 정도예요",
				},
			},
			record.StageContentCreation: {
				Stage: record.StageContentCreation,
				SystemPrompt: "지금까지 수집한 정보를 바탕으로 홍보 콘텐츠 초안을 작성하세요. " +
					"참고 자료가 주어지면 톤과 구성을 참고하세요.\n" + tokenInstructions,
				NextStage:         record.StageContentFeedback,
				HardCap:           6,
				TransitionMessage: "초안이 준비됐어요. 마음에 드는지 확인해주세요.",
				UseRetrieval:      true,
				Suggestions: []string{
					"인스타그램 포스팅으로 만들어주세요",
					"이벤트 안내문을 만들어주세요",
				},
			},
			record.StageContentFeedback: {
				Stage: record.StageContentFeedback,
				SystemPrompt: "사용자 피드백을 반영해 콘텐츠를 다듬으세요. 수정 요청이면 " +
					"[[REQUEST_CONTENT]], 승인이면 [[ADVANCE]]를 붙이세요.\n" + tokenInstructions,
				NextStage:         record.StageExecution,
				HardCap:           5,
				TransitionMessage: "피드백 반영은 여기까지 하고, 실행 단계로 넘어갈게요.",
				Suggestions: []string{
					"좋아요, 이대로 진행해주세요",
					"조금 더 캐주얼하게 수정해주세요",
				},
			},
			record.StageExecution: {
				Stage: record.StageExecution,
				SystemPrompt: "완성된 콘텐츠의 게시 일정과 채널별 실행 가이드를 안내하세요. " +
					"발송/게시가 준비되면 [[COMPLETE]]를 붙이세요.\n" + tokenInstructions,
				NextStage:         record.StageCompleted,
				HardCap:           7,
				TransitionMessage: "실행 준비가 끝났어요. 캠페인을 마무리할게요.",
				Deliver:           true,
				Suggestions: []string{
					"이메일로 보내주세요",
					"바로 게시해주세요",
				},
			},
		},
		Graph: map[record.Stage][]record.Stage{
			record.StageInitial:          {record.StageGoalSetting, record.StageError},
			record.StageGoalSetting:      {record.StageTargetAnalysis, record.StageError},
			record.StageTargetAnalysis:   {record.StageStrategyPlanning, record.StageError},
			record.StageStrategyPlanning: {record.StageContentCreation, record.StageError},
			record.StageContentCreation:  {record.StageContentFeedback, record.StageError},
			record.StageContentFeedback:  {record.StageContentCreation, record.StageExecution, record.StageError},
			record.StageExecution:        {record.StageCompleted, record.StageError},
			record.StageError:            {record.StageInitial, record.StageCompleted},
		},
	}
}

func contentHandler() *HandlerConfig {
	return &HandlerConfig{
		Handler: record.HandlerContent,
		Keywords: []string{
			"콘텐츠", "카피", "문구", "포스팅", "글", "캡션", "작성", "만들어",
			"content", "copy", "caption", "post", "write",
		},
		EntryStage: record.StageInitial,
		Stages: map[record.Stage]*StageConfig{
			record.StageInitial: {
				Stage: record.StageInitial,
				SystemPrompt: "당신은 콘텐츠 제작 어시스턴트입니다. 어떤 콘텐츠가 필요한지, " +
					"어떤 업종인지 빠르게 파악하세요.\n" + tokenInstructions,
				NextStage:         record.StageContentCreation,
				HardCap:           5,
				TransitionMessage: "필요한 내용은 파악했어요. 바로 초안을 써볼게요.",
				Suggestions: []string{
					"인스타그램 캡션이 필요해요",
					"이벤트 안내문을 써주세요",
				},
			},
			record.StageContentCreation: {
				Stage: record.StageContentCreation,
				SystemPrompt: "요청받은 콘텐츠 초안을 작성하세요. 참고 자료가 주어지면 " +
					"톤과 구성을 참고하세요.\n" + tokenInstructions,
				NextStage:         record.StageContentFeedback,
				HardCap:           6,
				TransitionMessage: "초안이 준비됐어요. 확인해주세요.",
				UseRetrieval:      true,
			},
			record.StageContentFeedback: {
				Stage: record.StageContentFeedback,
				SystemPrompt: "피드백을 반영해 콘텐츠를 다듬으세요. 수정 요청이면 " +
					"[[REQUEST_CONTENT]], 승인이면 [[ADVANCE]]를 붙이세요.\n" + tokenInstructions,
				NextStage:         record.StageExecution,
				HardCap:           5,
				TransitionMessage: "수정은 여기까지 반영하고 마무리 단계로 넘어갈게요.",
			},
			record.StageExecution: {
				Stage: record.StageExecution,
				SystemPrompt: "완성된 콘텐츠의 활용 방법을 안내하고 전달하세요. " +
					"끝나면 [[COMPLETE]]를 붙이세요.\n" + tokenInstructions,
				NextStage:         record.StageCompleted,
				HardCap:           6,
				TransitionMessage: "콘텐츠 전달까지 마쳤어요.",
				Deliver:           true,
			},
		},
		Graph: map[record.Stage][]record.Stage{
			record.StageInitial:         {record.StageContentCreation, record.StageError},
			record.StageContentCreation: {record.StageContentFeedback, record.StageError},
			record.StageContentFeedback: {record.StageContentCreation, record.StageExecution, record.StageError},
			record.StageExecution:       {record.StageCompleted, record.StageError},
			record.StageError:           {record.StageInitial, record.StageCompleted},
		},
	}
}

func analyticsHandler() *HandlerConfig {
	return &HandlerConfig{
		Handler: record.HandlerAnalytics,
		Keywords: []string{
			"분석", "트렌드", "경쟁", "시장", "타겟", "인사이트", "데이터",
			"analysis", "trend", "insight", "competitor", "market",
		},
		EntryStage: record.StageInitial,
		Stages: map[record.Stage]*StageConfig{
			record.StageInitial: {
				Stage: record.StageInitial,
				SystemPrompt: "당신은 시장 분석 어시스턴트입니다. 어떤 업종의 어떤 분석이 " +
					"필요한지 파악하세요.\n" + tokenInstructions,
				NextStage:         record.StageTargetAnalysis,
				HardCap:           5,
				TransitionMessage: "분석 대상을 파악했어요. 타겟 분석부터 시작할게요.",
			},
			record.StageTargetAnalysis: {
				Stage: record.StageTargetAnalysis,
				SystemPrompt: "업종과 시장에 대한 타겟 고객 분석을 제공하세요.\n" + tokenInstructions,
				NextStage:         record.StageStrategyPlanning,
				HardCap:           6,
				TransitionMessage: "타겟 분석이 끝났어요. 전략 제안으로 넘어갈게요.",
			},
			record.StageStrategyPlanning: {
				Stage: record.StageStrategyPlanning,
				SystemPrompt: "분석 결과를 바탕으로 실행 가능한 전략을 제안하세요.\n" + tokenInstructions,
				NextStage:         record.StageExecution,
				HardCap:           6,
				TransitionMessage: "전략 제안까지 정리했어요. 요약 리포트를 만들게요.",
			},
			record.StageExecution: {
				Stage: record.StageExecution,
				SystemPrompt: "분석 요약 리포트를 정리해 전달하세요. 끝나면 [[COMPLETE]]를 " +
					"붙이세요.\n" + tokenInstructions,
				NextStage:         record.StageCompleted,
				HardCap:           7,
				TransitionMessage: "리포트 전달까지 마쳤어요.",
				Deliver:           true,
			},
		},
		Graph: map[record.Stage][]record.Stage{
			record.StageInitial:          {record.StageTargetAnalysis, record.StageError},
			record.StageTargetAnalysis:   {record.StageStrategyPlanning, record.StageError},
			record.StageStrategyPlanning: {record.StageExecution, record.StageError},
			record.StageExecution:        {record.StageCompleted, record.StageError},
			record.StageError:            {record.StageInitial, record.StageCompleted},
		},
	}
}
