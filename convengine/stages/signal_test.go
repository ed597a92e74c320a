package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSignal(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		signal    Signal
		cleanText string
	}{
		{
			name:      "no token",
			response:  "어떤 가게를 운영하고 계신가요?",
			signal:    SignalNone,
			cleanText: "어떤 가게를 운영하고 계신가요?",
		},
		{
			name:      "advance token stripped",
			response:  "좋아요, 목표를 정해볼까요? [[ADVANCE]]",
			signal:    SignalAdvance,
			cleanText: "좋아요, 목표를 정해볼까요?",
		},
		{
			name:      "token mid-sentence",
			response:  "알겠습니다 [[NEED_MORE_INFO]] 조금 더 알려주세요",
			signal:    SignalNeedMoreInfo,
			cleanText: "알겠습니다  조금 더 알려주세요",
		},
		{
			name:      "request content",
			response:  "[[REQUEST_CONTENT]] 바로 콘텐츠를 만들어 볼게요",
			signal:    SignalRequestContent,
			cleanText: "바로 콘텐츠를 만들어 볼게요",
		},
		{
			name:      "complete",
			response:  "캠페인 준비가 끝났어요! [[COMPLETE]]",
			signal:    SignalComplete,
			cleanText: "캠페인 준비가 끝났어요!",
		},
		{
			name:      "complete beats advance",
			response:  "[[ADVANCE]] 다 됐습니다 [[COMPLETE]]",
			signal:    SignalComplete,
			cleanText: "다 됐습니다",
		},
		{
			name:      "advance beats need more info",
			response:  "[[NEED_MORE_INFO]][[ADVANCE]]",
			signal:    SignalAdvance,
			cleanText: "",
		},
		{
			name:      "malformed token ignored",
			response:  "[ADVANCE] 진행할게요",
			signal:    SignalNone,
			cleanText: "[ADVANCE] 진행할게요",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal, clean := ExtractSignal(tt.response)
			assert.Equal(t, tt.signal, signal)
			assert.Equal(t, tt.cleanText, clean)
		})
	}
}
