package stages

import "strings"

// fieldRule maps a set of trigger substrings to a canonical value for one
// collected field. Rules are checked in declaration order and the first match
// per field wins, which keeps extraction deterministic.
type fieldRule struct {
	field    string
	triggers []string
	value    string
}

// fieldRules is the best-effort keyword extraction table. It is intentionally
// coarse: the goal is to seed collectedFields from obvious mentions, not to
// parse free text. Swappable behind FieldExtractor for anything smarter.
var fieldRules = []fieldRule{
	// business_type
	{"business_type", []string{"카페", "커피", "음료", "디저트"}, "카페/음료"},
	{"business_type", []string{"식당", "음식점", "맛집", "레스토랑"}, "외식업"},
	{"business_type", []string{"쇼핑몰", "스마트스토어", "온라인 스토어"}, "이커머스"},
	{"business_type", []string{"미용실", "네일", "뷰티", "피부"}, "뷰티"},
	{"business_type", []string{"학원", "교육", "과외"}, "교육"},

	// campaign_goal
	{"campaign_goal", []string{"신메뉴", "신제품", "새로 나온", "출시"}, "신규 상품 홍보"},
	{"campaign_goal", []string{"매출", "판매", "더 팔"}, "매출 증대"},
	{"campaign_goal", []string{"단골", "재방문", "고객 유지"}, "고객 유지"},
	{"campaign_goal", []string{"이벤트", "할인", "프로모션"}, "프로모션"},
	{"campaign_goal", []string{"홍보", "알리고"}, "브랜드 인지도"},

	// target_audience
	{"target_audience", []string{"20대", "이십대"}, "20대"},
	{"target_audience", []string{"30대", "삼십대"}, "30대"},
	{"target_audience", []string{"직장인"}, "직장인"},
	{"target_audience", []string{"대학생", "학생"}, "학생"},
	{"target_audience", []string{"가족", "주부"}, "가족 고객"},
	{"target_audience", []string{"동네", "지역 주민", "근처"}, "지역 주민"},

	// channel
	{"channel", []string{"인스타", "릴스"}, "인스타그램"},
	{"channel", []string{"블로그"}, "네이버 블로그"},
	{"channel", []string{"유튜브"}, "유튜브"},
	{"channel", []string{"카카오", "카톡"}, "카카오톡"},
	{"channel", []string{"페이스북"}, "페이스북"},
	{"channel", []string{"전단", "현수막"}, "오프라인"},

	// budget
	{"budget", []string{"무료로", "돈 안", "비용 없이"}, "무료"},
	{"budget", []string{"만원", "만 원", "소액"}, "소액"},

	// content_type
	{"content_type", []string{"이미지", "사진", "포스터", "카드뉴스"}, "이미지"},
	{"content_type", []string{"영상", "동영상", "쇼츠"}, "영상"},
	{"content_type", []string{"카피", "문구", "글귀"}, "텍스트"},
}

// FieldExtractor turns raw conversation text into collected field values.
type FieldExtractor interface {
	Extract(text string) map[string]string
}

// KeywordExtractor is the default FieldExtractor: fixed substring tables.
type KeywordExtractor struct{}

// Extract scans text against the keyword tables and returns the matched
// fields. Only the first matching rule per field contributes.
func (KeywordExtractor) Extract(text string) map[string]string {
	out := make(map[string]string)
	for _, r := range fieldRules {
		if _, done := out[r.field]; done {
			continue
		}
		for _, trig := range r.triggers {
			if strings.Contains(text, trig) {
				out[r.field] = r.value
				break
			}
		}
	}
	return out
}
