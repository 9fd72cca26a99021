package chat

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

// Responder produces a local answer when the chat endpoint is unavailable.
type Responder interface {
	Respond(question string) string
}

// Pacing controls how a local answer is streamed. Plain characters are
// delivered one by one with a random delay in [MinDelay, MaxDelay];
// sentence punctuation waits PunctuationDelay.
type Pacing struct {
	MinDelay         time.Duration
	MaxDelay         time.Duration
	PunctuationDelay time.Duration
	CompleteDelay    time.Duration
}

// DefaultPacing mimics a typing assistant.
func DefaultPacing() Pacing {
	return Pacing{
		MinDelay:         20 * time.Millisecond,
		MaxDelay:         50 * time.Millisecond,
		PunctuationDelay: 200 * time.Millisecond,
		CompleteDelay:    300 * time.Millisecond,
	}
}

func (p Pacing) charDelay() time.Duration {
	if p.MaxDelay <= p.MinDelay {
		return p.MinDelay
	}
	return p.MinDelay + time.Duration(rand.Int63n(int64(p.MaxDelay-p.MinDelay)))
}

// streamText delivers text through onChunk with the configured pacing. It
// stops early when ctx is done and returns ctx.Err().
func (p Pacing) streamText(ctx context.Context, text string, onChunk func(string)) error {
	for _, r := range text {
		delay := p.charDelay()
		if isSentencePunctuation(r) {
			delay = p.PunctuationDelay
		}
		if err := sleepContext(ctx, delay); err != nil {
			return err
		}
		onChunk(string(r))
	}
	return sleepContext(ctx, p.CompleteDelay)
}

func isSentencePunctuation(r rune) bool {
	switch r {
	case '.', '!', '?', '。':
		return true
	default:
		return false
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type topic struct {
	keywords []string
	answer   func(question string) string
}

// KeywordResponder answers from a fixed set of health topics chosen by
// keywords in the question. The first matching topic wins.
type KeywordResponder struct {
	topics   []topic
	fallback func(question string) string
}

func NewKeywordResponder() *KeywordResponder {
	return &KeywordResponder{
		topics: []topic{
			{keywords: []string{"아프", "통증", "아픈", "증상", "불편", "이상"}, answer: symptomAnswer},
			{keywords: []string{"건강", "관리", "예방", "운동", "식단"}, answer: constant(careAnswer)},
			{keywords: []string{"약", "복용", "처방", "부작용", "의약품"}, answer: constant(medicationAnswer)},
			{keywords: []string{"응급", "위험", "심각", "갑자기", "응급실"}, answer: constant(emergencyAnswer)},
			{keywords: []string{"스트레스", "우울", "불안", "수면", "잠", "피로"}, answer: constant(mentalAnswer)},
		},
		fallback: defaultAnswer,
	}
}

func (r *KeywordResponder) Respond(question string) string {
	lower := strings.ToLower(question)
	for _, t := range r.topics {
		for _, keyword := range t.keywords {
			if strings.Contains(lower, keyword) {
				return t.answer(question)
			}
		}
	}
	return r.fallback(question)
}

func constant(text string) func(string) string {
	return func(string) string { return text }
}

func symptomAnswer(question string) string {
	return question + `에 대해 말씀해 주셔서 감사합니다.

증상의 정도와 지속 기간을 파악하는 것이 중요합니다:
• 언제부터 이런 증상이 시작되었나요?
• 증상의 강도는 10점 만점에 몇 점 정도인지요?
• 특정 동작이나 시간대에 더 심해지나요?
• 다른 동반 증상은 없으신가요?

이런 정보를 바탕으로 더 구체적인 조언을 드릴 수 있습니다. 다만 심각한 증상이거나 지속적으로 악화된다면 반드시 병원 진료를 받으시기 바랍니다.`
}

func defaultAnswer(question string) string {
	return question + `에 대해 질문해 주셔서 감사합니다.

건강과 관련된 모든 문제는 개인차가 크기 때문에, 정확한 진단과 치료를 위해서는 반드시 의료 전문가와 상담하시는 것이 중요합니다.

제가 제공하는 정보는 일반적인 건강 지식과 참고 사항이며, 의학적 진단이나 치료를 대체할 수 없습니다.

더 구체적인 질문이 있으시면 언제든 말씀해 주세요. 도움이 되도록 최선을 다하겠습니다.`
}

const careAnswer = `건강 관리에 대한 관심을 가지고 계시는군요! 정말 좋은 자세입니다.

기본적인 건강 관리 원칙:
• **균형 잡힌 식단**: 다양한 영양소를 골고루 섭취
• **규칙적인 운동**: 주 3-4회, 30분 이상의 유산소 운동
• **충분한 수면**: 하루 7-8시간의 양질의 수면
• **스트레스 관리**: 명상, 취미 활동 등으로 스트레스 해소
• **정기 건강검진**: 연 1-2회 정기적인 건강상태 확인

특별히 관심 있는 부분이 있으시면 더 자세히 설명드리겠습니다.`

const medicationAnswer = `약물 관련 질문을 주셨군요. 안전한 복용을 위한 기본 원칙을 말씀드리겠습니다.

약물 복용 시 주의사항:
• **정확한 복용법**: 처방받은 용법·용량을 정확히 지키기
• **복용 시간**: 식전/식후 등 지정된 시간에 복용
• **상호작용 확인**: 다른 약물과의 병용 시 주의
• **부작용 모니터링**: 이상 반응 발생 시 즉시 의료진 상담
• **보관 방법**: 적절한 온도와 습도에서 보관

구체적인 약물에 대한 정보는 반드시 의사나 약사와 상담하시기 바랍니다.`

const emergencyAnswer = `응급상황에 대해 문의하셨습니다. 즉시 대응이 필요할 수 있습니다.

**즉시 응급실 방문이 필요한 경우:**
• 의식 잃음, 호흡 곤란, 심한 흉통
• 심한 복통, 지속적인 구토
• 심한 외상, 골절 의심
• 알레르기 반응 (두드러기, 부종)

**응급 연락처:**
• 119 (응급의료서비스)
• 1339 (응급의료정보센터)

현재 응급상황이라면 즉시 119에 신고하거나 가까운 응급실로 가시기 바랍니다.`

const mentalAnswer = `정신건강과 관련된 질문을 해주셨네요. 마음의 건강도 몸의 건강만큼 중요합니다.

**스트레스 관리 방법:**
• **규칙적인 생활**: 일정한 수면과 식사 패턴 유지
• **운동**: 가벼운 산책이나 요가로 몸과 마음 이완
• **취미 활동**: 좋아하는 활동으로 기분 전환
• **사회적 관계**: 가족, 친구들과의 소통
• **전문가 도움**: 필요시 상담사나 정신과 전문의 상담

만약 일상생활에 심각한 지장을 주는 정도라면 전문가의 도움을 받으시는 것을 권장드립니다.`
