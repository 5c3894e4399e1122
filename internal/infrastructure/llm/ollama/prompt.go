package ollama

import (
	"strings"

	"github.com/tmc/langchaingo/prompts"
)

const answerTemplate = `다음의 컨텍스트를 기반으로 질문에 답변해주세요:

컨텍스트: {{.context}}

질문: {{.question}}

답변 작성 규칙:
1. 핵심 내용을 먼저 2-3줄로 요약
2. 상세 내용을 불릿 포인트로 구분
3. 중요 내용은 **강조** 처리
4. 참고 섹션 작성 규칙:
   - 담당부서가 있으면 "- 담당부서: [부서명](☎ xxx-xxxx)" 형식으로 첫 줄에 표시
   - URL이 있으면 "* 항목명: URL" 형식으로 표시
5. 불릿 포인트는 붙여서 시작

답변 형식:
📌 핵심 요약:
(간단한 요약 제공)

📋 상세 내용:
•**중요 내용 1**
•**중요 내용 2**
•상세 내용 3
(각 항목을 새로운 줄에 시작)

📚 참고:
(담당부서 정보가 있는 경우 표시)
(URL 정보가 있는 경우 표시)`

type answerPrompt struct {
	template prompts.PromptTemplate
}

func newAnswerPrompt() *answerPrompt {
	return &answerPrompt{
		template: prompts.NewPromptTemplate(answerTemplate, []string{"context", "question"}),
	}
}

func (p *answerPrompt) Render(question, contextText string) (string, error) {
	return p.template.Format(map[string]any{
		"context":  contextText,
		"question": strings.TrimSpace(question),
	})
}
