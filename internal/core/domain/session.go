package domain

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	GreetingMessage = "찾으시는 정보를 뮤톡🐬에게 남겨주세요!"
	FallbackMessage = "죄송합니다. 응답을 생성하는 중 문제가 발생했습니다."
)

type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the state owned by exactly one conversation.
type Session struct {
	ID                 string        `json:"id"`
	ChatHistory        []ChatMessage `json:"chat_history"`
	LastDepartmentInfo string        `json:"last_department_info,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

func NewSession(id string, now time.Time) *Session {
	s := &Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Append(RoleAssistant, GreetingMessage, now)
	return s
}

func (s *Session) Append(role, content string, now time.Time) {
	s.ChatHistory = append(s.ChatHistory, ChatMessage{
		Role:      role,
		Content:   content,
		CreatedAt: now,
	})
	s.UpdatedAt = now
}

// Reset clears history and the carried department contact, then re-seeds the greeting.
func (s *Session) Reset(now time.Time) {
	s.ChatHistory = nil
	s.LastDepartmentInfo = ""
	s.Append(RoleAssistant, GreetingMessage, now)
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.ChatHistory = append([]ChatMessage(nil), s.ChatHistory...)
	return &out
}
