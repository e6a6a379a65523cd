package chat

import "time"

// Session captures a transient anonymous conversation.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// Settings mirrors the sidebar of the chat page: the credential and the model the
// user picked. The key is never written to JSON.
type Settings struct {
	APIKey  string `json:"-"`
	ModelID string `json:"model"`
}

// HasAPIKey reports whether a credential has been supplied.
func (s Settings) HasAPIKey() bool {
	return s.APIKey != ""
}

// Notice levels shown on the chat page.
const (
	NoticeError   = "error"
	NoticeWarning = "warning"
	NoticeSuccess = "success"
)

// Notice is a one-shot message displayed on the next page render.
type Notice struct {
	Level string
	Text  string
}
