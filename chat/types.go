package chat

import (
	"time"
)

// Role identifies which side of the conversation authored a message.
type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// Status tracks a message through the optimistic-send lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Message is one unit of conversation content. ID is assigned by the server
// and is empty while a message is still pending. LocalKey is generated on
// this client at creation time and never changes; it is how a pending
// message is matched to its eventual confirmation or failure.
type Message struct {
	ID             string    `json:"id,omitempty"`
	LocalKey       string    `json:"-"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Role           Role      `json:"role"`
	OriginalText   string    `json:"original_text"`
	TranslatedText string    `json:"translated_text,omitempty"`
	SourceLanguage string    `json:"source_language,omitempty"`
	TargetLanguage string    `json:"target_language,omitempty"`
	AudioPath      string    `json:"audio_path,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Status         Status    `json:"status"`
}

// Draft is what the user composed but has not sent yet.
type Draft struct {
	Role           Role
	Text           string
	SourceLanguage string
	TargetLanguage string
	AudioPath      string
}

// Conversation metadata as reported by the server.
type Conversation struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
}

// Summary is the server-generated conversation summary.
type Summary struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

// Language is one entry of the server's supported language list.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}
