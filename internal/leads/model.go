package leads

import (
	"strings"
	"time"
)

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleBot is the legacy spelling some rows still carry.
	RoleBot Role = "bot"
)

// IsAssistant reports whether the role was authored by the bot.
func (r Role) IsAssistant() bool {
	switch Role(strings.ToLower(string(r))) {
	case RoleAssistant, RoleBot:
		return true
	default:
		return false
	}
}

// ChatMessage is one immutable turn entry in a session transcript.
type ChatMessage struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	BotID       string `json:"bot_id"`
	Role        Role   `json:"role"`
	Content     string `json:"content"`
	IntentScore int    `json:"intent_score"`

	// Meeting is set on user messages the classifier judged a confirmed
	// meeting.
	Meeting   *MeetingNote `json:"meeting,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// MeetingNote is the day and time a user confirmed, as they phrased them.
type MeetingNote struct {
	Date string `json:"date,omitempty"`
	Time string `json:"time,omitempty"`
}

// FactType classifies an extracted fact.
type FactType string

const (
	FactEmail          FactType = "email"
	FactPhone          FactType = "phone"
	FactWhatsApp       FactType = "whatsapp"
	FactMeeting        FactType = "meeting"
	FactProjectSummary FactType = "project_summary"
)

// IsContact reports whether the fact is a contact channel.
func (t FactType) IsContact() bool {
	switch t {
	case FactEmail, FactPhone, FactWhatsApp:
		return true
	default:
		return false
	}
}

// Fact is structured information recorded against a session.
// (SessionID, Type, Value) is the natural key.
type Fact struct {
	SessionID string            `json:"session_id"`
	BotID     string            `json:"bot_id"`
	Type      FactType          `json:"type"`
	Value     string            `json:"value"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at,omitempty"`
}

// Key returns the natural key used for idempotent upserts.
func (f Fact) Key() string {
	return f.SessionID + "|" + string(f.Type) + "|" + f.Value
}

// SessionPresence is the heartbeat row for one session of a conversation.
type SessionPresence struct {
	SessionID string    `json:"session_id"`
	ChatID    string    `json:"chat_id"`
	BotID     string    `json:"bot_id"`
	IsOnline  bool      `json:"is_online"`
	LastSeen  time.Time `json:"last_seen"`
}

// BotProfile is the externally managed bot configuration.
type BotProfile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
}

// HasContact reports whether any fact is a contact channel.
func HasContact(facts []Fact) bool {
	for _, f := range facts {
		if f.Type.IsContact() {
			return true
		}
	}
	return false
}

// FirstOfType returns the first fact of the given type.
func FirstOfType(facts []Fact, t FactType) (Fact, bool) {
	for _, f := range facts {
		if f.Type == t {
			return f, true
		}
	}
	return Fact{}, false
}
