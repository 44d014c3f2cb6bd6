package models

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultConversationTitle is used when a conversation is created without one.
const DefaultConversationTitle = "New Conversation"

// Conversation is a chat transcript, optionally linked to a character.
type Conversation struct {
	ID           string         `json:"id"`
	CharacterID  *string        `json:"characterId"`
	Title        string         `json:"title"`
	PersonaName  *string        `json:"personaName"`
	MessageCount int            `json:"messageCount"`
	SourceURL    *string        `json:"sourceUrl"`
	Metadata     map[string]any `json:"metadata"`
	Created      time.Time      `json:"created"`
	Modified     time.Time      `json:"modified"`
}

// Message is one entry of a conversation. OrderIndex is dense and 0-based
// within its conversation.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	Timestamp      time.Time      `json:"timestamp"`
	OrderIndex     int            `json:"orderIndex"`
	Metadata       map[string]any `json:"metadata"`
}

// ConversationWithMessages is a conversation together with its ordered messages.
type ConversationWithMessages struct {
	Conversation
	Messages []Message `json:"messages"`
}

type ConversationInput struct {
	CharacterID *string
	Title       string
	PersonaName *string
	SourceURL   *string
	Metadata    map[string]any
}

// MessageInput is a message to append. Empty Role means user, nil Timestamp
// means now.
type MessageInput struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp *time.Time     `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

// ConversationFilter narrows and orders a conversation listing.
type ConversationFilter struct {
	CharacterID string
	Limit       int
	Offset      int
	SortBy      string
	SortOrder   string
}

// ChatImport is an externally captured chat document. Field synonyms
// (title/characterName, personaName/userName) are resolved on import.
type ChatImport struct {
	Title         string              `json:"title"`
	CharacterName string              `json:"characterName"`
	PersonaName   string              `json:"personaName"`
	UserName      string              `json:"userName"`
	SourceURL     string              `json:"sourceUrl"`
	Metadata      map[string]any      `json:"metadata"`
	Messages      []ChatImportMessage `json:"messages"`
}

// ChatImportMessage accepts role or isUser, content or text, and timestamp or
// createdAt. Timestamps may be ISO-8601 strings or epoch milliseconds.
type ChatImportMessage struct {
	Role      string         `json:"role"`
	IsUser    *bool          `json:"isUser"`
	Content   string         `json:"content"`
	Text      string         `json:"text"`
	Timestamp any            `json:"timestamp"`
	CreatedAt any            `json:"createdAt"`
	Metadata  map[string]any `json:"metadata"`
}

// TimeLayout is the ISO-8601 form, with milliseconds, used for stored and
// rendered timestamps.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
