package models

import "time"

// Content ratings accepted for a character.
const (
	RatingSFW  = "sfw"
	RatingNSFW = "nsfw"
)

// RelationshipTypes lists the allowed Relationship.Type values.
var RelationshipTypes = []string{
	"ally", "friend", "best-friend", "rival", "enemy", "mentor",
	"student", "family", "romantic", "neutral", "unknown",
}

// ExampleDialogue is one sample exchange shown to the model.
type ExampleDialogue struct {
	User string `json:"user"`
	Bot  string `json:"bot"`
}

// Relationship links a character to another one by id. The target is not
// required to exist.
type Relationship struct {
	CharacterID string `json:"characterId"`
	Type        string `json:"type"`
	Notes       string `json:"notes,omitempty"`
}

type Character struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	ChatName         *string           `json:"chatName"`
	Universe         string            `json:"universe"`
	Image            *string           `json:"image"`
	Bio              *string           `json:"bio"`
	Personality      *string           `json:"personality"`
	Scenario         *string           `json:"scenario"`
	IntroMessage     *string           `json:"introMessage"`
	ExampleDialogues []ExampleDialogue `json:"exampleDialogues"`
	Tags             []string          `json:"tags"`
	ContentRating    string            `json:"contentRating"`
	Notes            *string           `json:"notes"`
	Relationships    []Relationship    `json:"relationships"`
	CustomTags       []string          `json:"customTags"`
	Created          time.Time         `json:"created"`
	Modified         time.Time         `json:"modified"`
	Source           *string           `json:"source"`
	LastSyncedFrom   *string           `json:"lastSyncedFrom"`
}

// CharacterInput carries a validated create or update payload. A nil field was
// absent from the request; updates only touch non-nil fields.
type CharacterInput struct {
	Name             *string
	ChatName         *string
	Universe         *string
	Image            *string
	Bio              *string
	Personality      *string
	Scenario         *string
	IntroMessage     *string
	ExampleDialogues *[]ExampleDialogue
	Tags             *[]string
	ContentRating    *string
	Notes            *string
	Relationships    *[]Relationship
	CustomTags       *[]string
	Source           *string
	LastSyncedFrom   *string
}

// IsEmpty reports whether no field is set.
func (in *CharacterInput) IsEmpty() bool {
	return in.Name == nil && in.ChatName == nil && in.Universe == nil && in.Image == nil &&
		in.Bio == nil && in.Personality == nil && in.Scenario == nil && in.IntroMessage == nil &&
		in.ExampleDialogues == nil && in.Tags == nil && in.ContentRating == nil && in.Notes == nil &&
		in.Relationships == nil && in.CustomTags == nil && in.Source == nil && in.LastSyncedFrom == nil
}

// CharacterFilter narrows and orders a character listing.
type CharacterFilter struct {
	Universe      string
	ContentRating string
	Search        string
	Limit         int
	Offset        int
	SortBy        string
	SortOrder     string
}

// ImportedCharacter reports a successful bulk import entry.
type ImportedCharacter struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FailedImport reports a bulk import entry that was rejected.
type FailedImport struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type BulkImportResult struct {
	Success []ImportedCharacter `json:"success"`
	Failed  []FailedImport      `json:"failed"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
