// Package export renders a conversation and its messages as a downloadable
// document.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"character-nexus/backend/internal/models"
	apperrors "character-nexus/backend/pkg/errors"
)

// Format names accepted by Render. Aliases map onto the same renderer.
const (
	FormatJSON        = "json"
	FormatText        = "txt"
	FormatMarkdown    = "markdown"
	FormatMD          = "md"
	FormatJSONL       = "jsonl"
	FormatSillyTavern = "sillytavern"
)

// Document is a rendered export.
type Document struct {
	Body        []byte
	ContentType string
	Filename    string
}

type renderer struct {
	contentType string
	ext         string
	render      func(*models.ConversationWithMessages) ([]byte, error)
}

var renderers = map[string]renderer{
	FormatJSON:        {"application/json", "json", renderJSON},
	FormatText:        {"text/plain", "txt", renderText},
	FormatMarkdown:    {"text/markdown", "md", renderMarkdown},
	FormatMD:          {"text/markdown", "md", renderMarkdown},
	FormatJSONL:       {"application/x-ndjson", "jsonl", renderJSONL},
	FormatSillyTavern: {"application/x-ndjson", "jsonl", renderJSONL},
}

// Render produces the document for format. The format name is matched
// case-insensitively; unknown names are rejected with UNSUPPORTED_FORMAT.
func Render(conv *models.ConversationWithMessages, format string) (*Document, error) {
	r, ok := renderers[strings.ToLower(format)]
	if !ok {
		return nil, apperrors.NewBadRequestError(apperrors.CodeUnsupported, fmt.Sprintf(
			"Unsupported export format: %s. Supported formats: json, txt, markdown, jsonl", format))
	}

	body, err := r.render(conv)
	if err != nil {
		return nil, apperrors.NewInternalServerError(apperrors.CodeInternal, "Failed to render export").WithCause(err)
	}

	return &Document{
		Body:        body,
		ContentType: r.contentType,
		Filename:    fmt.Sprintf("chat-%s.%s", conv.ID, r.ext),
	}, nil
}

func renderJSON(conv *models.ConversationWithMessages) ([]byte, error) {
	return json.Marshal(conv)
}

func speaker(conv *models.ConversationWithMessages, msg models.Message) string {
	if msg.Role != models.RoleUser {
		return "Assistant"
	}
	if conv.PersonaName != nil && *conv.PersonaName != "" {
		return *conv.PersonaName
	}
	return "User"
}

func persona(conv *models.ConversationWithMessages) string {
	if conv.PersonaName == nil {
		return ""
	}
	return *conv.PersonaName
}

func renderText(conv *models.ConversationWithMessages) ([]byte, error) {
	lines := []string{"Chat: " + conv.Title}
	if p := persona(conv); p != "" {
		lines = append(lines, "User: "+p)
	}
	lines = append(lines,
		"Date: "+models.FormatTime(conv.Created),
		fmt.Sprintf("Messages: %d", len(conv.Messages)),
		"",
		strings.Repeat("=", 80),
		"",
	)

	for _, msg := range conv.Messages {
		lines = append(lines, speaker(conv, msg)+":", msg.Content, "")
	}
	return []byte(strings.Join(lines, "\n")), nil
}

func renderMarkdown(conv *models.ConversationWithMessages) ([]byte, error) {
	lines := []string{"# " + conv.Title, ""}
	if p := persona(conv); p != "" {
		lines = append(lines, "**User:** "+p)
	}
	lines = append(lines,
		"**Date:** "+models.FormatTime(conv.Created),
		fmt.Sprintf("**Messages:** %d", len(conv.Messages)),
		"",
		"---",
		"",
	)

	for _, msg := range conv.Messages {
		lines = append(lines, "### "+speaker(conv, msg), "", msg.Content, "")
	}
	return []byte(strings.Join(lines, "\n")), nil
}

// sillyTavernLine is one entry of a SillyTavern chat log.
type sillyTavernLine struct {
	Name     string `json:"name"`
	IsUser   bool   `json:"is_user"`
	SendDate int64  `json:"send_date"`
	Mes      string `json:"mes"`
}

func renderJSONL(conv *models.ConversationWithMessages) ([]byte, error) {
	lines := make([]string, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(sillyTavernLine{
			Name:     speaker(conv, msg),
			IsUser:   msg.Role == models.RoleUser,
			SendDate: msg.Timestamp.UnixMilli(),
			Mes:      msg.Content,
		}); err != nil {
			return nil, err
		}
		lines = append(lines, strings.TrimSuffix(buf.String(), "\n"))
	}
	return []byte(strings.Join(lines, "\n")), nil
}
