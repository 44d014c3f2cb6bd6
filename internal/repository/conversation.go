package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"character-nexus/backend/internal/export"
	"character-nexus/backend/internal/models"
	"character-nexus/backend/internal/sanitize"
	"character-nexus/backend/pkg/database"
	apperrors "character-nexus/backend/pkg/errors"
	"character-nexus/backend/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	conversationColumns = `id, character_id, title, persona_name, message_count, source_url, metadata, created, modified`
	messageColumns      = `id, conversation_id, role, content, timestamp, order_index, metadata`
)

var conversationSort = sortSpec{
	columns: map[string]string{
		"modified":     "modified",
		"created":      "created",
		"title":        "title",
		"messageCount": "message_count",
	},
	defaultField: "modified",
}

type conversationRow struct {
	ID           string         `gorm:"column:id"`
	CharacterID  *string        `gorm:"column:character_id"`
	Title        string         `gorm:"column:title"`
	PersonaName  *string        `gorm:"column:persona_name"`
	MessageCount int            `gorm:"column:message_count"`
	SourceURL    *string        `gorm:"column:source_url"`
	Metadata     datatypes.JSON `gorm:"column:metadata"`
	Created      string         `gorm:"column:created"`
	Modified     string         `gorm:"column:modified"`
}

func (r *conversationRow) model() models.Conversation {
	return models.Conversation{
		ID:           r.ID,
		CharacterID:  r.CharacterID,
		Title:        r.Title,
		PersonaName:  r.PersonaName,
		MessageCount: r.MessageCount,
		SourceURL:    r.SourceURL,
		Metadata:     decodeObject(r.Metadata),
		Created:      parseTime(r.Created),
		Modified:     parseTime(r.Modified),
	}
}

type messageRow struct {
	ID             string         `gorm:"column:id"`
	ConversationID string         `gorm:"column:conversation_id"`
	Role           string         `gorm:"column:role"`
	Content        string         `gorm:"column:content"`
	Timestamp      string         `gorm:"column:timestamp"`
	OrderIndex     int            `gorm:"column:order_index"`
	Metadata       datatypes.JSON `gorm:"column:metadata"`
}

func (r *messageRow) model() models.Message {
	return models.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Role:           r.Role,
		Content:        r.Content,
		Timestamp:      parseTime(r.Timestamp),
		OrderIndex:     r.OrderIndex,
		Metadata:       decodeObject(r.Metadata),
	}
}

// ConversationRepository manages conversations and their ordered messages.
type ConversationRepository struct {
	store Store
	log   *logger.Logger
	now   func() time.Time
}

func NewConversationRepository(store Store, log *logger.Logger) *ConversationRepository {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &ConversationRepository{
		store: store,
		log:   log.WithComponent("conversation_repository"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// List returns one page of conversations, optionally for one character.
func (r *ConversationRepository) List(ctx context.Context, f models.ConversationFilter) ([]models.Conversation, error) {
	order, err := conversationSort.orderBy(f.SortBy, f.SortOrder)
	if err != nil {
		return nil, err
	}
	limit, offset := ClampPagination(f.Limit, f.Offset)

	w := &where{}
	if f.CharacterID != "" {
		w.add("character_id = ?", f.CharacterID)
	}

	var rows []conversationRow
	query := "SELECT " + conversationColumns + " FROM conversations" + w.String() +
		" ORDER BY " + order + " LIMIT ? OFFSET ?"
	if err := r.store.FetchAll(ctx, &rows, query, append(w.args, limit, offset)...); err != nil {
		return nil, storeFailure(r.log, "Failed to fetch conversations", err)
	}

	conversations := make([]models.Conversation, 0, len(rows))
	for i := range rows {
		conversations = append(conversations, rows[i].model())
	}
	return conversations, nil
}

// Get returns the conversation with id or a not_found error.
func (r *ConversationRepository) Get(ctx context.Context, id string) (*models.Conversation, error) {
	c, err := r.get(ctx, r.store, id)
	if err != nil {
		return nil, storeFailure(r.log, "Failed to fetch conversation", err, "id", id)
	}
	return c, nil
}

func (r *ConversationRepository) get(ctx context.Context, q database.Querier, id string) (*models.Conversation, error) {
	var row conversationRow
	found, err := q.FetchOne(ctx, &row, "SELECT "+conversationColumns+" FROM conversations WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.NotFoundf("Conversation", id)
	}
	c := row.model()
	return &c, nil
}

// Create stores a new, empty conversation.
func (r *ConversationRepository) Create(ctx context.Context, in models.ConversationInput) (*models.Conversation, error) {
	var created *models.Conversation
	err := r.store.Transaction(ctx, func(q database.Querier) error {
		var err error
		created, err = r.create(ctx, q, in)
		return err
	})
	if err != nil {
		return nil, storeFailure(r.log, "Failed to create conversation", err)
	}

	r.log.Info("Conversation created", "id", created.ID, "title", created.Title)
	return created, nil
}

func (r *ConversationRepository) create(ctx context.Context, q database.Querier, in models.ConversationInput) (*models.Conversation, error) {
	title := in.Title
	if title == "" {
		title = models.DefaultConversationTitle
	}
	metadata := in.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := encodeJSON(metadata)
	if err != nil {
		return nil, apperrors.NewBadRequestError(apperrors.CodeValidation, "Invalid conversation metadata")
	}

	id := uuid.NewString()
	now := formatTime(r.now())
	_, err = q.Execute(ctx, `INSERT INTO conversations (
		id, character_id, title, persona_name, message_count, source_url, metadata, created, modified
	) VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		id, nullable(in.CharacterID), title, nullable(in.PersonaName), nullable(in.SourceURL), raw, now, now)
	if err != nil {
		return nil, err
	}
	return r.get(ctx, q, id)
}

// Delete removes the conversation. Its messages go with it through the
// foreign key cascade.
func (r *ConversationRepository) Delete(ctx context.Context, id string) error {
	err := r.store.Transaction(ctx, func(q database.Querier) error {
		if _, err := r.get(ctx, q, id); err != nil {
			return err
		}
		_, err := q.Execute(ctx, "DELETE FROM conversations WHERE id = ?", id)
		return err
	})
	if err != nil {
		return storeFailure(r.log, "Failed to delete conversation", err, "id", id)
	}

	r.log.Info("Conversation deleted", "id", id)
	return nil
}

// ListMessages returns the messages of a conversation in order.
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var messages []models.Message
	err := r.store.Transaction(ctx, func(q database.Querier) error {
		if _, err := r.get(ctx, q, conversationID); err != nil {
			return err
		}
		var err error
		messages, err = r.listMessages(ctx, q, conversationID)
		return err
	})
	if err != nil {
		return nil, storeFailure(r.log, "Failed to fetch messages", err, "conversation_id", conversationID)
	}
	return messages, nil
}

func (r *ConversationRepository) listMessages(ctx context.Context, q database.Querier, conversationID string) ([]models.Message, error) {
	var rows []messageRow
	if err := q.FetchAll(ctx, &rows,
		"SELECT "+messageColumns+" FROM messages WHERE conversation_id = ? ORDER BY order_index ASC",
		conversationID); err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(rows))
	for i := range rows {
		messages = append(messages, rows[i].model())
	}
	return messages, nil
}

// CreateMessages appends msgs to the conversation in one transaction and
// returns the full message list. Order indices continue from the current
// highest index, so a fresh conversation gets 0..n-1 in input order.
func (r *ConversationRepository) CreateMessages(ctx context.Context, conversationID string, msgs []models.MessageInput) ([]models.Message, error) {
	if err := validateRoles(msgs); err != nil {
		return nil, err
	}

	var messages []models.Message
	err := r.store.Transaction(ctx, func(q database.Querier) error {
		if _, err := r.get(ctx, q, conversationID); err != nil {
			return err
		}
		if err := r.insertMessages(ctx, q, conversationID, msgs); err != nil {
			return err
		}
		var err error
		messages, err = r.listMessages(ctx, q, conversationID)
		return err
	})
	if err != nil {
		return nil, storeFailure(r.log, "Failed to create messages", err, "conversation_id", conversationID)
	}

	r.log.Info("Messages created", "conversation_id", conversationID, "count", len(msgs))
	return messages, nil
}

func validateRoles(msgs []models.MessageInput) error {
	var fields []apperrors.FieldError
	for i, m := range msgs {
		switch m.Role {
		case "", models.RoleUser, models.RoleAssistant:
		default:
			fields = append(fields, apperrors.FieldError{
				Field:   fmt.Sprintf("messages.%d.role", i),
				Message: "must be one of: user, assistant",
			})
		}
	}
	if len(fields) > 0 {
		return apperrors.NewValidationError("Validation failed", fields)
	}
	return nil
}

func (r *ConversationRepository) insertMessages(ctx context.Context, q database.Querier, conversationID string, msgs []models.MessageInput) error {
	if len(msgs) == 0 {
		return nil
	}

	var next int
	if _, err := q.FetchOne(ctx, &next,
		"SELECT COALESCE(MAX(order_index) + 1, 0) FROM messages WHERE conversation_id = ?", conversationID); err != nil {
		return err
	}

	now := r.now()
	for i, m := range msgs {
		role := m.Role
		if role == "" {
			role = models.RoleUser
		}
		ts := now
		if m.Timestamp != nil && !m.Timestamp.IsZero() {
			ts = *m.Timestamp
		}
		metadata := m.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		raw, err := encodeJSON(metadata)
		if err != nil {
			return apperrors.NewBadRequestError(apperrors.CodeValidation,
				fmt.Sprintf("Invalid metadata for message %d", i))
		}

		if _, err := q.Execute(ctx, `INSERT INTO messages (
			id, conversation_id, role, content, timestamp, order_index, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), conversationID, role, sanitize.HTML(m.Content), formatTime(ts), next+i, raw); err != nil {
			return err
		}
	}

	_, err := q.Execute(ctx,
		"UPDATE conversations SET message_count = message_count + ?, modified = ? WHERE id = ?",
		len(msgs), formatTime(now), conversationID)
	return err
}

// ImportChat creates a conversation from an externally captured chat
// document, linking it to characterID when given.
func (r *ConversationRepository) ImportChat(ctx context.Context, chat *models.ChatImport, characterID *string) (*models.ConversationWithMessages, error) {
	if chat == nil {
		return nil, apperrors.NewBadRequestError(apperrors.CodeValidation, "Chat data is required")
	}

	in, msgs := r.mapChatImport(chat, characterID)
	if err := validateRoles(msgs); err != nil {
		return nil, err
	}

	var result *models.ConversationWithMessages
	err := r.store.Transaction(ctx, func(q database.Querier) error {
		conv, err := r.create(ctx, q, in)
		if err != nil {
			return err
		}
		if err := r.insertMessages(ctx, q, conv.ID, msgs); err != nil {
			return err
		}
		if conv, err = r.get(ctx, q, conv.ID); err != nil {
			return err
		}
		messages, err := r.listMessages(ctx, q, conv.ID)
		if err != nil {
			return err
		}
		result = &models.ConversationWithMessages{Conversation: *conv, Messages: messages}
		return nil
	})
	if err != nil {
		return nil, storeFailure(r.log, "Failed to import chat", err)
	}

	r.log.Info("Chat imported", "conversation_id", result.ID, "message_count", len(result.Messages))
	return result, nil
}

func (r *ConversationRepository) mapChatImport(chat *models.ChatImport, characterID *string) (models.ConversationInput, []models.MessageInput) {
	now := r.now()

	title := firstNonEmpty(chat.Title, chat.CharacterName, "Imported Chat")
	persona := firstNonEmpty(chat.PersonaName, chat.UserName)
	original := chat.Metadata
	if original == nil {
		original = map[string]any{}
	}

	in := models.ConversationInput{
		CharacterID: characterID,
		Title:       title,
		PersonaName: &persona,
		SourceURL:   &chat.SourceURL,
		Metadata: map[string]any{
			"importedAt":   formatTime(now),
			"originalData": original,
		},
	}

	msgs := make([]models.MessageInput, 0, len(chat.Messages))
	for i, m := range chat.Messages {
		role := m.Role
		if role == "" {
			role = models.RoleAssistant
			if m.IsUser != nil && *m.IsUser {
				role = models.RoleUser
			}
		}

		ts, ok := parseTimestamp(m.Timestamp)
		if !ok {
			ts, ok = parseTimestamp(m.CreatedAt)
		}
		if !ok {
			if m.Timestamp != nil || m.CreatedAt != nil {
				r.log.Warn("Unparseable message timestamp, using import time", "index", i)
			}
			ts = now
		}

		msgs = append(msgs, models.MessageInput{
			Role:      role,
			Content:   firstNonEmpty(m.Content, m.Text),
			Timestamp: &ts,
			Metadata:  m.Metadata,
		})
	}
	return in, msgs
}

// Export renders the conversation and its messages in format.
func (r *ConversationRepository) Export(ctx context.Context, id, format string) (*export.Document, error) {
	var conv *models.ConversationWithMessages
	err := r.store.Transaction(ctx, func(q database.Querier) error {
		c, err := r.get(ctx, q, id)
		if err != nil {
			return err
		}
		messages, err := r.listMessages(ctx, q, id)
		if err != nil {
			return err
		}
		conv = &models.ConversationWithMessages{Conversation: *c, Messages: messages}
		return nil
	})
	if err != nil {
		return nil, storeFailure(r.log, "Failed to export conversation", err, "id", id)
	}
	return export.Render(conv, format)
}

// parseTimestamp accepts ISO-8601 strings and epoch milliseconds.
func parseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateTime, time.DateOnly} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), true
			}
		}
	case float64:
		return time.UnixMilli(int64(t)).UTC(), true
	case int64:
		return time.UnixMilli(t).UTC(), true
	case int:
		return time.UnixMilli(int64(t)).UTC(), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return time.UnixMilli(n).UTC(), true
		}
	case time.Time:
		return t.UTC(), !t.IsZero()
	}
	return time.Time{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
