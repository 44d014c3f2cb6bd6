package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"character-nexus/backend/internal/export"
	"character-nexus/backend/internal/models"
	"character-nexus/backend/internal/repository"
	apperrors "character-nexus/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// ConversationStore is what the chat routes need from the conversation repository.
type ConversationStore interface {
	List(ctx context.Context, f models.ConversationFilter) ([]models.Conversation, error)
	Get(ctx context.Context, id string) (*models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	ImportChat(ctx context.Context, chat *models.ChatImport, characterID *string) (*models.ConversationWithMessages, error)
	Delete(ctx context.Context, id string) error
	Export(ctx context.Context, id, format string) (*export.Document, error)
}

type ChatHandler struct {
	conversations ConversationStore
}

func NewChatHandler(conversations ConversationStore) *ChatHandler {
	return &ChatHandler{conversations: conversations}
}

// RegisterRoutes mounts the chat routes on group.
func (h *ChatHandler) RegisterRoutes(group *gin.RouterGroup) {
	chats := group.Group("/chats")
	chats.GET("", h.ListChats)
	chats.POST("/import", h.ImportChat)
	chats.GET("/:id", h.GetChat)
	chats.GET("/:id/messages", h.ListMessages)
	chats.GET("/:id/export/:format", h.ExportChat)
	chats.DELETE("/:id", h.DeleteChat)
}

func (h *ChatHandler) ListChats(c *gin.Context) {
	f := models.ConversationFilter{
		CharacterID: c.Query("characterId"),
		Limit:       queryInt(c, "limit"),
		Offset:      queryInt(c, "offset"),
		SortBy:      c.Query("sortBy"),
		SortOrder:   c.Query("sortOrder"),
	}
	conversations, err := h.conversations.List(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}

	limit, offset := repository.ClampPagination(f.Limit, f.Offset)
	c.JSON(http.StatusOK, gin.H{"data": conversations, "limit": limit, "offset": offset})
}

func (h *ChatHandler) GetChat(c *gin.Context) {
	conversation, err := h.conversations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": conversation})
}

// ListMessages answers 404 for an unknown conversation rather than an empty list.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	messages, err := h.conversations.ListMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": messages})
}

type chatImportRequest struct {
	ChatData    json.RawMessage `json:"chatData"`
	CharacterID *string         `json:"characterId"`
}

func (h *ChatHandler) ImportChat(c *gin.Context) {
	var req chatImportRequest
	if err := decodeBody(c, &req); err != nil {
		fail(c, err)
		return
	}
	if len(req.ChatData) == 0 || string(req.ChatData) == "null" {
		fail(c, apperrors.NewValidationError("Chat data is required", nil))
		return
	}

	var chat models.ChatImport
	if err := json.Unmarshal(req.ChatData, &chat); err != nil {
		fail(c, apperrors.NewValidationError("Chat data must be an object with a messages array", nil).WithCause(err))
		return
	}
	if req.CharacterID != nil && strings.TrimSpace(*req.CharacterID) == "" {
		req.CharacterID = nil
	}

	imported, err := h.conversations.ImportChat(c.Request.Context(), &chat, req.CharacterID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": imported, "message": "Chat imported successfully"})
}

func (h *ChatHandler) DeleteChat(c *gin.Context) {
	if err := h.conversations.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted successfully"})
}

func (h *ChatHandler) ExportChat(c *gin.Context) {
	doc, err := h.conversations.Export(c.Request.Context(), c.Param("id"), c.Param("format"))
	if err != nil {
		fail(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	c.Data(http.StatusOK, doc.ContentType, doc.Body)
}
