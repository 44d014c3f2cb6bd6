package api

import (
	"context"
	"net/http"

	"character-nexus/backend/internal/models"
	"character-nexus/backend/internal/schema"
	"character-nexus/backend/internal/service"

	"github.com/gin-gonic/gin"
)

// CharacterService is what the character routes need from the service layer.
type CharacterService interface {
	List(ctx context.Context, f models.CharacterFilter) (*service.CharacterPage, error)
	Get(ctx context.Context, id string) (*models.Character, error)
	Create(ctx context.Context, in *models.CharacterInput) (*models.Character, error)
	Update(ctx context.Context, id string, in *models.CharacterInput) (*models.Character, error)
	Delete(ctx context.Context, id string) (*models.Character, error)
}

type CharacterHandler struct {
	service CharacterService
}

func NewCharacterHandler(service CharacterService) *CharacterHandler {
	return &CharacterHandler{service: service}
}

// RegisterRoutes mounts the character routes on group.
func (h *CharacterHandler) RegisterRoutes(group *gin.RouterGroup) {
	characters := group.Group("/characters")
	characters.GET("", h.ListCharacters)
	characters.POST("", h.CreateCharacter)
	characters.GET("/:id", h.GetCharacter)
	characters.PUT("/:id", h.UpdateCharacter)
	characters.DELETE("/:id", h.DeleteCharacter)
}

func (h *CharacterHandler) ListCharacters(c *gin.Context) {
	page, err := h.service.List(c.Request.Context(), models.CharacterFilter{
		Universe:      c.Query("universe"),
		ContentRating: c.Query("contentRating"),
		Search:        c.Query("search"),
		Limit:         queryInt(c, "limit"),
		Offset:        queryInt(c, "offset"),
		SortBy:        c.Query("sortBy"),
		SortOrder:     c.Query("sortOrder"),
	})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   page.Characters,
		"total":  page.Total,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

func (h *CharacterHandler) GetCharacter(c *gin.Context) {
	character, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": character})
}

func (h *CharacterHandler) CreateCharacter(c *gin.Context) {
	in, err := bindCharacter(c)
	if err != nil {
		fail(c, err)
		return
	}

	character, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": character, "message": "Character created successfully"})
}

// UpdateCharacter validates the body against the full character schema, so a
// PUT carries the whole record.
func (h *CharacterHandler) UpdateCharacter(c *gin.Context) {
	in, err := bindCharacter(c)
	if err != nil {
		fail(c, err)
		return
	}

	character, err := h.service.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": character, "message": "Character updated successfully"})
}

func (h *CharacterHandler) DeleteCharacter(c *gin.Context) {
	character, err := h.service.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": character, "message": "Character deleted successfully"})
}

func bindCharacter(c *gin.Context) (*models.CharacterInput, error) {
	var doc map[string]any
	if err := decodeBody(c, &doc); err != nil {
		return nil, err
	}
	return schema.Character(doc)
}
