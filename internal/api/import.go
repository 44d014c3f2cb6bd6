package api

import (
	"context"
	"fmt"
	"net/http"

	"character-nexus/backend/internal/importer"
	"character-nexus/backend/internal/models"

	"github.com/gin-gonic/gin"
)

// Importer is what the import routes need from the import orchestrator.
type Importer interface {
	ImportFromURL(ctx context.Context, doc map[string]any) (*models.Character, error)
	ImportCharacters(ctx context.Context, docs []map[string]any) (*models.BulkImportResult, error)
}

type ImportHandler struct {
	importer Importer
}

func NewImportHandler(importer Importer) *ImportHandler {
	return &ImportHandler{importer: importer}
}

// RegisterRoutes mounts the import routes on group.
func (h *ImportHandler) RegisterRoutes(group *gin.RouterGroup) {
	imports := group.Group("/import")
	imports.POST("/janitorai", h.ImportFromJanitorAI)
	imports.POST("/json", h.ImportJSON)
}

func (h *ImportHandler) ImportFromJanitorAI(c *gin.Context) {
	var doc map[string]any
	if err := decodeBody(c, &doc); err != nil {
		fail(c, err)
		return
	}

	character, err := h.importer.ImportFromURL(c.Request.Context(), doc)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"data":    character,
		"message": fmt.Sprintf("Character %q imported successfully from %s", character.Name, importer.DefaultUniverse),
	})
}

type bulkImportRequest struct {
	Characters any `json:"characters"`
}

// ImportJSON imports each entry independently. Entries that are not objects
// are reported as failures rather than rejecting the batch.
func (h *ImportHandler) ImportJSON(c *gin.Context) {
	var req bulkImportRequest
	if err := decodeBody(c, &req); err != nil {
		fail(c, err)
		return
	}

	entries, _ := req.Characters.([]any)
	docs := make([]map[string]any, len(entries))
	for i, entry := range entries {
		docs[i], _ = entry.(map[string]any)
	}

	result, err := h.importer.ImportCharacters(c.Request.Context(), docs)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":    result,
		"message": fmt.Sprintf("Imported %d of %d characters", len(result.Success), len(docs)),
	})
}
