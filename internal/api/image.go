package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"character-nexus/backend/internal/images"
	apperrors "character-nexus/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

const uploadField = "image"

// ImageSaver processes and stores uploaded image bytes.
type ImageSaver interface {
	Save(ctx context.Context, data []byte) (string, error)
}

type ImageHandler struct {
	store   images.Store
	saver   ImageSaver
	maxSize int64
}

// NewImageHandler serves images from store. saver may be nil, in which case
// uploads are not routed.
func NewImageHandler(store images.Store, saver ImageSaver, maxSize int64) *ImageHandler {
	return &ImageHandler{store: store, saver: saver, maxSize: maxSize}
}

// RegisterRoutes mounts the image routes on group.
func (h *ImageHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/images/:filename", h.GetImage)
	if h.saver != nil {
		group.POST("/images", h.UploadImage)
	}
}

func (h *ImageHandler) GetImage(c *gin.Context) {
	filename := c.Param("filename")
	if !images.ValidFilename(filename) {
		fail(c, apperrors.NewBadRequestError(apperrors.CodeValidation, "Invalid filename"))
		return
	}

	rc, err := h.store.Open(c.Request.Context(), filename)
	if errors.Is(err, images.ErrNotFound) {
		fail(c, apperrors.NewNotFoundError(apperrors.CodeFileNotFound, "Image not found"))
		return
	}
	if err != nil {
		fail(c, apperrors.NewInternalServerError(apperrors.CodeInternal, "Failed to read image").WithCause(err))
		return
	}
	defer rc.Close()

	c.Header("Cache-Control", "public, max-age=86400")
	c.DataFromReader(http.StatusOK, -1, contentType(filename), rc, nil)
}

// UploadImage accepts a multipart "image" field and answers with the stored filename.
func (h *ImageHandler) UploadImage(c *gin.Context) {
	file, _, err := c.Request.FormFile(uploadField)
	if err != nil {
		fail(c, apperrors.NewValidationError("An image file is required in the \"image\" field", nil).WithCause(err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxSize+1))
	if err != nil {
		fail(c, apperrors.NewBadRequestError(apperrors.CodeImageProcessing, "Failed to read upload").WithCause(err))
		return
	}

	filename, err := h.saver.Save(c.Request.Context(), data)
	if err != nil {
		fail(c, apperrors.NewBadRequestError(apperrors.CodeImageProcessing, "Failed to process image").WithCause(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": gin.H{"filename": filename}, "message": "Image uploaded successfully"})
}

func contentType(filename string) string {
	if strings.EqualFold(filepath.Ext(filename), ".webp") {
		return "image/webp"
	}
	return "image/jpeg"
}
