package router

import (
	"os"
	"path/filepath"

	"character-nexus/backend/pkg/validator"
)

// AddOpenAPIValidation validates requests against the document at schemaPath
// and serves the document under /api/docs. A missing or broken document only
// disables validation.
func (r *Router) AddOpenAPIValidation(schemaPath string) {
	if !fileExists(schemaPath) {
		r.Logger.Warn("OpenAPI schema file not found, skipping validation", "path", schemaPath)
		return
	}

	v, err := validator.NewOpenAPIValidator(schemaPath)
	if err != nil {
		r.Logger.Error("Failed to initialize OpenAPI validator", "error", err)
		return
	}

	r.Engine.Use(v.Middleware())
	r.Logger.Info("OpenAPI validation enabled", "schema", schemaPath)

	r.Engine.StaticFile("/api/docs/"+filepath.Base(schemaPath), schemaPath)
}

// fileExists checks if a file exists and is not a directory
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
