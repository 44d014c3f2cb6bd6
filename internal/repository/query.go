// Package repository maps characters, conversations and messages onto the
// SQLite store. Column names are snake_case in storage and camelCase on the
// wire; the translation happens here and nowhere else.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"character-nexus/backend/internal/models"
	"character-nexus/backend/pkg/database"
	apperrors "character-nexus/backend/pkg/errors"
	"character-nexus/backend/pkg/logger"

	"gorm.io/datatypes"
)

// Pagination bounds shared by every listing.
const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// Store is the subset of *database.DB the repositories use.
type Store interface {
	database.Querier
	Transaction(ctx context.Context, fn func(q database.Querier) error) error
}

// ClampPagination applies the listing bounds: limit in [1, MaxLimit] with 0
// meaning DefaultLimit, offset at least 0.
func ClampPagination(limit, offset int) (int, int) {
	switch {
	case limit == 0:
		limit = DefaultLimit
	case limit < 1:
		limit = 1
	case limit > MaxLimit:
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// sortSpec maps the sort keys a caller may ask for onto fixed column names.
// Caller input never reaches the query text.
type sortSpec struct {
	columns      map[string]string
	defaultField string
}

func (s sortSpec) orderBy(field, direction string) (string, error) {
	if field == "" {
		field = s.defaultField
	}
	column, ok := s.columns[field]
	if !ok {
		return "", apperrors.NewBadRequestError(apperrors.CodeInvalidSort,
			fmt.Sprintf("Invalid sort field: %s", field))
	}

	dir := "DESC"
	switch strings.ToLower(direction) {
	case "", "desc":
	case "asc":
		dir = "ASC"
	default:
		return "", apperrors.NewBadRequestError(apperrors.CodeInvalidSort,
			fmt.Sprintf("Invalid sort order: %s", direction))
	}

	return column + " " + dir + ", id " + dir, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a LIKE pattern matching s literally anywhere.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// where joins clauses with AND.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func formatTime(t time.Time) string {
	return models.FormatTime(t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func encodeJSON(v any) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

// decodeList reads a stored JSON array. Malformed or missing values degrade
// to an empty slice.
func decodeList[T any](raw datatypes.JSON) []T {
	out := []T{}
	if len(raw) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return []T{}
	}
	return out
}

// decodeObject reads a stored JSON object, degrading to an empty map.
func decodeObject(raw datatypes.JSON) map[string]any {
	out := map[string]any{}
	if len(raw) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

// nullable stores empty optional text as NULL.
func nullable(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

// storeFailure passes AppErrors through untouched and wraps anything else as
// a database error whose cause is logged but never returned to callers.
func storeFailure(log *logger.Logger, message string, err error, attrs ...any) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	log.Error(message, append(attrs, "error", err.Error())...)
	return apperrors.NewDatabaseError(message, err)
}
