// Package schema validates and normalizes incoming entity documents.
//
// Validation is exhaustive: every violated field is reported with a dotted
// path such as "exampleDialogues.0.user". Unknown keys are stripped from the
// output and string fields marked for trimming are trimmed before their
// length is checked. A JSON null is treated as an absent key.
package schema

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	apperrors "character-nexus/backend/pkg/errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Schema names.
const (
	CharacterSchema = "character"
	GroupSchema     = "group"
	UniverseSchema  = "universe"
	ImportURLSchema = "import-url"
)

// ErrUnknownSchema is returned when Validate is asked for a schema that does
// not exist. It indicates a programming error, not bad input.
var ErrUnknownSchema = stderrors.New("schema: unknown schema")

// Field limits.
const (
	MaxNameLength         = 255
	MaxBioLength          = 10000
	MaxPersonalityLength  = 50000
	MaxScenarioLength     = 5000
	MaxIntroMessageLength = 2000
	MaxNotesLength        = 50000
	MaxDescriptionLength  = 5000
	MaxDialogueLength     = 1000
	MaxTags               = 50
	MaxTagLength          = 100
	MaxURLLength          = 2083
)

// definition describes one schema: its rules, the keys it keeps and which of
// them are trimmed. nested lists the keys kept inside arrays of objects.
type definition struct {
	rules  func() validation.MapRule
	keys   []string
	trim   []string
	nested map[string][]string
}

var definitions = map[string]definition{
	CharacterSchema: {
		rules: characterRules,
		keys: []string{
			"name", "chatName", "universe", "image", "bio", "personality", "scenario",
			"introMessage", "exampleDialogues", "tags", "contentRating", "notes",
			"relationships", "customTags", "source", "lastSyncedFrom",
		},
		trim: []string{"name", "chatName", "universe"},
		nested: map[string][]string{
			"exampleDialogues": {"user", "bot"},
			"relationships":    {"characterId", "type", "notes"},
		},
	},
	GroupSchema: {
		rules: groupRules,
		keys:  []string{"name", "universe", "description", "characters"},
		trim:  []string{"name", "universe"},
	},
	UniverseSchema: {
		rules: universeRules,
		keys:  []string{"name", "description"},
		trim:  []string{"name"},
	},
	ImportURLSchema: {
		rules: importURLRules,
		keys:  []string{"url"},
	},
}

// Validate checks doc against the named schema. On success it returns a new
// document holding only known keys, trimmed where the schema says so. On
// failure it returns a validation AppError listing every violated field.
func Validate(name string, doc map[string]any) (map[string]any, error) {
	def, ok := definitions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, name)
	}

	out := normalize(def, doc)
	if err := def.rules().Validate(out); err != nil {
		fields, ierr := flatten(err)
		if ierr != nil {
			return nil, ierr
		}
		return nil, apperrors.NewValidationError("Validation failed", fields)
	}
	return out, nil
}

func normalize(def definition, doc map[string]any) map[string]any {
	out := make(map[string]any, len(def.keys))
	for _, key := range def.keys {
		value, ok := doc[key]
		if !ok || value == nil {
			continue
		}
		if keep, ok := def.nested[key]; ok {
			value = stripNested(value, keep)
		}
		out[key] = value
	}
	for _, key := range def.trim {
		if s, ok := out[key].(string); ok {
			out[key] = strings.TrimSpace(s)
		}
	}
	return out
}

func stripNested(value any, keep []string) any {
	items, ok := value.([]any)
	if !ok {
		return value
	}
	stripped := make([]any, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			stripped[i] = item
			continue
		}
		clean := make(map[string]any, len(keep))
		for _, k := range keep {
			if v, ok := obj[k]; ok && v != nil {
				clean[k] = v
			}
		}
		stripped[i] = clean
	}
	return stripped
}

// flatten turns nested ozzo errors into dotted field paths sorted by field.
func flatten(err error) ([]apperrors.FieldError, error) {
	var fields []apperrors.FieldError
	if ierr := collect("", err, &fields); ierr != nil {
		return nil, ierr
	}
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	return fields, nil
}

func collect(path string, err error, out *[]apperrors.FieldError) error {
	var internal validation.InternalError
	if stderrors.As(err, &internal) {
		return internal.InternalError()
	}

	var errs validation.Errors
	if stderrors.As(err, &errs) {
		for key, child := range errs {
			p := key
			if path != "" {
				p = path + "." + key
			}
			if ierr := collect(p, child, out); ierr != nil {
				return ierr
			}
		}
		return nil
	}

	*out = append(*out, apperrors.FieldError{Field: path, Message: err.Error()})
	return nil
}
