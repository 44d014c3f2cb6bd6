package schema

import (
	"strings"
	"testing"

	apperrors "character-nexus/backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldNames(t *testing.T, err error) []string {
	t.Helper()
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)

	var names []string
	for _, f := range appErr.Fields() {
		names = append(names, f.Field)
	}
	return names
}

func TestCharacterMissingNameIsReported(t *testing.T) {
	_, err := Validate(CharacterSchema, map[string]any{"universe": "Marvel"})
	require.Error(t, err)
	assert.Contains(t, fieldNames(t, err), "name")
}

func TestCharacterReportsEveryViolation(t *testing.T) {
	doc := map[string]any{
		"name":          strings.Repeat("a", MaxNameLength+1),
		"bio":           42,
		"contentRating": "pg13",
		"tags":          []any{"ok", strings.Repeat("t", MaxTagLength+1)},
		"source":        "not a url",
		"exampleDialogues": []any{
			map[string]any{"user": "hi", "bot": strings.Repeat("b", MaxDialogueLength+1)},
			"oops",
		},
		"relationships": []any{
			map[string]any{"type": "lover"},
		},
	}

	_, err := Validate(CharacterSchema, doc)
	require.Error(t, err)

	assert.Equal(t, []string{
		"bio",
		"contentRating",
		"exampleDialogues.0.bot",
		"exampleDialogues.1",
		"name",
		"relationships.0.characterId",
		"relationships.0.type",
		"source",
		"tags.1",
		"universe",
	}, fieldNames(t, err))
}

func TestCharacterStripsUnknownAndTrims(t *testing.T) {
	out, err := Validate(CharacterSchema, map[string]any{
		"name":     "  Tony Stark ",
		"universe": " Marvel",
		"chatName": "",
		"bio":      "Genius",
		"id":       "client-supplied",
		"hacker":   true,
		"notes":    nil,
		"relationships": []any{
			map[string]any{"characterId": "x", "type": "ally", "extra": 1},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Tony Stark", out["name"])
	assert.Equal(t, "Marvel", out["universe"])
	assert.Equal(t, "", out["chatName"], "empty optional string is accepted and kept")
	assert.NotContains(t, out, "id")
	assert.NotContains(t, out, "hacker")
	assert.NotContains(t, out, "notes")

	rel := out["relationships"].([]any)[0].(map[string]any)
	assert.Equal(t, map[string]any{"characterId": "x", "type": "ally"}, rel)
}

func TestCharacterBlankNameAfterTrim(t *testing.T) {
	_, err := Validate(CharacterSchema, map[string]any{"name": "   ", "universe": "X"})
	require.Error(t, err)
	assert.Equal(t, []string{"name"}, fieldNames(t, err))
}

func TestCharacterTooManyTags(t *testing.T) {
	tags := make([]any, MaxTags+1)
	for i := range tags {
		tags[i] = "t"
	}
	_, err := Validate(CharacterSchema, map[string]any{"name": "A", "universe": "B", "tags": tags})
	require.Error(t, err)
	assert.Equal(t, []string{"tags"}, fieldNames(t, err))
}

func TestCharacterTypedConversion(t *testing.T) {
	in, err := Character(map[string]any{
		"name":             "Ada",
		"universe":         "History",
		"tags":             []any{"math"},
		"exampleDialogues": []any{map[string]any{"user": "hi", "bot": "hello"}},
		"contentRating":    "nsfw",
		"source":           "https://janitorai.com/characters/1",
	})
	require.NoError(t, err)

	assert.Equal(t, "Ada", *in.Name)
	assert.Equal(t, []string{"math"}, *in.Tags)
	assert.Equal(t, "hello", (*in.ExampleDialogues)[0].Bot)
	assert.Equal(t, "nsfw", *in.ContentRating)
	assert.Nil(t, in.Bio)
	assert.Nil(t, in.Relationships)
}

func TestGroupAndUniverse(t *testing.T) {
	_, err := Validate(GroupSchema, map[string]any{"name": "Avengers", "universe": "Marvel", "characters": []any{"a", "b"}})
	assert.NoError(t, err)

	_, err = Validate(GroupSchema, map[string]any{"name": "Avengers", "characters": []any{1}})
	require.Error(t, err)
	assert.Equal(t, []string{"characters.0", "universe"}, fieldNames(t, err))

	_, err = Validate(UniverseSchema, map[string]any{"description": strings.Repeat("d", MaxDescriptionLength+1)})
	require.Error(t, err)
	assert.Equal(t, []string{"description", "name"}, fieldNames(t, err))
}

func TestImportURL(t *testing.T) {
	url, err := ImportURL(map[string]any{"url": "https://janitorai.com/characters/abc"})
	require.NoError(t, err)
	assert.Equal(t, "https://janitorai.com/characters/abc", url)

	_, err = ImportURL(map[string]any{"url": "janitorai.com/characters/abc"})
	require.Error(t, err)
	assert.Equal(t, []string{"url"}, fieldNames(t, err))

	_, err = ImportURL(map[string]any{})
	require.Error(t, err)
	assert.Equal(t, []string{"url"}, fieldNames(t, err))
}

func TestUnknownSchema(t *testing.T) {
	_, err := Validate("nope", map[string]any{})
	assert.ErrorIs(t, err, ErrUnknownSchema)
	_, isApp := apperrors.As(err)
	assert.False(t, isApp)
}
