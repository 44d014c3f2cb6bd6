package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"character-nexus/backend/internal/models"
	"character-nexus/backend/pkg/config"
	"character-nexus/backend/pkg/database"
	apperrors "character-nexus/backend/pkg/errors"
	"character-nexus/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(context.Background(), config.DatabaseConfig{
		Path:           filepath.Join(t.TempDir(), "repo.sqlite"),
		BusyTimeout:    time.Second,
		MaxOpenConns:   1,
		ConnectRetries: 1,
	}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fixedClock returns increasing instants one second apart.
func fixedClock(start time.Time) func() time.Time {
	current := start.Add(-time.Second)
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func newCharacterRepo(t *testing.T) (*CharacterRepository, *database.DB) {
	db := openStore(t)
	repo := NewCharacterRepository(db, logger.Discard())
	repo.now = fixedClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return repo, db
}

func input(name, universe string) *models.CharacterInput {
	return &models.CharacterInput{Name: &name, Universe: &universe}
}

func TestCharacterCreateAndGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, _ := newCharacterRepo(t)

	in := input("Tony", "Marvel")
	in.Bio = models.StringPtr(`<b>Genius</b><script>alert(1)</script>`)
	in.ExampleDialogues = &[]models.ExampleDialogue{{User: "hi", Bot: "hello"}}
	in.Tags = &[]string{}
	in.Relationships = &[]models.Relationship{{CharacterID: "pepper", Type: "romantic", Notes: "wife"}}
	in.Source = models.StringPtr("https://janitorai.com/characters/tony")

	created, err := repo.Create(ctx, in)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.RatingSFW, created.ContentRating)
	assert.Equal(t, created.Created, created.Modified)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	assert.Equal(t, "<b>Genius</b>", *got.Bio)
	assert.Equal(t, []models.ExampleDialogue{{User: "hi", Bot: "hello"}}, got.ExampleDialogues)
	assert.Equal(t, []string{}, got.Tags)
	assert.Equal(t, []string{}, got.CustomTags)
	assert.Equal(t, "romantic", got.Relationships[0].Type)
	assert.Nil(t, got.ChatName)
	assert.Equal(t, "https://janitorai.com/characters/tony", *got.Source)
}

func TestCharacterCreateRequiresNameAndUniverse(t *testing.T) {
	repo, db := newCharacterRepo(t)

	_, err := repo.Create(context.Background(), &models.CharacterInput{Universe: models.StringPtr("X")})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	var count int64
	_, err = db.FetchOne(context.Background(), &count, "SELECT COUNT(*) FROM characters")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCharacterGetUnknownIsNotFound(t *testing.T) {
	repo, _ := newCharacterRepo(t)

	_, err := repo.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
	assert.Equal(t, "Character with ID missing not found", err.(*apperrors.AppError).Message)
}

func TestCharacterListFiltersSortAndPaging(t *testing.T) {
	ctx := context.Background()
	repo, _ := newCharacterRepo(t)

	for _, c := range []struct{ name, universe, rating, bio string }{
		{"Alpha", "Marvel", "sfw", "100% hero"},
		{"Beta", "Marvel", "nsfw", "villain"},
		{"Gamma", "DC", "sfw", "hero_like"},
	} {
		in := input(c.name, c.universe)
		in.ContentRating = models.StringPtr(c.rating)
		in.Bio = models.StringPtr(c.bio)
		_, err := repo.Create(ctx, in)
		require.NoError(t, err)
	}

	all, err := repo.List(ctx, models.CharacterFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Gamma", all[0].Name, "default sort is newest first")

	byName, err := repo.List(ctx, models.CharacterFilter{SortBy: "name", SortOrder: "ASC"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Beta", "Gamma"}, names(byName))

	marvel, err := repo.List(ctx, models.CharacterFilter{Universe: "Marvel", ContentRating: "sfw"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha"}, names(marvel))

	percent, err := repo.List(ctx, models.CharacterFilter{Search: "100%"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha"}, names(percent))

	underscore, err := repo.List(ctx, models.CharacterFilter{Search: "o_l"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Gamma"}, names(underscore))

	none, err := repo.List(ctx, models.CharacterFilter{Search: "o%l"})
	require.NoError(t, err)
	assert.Empty(t, none)

	page, err := repo.List(ctx, models.CharacterFilter{SortBy: "name", SortOrder: "asc", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Beta"}, names(page))

	negative, err := repo.List(ctx, models.CharacterFilter{Offset: -5})
	require.NoError(t, err)
	assert.Len(t, negative, 3)

	count, err := repo.Count(ctx, models.CharacterFilter{Universe: "Marvel", Search: "zzz"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "count ignores search")
}

func TestCharacterListRejectsUnknownSort(t *testing.T) {
	repo, _ := newCharacterRepo(t)

	_, err := repo.List(context.Background(), models.CharacterFilter{SortBy: "name; DROP TABLE characters"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidSort, apperrors.GetErrorCode(err))

	_, err = repo.List(context.Background(), models.CharacterFilter{SortOrder: "sideways"})
	assert.Equal(t, apperrors.CodeInvalidSort, apperrors.GetErrorCode(err))
}

func TestClampPagination(t *testing.T) {
	tests := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, 100, 0},
		{10000, 0, 500, 0},
		{-3, -5, 1, 0},
		{50, 20, 50, 20},
		{500, 0, 500, 0},
		{1, 0, 1, 0},
	}
	for _, tt := range tests {
		limit, offset := ClampPagination(tt.limit, tt.offset)
		assert.Equal(t, tt.wantLimit, limit, "limit %d", tt.limit)
		assert.Equal(t, tt.wantOffset, offset, "offset %d", tt.offset)
	}
}

func TestCharacterUpdateIsPartialAndRefreshesModified(t *testing.T) {
	ctx := context.Background()
	repo, _ := newCharacterRepo(t)

	in := input("Tony", "Marvel")
	in.Bio = models.StringPtr("Genius")
	in.Tags = &[]string{"armor"}
	created, err := repo.Create(ctx, in)
	require.NoError(t, err)

	updated, err := repo.Update(ctx, created.ID, &models.CharacterInput{
		Tags:          &[]string{"armor", "billionaire"},
		ContentRating: models.StringPtr("nsfw"),
		Scenario:      models.StringPtr("<i>Lab</i><iframe></iframe>"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Tony", updated.Name)
	assert.Equal(t, "Genius", *updated.Bio)
	assert.Equal(t, []string{"armor", "billionaire"}, updated.Tags)
	assert.Equal(t, "nsfw", updated.ContentRating)
	assert.Equal(t, "<i>Lab</i>", *updated.Scenario)
	assert.Equal(t, created.Created, updated.Created)
	assert.True(t, updated.Modified.After(created.Modified))

	unchanged, err := repo.Update(ctx, created.ID, &models.CharacterInput{})
	require.NoError(t, err)
	assert.Equal(t, updated, unchanged)
}

func TestCharacterUpdateAndDeleteUnknown(t *testing.T) {
	ctx := context.Background()
	repo, _ := newCharacterRepo(t)

	_, err := repo.Update(ctx, "missing", input("A", "B"))
	assert.True(t, apperrors.IsNotFound(err))

	_, err = repo.Delete(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCharacterDeleteReturnsSnapshot(t *testing.T) {
	ctx := context.Background()
	repo, _ := newCharacterRepo(t)

	created, err := repo.Create(ctx, input("Tony", "Marvel"))
	require.NoError(t, err)

	deleted, err := repo.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, deleted.ID)

	_, err = repo.Get(ctx, created.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCharacterMalformedJSONDegrades(t *testing.T) {
	ctx := context.Background()
	repo, db := newCharacterRepo(t)

	created, err := repo.Create(ctx, input("Tony", "Marvel"))
	require.NoError(t, err)

	_, err = db.Execute(ctx, "UPDATE characters SET tags = ?, relationships = ? WHERE id = ?", "{not json", "null", created.ID)
	require.NoError(t, err)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{}, got.Tags)
	assert.Equal(t, []models.Relationship{}, got.Relationships)
}

func TestCharacterStoreFailureIsDatabaseKind(t *testing.T) {
	repo, db := newCharacterRepo(t)
	require.NoError(t, db.Close())

	_, err := repo.List(context.Background(), models.CharacterFilter{})
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindDatabase, appErr.Kind)
	assert.Equal(t, "Failed to fetch characters", appErr.Message)
	assert.ErrorIs(t, err, database.ErrNotInitialized)
}

func names(cs []models.Character) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Name)
	}
	return out
}
