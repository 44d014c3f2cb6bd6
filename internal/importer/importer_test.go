package importer

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"character-nexus/backend/internal/models"
	"character-nexus/backend/internal/scraper"
	apperrors "character-nexus/backend/pkg/errors"
	"character-nexus/backend/pkg/logger"
	"character-nexus/backend/pkg/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScraper struct {
	result *scraper.Result
	err    error
	calls  int
}

func (f *fakeScraper) Scrape(_ context.Context, pageURL string) (*scraper.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeImages struct {
	filename string
	err      error
	urls     []string
}

func (f *fakeImages) DownloadAndSave(_ context.Context, imageURL string) (string, error) {
	f.urls = append(f.urls, imageURL)
	return f.filename, f.err
}

type fakeCharacters struct {
	created []*models.CharacterInput
	err     error
}

func (f *fakeCharacters) Create(_ context.Context, in *models.CharacterInput) (*models.Character, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, in)
	return &models.Character{ID: "id-" + *in.Name, Name: *in.Name}, nil
}

var testOptions = Options{
	AllowedDomains: []string{"janitorai.com", "www.janitorai.com"},
	ForbiddenPaths: []string{"/admin", "/api", "/settings"},
}

const pageURL = "https://janitorai.com/characters/tony"

func newImporter(s Scraper, images ImageSaver, chars CharacterCreator) *Importer {
	breaker := resilience.NewCircuitBreaker(resilience.Config{Name: "scraper", FailureThreshold: 2, RetryTimeout: time.Minute}, logger.Discard())
	return New(chars, s, images, breaker, testOptions, logger.Discard())
}

func TestImportFromURLCreatesCharacterWithDefaults(t *testing.T) {
	s := &fakeScraper{result: &scraper.Result{
		Name:          "Tony",
		Bio:           "Genius",
		ImageURL:      "https://cdn.janitorai.com/tony.png",
		Tags:          []string{"hero"},
		ContentRating: models.RatingNSFW,
	}}
	images := &fakeImages{filename: "3f2504e0-4f89-41d3-9a0c-0305e82c3301.jpg"}
	chars := &fakeCharacters{}

	c, err := newImporter(s, images, chars).ImportFromURL(context.Background(), map[string]any{"url": pageURL})
	require.NoError(t, err)
	assert.Equal(t, "Tony", c.Name)
	assert.Equal(t, []string{"https://cdn.janitorai.com/tony.png"}, images.urls)

	require.Len(t, chars.created, 1)
	in := chars.created[0]
	assert.Equal(t, "Tony", *in.ChatName)
	assert.Equal(t, DefaultUniverse, *in.Universe)
	assert.Equal(t, images.filename, *in.Image)
	assert.Equal(t, []string{"hero"}, *in.Tags)
	assert.Equal(t, models.RatingNSFW, *in.ContentRating)
	assert.Equal(t, pageURL, *in.Source)
	assert.Equal(t, pageURL, *in.LastSyncedFrom)
}

func TestImportFromURLSwallowsImageFailure(t *testing.T) {
	s := &fakeScraper{result: &scraper.Result{Name: "Tony", ImageURL: "https://cdn.janitorai.com/x.png"}}
	chars := &fakeCharacters{}

	_, err := newImporter(s, &fakeImages{err: errors.New("timeout")}, chars).
		ImportFromURL(context.Background(), map[string]any{"url": pageURL})
	require.NoError(t, err)
	require.Len(t, chars.created, 1)
	assert.Nil(t, chars.created[0].Image)
}

func TestImportFromURLRejectsURLs(t *testing.T) {
	s := &fakeScraper{}
	im := newImporter(s, nil, &fakeCharacters{})

	cases := map[string]string{
		"https://evil.com/characters/x":   apperrors.CodeInvalidURL,
		"https://janitorai.com/api/users": apperrors.CodeInvalidURL,
		"https://janitorai.com/ADMIN":     apperrors.CodeInvalidURL,
		"not a url":                       apperrors.CodeValidation,
	}
	for raw, code := range cases {
		_, err := im.ImportFromURL(context.Background(), map[string]any{"url": raw})
		require.Error(t, err, raw)
		assert.Equal(t, code, apperrors.GetErrorCode(err), raw)
		assert.Equal(t, http.StatusBadRequest, apperrors.GetStatusCode(err), raw)
	}

	_, err := im.ImportFromURL(context.Background(), map[string]any{})
	assert.Equal(t, apperrors.CodeValidation, apperrors.GetErrorCode(err))
	assert.Zero(t, s.calls, "rejected urls are never fetched")
}

func TestImportFromURLScrapeFailureOpensBreaker(t *testing.T) {
	s := &fakeScraper{err: errors.New("connection refused")}
	chars := &fakeCharacters{}
	im := newImporter(s, nil, chars)
	doc := map[string]any{"url": pageURL}

	for i := 0; i < 2; i++ {
		_, err := im.ImportFromURL(context.Background(), doc)
		assert.Equal(t, apperrors.CodeScrapingFailed, apperrors.GetErrorCode(err))
		assert.Equal(t, http.StatusBadGateway, apperrors.GetStatusCode(err))
	}

	_, err := im.ImportFromURL(context.Background(), doc)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.GetStatusCode(err))
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, s.calls)
	assert.Empty(t, chars.created)
}

func TestImportCharactersReportsEachEntry(t *testing.T) {
	chars := &fakeCharacters{}
	im := newImporter(&fakeScraper{}, nil, chars)

	result, err := im.ImportCharacters(context.Background(), []map[string]any{
		{"name": "Ada", "universe": "Math"},
		{"universe": "Nowhere"},
		{"name": "Bob"},
		nil,
	})
	require.NoError(t, err)

	assert.Equal(t, []models.ImportedCharacter{{ID: "id-Ada", Name: "Ada"}}, result.Success)
	require.Len(t, result.Failed, 3)
	assert.Equal(t, "Unknown", result.Failed[0].Name)
	assert.Contains(t, result.Failed[0].Error, "name")
	assert.Equal(t, "Bob", result.Failed[1].Name)
	assert.Contains(t, result.Failed[1].Error, "universe")
	assert.Equal(t, "Unknown", result.Failed[2].Name)
}

func TestImportCharactersHidesStorageCauses(t *testing.T) {
	chars := &fakeCharacters{err: apperrors.NewDatabaseError("Failed to create character", errors.New("disk I/O error"))}
	im := newImporter(&fakeScraper{}, nil, chars)

	result, err := im.ImportCharacters(context.Background(), []map[string]any{{"name": "Ada", "universe": "Math"}})
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "Failed to create character", result.Failed[0].Error)
}

func TestImportCharactersRequiresEntries(t *testing.T) {
	im := newImporter(&fakeScraper{}, nil, &fakeCharacters{})

	_, err := im.ImportCharacters(context.Background(), nil)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}
