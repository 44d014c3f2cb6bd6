// Package importer creates characters from remote character pages and from
// bulk JSON documents.
package importer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"character-nexus/backend/internal/models"
	"character-nexus/backend/internal/schema"
	"character-nexus/backend/internal/scraper"
	apperrors "character-nexus/backend/pkg/errors"
	"character-nexus/backend/pkg/logger"
	"character-nexus/backend/pkg/resilience"
)

// DefaultUniverse is assigned to characters imported from a page.
const DefaultUniverse = "JanitorAI"

// unknownName labels bulk entries that carry no usable name.
const unknownName = "Unknown"

// Scraper reads a character page.
type Scraper interface {
	Scrape(ctx context.Context, pageURL string) (*scraper.Result, error)
}

// ImageSaver downloads and stores a remote image, returning its filename.
type ImageSaver interface {
	DownloadAndSave(ctx context.Context, imageURL string) (string, error)
}

// CharacterCreator persists a validated character.
type CharacterCreator interface {
	Create(ctx context.Context, in *models.CharacterInput) (*models.Character, error)
}

// Options restricts which pages may be scraped.
type Options struct {
	AllowedDomains []string
	ForbiddenPaths []string
}

// Importer sequences scrape, image download and character creation.
type Importer struct {
	characters CharacterCreator
	scraper    Scraper
	images     ImageSaver
	breaker    *resilience.CircuitBreaker
	opts       Options
	log        *logger.Logger
}

// New builds an Importer. images may be nil, in which case imported characters
// never get an image.
func New(characters CharacterCreator, s Scraper, images ImageSaver, breaker *resilience.CircuitBreaker, opts Options, log *logger.Logger) *Importer {
	if log == nil {
		log = logger.GetGlobal()
	}
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.DefaultConfig("scraper"), log)
	}
	return &Importer{
		characters: characters,
		scraper:    s,
		images:     images,
		breaker:    breaker,
		opts:       opts,
		log:        log.WithComponent("importer"),
	}
}

// ImportFromURL validates the import request in doc, scrapes the page and
// creates the character. A failed image download does not fail the import.
func (im *Importer) ImportFromURL(ctx context.Context, doc map[string]any) (*models.Character, error) {
	pageURL, err := schema.ImportURL(doc)
	if err != nil {
		return nil, err
	}
	if err := im.checkURL(pageURL); err != nil {
		return nil, err
	}

	im.log.Info("Starting page import", "url", pageURL)

	var scraped *scraper.Result
	err = im.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		scraped, err = im.scraper.Scrape(ctx, pageURL)
		return err
	})
	if err != nil {
		im.log.Error("Page import failed", "url", pageURL, "error", err.Error())
		return nil, scrapeFailure(err)
	}

	var image string
	if scraped.ImageURL != "" && im.images != nil {
		image, err = im.images.DownloadAndSave(ctx, scraped.ImageURL)
		if err != nil {
			im.log.Warn("Failed to download character image",
				"image_url", scraped.ImageURL,
				"error", err.Error(),
			)
			image = ""
		}
	}

	in, err := schema.Character(characterDocument(scraped, image, pageURL))
	if err != nil {
		return nil, err
	}

	character, err := im.characters.Create(ctx, in)
	if err != nil {
		return nil, err
	}

	im.log.Info("Character imported",
		"id", character.ID,
		"name", character.Name,
		"has_image", image != "",
	)
	return character, nil
}

func (im *Importer) checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return apperrors.NewBadRequestError(apperrors.CodeInvalidURL, "Invalid URL format")
	}

	host := strings.ToLower(u.Hostname())
	allowed := false
	for _, d := range im.opts.AllowedDomains {
		if strings.EqualFold(host, d) {
			allowed = true
			break
		}
	}
	if !allowed {
		return apperrors.NewBadRequestError(apperrors.CodeInvalidURL,
			fmt.Sprintf("Invalid domain. Only %s allowed.", strings.Join(im.opts.AllowedDomains, ", ")))
	}

	path := strings.ToLower(u.Path)
	for _, p := range im.opts.ForbiddenPaths {
		if p != "" && strings.Contains(path, strings.ToLower(p)) {
			return apperrors.NewBadRequestError(apperrors.CodeInvalidURL, "Cannot scrape from restricted page: "+p)
		}
	}
	return nil
}

func scrapeFailure(err error) error {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return apperrors.NewError(apperrors.KindInternal, http.StatusServiceUnavailable, apperrors.CodeScrapingFailed,
			"Character page scraping is temporarily unavailable").WithCause(err)
	}
	return apperrors.NewError(apperrors.KindInternal, http.StatusBadGateway, apperrors.CodeScrapingFailed,
		"Failed to scrape character page").WithCause(err)
}

// characterDocument shapes a scrape result like a client-submitted character
// so it passes through the same schema.
func characterDocument(r *scraper.Result, image, pageURL string) map[string]any {
	tags := make([]any, 0, len(r.Tags))
	for _, t := range r.Tags {
		if len(tags) == schema.MaxTags {
			break
		}
		tags = append(tags, clip(t, schema.MaxTagLength))
	}

	rating := r.ContentRating
	if rating == "" {
		rating = models.RatingSFW
	}

	doc := map[string]any{
		"name":             clip(r.Name, schema.MaxNameLength),
		"chatName":         clip(r.Name, schema.MaxNameLength),
		"universe":         DefaultUniverse,
		"bio":              clip(r.Bio, schema.MaxBioLength),
		"personality":      clip(r.Personality, schema.MaxPersonalityLength),
		"scenario":         clip(r.Scenario, schema.MaxScenarioLength),
		"introMessage":     clip(r.IntroMessage, schema.MaxIntroMessageLength),
		"exampleDialogues": []any{},
		"tags":             tags,
		"contentRating":    rating,
		"source":           pageURL,
		"lastSyncedFrom":   pageURL,
	}
	if image != "" {
		doc["image"] = image
	}
	return doc
}

func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// ImportCharacters creates every document independently; one bad entry never
// blocks the others.
func (im *Importer) ImportCharacters(ctx context.Context, docs []map[string]any) (*models.BulkImportResult, error) {
	if len(docs) == 0 {
		return nil, apperrors.NewBadRequestError(apperrors.CodeValidation, "Invalid JSON data. Expected array of characters.")
	}

	result := &models.BulkImportResult{
		Success: []models.ImportedCharacter{},
		Failed:  []models.FailedImport{},
	}

	for _, doc := range docs {
		name := unknownName
		if s, ok := doc["name"].(string); ok && strings.TrimSpace(s) != "" {
			name = s
		}

		character, err := im.createOne(ctx, doc)
		if err != nil {
			result.Failed = append(result.Failed, models.FailedImport{Name: name, Error: failureMessage(err)})
			continue
		}
		result.Success = append(result.Success, models.ImportedCharacter{ID: character.ID, Name: character.Name})
	}

	im.log.Info("Bulk import completed",
		"total", len(docs),
		"success", len(result.Success),
		"failed", len(result.Failed),
	)
	return result, nil
}

func (im *Importer) createOne(ctx context.Context, doc map[string]any) (*models.Character, error) {
	if doc == nil {
		return nil, apperrors.NewBadRequestError(apperrors.CodeValidation, "Character entry must be an object")
	}
	in, err := schema.Character(doc)
	if err != nil {
		return nil, err
	}
	return im.characters.Create(ctx, in)
}

// failureMessage renders err for a bulk result without exposing storage causes.
func failureMessage(err error) string {
	appErr, ok := apperrors.As(err)
	if !ok {
		return "An unexpected error occurred"
	}
	fields := appErr.Fields()
	if len(fields) == 0 {
		return appErr.Message
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return appErr.Message + ": " + strings.Join(parts, "; ")
}
