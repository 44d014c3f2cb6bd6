// Package service layers caching, tracing and image cleanup over the
// character repository.
package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"character-nexus/backend/internal/models"
	"character-nexus/backend/internal/repository"
	"character-nexus/backend/pkg/cache"
	"character-nexus/backend/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "character-nexus/backend/internal/service"

// CharacterStore is the persistence the service needs.
type CharacterStore interface {
	List(ctx context.Context, f models.CharacterFilter) ([]models.Character, error)
	Count(ctx context.Context, f models.CharacterFilter) (int64, error)
	Get(ctx context.Context, id string) (*models.Character, error)
	Create(ctx context.Context, in *models.CharacterInput) (*models.Character, error)
	Update(ctx context.Context, id string, in *models.CharacterInput) (*models.Character, error)
	Delete(ctx context.Context, id string) (*models.Character, error)
}

// ImageRemover deletes a stored character image.
type ImageRemover interface {
	Delete(ctx context.Context, filename string) error
}

// CharacterPage is one page of a character listing. Total counts every
// character matching the universe and rating filters, ignoring search.
type CharacterPage struct {
	Characters []models.Character
	Total      int64
	Limit      int
	Offset     int
}

type CharacterService struct {
	repo   CharacterStore
	cache  cache.Store
	ttl    time.Duration
	images ImageRemover
	tracer trace.Tracer
	log    *logger.Logger

	// generations counts invalidations per id. A read only fills the cache
	// when no invalidation happened since it started.
	genMu       sync.Mutex
	generations map[string]uint64
}

// NewCharacterService builds the service. A nil store disables caching and a
// nil images skips image cleanup.
func NewCharacterService(repo CharacterStore, store cache.Store, ttl time.Duration, images ImageRemover, log *logger.Logger) *CharacterService {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &CharacterService{
		repo:        repo,
		cache:       store,
		ttl:         ttl,
		images:      images,
		tracer:      otel.Tracer(tracerName),
		log:         log.WithComponent("character_service"),
		generations: make(map[string]uint64),
	}
}

func cacheKey(id string) string {
	return "character:" + id
}

func (s *CharacterService) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "CharacterService."+name, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// List returns one page of characters plus the filtered total.
func (s *CharacterService) List(ctx context.Context, f models.CharacterFilter) (page *CharacterPage, err error) {
	ctx, span := s.start(ctx, "List",
		attribute.String("filter.universe", f.Universe),
		attribute.String("filter.content_rating", f.ContentRating),
	)
	defer func() { finish(span, err) }()

	characters, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.Count(ctx, f)
	if err != nil {
		return nil, err
	}

	limit, offset := repository.ClampPagination(f.Limit, f.Offset)
	span.SetAttributes(attribute.Int("result.count", len(characters)))
	return &CharacterPage{Characters: characters, Total: total, Limit: limit, Offset: offset}, nil
}

// Get reads through the cache. Cache failures fall back to the repository.
func (s *CharacterService) Get(ctx context.Context, id string) (c *models.Character, err error) {
	ctx, span := s.start(ctx, "Get", attribute.String("character.id", id))
	defer func() { finish(span, err) }()

	if cached, ok := s.cached(ctx, id); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	gen := s.generation(id)
	c, err = s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.store(ctx, c, gen)
	return c, nil
}

func (s *CharacterService) Create(ctx context.Context, in *models.CharacterInput) (c *models.Character, err error) {
	ctx, span := s.start(ctx, "Create")
	defer func() { finish(span, err) }()

	c, err = s.repo.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("character.id", c.ID))
	return c, nil
}

func (s *CharacterService) Update(ctx context.Context, id string, in *models.CharacterInput) (c *models.Character, err error) {
	ctx, span := s.start(ctx, "Update", attribute.String("character.id", id))
	defer func() { finish(span, err) }()

	c, err = s.repo.Update(ctx, id, in)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return c, nil
}

// Delete removes the character, then its stored image. An image that cannot
// be removed is logged and left behind.
func (s *CharacterService) Delete(ctx context.Context, id string) (c *models.Character, err error) {
	ctx, span := s.start(ctx, "Delete", attribute.String("character.id", id))
	defer func() { finish(span, err) }()

	c, err = s.repo.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)

	if s.images != nil && c.Image != nil && *c.Image != "" {
		if err := s.images.Delete(ctx, *c.Image); err != nil {
			s.log.Warn("Failed to delete character image", "id", id, "image", *c.Image, "error", err.Error())
		}
	}
	return c, nil
}

func (s *CharacterService) cached(ctx context.Context, id string) (*models.Character, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, ok, err := s.cache.Get(ctx, cacheKey(id))
	if err != nil {
		s.log.Warn("Character cache read failed", "id", id, "error", err.Error())
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var c models.Character
	if err := json.Unmarshal(data, &c); err != nil {
		s.log.Warn("Discarding undecodable cache entry", "id", id, "error", err.Error())
		s.invalidate(ctx, id)
		return nil, false
	}
	return &c, true
}

func (s *CharacterService) generation(id string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[id]
}

// store caches c if id has not been invalidated since gen was read. The lock
// is held across Set so a concurrent invalidate deletes after it.
func (s *CharacterService) store(ctx context.Context, c *models.Character, gen uint64) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(c)
	if err != nil {
		return
	}

	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generations[c.ID] != gen {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(c.ID), data, s.ttl); err != nil {
		s.log.Warn("Character cache write failed", "id", c.ID, "error", err.Error())
	}
}

func (s *CharacterService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	s.genMu.Lock()
	s.generations[id]++
	s.genMu.Unlock()

	if err := s.cache.Delete(ctx, cacheKey(id)); err != nil {
		s.log.Warn("Character cache invalidation failed", "id", id, "error", err.Error())
	}
}
