package repository

import (
	"context"
	"strings"
	"time"

	"character-nexus/backend/internal/models"
	"character-nexus/backend/internal/sanitize"
	"character-nexus/backend/pkg/database"
	apperrors "character-nexus/backend/pkg/errors"
	"character-nexus/backend/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const characterColumns = `id, name, chat_name, universe, image, bio, personality, scenario,
	intro_message, example_dialogues, tags, content_rating, notes, relationships,
	custom_tags, created, modified, source, last_synced_from`

var characterSort = sortSpec{
	columns: map[string]string{
		"created":       "created",
		"modified":      "modified",
		"name":          "name",
		"universe":      "universe",
		"contentRating": "content_rating",
	},
	defaultField: "created",
}

type characterRow struct {
	ID               string         `gorm:"column:id"`
	Name             string         `gorm:"column:name"`
	ChatName         *string        `gorm:"column:chat_name"`
	Universe         string         `gorm:"column:universe"`
	Image            *string        `gorm:"column:image"`
	Bio              *string        `gorm:"column:bio"`
	Personality      *string        `gorm:"column:personality"`
	Scenario         *string        `gorm:"column:scenario"`
	IntroMessage     *string        `gorm:"column:intro_message"`
	ExampleDialogues datatypes.JSON `gorm:"column:example_dialogues"`
	Tags             datatypes.JSON `gorm:"column:tags"`
	ContentRating    string         `gorm:"column:content_rating"`
	Notes            *string        `gorm:"column:notes"`
	Relationships    datatypes.JSON `gorm:"column:relationships"`
	CustomTags       datatypes.JSON `gorm:"column:custom_tags"`
	Created          string         `gorm:"column:created"`
	Modified         string         `gorm:"column:modified"`
	Source           *string        `gorm:"column:source"`
	LastSyncedFrom   *string        `gorm:"column:last_synced_from"`
}

func (r *characterRow) model() models.Character {
	return models.Character{
		ID:               r.ID,
		Name:             r.Name,
		ChatName:         r.ChatName,
		Universe:         r.Universe,
		Image:            r.Image,
		Bio:              r.Bio,
		Personality:      r.Personality,
		Scenario:         r.Scenario,
		IntroMessage:     r.IntroMessage,
		ExampleDialogues: decodeList[models.ExampleDialogue](r.ExampleDialogues),
		Tags:             decodeList[string](r.Tags),
		ContentRating:    r.ContentRating,
		Notes:            r.Notes,
		Relationships:    decodeList[models.Relationship](r.Relationships),
		CustomTags:       decodeList[string](r.CustomTags),
		Created:          parseTime(r.Created),
		Modified:         parseTime(r.Modified),
		Source:           r.Source,
		LastSyncedFrom:   r.LastSyncedFrom,
	}
}

// CharacterRepository reads and writes the characters table.
type CharacterRepository struct {
	store Store
	log   *logger.Logger
	now   func() time.Time
}

func NewCharacterRepository(store Store, log *logger.Logger) *CharacterRepository {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &CharacterRepository{
		store: store,
		log:   log.WithComponent("character_repository"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func characterFilters(f models.CharacterFilter, withSearch bool) *where {
	w := &where{}
	if f.Universe != "" {
		w.add("universe = ?", f.Universe)
	}
	if f.ContentRating != "" {
		w.add("content_rating = ?", f.ContentRating)
	}
	if withSearch && f.Search != "" {
		pattern := containsPattern(f.Search)
		w.add(`(name LIKE ? ESCAPE '\' OR bio LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	return w
}

// List returns one page of characters matching f.
func (r *CharacterRepository) List(ctx context.Context, f models.CharacterFilter) ([]models.Character, error) {
	order, err := characterSort.orderBy(f.SortBy, f.SortOrder)
	if err != nil {
		return nil, err
	}
	limit, offset := ClampPagination(f.Limit, f.Offset)

	w := characterFilters(f, true)
	query := "SELECT " + characterColumns + " FROM characters" + w.String() +
		" ORDER BY " + order + " LIMIT ? OFFSET ?"

	var rows []characterRow
	if err := r.store.FetchAll(ctx, &rows, query, append(w.args, limit, offset)...); err != nil {
		return nil, storeFailure(r.log, "Failed to fetch characters", err)
	}

	characters := make([]models.Character, 0, len(rows))
	for i := range rows {
		characters = append(characters, rows[i].model())
	}
	return characters, nil
}

// Count returns the number of characters matching the universe and content
// rating of f. Search and pagination do not apply.
func (r *CharacterRepository) Count(ctx context.Context, f models.CharacterFilter) (int64, error) {
	w := characterFilters(f, false)

	var count int64
	if _, err := r.store.FetchOne(ctx, &count, "SELECT COUNT(*) FROM characters"+w.String(), w.args...); err != nil {
		return 0, storeFailure(r.log, "Failed to get character count", err)
	}
	return count, nil
}

// Get returns the character with id or a not_found error.
func (r *CharacterRepository) Get(ctx context.Context, id string) (*models.Character, error) {
	c, err := r.get(ctx, r.store, id)
	if err != nil {
		return nil, storeFailure(r.log, "Failed to fetch character", err, "id", id)
	}
	return c, nil
}

func (r *CharacterRepository) get(ctx context.Context, q database.Querier, id string) (*models.Character, error) {
	var row characterRow
	found, err := q.FetchOne(ctx, &row, "SELECT "+characterColumns+" FROM characters WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.NotFoundf("Character", id)
	}
	c := row.model()
	return &c, nil
}

// Create stores a new character and returns it as read back from the store.
func (r *CharacterRepository) Create(ctx context.Context, in *models.CharacterInput) (*models.Character, error) {
	if err := requireCharacterFields(in); err != nil {
		return nil, err
	}

	dialogues, err := encodeJSON(orEmpty(in.ExampleDialogues))
	if err != nil {
		return nil, apperrors.NewBadRequestError(apperrors.CodeValidation, "Invalid exampleDialogues")
	}
	tags, _ := encodeJSON(orEmpty(in.Tags))
	customTags, _ := encodeJSON(orEmpty(in.CustomTags))
	relationships, _ := encodeJSON(orEmpty(in.Relationships))

	rating := models.RatingSFW
	if in.ContentRating != nil && *in.ContentRating != "" {
		rating = *in.ContentRating
	}

	id := uuid.NewString()
	now := formatTime(r.now())

	var created *models.Character
	err = r.store.Transaction(ctx, func(q database.Querier) error {
		_, err := q.Execute(ctx, `INSERT INTO characters (
			id, name, chat_name, universe, image, bio, personality, scenario, intro_message,
			example_dialogues, tags, content_rating, notes, relationships, custom_tags,
			created, modified, source, last_synced_from
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id,
			*in.Name,
			nullable(in.ChatName),
			*in.Universe,
			nullable(in.Image),
			nullable(sanitize.Ptr(in.Bio)),
			nullable(sanitize.Ptr(in.Personality)),
			nullable(sanitize.Ptr(in.Scenario)),
			nullable(sanitize.Ptr(in.IntroMessage)),
			dialogues,
			tags,
			rating,
			nullable(sanitize.Ptr(in.Notes)),
			relationships,
			customTags,
			now,
			now,
			nullable(in.Source),
			nullable(in.LastSyncedFrom),
		)
		if err != nil {
			return err
		}

		created, err = r.get(ctx, q, id)
		return err
	})
	if err != nil {
		return nil, storeFailure(r.log, "Failed to create character", err)
	}

	r.log.Info("Character created", "id", id, "name", created.Name)
	return created, nil
}

// Update applies the non-nil fields of in and refreshes modified. An empty
// input returns the current record unchanged.
func (r *CharacterRepository) Update(ctx context.Context, id string, in *models.CharacterInput) (*models.Character, error) {
	var updated *models.Character
	err := r.store.Transaction(ctx, func(q database.Querier) error {
		current, err := r.get(ctx, q, id)
		if err != nil {
			return err
		}
		if in == nil || in.IsEmpty() {
			updated = current
			return nil
		}

		set, args, err := characterAssignments(in)
		if err != nil {
			return err
		}
		set = append(set, "modified = ?")
		args = append(args, formatTime(r.now()), id)

		if _, err := q.Execute(ctx, "UPDATE characters SET "+strings.Join(set, ", ")+" WHERE id = ?", args...); err != nil {
			return err
		}

		updated, err = r.get(ctx, q, id)
		return err
	})
	if err != nil {
		return nil, storeFailure(r.log, "Failed to update character", err, "id", id)
	}

	r.log.Info("Character updated", "id", id)
	return updated, nil
}

// Delete removes the character and returns the deleted snapshot.
func (r *CharacterRepository) Delete(ctx context.Context, id string) (*models.Character, error) {
	var deleted *models.Character
	err := r.store.Transaction(ctx, func(q database.Querier) error {
		current, err := r.get(ctx, q, id)
		if err != nil {
			return err
		}
		if _, err := q.Execute(ctx, "DELETE FROM characters WHERE id = ?", id); err != nil {
			return err
		}
		deleted = current
		return nil
	})
	if err != nil {
		return nil, storeFailure(r.log, "Failed to delete character", err, "id", id)
	}

	r.log.Info("Character deleted", "id", id, "name", deleted.Name)
	return deleted, nil
}

func requireCharacterFields(in *models.CharacterInput) error {
	var fields []apperrors.FieldError
	if in == nil || in.Name == nil || *in.Name == "" {
		fields = append(fields, apperrors.FieldError{Field: "name", Message: "cannot be blank"})
	}
	if in == nil || in.Universe == nil || *in.Universe == "" {
		fields = append(fields, apperrors.FieldError{Field: "universe", Message: "cannot be blank"})
	}
	if len(fields) > 0 {
		return apperrors.NewValidationError("Validation failed", fields)
	}
	return nil
}

// characterAssignments lists SET fragments for every field present in in.
// Column names come from this fixed list only.
func characterAssignments(in *models.CharacterInput) ([]string, []any, error) {
	var set []string
	var args []any
	text := func(column string, v *string, clean bool) {
		if v == nil {
			return
		}
		if clean {
			v = sanitize.Ptr(v)
		}
		set = append(set, column+" = ?")
		args = append(args, nullable(v))
	}
	required := func(column string, v *string) {
		if v == nil {
			return
		}
		set = append(set, column+" = ?")
		args = append(args, *v)
	}
	var encodeErr error
	list := func(column string, v any, present bool) {
		if !present {
			return
		}
		raw, err := encodeJSON(v)
		if err != nil {
			encodeErr = err
			return
		}
		set = append(set, column+" = ?")
		args = append(args, raw)
	}

	required("name", in.Name)
	text("chat_name", in.ChatName, false)
	required("universe", in.Universe)
	text("image", in.Image, false)
	text("bio", in.Bio, true)
	text("personality", in.Personality, true)
	text("scenario", in.Scenario, true)
	text("intro_message", in.IntroMessage, true)
	list("example_dialogues", orEmpty(in.ExampleDialogues), in.ExampleDialogues != nil)
	list("tags", orEmpty(in.Tags), in.Tags != nil)
	if in.ContentRating != nil && *in.ContentRating != "" {
		required("content_rating", in.ContentRating)
	}
	text("notes", in.Notes, true)
	list("relationships", orEmpty(in.Relationships), in.Relationships != nil)
	list("custom_tags", orEmpty(in.CustomTags), in.CustomTags != nil)
	text("source", in.Source, false)
	text("last_synced_from", in.LastSyncedFrom, false)

	return set, args, encodeErr
}

// orEmpty dereferences p, substituting an empty non-nil slice.
func orEmpty[T any](p *[]T) []T {
	if p == nil || *p == nil {
		return []T{}
	}
	return *p
}
