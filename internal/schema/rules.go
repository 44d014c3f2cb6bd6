package schema

import (
	"net/url"

	"character-nexus/backend/internal/models"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	errNotString = validation.NewError("validation_is_string", "must be a string")
	errNotArray  = validation.NewError("validation_is_array", "must be an array")
	errNotObject = validation.NewError("validation_is_object", "must be an object")
	errNotURI    = validation.NewError("validation_is_uri", "must be a valid uri")
)

// Type checks run first so later rules only ever see the expected type.
var (
	isString = validation.By(func(value any) error {
		if _, ok := value.(string); !ok {
			return errNotString
		}
		return nil
	})
	isArray = validation.By(func(value any) error {
		if _, ok := value.([]any); !ok {
			return errNotArray
		}
		return nil
	})
	isObject = validation.By(func(value any) error {
		if _, ok := value.(map[string]any); !ok {
			return errNotObject
		}
		return nil
	})
	// isURI requires an absolute URI with a scheme. Empty strings pass.
	isURI = validation.By(func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || (u.Host == "" && u.Opaque == "") {
			return errNotURI
		}
		return nil
	})
)

func text(max int) []validation.Rule {
	return []validation.Rule{isString, validation.RuneLength(0, max)}
}

func requiredText(max int) []validation.Rule {
	return []validation.Rule{isString, validation.Required, validation.RuneLength(0, max)}
}

func uri(max int) []validation.Rule {
	return []validation.Rule{isString, validation.RuneLength(0, max), isURI}
}

func stringList(maxItems int, itemMax int) []validation.Rule {
	rules := []validation.Rule{isArray}
	if maxItems > 0 {
		rules = append(rules, validation.Length(0, maxItems))
	}
	return append(rules, validation.Each(text(itemMax)...))
}

func objectList(item validation.MapRule) []validation.Rule {
	return []validation.Rule{isArray, validation.Each(isObject, item)}
}

func enum(values ...string) []validation.Rule {
	allowed := make([]any, len(values))
	for i, v := range values {
		allowed[i] = v
	}
	return []validation.Rule{isString, validation.Required, validation.In(allowed...)}
}

func characterRules() validation.MapRule {
	dialogue := validation.Map(
		validation.Key("user", text(MaxDialogueLength)...).Optional(),
		validation.Key("bot", text(MaxDialogueLength)...).Optional(),
	)
	relationship := validation.Map(
		validation.Key("characterId", requiredText(MaxNameLength)...),
		validation.Key("type", enum(models.RelationshipTypes...)...),
		validation.Key("notes", text(MaxDescriptionLength)...).Optional(),
	)

	return validation.Map(
		validation.Key("name", requiredText(MaxNameLength)...),
		validation.Key("chatName", text(MaxNameLength)...).Optional(),
		validation.Key("universe", requiredText(MaxNameLength)...),
		validation.Key("image", isString).Optional(),
		validation.Key("bio", text(MaxBioLength)...).Optional(),
		validation.Key("personality", text(MaxPersonalityLength)...).Optional(),
		validation.Key("scenario", text(MaxScenarioLength)...).Optional(),
		validation.Key("introMessage", text(MaxIntroMessageLength)...).Optional(),
		validation.Key("exampleDialogues", objectList(dialogue)...).Optional(),
		validation.Key("tags", stringList(MaxTags, MaxTagLength)...).Optional(),
		validation.Key("contentRating", enum(models.RatingSFW, models.RatingNSFW)...).Optional(),
		validation.Key("notes", text(MaxNotesLength)...).Optional(),
		validation.Key("relationships", objectList(relationship)...).Optional(),
		validation.Key("customTags", stringList(MaxTags, MaxTagLength)...).Optional(),
		validation.Key("source", uri(MaxURLLength)...).Optional(),
		validation.Key("lastSyncedFrom", uri(MaxURLLength)...).Optional(),
	).AllowExtraKeys()
}

func groupRules() validation.MapRule {
	return validation.Map(
		validation.Key("name", requiredText(MaxNameLength)...),
		validation.Key("universe", requiredText(MaxNameLength)...),
		validation.Key("description", text(MaxDescriptionLength)...).Optional(),
		validation.Key("characters", stringList(0, MaxNameLength)...).Optional(),
	).AllowExtraKeys()
}

func universeRules() validation.MapRule {
	return validation.Map(
		validation.Key("name", requiredText(MaxNameLength)...),
		validation.Key("description", text(MaxDescriptionLength)...).Optional(),
	).AllowExtraKeys()
}

func importURLRules() validation.MapRule {
	return validation.Map(
		validation.Key("url", append(requiredText(MaxURLLength), isURI)...),
	).AllowExtraKeys()
}
