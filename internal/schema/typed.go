package schema

import "character-nexus/backend/internal/models"

// Character validates doc as a character and converts it to an input value.
func Character(doc map[string]any) (*models.CharacterInput, error) {
	out, err := Validate(CharacterSchema, doc)
	if err != nil {
		return nil, err
	}
	return CharacterInput(out), nil
}

// ImportURL validates an import request and returns its url.
func ImportURL(doc map[string]any) (string, error) {
	out, err := Validate(ImportURLSchema, doc)
	if err != nil {
		return "", err
	}
	s, _ := out["url"].(string)
	return s, nil
}

// CharacterInput converts an already validated character document.
func CharacterInput(doc map[string]any) *models.CharacterInput {
	in := &models.CharacterInput{
		Name:           stringField(doc, "name"),
		ChatName:       stringField(doc, "chatName"),
		Universe:       stringField(doc, "universe"),
		Image:          stringField(doc, "image"),
		Bio:            stringField(doc, "bio"),
		Personality:    stringField(doc, "personality"),
		Scenario:       stringField(doc, "scenario"),
		IntroMessage:   stringField(doc, "introMessage"),
		ContentRating:  stringField(doc, "contentRating"),
		Notes:          stringField(doc, "notes"),
		Source:         stringField(doc, "source"),
		LastSyncedFrom: stringField(doc, "lastSyncedFrom"),
		Tags:           stringsField(doc, "tags"),
		CustomTags:     stringsField(doc, "customTags"),
	}

	if items, ok := doc["exampleDialogues"].([]any); ok {
		dialogues := make([]models.ExampleDialogue, 0, len(items))
		for _, item := range items {
			obj, _ := item.(map[string]any)
			user, _ := obj["user"].(string)
			bot, _ := obj["bot"].(string)
			dialogues = append(dialogues, models.ExampleDialogue{User: user, Bot: bot})
		}
		in.ExampleDialogues = &dialogues
	}

	if items, ok := doc["relationships"].([]any); ok {
		relationships := make([]models.Relationship, 0, len(items))
		for _, item := range items {
			obj, _ := item.(map[string]any)
			id, _ := obj["characterId"].(string)
			kind, _ := obj["type"].(string)
			notes, _ := obj["notes"].(string)
			relationships = append(relationships, models.Relationship{CharacterID: id, Type: kind, Notes: notes})
		}
		in.Relationships = &relationships
	}

	return in
}

func stringField(doc map[string]any, key string) *string {
	s, ok := doc[key].(string)
	if !ok {
		return nil
	}
	return &s
}

func stringsField(doc map[string]any, key string) *[]string {
	items, ok := doc[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return &out
}
