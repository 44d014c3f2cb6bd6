package database

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS characters (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		chat_name TEXT,
		universe TEXT NOT NULL,
		image TEXT,
		bio TEXT,
		personality TEXT,
		scenario TEXT,
		intro_message TEXT,
		example_dialogues TEXT NOT NULL DEFAULT '[]',
		tags TEXT NOT NULL DEFAULT '[]',
		content_rating TEXT NOT NULL DEFAULT 'sfw' CHECK (content_rating IN ('sfw', 'nsfw')),
		notes TEXT,
		relationships TEXT NOT NULL DEFAULT '[]',
		custom_tags TEXT NOT NULL DEFAULT '[]',
		created TEXT NOT NULL,
		modified TEXT NOT NULL,
		source TEXT,
		last_synced_from TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_characters_universe ON characters(universe)`,
	`CREATE INDEX IF NOT EXISTS idx_characters_content_rating ON characters(content_rating)`,
	`CREATE INDEX IF NOT EXISTS idx_characters_created ON characters(created)`,

	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		character_id TEXT,
		title TEXT NOT NULL DEFAULT 'New Conversation',
		persona_name TEXT,
		message_count INTEGER NOT NULL DEFAULT 0,
		source_url TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		created TEXT NOT NULL,
		modified TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_character ON conversations(character_id)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_modified ON conversations(modified)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
		content TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL,
		order_index INTEGER NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		UNIQUE (conversation_id, order_index)
	)`,
}

// Migrate creates any missing tables and indexes.
func (d *DB) Migrate(ctx context.Context) error {
	return d.Transaction(ctx, func(q Querier) error {
		for _, stmt := range schema {
			if _, err := q.Execute(ctx, stmt); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
		}
		return nil
	})
}
