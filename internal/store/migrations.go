package store

import "database/sql"

type migration struct {
	version     int
	description string
	up          func(tx *sql.Tx) error
}

// Append new migrations to the end with incrementing versions
var migrations = []migration{
	{
		version:     1,
		description: "initial schema",
		up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS publishers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    name_key TEXT NOT NULL UNIQUE,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS authors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name_key TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL DEFAULT '',
    first_name TEXT NOT NULL DEFAULT '',
    middle_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    suffix TEXT NOT NULL DEFAULT '',
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS content (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT NOT NULL UNIQUE,
    kind TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL DEFAULT '',
    media TEXT NOT NULL DEFAULT 'Web',
    topic TEXT NOT NULL DEFAULT '',
    subtopics TEXT NOT NULL DEFAULT '[]',
    image TEXT NOT NULL DEFAULT '',
    thumbnail TEXT NOT NULL DEFAULT '',
    retracted INTEGER NOT NULL DEFAULT 0,
    publisher_id INTEGER REFERENCES publishers(id),
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS content_authors (
    content_id INTEGER NOT NULL REFERENCES content(id),
    author_id INTEGER NOT NULL REFERENCES authors(id),
    position INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (content_id, author_id)
);

CREATE TABLE IF NOT EXISTS content_references (
    content_id INTEGER NOT NULL REFERENCES content(id),
    url TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    origin TEXT NOT NULL,
    claims TEXT NOT NULL DEFAULT '[]',
    score REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (content_id, url)
);

CREATE TABLE IF NOT EXISTS content_relations (
    parent_id INTEGER NOT NULL REFERENCES content(id),
    child_id INTEGER NOT NULL REFERENCES content(id),
    system INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (parent_id, child_id)
);

CREATE TABLE IF NOT EXISTS claims (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    text TEXT NOT NULL UNIQUE,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS content_claims (
    content_id INTEGER NOT NULL REFERENCES content(id),
    claim_id INTEGER NOT NULL REFERENCES claims(id),
    relationship TEXT NOT NULL,
    PRIMARY KEY (content_id, claim_id, relationship)
);

CREATE TABLE IF NOT EXISTS claim_links (
    source_claim_id INTEGER NOT NULL REFERENCES claims(id),
    target_claim_id INTEGER NOT NULL REFERENCES claims(id),
    stance TEXT NOT NULL,
    support REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (source_claim_id, target_claim_id)
);
`)
			return err
		},
	},
	{
		version:     2,
		description: "lookup indexes",
		up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_content_claims_claim ON content_claims(claim_id);
CREATE INDEX IF NOT EXISTS idx_content_relations_child ON content_relations(child_id);
CREATE INDEX IF NOT EXISTS idx_claim_links_target ON claim_links(target_claim_id);
`)
			return err
		},
	},
}

func latestVersion() int {
	return migrations[len(migrations)-1].version
}
