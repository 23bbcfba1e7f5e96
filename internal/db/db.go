package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open connects to the SQLite database and runs schema migrations.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_foreign_keys=1", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite allows a single writer; one pooled connection also makes each
	// transaction the serialization point for concurrent requests.
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	if err := migrate(conn); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return conn, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS themes (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			keywords TEXT NOT NULL DEFAULT '[]',
			questions_count INTEGER NOT NULL DEFAULT 0,
			times_used INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE(user_id, name),
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS questions (
			id TEXT PRIMARY KEY,
			theme_id TEXT NOT NULL,
			kind TEXT NOT NULL CHECK(kind IN ('quiz','flashcard')),
			question_text TEXT NOT NULL,
			difficulty TEXT NOT NULL DEFAULT 'medium' CHECK(difficulty IN ('easy','medium','hard')),
			explanation TEXT,
			source TEXT NOT NULL DEFAULT 'ai_generated',
			times_used INTEGER NOT NULL DEFAULT 0,
			times_correct INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY(theme_id) REFERENCES themes(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS answers (
			id TEXT PRIMARY KEY,
			question_id TEXT NOT NULL,
			answer_text TEXT NOT NULL,
			is_correct INTEGER NOT NULL DEFAULT 0,
			position INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY(question_id) REFERENCES questions(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			theme_id TEXT,
			kind TEXT NOT NULL CHECK(kind IN ('quiz','flashcard')),
			questions_count INTEGER NOT NULL,
			question_ids TEXT NOT NULL DEFAULT '[]',
			score INTEGER,
			max_score INTEGER,
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY(theme_id) REFERENCES themes(id) ON DELETE SET NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_themes_user ON themes(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_questions_theme ON questions(theme_id);`,
		`CREATE INDEX IF NOT EXISTS idx_questions_kind ON questions(kind);`,
		`CREATE INDEX IF NOT EXISTS idx_answers_question ON answers(question_id);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_theme ON sessions(theme_id);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_completed ON sessions(completed_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("execute %q: %w", stmt, err)
		}
	}
	return nil
}
