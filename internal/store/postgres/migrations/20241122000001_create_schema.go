package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

var createSchema = []string{
	`CREATE TABLE IF NOT EXISTS quiz_sets (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS questions (
	id          TEXT PRIMARY KEY,
	quiz_set_id TEXT NOT NULL REFERENCES quiz_sets (id) ON DELETE CASCADE,
	body        TEXT NOT NULL,
	image_url   TEXT,
	"order"     INTEGER NOT NULL,
	UNIQUE (quiz_set_id, "order")
)`,
	`CREATE TABLE IF NOT EXISTS choices (
	id          TEXT PRIMARY KEY,
	question_id TEXT NOT NULL REFERENCES questions (id) ON DELETE CASCADE,
	body        TEXT NOT NULL,
	is_correct  BOOLEAN NOT NULL DEFAULT false,
	position    INTEGER NOT NULL DEFAULT 0
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS choices_one_correct_idx ON choices (question_id) WHERE is_correct`,
	`CREATE TABLE IF NOT EXISTS games (
	id                        TEXT PRIMARY KEY,
	quiz_set_id               TEXT NOT NULL REFERENCES quiz_sets (id),
	phase                     TEXT NOT NULL DEFAULT 'lobby' CHECK (phase IN ('lobby', 'quiz', 'result')),
	current_question_sequence INTEGER NOT NULL DEFAULT 0,
	is_answer_revealed        BOOLEAN NOT NULL DEFAULT false,
	question_started_at       TIMESTAMPTZ,
	created_at                TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS participants (
	id         TEXT PRIMARY KEY,
	game_id    TEXT NOT NULL REFERENCES games (id) ON DELETE CASCADE,
	nickname   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (game_id, nickname)
)`,
	`CREATE TABLE IF NOT EXISTS answers (
	id             TEXT PRIMARY KEY,
	participant_id TEXT NOT NULL REFERENCES participants (id) ON DELETE CASCADE,
	question_id    TEXT NOT NULL REFERENCES questions (id),
	choice_id      TEXT NOT NULL REFERENCES choices (id),
	score          INTEGER NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (participant_id, question_id)
)`,
	`CREATE INDEX IF NOT EXISTS answers_question_idx ON answers (question_id)`,
	`CREATE OR REPLACE VIEW game_results AS
SELECT p.game_id,
       p.id AS participant_id,
       p.nickname,
       p.created_at,
       COALESCE(SUM(a.score), 0)::INTEGER AS total_score
FROM participants p
LEFT JOIN answers a ON a.participant_id = p.id
GROUP BY p.game_id, p.id, p.nickname, p.created_at`,
}

var dropSchema = []string{
	`DROP VIEW IF EXISTS game_results`,
	`DROP TABLE IF EXISTS answers`,
	`DROP TABLE IF EXISTS participants`,
	`DROP TABLE IF EXISTS games`,
	`DROP TABLE IF EXISTS choices`,
	`DROP TABLE IF EXISTS questions`,
	`DROP TABLE IF EXISTS quiz_sets`,
}

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			return execAll(ctx, db, createSchema)
		},
		func(ctx context.Context, db *bun.DB) error {
			return execAll(ctx, db, dropSchema)
		},
	)
}

func execAll(ctx context.Context, db *bun.DB, stmts []string) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
		}
		return nil
	})
}
