package sqlite

import "database/sql"

// EnsureSchema creates all tables when they do not yet exist. Statements
// are idempotent so it is safe to call on every startup.
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS questions (
			question_id        TEXT PRIMARY KEY,
			author_id          TEXT NOT NULL,
			title              TEXT NOT NULL,
			description        TEXT NOT NULL,
			tags               TEXT NOT NULL DEFAULT '[]',
			view_count         INTEGER NOT NULL DEFAULT 0,
			upvotes            INTEGER NOT NULL DEFAULT 0,
			downvotes          INTEGER NOT NULL DEFAULT 0,
			score              INTEGER NOT NULL DEFAULT 0,
			accepted_answer_id TEXT,
			version            INTEGER NOT NULL DEFAULT 0,
			creation_time      TIMESTAMP NOT NULL,
			update_time        TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_questions_author ON questions(author_id)`,
		`CREATE INDEX IF NOT EXISTS idx_questions_created ON questions(creation_time DESC)`,
		`CREATE TABLE IF NOT EXISTS answers (
			answer_id     TEXT PRIMARY KEY,
			question_id   TEXT NOT NULL,
			author_id     TEXT NOT NULL,
			content       TEXT NOT NULL,
			is_accepted   INTEGER NOT NULL DEFAULT 0,
			upvotes       INTEGER NOT NULL DEFAULT 0,
			downvotes     INTEGER NOT NULL DEFAULT 0,
			score         INTEGER NOT NULL DEFAULT 0,
			creation_time TIMESTAMP NOT NULL,
			update_time   TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_answers_question ON answers(question_id)`,
		`CREATE TABLE IF NOT EXISTS comments (
			comment_id    TEXT PRIMARY KEY,
			answer_id     TEXT NOT NULL,
			question_id   TEXT NOT NULL,
			author_id     TEXT NOT NULL,
			content       TEXT NOT NULL,
			creation_time TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_answer ON comments(answer_id)`,
		`CREATE TABLE IF NOT EXISTS votes (
			actor_id    TEXT NOT NULL,
			target_kind TEXT NOT NULL,
			target_id   TEXT NOT NULL,
			vote_kind   TEXT NOT NULL,
			cast_at     TIMESTAMP NOT NULL,
			PRIMARY KEY (actor_id, target_kind, target_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_target ON votes(target_kind, target_id)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			notification_id TEXT PRIMARY KEY,
			recipient_id    TEXT NOT NULL,
			kind            TEXT NOT NULL,
			title           TEXT NOT NULL,
			message         TEXT NOT NULL,
			related_id      TEXT,
			is_read         INTEGER NOT NULL DEFAULT 0,
			creation_time   TIMESTAMP NOT NULL,
			read_time       TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, creation_time DESC)`,
		`CREATE TABLE IF NOT EXISTS outbox (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			op              TEXT NOT NULL,
			aggregate_id    TEXT NOT NULL,
			payload         TEXT NOT NULL DEFAULT '{}',
			status          TEXT NOT NULL DEFAULT 'pending',
			attempt_count   INTEGER NOT NULL DEFAULT 0,
			next_attempt_at TIMESTAMP NOT NULL,
			creation_time   TIMESTAMP NOT NULL,
			update_time     TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(status, next_attempt_at)`,
		`CREATE TABLE IF NOT EXISTS tag_stats (
			tag          TEXT PRIMARY KEY,
			usage_count  INTEGER NOT NULL DEFAULT 0,
			last_used_at TIMESTAMP NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
