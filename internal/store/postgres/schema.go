package postgres

import "database/sql"

// EnsureSchema creates all tables when they do not yet exist. Intended for
// dev and test databases; production deployments run migrations out of band.
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS questions (
			question_id        UUID PRIMARY KEY,
			author_id          TEXT NOT NULL,
			title              TEXT NOT NULL,
			description        TEXT NOT NULL,
			tags               JSONB NOT NULL DEFAULT '[]',
			view_count         BIGINT NOT NULL DEFAULT 0,
			upvotes            BIGINT NOT NULL DEFAULT 0,
			downvotes          BIGINT NOT NULL DEFAULT 0,
			score              BIGINT NOT NULL DEFAULT 0,
			accepted_answer_id UUID,
			version            BIGINT NOT NULL DEFAULT 0,
			creation_time      TIMESTAMPTZ NOT NULL DEFAULT now(),
			update_time        TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_questions_author ON questions(author_id)`,
		`CREATE INDEX IF NOT EXISTS idx_questions_created ON questions(creation_time DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_questions_tags ON questions USING GIN (tags)`,
		`CREATE TABLE IF NOT EXISTS answers (
			answer_id     UUID PRIMARY KEY,
			question_id   UUID NOT NULL,
			author_id     TEXT NOT NULL,
			content       TEXT NOT NULL,
			is_accepted   BOOLEAN NOT NULL DEFAULT FALSE,
			upvotes       BIGINT NOT NULL DEFAULT 0,
			downvotes     BIGINT NOT NULL DEFAULT 0,
			score         BIGINT NOT NULL DEFAULT 0,
			creation_time TIMESTAMPTZ NOT NULL DEFAULT now(),
			update_time   TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_answers_question ON answers(question_id)`,
		`CREATE TABLE IF NOT EXISTS comments (
			comment_id    UUID PRIMARY KEY,
			answer_id     UUID NOT NULL,
			question_id   UUID NOT NULL,
			author_id     TEXT NOT NULL,
			content       TEXT NOT NULL,
			creation_time TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_answer ON comments(answer_id)`,
		`CREATE TABLE IF NOT EXISTS votes (
			actor_id    TEXT NOT NULL,
			target_kind TEXT NOT NULL,
			target_id   UUID NOT NULL,
			vote_kind   TEXT NOT NULL,
			cast_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (actor_id, target_kind, target_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_target ON votes(target_kind, target_id)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			notification_id UUID PRIMARY KEY,
			recipient_id    TEXT NOT NULL,
			kind            TEXT NOT NULL,
			title           TEXT NOT NULL,
			message         TEXT NOT NULL,
			related_id      TEXT,
			is_read         BOOLEAN NOT NULL DEFAULT FALSE,
			creation_time   TIMESTAMPTZ NOT NULL DEFAULT now(),
			read_time       TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, creation_time DESC)`,
		`CREATE TABLE IF NOT EXISTS outbox (
			id              BIGSERIAL PRIMARY KEY,
			op              TEXT NOT NULL,
			aggregate_id    TEXT NOT NULL,
			payload         JSONB NOT NULL DEFAULT '{}',
			status          TEXT NOT NULL DEFAULT 'pending',
			attempt_count   INT NOT NULL DEFAULT 0,
			next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			creation_time   TIMESTAMPTZ NOT NULL DEFAULT now(),
			update_time     TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(status, next_attempt_at)`,
		`CREATE TABLE IF NOT EXISTS tag_stats (
			tag          TEXT PRIMARY KEY,
			usage_count  BIGINT NOT NULL DEFAULT 0,
			last_used_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
