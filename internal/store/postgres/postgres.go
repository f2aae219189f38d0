// Package postgres implements the store contract on PostgreSQL via the
// pgx stdlib driver. It is the storage backend for cloud builds.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/askloop/askloop/server/internal/model"
	"github.com/askloop/askloop/server/internal/store"
)

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements store.Store and store.TxRunner over PostgreSQL.
type Store struct {
	db *sql.DB
	q  dbtx
}

// Open connects with the given DSN and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

var (
	_ store.Store    = (*Store)(nil)
	_ store.TxRunner = (*Store)(nil)
)

func (s *Store) Questions() store.Questions         { return &questions{s} }
func (s *Store) Answers() store.Answers             { return &answers{s} }
func (s *Store) Votes() store.Votes                 { return &votes{s} }
func (s *Store) Comments() store.Comments           { return &comments{s} }
func (s *Store) Notifications() store.Notifications { return &notifications{s} }
func (s *Store) Outbox() store.Outbox               { return &outbox{s} }
func (s *Store) Tags() store.Tags                   { return &tags{s} }

func (s *Store) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) RunInTx(ctx context.Context, fn func(store.Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SQLSTATE 23505 is unique_violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}

func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("marshal tags: %w", err)
	}
	return string(b), nil
}

// --- questions ---

type questions struct{ s *Store }

const questionCols = `question_id, author_id, title, description, tags, view_count,
	upvotes, downvotes, score, accepted_answer_id, version, creation_time, update_time`

func scanQuestion(row interface{ Scan(...any) error }) (*model.Question, error) {
	var (
		q        model.Question
		tagsJSON []byte
		accepted sql.NullString
		updated  sql.NullTime
	)
	err := row.Scan(&q.QuestionID, &q.AuthorID, &q.Title, &q.Description, &tagsJSON,
		&q.ViewCount, &q.Counters.Upvotes, &q.Counters.Downvotes, &q.Counters.Score,
		&accepted, &q.Version, &q.CreationTime, &updated)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tagsJSON, &q.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if accepted.Valid {
		q.AcceptedAnswerID = &accepted.String
		q.HasAccepted = true
	}
	if updated.Valid {
		t := updated.Time
		q.UpdateTime = &t
	}
	return &q, nil
}

func (c *questions) Create(ctx context.Context, q *model.Question) (*model.Question, error) {
	tags, err := marshalTags(q.Tags)
	if err != nil {
		return nil, err
	}
	row := c.s.q.QueryRowContext(ctx,
		`INSERT INTO questions (question_id, author_id, title, description, tags)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+questionCols,
		q.QuestionID, q.AuthorID, q.Title, q.Description, tags)
	created, err := scanQuestion(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.ErrConflict
		}
		return nil, fmt.Errorf("insert question: %w", err)
	}
	return created, nil
}

func (c *questions) GetByID(ctx context.Context, questionID string) (*model.Question, error) {
	row := c.s.q.QueryRowContext(ctx,
		`SELECT `+questionCols+` FROM questions WHERE question_id = $1`, questionID)
	q, err := scanQuestion(row)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

func (c *questions) Update(ctx context.Context, q *model.Question) (*model.Question, error) {
	tags, err := marshalTags(q.Tags)
	if err != nil {
		return nil, err
	}
	row := c.s.q.QueryRowContext(ctx,
		`UPDATE questions SET title = $1, description = $2, tags = $3, update_time = now()
		 WHERE question_id = $4
		 RETURNING `+questionCols,
		q.Title, q.Description, tags, q.QuestionID)
	updated, err := scanQuestion(row)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update question: %w", err)
	}
	return updated, nil
}

func (c *questions) Delete(ctx context.Context, questionID string) error {
	return c.s.RunInTx(ctx, func(txs store.Store) error {
		q := txs.(*Store).q
		res, err := q.ExecContext(ctx, `DELETE FROM questions WHERE question_id = $1`, questionID)
		if err != nil {
			return fmt.Errorf("delete question: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.ErrNotFound
		}
		cascades := []string{
			`DELETE FROM votes WHERE (target_kind = 'question' AND target_id = $1)
			   OR (target_kind = 'answer' AND target_id IN (SELECT answer_id FROM answers WHERE question_id = $1))`,
			`DELETE FROM notifications WHERE related_id = $1
			   OR related_id IN (SELECT answer_id::text FROM answers WHERE question_id = $1)`,
			`DELETE FROM comments WHERE question_id = $1`,
			`DELETE FROM answers WHERE question_id = $1`,
		}
		for _, stmt := range cascades {
			if _, err := q.ExecContext(ctx, stmt, questionID); err != nil {
				return fmt.Errorf("cascade delete question: %w", err)
			}
		}
		return nil
	})
}

func (c *questions) List(ctx context.Context, f model.QuestionFilter) ([]*model.Question, int, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Query != "" {
		needle := "%" + strings.ToLower(f.Query) + "%"
		p1, p2 := arg(needle), arg(needle)
		conds = append(conds, fmt.Sprintf(`(lower(title) LIKE %s OR lower(description) LIKE %s)`, p1, p2))
	}
	for _, tag := range f.Tags {
		conds = append(conds, fmt.Sprintf(`tags @> jsonb_build_array(%s::text)`, arg(tag)))
	}
	if f.AuthorID != "" {
		conds = append(conds, fmt.Sprintf(`author_id = %s`, arg(f.AuthorID)))
	}
	if f.HasAccepted != nil {
		if *f.HasAccepted {
			conds = append(conds, `accepted_answer_id IS NOT NULL`)
		} else {
			conds = append(conds, `accepted_answer_id IS NULL`)
		}
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := c.s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count questions: %w", err)
	}

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	pLimit, pOffset := arg(limit), arg((page-1)*limit)
	rows, err := c.s.q.QueryContext(ctx,
		`SELECT `+questionCols+` FROM questions`+where+
			` ORDER BY creation_time DESC LIMIT `+pLimit+` OFFSET `+pOffset, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []*model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, total, rows.Err()
}

func (c *questions) ApplyScoreDelta(ctx context.Context, questionID string, d model.ScoreDelta) (*model.ScoreCounters, error) {
	row := c.s.q.QueryRowContext(ctx,
		`UPDATE questions SET upvotes = upvotes + $1, downvotes = downvotes + $2, score = score + $3
		 WHERE question_id = $4
		 RETURNING upvotes, downvotes, score`,
		d.Upvotes, d.Downvotes, d.Upvotes-d.Downvotes, questionID)
	var sc model.ScoreCounters
	if err := row.Scan(&sc.Upvotes, &sc.Downvotes, &sc.Score); err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("apply question score delta: %w", err)
	}
	return &sc, nil
}

func (c *questions) IncrementViewCount(ctx context.Context, questionID string) error {
	res, err := c.s.q.ExecContext(ctx,
		`UPDATE questions SET view_count = view_count + 1 WHERE question_id = $1`, questionID)
	if err != nil {
		return fmt.Errorf("increment view count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (c *questions) SetAccepted(ctx context.Context, questionID string, answerID *string, expectedVersion int64) error {
	res, err := c.s.q.ExecContext(ctx,
		`UPDATE questions SET accepted_answer_id = $1, version = version + 1, update_time = now()
		 WHERE question_id = $2 AND version = $3`,
		answerID, questionID, expectedVersion)
	if err != nil {
		return fmt.Errorf("set accepted answer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := c.s.q.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM questions WHERE question_id = $1)`, questionID).Scan(&exists); err != nil {
			return fmt.Errorf("set accepted answer: %w", err)
		}
		if !exists {
			return model.ErrNotFound
		}
		return model.ErrConflict
	}
	return nil
}

func (c *questions) CountAnswers(ctx context.Context, questionID string) (int, error) {
	var n int
	err := c.s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM answers WHERE question_id = $1`, questionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count answers: %w", err)
	}
	return n, nil
}

func (c *questions) FindLexical(ctx context.Context, tags []string, titleWords []string, excludeID string, limit int) ([]*model.Question, error) {
	var (
		ors  []string
		args []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	exclude := arg(excludeID)
	for _, tag := range tags {
		ors = append(ors, fmt.Sprintf(`tags @> jsonb_build_array(%s::text)`, arg(tag)))
	}
	for _, w := range titleWords {
		ors = append(ors, fmt.Sprintf(`position(%s in lower(title)) > 0`, arg(strings.ToLower(w))))
	}
	if len(ors) == 0 {
		return nil, nil
	}
	pLimit := arg(limit)
	rows, err := c.s.q.QueryContext(ctx,
		`SELECT `+questionCols+` FROM questions
		 WHERE question_id != `+exclude+` AND (`+strings.Join(ors, " OR ")+`)
		 ORDER BY creation_time DESC LIMIT `+pLimit, args...)
	if err != nil {
		return nil, fmt.Errorf("find lexical: %w", err)
	}
	defer rows.Close()

	var out []*model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// --- answers ---

type answers struct{ s *Store }

const answerCols = `answer_id, question_id, author_id, content, is_accepted,
	upvotes, downvotes, score, creation_time, update_time`

func scanAnswer(row interface{ Scan(...any) error }) (*model.Answer, error) {
	var (
		a       model.Answer
		updated sql.NullTime
	)
	err := row.Scan(&a.AnswerID, &a.QuestionID, &a.AuthorID, &a.Content, &a.IsAccepted,
		&a.Counters.Upvotes, &a.Counters.Downvotes, &a.Counters.Score,
		&a.CreationTime, &updated)
	if err != nil {
		return nil, err
	}
	if updated.Valid {
		t := updated.Time
		a.UpdateTime = &t
	}
	return &a, nil
}

func (c *answers) Create(ctx context.Context, a *model.Answer) (*model.Answer, error) {
	row := c.s.q.QueryRowContext(ctx,
		`INSERT INTO answers (answer_id, question_id, author_id, content)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+answerCols,
		a.AnswerID, a.QuestionID, a.AuthorID, a.Content)
	created, err := scanAnswer(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.ErrConflict
		}
		return nil, fmt.Errorf("insert answer: %w", err)
	}
	return created, nil
}

func (c *answers) GetByID(ctx context.Context, answerID string) (*model.Answer, error) {
	row := c.s.q.QueryRowContext(ctx,
		`SELECT `+answerCols+` FROM answers WHERE answer_id = $1`, answerID)
	a, err := scanAnswer(row)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get answer: %w", err)
	}
	return a, nil
}

func (c *answers) Update(ctx context.Context, a *model.Answer) (*model.Answer, error) {
	row := c.s.q.QueryRowContext(ctx,
		`UPDATE answers SET content = $1, update_time = now()
		 WHERE answer_id = $2
		 RETURNING `+answerCols,
		a.Content, a.AnswerID)
	updated, err := scanAnswer(row)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update answer: %w", err)
	}
	return updated, nil
}

func (c *answers) Delete(ctx context.Context, answerID string) error {
	return c.s.RunInTx(ctx, func(txs store.Store) error {
		q := txs.(*Store).q
		if _, err := q.ExecContext(ctx,
			`UPDATE questions SET accepted_answer_id = NULL, version = version + 1
			 WHERE accepted_answer_id = $1`, answerID); err != nil {
			return fmt.Errorf("clear accepted pointer: %w", err)
		}
		res, err := q.ExecContext(ctx, `DELETE FROM answers WHERE answer_id = $1`, answerID)
		if err != nil {
			return fmt.Errorf("delete answer: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.ErrNotFound
		}
		cascades := []string{
			`DELETE FROM comments WHERE answer_id = $1`,
			`DELETE FROM votes WHERE target_kind = 'answer' AND target_id = $1`,
			`DELETE FROM notifications WHERE related_id = $1`,
		}
		for _, stmt := range cascades {
			if _, err := q.ExecContext(ctx, stmt, answerID); err != nil {
				return fmt.Errorf("cascade delete answer: %w", err)
			}
		}
		return nil
	})
}

func (c *answers) ListByQuestion(ctx context.Context, questionID string) ([]*model.Answer, error) {
	rows, err := c.s.q.QueryContext(ctx,
		`SELECT `+answerCols+` FROM answers WHERE question_id = $1 ORDER BY creation_time ASC`, questionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var out []*model.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (c *answers) ApplyScoreDelta(ctx context.Context, answerID string, d model.ScoreDelta) (*model.ScoreCounters, error) {
	row := c.s.q.QueryRowContext(ctx,
		`UPDATE answers SET upvotes = upvotes + $1, downvotes = downvotes + $2, score = score + $3
		 WHERE answer_id = $4
		 RETURNING upvotes, downvotes, score`,
		d.Upvotes, d.Downvotes, d.Upvotes-d.Downvotes, answerID)
	var sc model.ScoreCounters
	if err := row.Scan(&sc.Upvotes, &sc.Downvotes, &sc.Score); err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("apply answer score delta: %w", err)
	}
	return &sc, nil
}

func (c *answers) ClearAccepted(ctx context.Context, questionID string) error {
	_, err := c.s.q.ExecContext(ctx,
		`UPDATE answers SET is_accepted = FALSE WHERE question_id = $1 AND is_accepted = TRUE`, questionID)
	if err != nil {
		return fmt.Errorf("clear accepted answers: %w", err)
	}
	return nil
}

func (c *answers) MarkAccepted(ctx context.Context, answerID string) error {
	res, err := c.s.q.ExecContext(ctx,
		`UPDATE answers SET is_accepted = TRUE WHERE answer_id = $1`, answerID)
	if err != nil {
		return fmt.Errorf("mark answer accepted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// --- votes ---

type votes struct{ s *Store }

func (c *votes) Get(ctx context.Context, actorID string, target model.TargetRef) (*model.VoteRecord, error) {
	rec := model.VoteRecord{ActorID: actorID, Target: target}
	err := c.s.q.QueryRowContext(ctx,
		`SELECT vote_kind, cast_at FROM votes WHERE actor_id = $1 AND target_kind = $2 AND target_id = $3`,
		actorID, string(target.Kind), target.ID).Scan(&rec.Kind, &rec.CastAt)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vote: %w", err)
	}
	return &rec, nil
}

func (c *votes) Create(ctx context.Context, rec *model.VoteRecord) error {
	_, err := c.s.q.ExecContext(ctx,
		`INSERT INTO votes (actor_id, target_kind, target_id, vote_kind)
		 VALUES ($1, $2, $3, $4)`,
		rec.ActorID, string(rec.Target.Kind), rec.Target.ID, string(rec.Kind))
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrConflict
		}
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

func (c *votes) UpdateKind(ctx context.Context, actorID string, target model.TargetRef, observed, next model.VoteKind) error {
	res, err := c.s.q.ExecContext(ctx,
		`UPDATE votes SET vote_kind = $1, cast_at = now()
		 WHERE actor_id = $2 AND target_kind = $3 AND target_id = $4 AND vote_kind = $5`,
		string(next), actorID, string(target.Kind), target.ID, string(observed))
	if err != nil {
		return fmt.Errorf("update vote: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrConflict
	}
	return nil
}

func (c *votes) Delete(ctx context.Context, actorID string, target model.TargetRef, observed model.VoteKind) error {
	res, err := c.s.q.ExecContext(ctx,
		`DELETE FROM votes
		 WHERE actor_id = $1 AND target_kind = $2 AND target_id = $3 AND vote_kind = $4`,
		actorID, string(target.Kind), target.ID, string(observed))
	if err != nil {
		return fmt.Errorf("delete vote: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrConflict
	}
	return nil
}

// --- comments ---

type comments struct{ s *Store }

func (c *comments) Create(ctx context.Context, cm *model.Comment) (*model.Comment, error) {
	err := c.s.q.QueryRowContext(ctx,
		`INSERT INTO comments (comment_id, answer_id, question_id, author_id, content)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING creation_time`,
		cm.CommentID, cm.AnswerID, cm.QuestionID, cm.AuthorID, cm.Content).Scan(&cm.CreationTime)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.ErrConflict
		}
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	return cm, nil
}

func (c *comments) GetByID(ctx context.Context, commentID string) (*model.Comment, error) {
	var cm model.Comment
	err := c.s.q.QueryRowContext(ctx,
		`SELECT comment_id, answer_id, question_id, author_id, content, creation_time
		 FROM comments WHERE comment_id = $1`, commentID).
		Scan(&cm.CommentID, &cm.AnswerID, &cm.QuestionID, &cm.AuthorID, &cm.Content, &cm.CreationTime)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return &cm, nil
}

func (c *comments) ListByAnswer(ctx context.Context, answerID string) ([]*model.Comment, error) {
	rows, err := c.s.q.QueryContext(ctx,
		`SELECT comment_id, answer_id, question_id, author_id, content, creation_time
		 FROM comments WHERE answer_id = $1 ORDER BY creation_time ASC`, answerID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var out []*model.Comment
	for rows.Next() {
		var cm model.Comment
		if err := rows.Scan(&cm.CommentID, &cm.AnswerID, &cm.QuestionID, &cm.AuthorID, &cm.Content, &cm.CreationTime); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, &cm)
	}
	return out, rows.Err()
}

func (c *comments) Delete(ctx context.Context, commentID string) error {
	res, err := c.s.q.ExecContext(ctx, `DELETE FROM comments WHERE comment_id = $1`, commentID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// --- notifications ---

type notifications struct{ s *Store }

func (c *notifications) Create(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	err := c.s.q.QueryRowContext(ctx,
		`INSERT INTO notifications (notification_id, recipient_id, kind, title, message, related_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING creation_time`,
		n.NotificationID, n.RecipientID, n.Kind, n.Title, n.Message, n.RelatedID).Scan(&n.CreationTime)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.ErrConflict
		}
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

func (c *notifications) ListByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]*model.Notification, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := c.s.q.QueryContext(ctx,
		`SELECT notification_id, recipient_id, kind, title, message, COALESCE(related_id, ''), is_read, creation_time, read_time
		 FROM notifications WHERE recipient_id = $1
		 ORDER BY creation_time DESC LIMIT $2 OFFSET $3`,
		recipientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*model.Notification
	for rows.Next() {
		var (
			n        model.Notification
			readTime sql.NullTime
		)
		if err := rows.Scan(&n.NotificationID, &n.RecipientID, &n.Kind, &n.Title, &n.Message,
			&n.RelatedID, &n.IsRead, &n.CreationTime, &readTime); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if readTime.Valid {
			t := readTime.Time
			n.ReadTime = &t
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (c *notifications) Counts(ctx context.Context, recipientID string) (total, unread int, err error) {
	err = c.s.q.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT is_read)
		 FROM notifications WHERE recipient_id = $1`, recipientID).Scan(&total, &unread)
	if err != nil {
		return 0, 0, fmt.Errorf("count notifications: %w", err)
	}
	return total, unread, nil
}

func (c *notifications) MarkRead(ctx context.Context, notificationID, recipientID string) error {
	res, err := c.s.q.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE, read_time = now()
		 WHERE notification_id = $1 AND recipient_id = $2`,
		notificationID, recipientID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (c *notifications) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	res, err := c.s.q.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE, read_time = now()
		 WHERE recipient_id = $1 AND NOT is_read`,
		recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (c *notifications) Delete(ctx context.Context, notificationID, recipientID string) error {
	res, err := c.s.q.ExecContext(ctx,
		`DELETE FROM notifications WHERE notification_id = $1 AND recipient_id = $2`,
		notificationID, recipientID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// --- outbox ---

type outbox struct{ s *Store }

func (c *outbox) Enqueue(ctx context.Context, op, aggregateID string, payload map[string]interface{}) error {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	_, err = c.s.q.ExecContext(ctx,
		`INSERT INTO outbox (op, aggregate_id, payload) VALUES ($1, $2, $3)`,
		op, aggregateID, string(b))
	if err != nil {
		return fmt.Errorf("enqueue outbox job: %w", err)
	}
	return nil
}

// Lease claims up to batch ready jobs. SKIP LOCKED lets multiple workers
// drain the table without stepping on each other.
func (c *outbox) Lease(ctx context.Context, batch int) ([]model.OutboxJob, error) {
	if batch < 1 {
		batch = 10
	}
	rows, err := c.s.q.QueryContext(ctx,
		`UPDATE outbox SET status = 'processing', update_time = now()
		 WHERE id IN (
			SELECT id FROM outbox
			WHERE status = 'pending' AND next_attempt_at <= now()
			ORDER BY id ASC LIMIT $1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, op, aggregate_id, payload`, batch)
	if err != nil {
		return nil, fmt.Errorf("lease outbox jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.OutboxJob
	for rows.Next() {
		var (
			job     model.OutboxJob
			payload []byte
		)
		if err := rows.Scan(&job.ID, &job.Op, &job.AggregateID, &payload); err != nil {
			return nil, fmt.Errorf("scan outbox job: %w", err)
		}
		if err := json.Unmarshal(payload, &job.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal outbox payload: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (c *outbox) MarkDone(ctx context.Context, id int64) error {
	if _, err := c.s.q.ExecContext(ctx, `DELETE FROM outbox WHERE id = $1`, id); err != nil {
		return fmt.Errorf("mark outbox job done: %w", err)
	}
	return nil
}

func (c *outbox) MarkFailed(ctx context.Context, id int64) error {
	_, err := c.s.q.ExecContext(ctx,
		`UPDATE outbox SET status = 'pending', attempt_count = attempt_count + 1,
		 next_attempt_at = now() + make_interval(secs => LEAST(power(2, attempt_count + 1), 300)),
		 update_time = now()
		 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox job failed: %w", err)
	}
	return nil
}

// --- tags ---

type tags struct{ s *Store }

func (c *tags) IncrementUsage(ctx context.Context, names []string) error {
	for _, tag := range names {
		_, err := c.s.q.ExecContext(ctx,
			`INSERT INTO tag_stats (tag, usage_count, last_used_at) VALUES ($1, 1, now())
			 ON CONFLICT (tag) DO UPDATE SET
			 usage_count = tag_stats.usage_count + 1, last_used_at = excluded.last_used_at`,
			tag)
		if err != nil {
			return fmt.Errorf("increment tag usage: %w", err)
		}
	}
	return nil
}

func (c *tags) ListPopular(ctx context.Context, limit int) ([]*model.TagStat, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := c.s.q.QueryContext(ctx,
		`SELECT tag, usage_count, last_used_at FROM tag_stats
		 ORDER BY usage_count DESC, tag ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list popular tags: %w", err)
	}
	defer rows.Close()
	var out []*model.TagStat
	for rows.Next() {
		var st model.TagStat
		if err := rows.Scan(&st.Tag, &st.UsageCount, &st.LastUsedAt); err != nil {
			return nil, fmt.Errorf("scan tag stat: %w", err)
		}
		out = append(out, &st)
	}
	return out, rows.Err()
}
