// Package sqlite implements the store contract on an embedded SQLite
// database. It backs local development builds and the unit-test suite;
// the postgres driver is the cloud counterpart.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/askloop/askloop/server/internal/model"
	"github.com/askloop/askloop/server/internal/store"
)

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx, so the
// same collection code runs inside and outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements store.Store and store.TxRunner over SQLite.
type Store struct {
	db *sql.DB
	q  dbtx
}

// New wraps an open database handle. The schema must already exist; call
// EnsureSchema first.
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

// HealthPing verifies the database connection is alive.
func (s *Store) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunInTx executes fn against a transaction-scoped view of the store.
// Calls nested inside an open transaction join it.
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

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
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
		tagsJSON string
		accepted sql.NullString
		updated  sql.NullTime
	)
	err := row.Scan(&q.QuestionID, &q.AuthorID, &q.Title, &q.Description, &tagsJSON,
		&q.ViewCount, &q.Counters.Upvotes, &q.Counters.Downvotes, &q.Counters.Score,
		&accepted, &q.Version, &q.CreationTime, &updated)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &q.Tags); err != nil {
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
	if q.CreationTime.IsZero() {
		q.CreationTime = time.Now().UTC()
	}
	tags, err := marshalTags(q.Tags)
	if err != nil {
		return nil, err
	}
	_, err = c.s.q.ExecContext(ctx,
		`INSERT INTO questions (question_id, author_id, title, description, tags, creation_time)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		q.QuestionID, q.AuthorID, q.Title, q.Description, tags, q.CreationTime)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.ErrConflict
		}
		return nil, fmt.Errorf("insert question: %w", err)
	}
	return c.GetByID(ctx, q.QuestionID)
}

func (c *questions) GetByID(ctx context.Context, questionID string) (*model.Question, error) {
	row := c.s.q.QueryRowContext(ctx,
		`SELECT `+questionCols+` FROM questions WHERE question_id = ?`, questionID)
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
	res, err := c.s.q.ExecContext(ctx,
		`UPDATE questions SET title = ?, description = ?, tags = ?, update_time = ?
		 WHERE question_id = ?`,
		q.Title, q.Description, tags, time.Now().UTC(), q.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("update question: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, model.ErrNotFound
	}
	return c.GetByID(ctx, q.QuestionID)
}

func (c *questions) Delete(ctx context.Context, questionID string) error {
	return c.s.RunInTx(ctx, func(txs store.Store) error {
		q := txs.(*Store).q
		res, err := q.ExecContext(ctx, `DELETE FROM questions WHERE question_id = ?`, questionID)
		if err != nil {
			return fmt.Errorf("delete question: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.ErrNotFound
		}
		// Votes and notifications can reference the question or any of its
		// answers, so they go first while the answer rows still exist for
		// the subqueries.
		cascades := []struct {
			stmt string
			args []any
		}{
			{`DELETE FROM votes WHERE (target_kind = 'question' AND target_id = ?)
			   OR (target_kind = 'answer' AND target_id IN (SELECT answer_id FROM answers WHERE question_id = ?))`,
				[]any{questionID, questionID}},
			{`DELETE FROM notifications WHERE related_id = ?
			   OR related_id IN (SELECT answer_id FROM answers WHERE question_id = ?)`,
				[]any{questionID, questionID}},
			{`DELETE FROM comments WHERE question_id = ?`, []any{questionID}},
			{`DELETE FROM answers WHERE question_id = ?`, []any{questionID}},
		}
		for _, c := range cascades {
			if _, err := q.ExecContext(ctx, c.stmt, c.args...); err != nil {
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
	if f.Query != "" {
		needle := "%" + strings.ToLower(f.Query) + "%"
		conds = append(conds, `(lower(title) LIKE ? OR lower(description) LIKE ?)`)
		args = append(args, needle, needle)
	}
	for _, tag := range f.Tags {
		conds = append(conds, `EXISTS (SELECT 1 FROM json_each(questions.tags) WHERE value = ?)`)
		args = append(args, tag)
	}
	if f.AuthorID != "" {
		conds = append(conds, `author_id = ?`)
		args = append(args, f.AuthorID)
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
	args = append(args, limit, (page-1)*limit)
	rows, err := c.s.q.QueryContext(ctx,
		`SELECT `+questionCols+` FROM questions`+where+` ORDER BY creation_time DESC LIMIT ? OFFSET ?`, args...)
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
		`UPDATE questions SET upvotes = upvotes + ?, downvotes = downvotes + ?, score = score + ?
		 WHERE question_id = ?
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
		`UPDATE questions SET view_count = view_count + 1 WHERE question_id = ?`, questionID)
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
		`UPDATE questions SET accepted_answer_id = ?, version = version + 1, update_time = ?
		 WHERE question_id = ? AND version = ?`,
		answerID, time.Now().UTC(), questionID, expectedVersion)
	if err != nil {
		return fmt.Errorf("set accepted answer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := c.s.q.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM questions WHERE question_id = ?)`, questionID).Scan(&exists); err != nil {
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
		`SELECT COUNT(*) FROM answers WHERE question_id = ?`, questionID).Scan(&n)
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
	for _, tag := range tags {
		ors = append(ors, `EXISTS (SELECT 1 FROM json_each(questions.tags) WHERE value = ?)`)
		args = append(args, tag)
	}
	for _, w := range titleWords {
		ors = append(ors, `instr(lower(title), ?) > 0`)
		args = append(args, strings.ToLower(w))
	}
	if len(ors) == 0 {
		return nil, nil
	}
	args = append(args, limit)
	query := `SELECT ` + questionCols + ` FROM questions
		 WHERE question_id != ? AND (` + strings.Join(ors, " OR ") + `)
		 ORDER BY creation_time DESC LIMIT ?`
	rows, err := c.s.q.QueryContext(ctx, query, append([]any{excludeID}, args...)...)
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
	if a.CreationTime.IsZero() {
		a.CreationTime = time.Now().UTC()
	}
	_, err := c.s.q.ExecContext(ctx,
		`INSERT INTO answers (answer_id, question_id, author_id, content, creation_time)
		 VALUES (?, ?, ?, ?, ?)`,
		a.AnswerID, a.QuestionID, a.AuthorID, a.Content, a.CreationTime)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.ErrConflict
		}
		return nil, fmt.Errorf("insert answer: %w", err)
	}
	return c.GetByID(ctx, a.AnswerID)
}

func (c *answers) GetByID(ctx context.Context, answerID string) (*model.Answer, error) {
	row := c.s.q.QueryRowContext(ctx,
		`SELECT `+answerCols+` FROM answers WHERE answer_id = ?`, answerID)
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
	res, err := c.s.q.ExecContext(ctx,
		`UPDATE answers SET content = ?, update_time = ? WHERE answer_id = ?`,
		a.Content, time.Now().UTC(), a.AnswerID)
	if err != nil {
		return nil, fmt.Errorf("update answer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, model.ErrNotFound
	}
	return c.GetByID(ctx, a.AnswerID)
}

func (c *answers) Delete(ctx context.Context, answerID string) error {
	return c.s.RunInTx(ctx, func(txs store.Store) error {
		q := txs.(*Store).q
		// Clear the accepted pointer first so the question never references
		// a deleted answer.
		if _, err := q.ExecContext(ctx,
			`UPDATE questions SET accepted_answer_id = NULL, version = version + 1
			 WHERE accepted_answer_id = ?`, answerID); err != nil {
			return fmt.Errorf("clear accepted pointer: %w", err)
		}
		res, err := q.ExecContext(ctx, `DELETE FROM answers WHERE answer_id = ?`, answerID)
		if err != nil {
			return fmt.Errorf("delete answer: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.ErrNotFound
		}
		stmts := []string{
			`DELETE FROM comments WHERE answer_id = ?`,
			`DELETE FROM votes WHERE target_kind = 'answer' AND target_id = ?`,
			`DELETE FROM notifications WHERE related_id = ?`,
		}
		for _, stmt := range stmts {
			if _, err := q.ExecContext(ctx, stmt, answerID); err != nil {
				return fmt.Errorf("cascade delete answer: %w", err)
			}
		}
		return nil
	})
}

func (c *answers) ListByQuestion(ctx context.Context, questionID string) ([]*model.Answer, error) {
	rows, err := c.s.q.QueryContext(ctx,
		`SELECT `+answerCols+` FROM answers WHERE question_id = ? ORDER BY creation_time ASC`, questionID)
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
		`UPDATE answers SET upvotes = upvotes + ?, downvotes = downvotes + ?, score = score + ?
		 WHERE answer_id = ?
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
		`UPDATE answers SET is_accepted = 0 WHERE question_id = ? AND is_accepted = 1`, questionID)
	if err != nil {
		return fmt.Errorf("clear accepted answers: %w", err)
	}
	return nil
}

func (c *answers) MarkAccepted(ctx context.Context, answerID string) error {
	res, err := c.s.q.ExecContext(ctx,
		`UPDATE answers SET is_accepted = 1 WHERE answer_id = ?`, answerID)
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
		`SELECT vote_kind, cast_at FROM votes WHERE actor_id = ? AND target_kind = ? AND target_id = ?`,
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
	if rec.CastAt.IsZero() {
		rec.CastAt = time.Now().UTC()
	}
	_, err := c.s.q.ExecContext(ctx,
		`INSERT INTO votes (actor_id, target_kind, target_id, vote_kind, cast_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ActorID, string(rec.Target.Kind), rec.Target.ID, string(rec.Kind), rec.CastAt)
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
		`UPDATE votes SET vote_kind = ?, cast_at = ?
		 WHERE actor_id = ? AND target_kind = ? AND target_id = ? AND vote_kind = ?`,
		string(next), time.Now().UTC(), actorID, string(target.Kind), target.ID, string(observed))
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
		 WHERE actor_id = ? AND target_kind = ? AND target_id = ? AND vote_kind = ?`,
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
	if cm.CreationTime.IsZero() {
		cm.CreationTime = time.Now().UTC()
	}
	_, err := c.s.q.ExecContext(ctx,
		`INSERT INTO comments (comment_id, answer_id, question_id, author_id, content, creation_time)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		cm.CommentID, cm.AnswerID, cm.QuestionID, cm.AuthorID, cm.Content, cm.CreationTime)
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
		 FROM comments WHERE comment_id = ?`, commentID).
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
		 FROM comments WHERE answer_id = ? ORDER BY creation_time ASC`, answerID)
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
	res, err := c.s.q.ExecContext(ctx, `DELETE FROM comments WHERE comment_id = ?`, commentID)
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
	if n.CreationTime.IsZero() {
		n.CreationTime = time.Now().UTC()
	}
	_, err := c.s.q.ExecContext(ctx,
		`INSERT INTO notifications (notification_id, recipient_id, kind, title, message, related_id, is_read, creation_time)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		n.NotificationID, n.RecipientID, n.Kind, n.Title, n.Message, n.RelatedID, n.CreationTime)
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
		 FROM notifications WHERE recipient_id = ?
		 ORDER BY creation_time DESC LIMIT ? OFFSET ?`,
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
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_read = 0 THEN 1 ELSE 0 END), 0)
		 FROM notifications WHERE recipient_id = ?`, recipientID).Scan(&total, &unread)
	if err != nil {
		return 0, 0, fmt.Errorf("count notifications: %w", err)
	}
	return total, unread, nil
}

func (c *notifications) MarkRead(ctx context.Context, notificationID, recipientID string) error {
	res, err := c.s.q.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1, read_time = ?
		 WHERE notification_id = ? AND recipient_id = ?`,
		time.Now().UTC(), notificationID, recipientID)
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
		`UPDATE notifications SET is_read = 1, read_time = ?
		 WHERE recipient_id = ? AND is_read = 0`,
		time.Now().UTC(), recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (c *notifications) Delete(ctx context.Context, notificationID, recipientID string) error {
	res, err := c.s.q.ExecContext(ctx,
		`DELETE FROM notifications WHERE notification_id = ? AND recipient_id = ?`,
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

const maxOutboxBackoff = 5 * time.Minute

func (c *outbox) Enqueue(ctx context.Context, op, aggregateID string, payload map[string]interface{}) error {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	now := time.Now().UTC()
	_, err = c.s.q.ExecContext(ctx,
		`INSERT INTO outbox (op, aggregate_id, payload, status, next_attempt_at, creation_time)
		 VALUES (?, ?, ?, 'pending', ?, ?)`,
		op, aggregateID, string(b), now, now)
	if err != nil {
		return fmt.Errorf("enqueue outbox job: %w", err)
	}
	return nil
}

func (c *outbox) Lease(ctx context.Context, batch int) ([]model.OutboxJob, error) {
	if batch < 1 {
		batch = 10
	}
	var jobs []model.OutboxJob
	err := c.s.RunInTx(ctx, func(txs store.Store) error {
		q := txs.(*Store).q
		rows, err := q.QueryContext(ctx,
			`SELECT id, op, aggregate_id, payload FROM outbox
			 WHERE status = 'pending' AND next_attempt_at <= ?
			 ORDER BY id ASC LIMIT ?`,
			time.Now().UTC(), batch)
		if err != nil {
			return fmt.Errorf("lease outbox jobs: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				job     model.OutboxJob
				payload string
			)
			if err := rows.Scan(&job.ID, &job.Op, &job.AggregateID, &payload); err != nil {
				return fmt.Errorf("scan outbox job: %w", err)
			}
			if err := json.Unmarshal([]byte(payload), &job.Payload); err != nil {
				return fmt.Errorf("unmarshal outbox payload: %w", err)
			}
			jobs = append(jobs, job)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		for _, job := range jobs {
			if _, err := q.ExecContext(ctx,
				`UPDATE outbox SET status = 'processing', update_time = ? WHERE id = ?`,
				time.Now().UTC(), job.ID); err != nil {
				return fmt.Errorf("mark outbox job processing: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (c *outbox) MarkDone(ctx context.Context, id int64) error {
	if _, err := c.s.q.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark outbox job done: %w", err)
	}
	return nil
}

func (c *outbox) MarkFailed(ctx context.Context, id int64) error {
	var attempts int
	err := c.s.q.QueryRowContext(ctx, `SELECT attempt_count FROM outbox WHERE id = ?`, id).Scan(&attempts)
	if err == sql.ErrNoRows {
		return model.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("mark outbox job failed: %w", err)
	}
	backoff := time.Duration(1<<uint(attempts+1)) * time.Second
	if backoff > maxOutboxBackoff {
		backoff = maxOutboxBackoff
	}
	_, err = c.s.q.ExecContext(ctx,
		`UPDATE outbox SET status = 'pending', attempt_count = attempt_count + 1,
		 next_attempt_at = ?, update_time = ? WHERE id = ?`,
		time.Now().UTC().Add(backoff), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark outbox job failed: %w", err)
	}
	return nil
}

// --- tags ---

type tags struct{ s *Store }

func (c *tags) IncrementUsage(ctx context.Context, names []string) error {
	now := time.Now().UTC()
	for _, tag := range names {
		_, err := c.s.q.ExecContext(ctx,
			`INSERT INTO tag_stats (tag, usage_count, last_used_at) VALUES (?, 1, ?)
			 ON CONFLICT(tag) DO UPDATE SET
			 usage_count = usage_count + 1, last_used_at = excluded.last_used_at`,
			tag, now)
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
		 ORDER BY usage_count DESC, tag ASC LIMIT ?`, limit)
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
