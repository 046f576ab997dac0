package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// SQLCatalog stores quiz content: one quizzes row with the section layout as
// JSON, and one quiz_questions row per question so answers can resolve a
// question without loading its quiz.
type SQLCatalog struct {
	db *sql.DB
}

func NewSQLCatalog(db *sql.DB) *SQLCatalog { return &SQLCatalog{db: db} }

var _ quiz.Catalog = (*SQLCatalog)(nil)

// PutQuiz inserts or replaces q and its questions.
func (c *SQLCatalog) PutQuiz(ctx context.Context, q quiz.Quiz) error {
	if q.ID == "" {
		return fmt.Errorf("quiz id required")
	}
	sj, err := json.Marshal(q.Sections)
	if err != nil {
		return err
	}
	hidden, err := json.Marshal(q.HiddenFromRoles)
	if err != nil {
		return err
	}
	visible := 0
	if q.VisibleToStudents {
		visible = 1
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO quizzes (id,title,visible_to_students,hidden_from_roles,default_feedback_mode,sections_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, visible_to_students=EXCLUDED.visible_to_students,
			hidden_from_roles=EXCLUDED.hidden_from_roles, default_feedback_mode=EXCLUDED.default_feedback_mode,
			sections_json=EXCLUDED.sections_json`,
		q.ID, q.Title, visible, string(hidden), string(q.DefaultFeedbackMode), string(sj), time.Now().UnixMilli()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM quiz_questions WHERE quiz_id=$1`, q.ID); err != nil {
		return err
	}
	for _, qq := range q.Questions() {
		if err := putQuestion(ctx, tx, qq); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PutQuestion stores a question outside any quiz (QuizID empty) or
// overrides one inside a quiz.
func (c *SQLCatalog) PutQuestion(ctx context.Context, q quiz.Question) error {
	return putQuestion(ctx, c.db, q)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putQuestion(ctx context.Context, db execer, q quiz.Question) error {
	key, err := json.Marshal(q.AnswerKey)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO quiz_questions (id,quiz_id,section_id,title,typ,answer_key_json,points)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET quiz_id=EXCLUDED.quiz_id, section_id=EXCLUDED.section_id, title=EXCLUDED.title,
			typ=EXCLUDED.typ, answer_key_json=EXCLUDED.answer_key_json, points=EXCLUDED.points`,
		q.ID, q.QuizID, q.SectionID, q.Title, q.Type, string(key), q.Points)
	return err
}

func (c *SQLCatalog) FindQuiz(ctx context.Context, quizID string) (quiz.Quiz, error) {
	var q quiz.Quiz
	var visible int
	var hidden, mode, sj string
	err := c.db.QueryRowContext(ctx, `SELECT id,title,visible_to_students,hidden_from_roles,default_feedback_mode,sections_json
		FROM quizzes WHERE id=$1`, quizID).Scan(&q.ID, &q.Title, &visible, &hidden, &mode, &sj)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return quiz.Quiz{}, quiz.ErrNotFound
		}
		return quiz.Quiz{}, err
	}
	q.VisibleToStudents = visible == 1
	q.DefaultFeedbackMode = quiz.FeedbackMode(mode)
	if err := json.Unmarshal([]byte(hidden), &q.HiddenFromRoles); err != nil {
		return quiz.Quiz{}, fmt.Errorf("quiz %s hidden roles: %w", quizID, err)
	}
	if err := json.Unmarshal([]byte(sj), &q.Sections); err != nil {
		return quiz.Quiz{}, fmt.Errorf("quiz %s sections: %w", quizID, err)
	}
	return q, nil
}

func (c *SQLCatalog) ListQuizzes(ctx context.Context) ([]quiz.Quiz, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id,title,visible_to_students,hidden_from_roles,default_feedback_mode
		FROM quizzes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []quiz.Quiz{}
	for rows.Next() {
		var q quiz.Quiz
		var visible int
		var hidden, mode string
		if err := rows.Scan(&q.ID, &q.Title, &visible, &hidden, &mode); err != nil {
			return nil, err
		}
		q.VisibleToStudents = visible == 1
		q.DefaultFeedbackMode = quiz.FeedbackMode(mode)
		if err := json.Unmarshal([]byte(hidden), &q.HiddenFromRoles); err != nil {
			return nil, fmt.Errorf("quiz %s hidden roles: %w", q.ID, err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (c *SQLCatalog) FindQuestion(ctx context.Context, questionID string) (quiz.Question, error) {
	var q quiz.Question
	var key string
	err := c.db.QueryRowContext(ctx, `SELECT id,quiz_id,section_id,title,typ,answer_key_json,points
		FROM quiz_questions WHERE id=$1`, questionID).Scan(&q.ID, &q.QuizID, &q.SectionID, &q.Title, &q.Type, &key, &q.Points)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return quiz.Question{}, quiz.ErrNotFound
		}
		return quiz.Question{}, err
	}
	if err := json.Unmarshal([]byte(key), &q.AnswerKey); err != nil {
		return quiz.Question{}, fmt.Errorf("question %s answer key: %w", questionID, err)
	}
	return q, nil
}
