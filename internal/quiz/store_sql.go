package quiz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-quiz/internal/db"
)

// SQLStore keeps assignments, attempts and answers in sqlite or postgres.
// Every conditional write is a single statement or transaction so two
// requests racing on the same row cannot both win.
type SQLStore struct {
	db     *sql.DB
	driver db.Driver
}

func NewSQLStore(conn *sql.DB, driver db.Driver) *SQLStore {
	return &SQLStore{db: conn, driver: driver}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.UnixMilli(n.Int64).UTC()
	return &t
}

func placeholders(start, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(ps, ",")
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

/* ---------- assignments ---------- */

const assignmentCols = `id,quiz_id,group_id,owner_user_id,creation_date,due_date,feedback_mode,status`

func scanAssignment(r rowScanner) (Assignment, error) {
	var a Assignment
	var created int64
	var due sql.NullInt64
	var mode, status string
	if err := r.Scan(&a.ID, &a.QuizID, &a.GroupID, &a.OwnerUserID, &created, &due, &mode, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Assignment{}, ErrNotFound
		}
		return Assignment{}, err
	}
	a.CreationDate = time.UnixMilli(created).UTC()
	a.DueDate = fromNullMillis(due)
	a.FeedbackMode = FeedbackMode(mode)
	a.Status = AssignmentStatus(status)
	return a, nil
}

func (s *SQLStore) CreateAssignment(ctx context.Context, a Assignment, now time.Time) (Assignment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = StatusActive
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		// locks the (quiz, group) slot until commit
		if _, err := tx.ExecContext(ctx, `INSERT INTO quiz_assignment_slots (quiz_id,group_id,touched_at)
			VALUES ($1,$2,$3)
			ON CONFLICT (quiz_id,group_id) DO UPDATE SET touched_at=EXCLUDED.touched_at`,
			a.QuizID, a.GroupID, millis(now)); err != nil {
			return err
		}
		var live int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM quiz_assignments
			WHERE quiz_id=$1 AND group_id=$2 AND status='ACTIVE' AND (due_date IS NULL OR due_date >= $3)`,
			a.QuizID, a.GroupID, millis(now)).Scan(&live); err != nil {
			return err
		}
		if live > 0 {
			return ErrDuplicateAssignment
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO quiz_assignments (`+assignmentCols+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			a.ID, a.QuizID, a.GroupID, a.OwnerUserID, millis(a.CreationDate), nullMillis(a.DueDate),
			string(a.FeedbackMode), string(a.Status))
		return err
	})
	if db.IsUniqueViolation(err) {
		return Assignment{}, ErrDuplicateAssignment
	}
	if err != nil {
		return Assignment{}, err
	}
	return a, nil
}

func (s *SQLStore) GetAssignment(ctx context.Context, id string) (Assignment, error) {
	return scanAssignment(s.db.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM quiz_assignments WHERE id=$1`, id))
}

func (s *SQLStore) ListAssignmentsByGroups(ctx context.Context, groupIDs []string) ([]Assignment, error) {
	if len(groupIDs) == 0 {
		return []Assignment{}, nil
	}
	args := make([]any, len(groupIDs))
	for i, g := range groupIDs {
		args[i] = g
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+assignmentCols+` FROM quiz_assignments
		WHERE group_id IN (`+placeholders(1, len(groupIDs))+`) ORDER BY creation_date, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) CancelAssignment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE quiz_assignments SET status='CANCELLED' WHERE id=$1 AND status='ACTIVE'`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := s.GetAssignment(ctx, id); err != nil {
		return err
	}
	return ErrAlreadyCancelled
}

func (s *SQLStore) UpdateAssignment(ctx context.Context, id string, p AssignmentPatch, now time.Time) (Assignment, error) {
	var sets []string
	var args []any
	if p.DueDate != nil {
		args = append(args, millis(*p.DueDate))
		sets = append(sets, fmt.Sprintf("due_date=$%d", len(args)))
	}
	if p.FeedbackMode != nil {
		args = append(args, string(*p.FeedbackMode))
		sets = append(sets, fmt.Sprintf("feedback_mode=$%d", len(args)))
	}
	if len(sets) == 0 {
		return s.GetAssignment(ctx, id)
	}

	var out Assignment
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := scanAssignment(tx.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM quiz_assignments WHERE id=$1`, id))
		if err != nil {
			return err
		}
		if cur.Cancelled() {
			return ErrAlreadyCancelled
		}
		where := fmt.Sprintf("id=$%d AND status='ACTIVE'", len(args)+1)
		if p.DueDate != nil {
			// same slot lock as CreateAssignment
			if _, err := tx.ExecContext(ctx, `INSERT INTO quiz_assignment_slots (quiz_id,group_id,touched_at)
				VALUES ($1,$2,$3)
				ON CONFLICT (quiz_id,group_id) DO UPDATE SET touched_at=EXCLUDED.touched_at`,
				cur.QuizID, cur.GroupID, millis(now)); err != nil {
				return err
			}
			var live int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM quiz_assignments
				WHERE quiz_id=$1 AND group_id=$2 AND id<>$3 AND status='ACTIVE' AND (due_date IS NULL OR due_date >= $4)`,
				cur.QuizID, cur.GroupID, id, millis(now)).Scan(&live); err != nil {
				return err
			}
			if live > 0 {
				return ErrDuplicateAssignment
			}
			where += " AND (due_date IS NULL OR due_date <= $1)"
		}
		q := fmt.Sprintf(`UPDATE quiz_assignments SET %s WHERE %s`, strings.Join(sets, ","), where)
		res, err := tx.ExecContext(ctx, q, append(args, id)...)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			latest, err := scanAssignment(tx.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM quiz_assignments WHERE id=$1`, id))
			if err != nil {
				return err
			}
			if latest.Cancelled() {
				return ErrAlreadyCancelled
			}
			return ErrDueDateMovedEarlier
		}
		out, err = scanAssignment(tx.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM quiz_assignments WHERE id=$1`, id))
		return err
	})
	if err != nil {
		return Assignment{}, err
	}
	return out, nil
}

/* ---------- attempts ---------- */

const attemptCols = `id,user_id,quiz_id,quiz_assignment_id,start_date,completed_date`

func scanAttempt(r rowScanner) (Attempt, error) {
	var a Attempt
	var assignment sql.NullString
	var start int64
	var completed sql.NullInt64
	if err := r.Scan(&a.ID, &a.UserID, &a.QuizID, &assignment, &start, &completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrNotFound
		}
		return Attempt{}, err
	}
	a.AssignmentID = assignment.String
	a.StartDate = time.UnixMilli(start).UTC()
	a.CompletedDate = fromNullMillis(completed)
	return a, nil
}

func (s *SQLStore) queryAttempts(ctx context.Context, where string, args ...any) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+attemptCols+` FROM quiz_attempts WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) insertAttempt(ctx context.Context, a Attempt) (Attempt, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	var assignment sql.NullString
	if a.AssignmentID != "" {
		assignment = sql.NullString{String: a.AssignmentID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO quiz_attempts (`+attemptCols+`) VALUES ($1,$2,$3,$4,$5,$6)`,
		a.ID, a.UserID, a.QuizID, assignment, millis(a.StartDate), nullMillis(a.CompletedDate))
	return a, err
}

// fetchOrInsert reads the existing row, inserts when there is none, and
// re-reads when a concurrent insert won the unique index.
func (s *SQLStore) fetchOrInsert(ctx context.Context, a Attempt, find func() (Attempt, error)) (Attempt, bool, error) {
	got, err := find()
	if err == nil {
		return got, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Attempt{}, false, err
	}
	got, err = s.insertAttempt(ctx, a)
	if db.IsUniqueViolation(err) {
		got, err = find()
		return got, false, err
	}
	if err != nil {
		return Attempt{}, false, err
	}
	return got, true, nil
}

func (s *SQLStore) FetchOrCreateAttempt(ctx context.Context, a Attempt) (Attempt, bool, error) {
	return s.fetchOrInsert(ctx, a, func() (Attempt, error) {
		return s.GetAttemptByAssignmentAndUser(ctx, a.AssignmentID, a.UserID)
	})
}

func (s *SQLStore) FetchOrCreateFreeAttempt(ctx context.Context, a Attempt) (Attempt, bool, error) {
	a.AssignmentID = ""
	return s.fetchOrInsert(ctx, a, func() (Attempt, error) {
		return scanAttempt(s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM quiz_attempts
			WHERE user_id=$1 AND quiz_id=$2 AND quiz_assignment_id IS NULL AND completed_date IS NULL`,
			a.UserID, a.QuizID))
	})
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return scanAttempt(s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM quiz_attempts WHERE id=$1`, id))
}

func (s *SQLStore) GetAttemptByAssignmentAndUser(ctx context.Context, assignmentID, userID string) (Attempt, error) {
	return scanAttempt(s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM quiz_attempts
		WHERE quiz_assignment_id=$1 AND user_id=$2`, assignmentID, userID))
}

func (s *SQLStore) ListAttemptsByQuizAndUser(ctx context.Context, quizID, userID string) ([]Attempt, error) {
	return s.queryAttempts(ctx, `quiz_id=$1 AND user_id=$2 ORDER BY start_date`, quizID, userID)
}

func (s *SQLStore) ListFreeAttempts(ctx context.Context, userID string) ([]Attempt, error) {
	return s.queryAttempts(ctx, `user_id=$1 AND quiz_assignment_id IS NULL ORDER BY start_date`, userID)
}

func (s *SQLStore) ListAttemptsByAssignment(ctx context.Context, assignmentID string) ([]Attempt, error) {
	return s.queryAttempts(ctx, `quiz_assignment_id=$1 ORDER BY start_date`, assignmentID)
}

func (s *SQLStore) MarkComplete(ctx context.Context, id string, at time.Time) (Attempt, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE quiz_attempts SET completed_date=$1 WHERE id=$2 AND completed_date IS NULL`,
		millis(at), id)
	if err != nil {
		return Attempt{}, err
	}
	got, err := s.GetAttempt(ctx, id)
	if err != nil {
		return Attempt{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Attempt{}, ErrAlreadyComplete
	}
	return got, nil
}

func (s *SQLStore) MarkIncomplete(ctx context.Context, id string) (Attempt, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE quiz_attempts SET completed_date=NULL WHERE id=$1 AND completed_date IS NOT NULL`, id)
	if err != nil {
		return Attempt{}, err
	}
	got, err := s.GetAttempt(ctx, id)
	if err != nil {
		return Attempt{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Attempt{}, ErrAlreadyIncomplete
	}
	return got, nil
}

func (s *SQLStore) DeleteFreeAttempt(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE quiz_attempts SET completed_date=NULL
			WHERE id=$1 AND quiz_assignment_id IS NULL AND completed_date IS NULL`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var one int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM quiz_attempts WHERE id=$1`, id).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			return ErrForbidden
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM quiz_question_attempts WHERE quiz_attempt_id=$1`, id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM quiz_attempts WHERE id=$1`, id)
		return err
	})
}

/* ---------- answers ---------- */

func (s *SQLStore) AppendAnswer(ctx context.Context, qa QuestionAttempt) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		// row lock: a concurrent MarkComplete waits for this append or wins before it
		res, err := tx.ExecContext(ctx, `UPDATE quiz_attempts SET completed_date=NULL WHERE id=$1 AND completed_date IS NULL`, qa.AttemptID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var one int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM quiz_attempts WHERE id=$1`, qa.AttemptID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			return ErrAlreadyComplete
		}
		correct := 0
		if qa.Verdict.Correct {
			correct = 1
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO quiz_question_attempts
			(quiz_attempt_id,question_id,answer,correct,marks,max_marks,explanation,date_attempted)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			qa.AttemptID, qa.QuestionID, qa.Answer, correct, qa.Verdict.Marks, qa.Verdict.MaxMarks,
			qa.Verdict.Explanation, millis(qa.DateAttempted))
		return err
	})
}

func (s *SQLStore) AnswersForAttempt(ctx context.Context, attemptID string) (map[string][]QuestionAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT question_id,answer,correct,marks,max_marks,explanation,date_attempted
		FROM quiz_question_attempts WHERE quiz_attempt_id=$1 ORDER BY date_attempted, id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string][]QuestionAttempt{}
	for rows.Next() {
		qa := QuestionAttempt{AttemptID: attemptID}
		var correct int
		var at int64
		if err := rows.Scan(&qa.QuestionID, &qa.Answer, &correct, &qa.Verdict.Marks, &qa.Verdict.MaxMarks,
			&qa.Verdict.Explanation, &at); err != nil {
			return nil, err
		}
		qa.Verdict.QuestionID = qa.QuestionID
		qa.Verdict.Correct = correct == 1
		qa.DateAttempted = time.UnixMilli(at).UTC()
		out[qa.QuestionID] = append(out[qa.QuestionID], qa)
	}
	return out, rows.Err()
}

var _ Store = (*SQLStore)(nil)
