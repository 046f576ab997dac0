// Package eventlog persists the audit events emitted by the quiz services.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// Entry is one stored row of the log; Seq orders entries per database.
type Entry struct {
	Seq       int64          `json:"seq"`
	SiteID    string         `json:"site_id"`
	Type      string         `json:"type"`
	UserID    string         `json:"user_id"`
	Key       string         `json:"key"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}

type Repo struct {
	db     *sql.DB
	siteID string
	now    func() time.Time
}

func NewRepo(db *sql.DB, siteID string) *Repo {
	if siteID == "" {
		siteID = "local"
	}
	return &Repo{db: db, siteID: siteID, now: time.Now}
}

var _ quiz.EventSink = (*Repo)(nil)

func (r *Repo) Append(ctx context.Context, e quiz.Event) error {
	data := e.Data
	if data == nil {
		data = map[string]any{}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, user_id, event_key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		r.siteID, e.Type, e.UserID, e.Key, string(b), r.now().UnixMilli())
	return err
}

// Since returns up to limit entries with Seq > after, oldest first.
func (r *Repo) Since(ctx context.Context, after int64, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, site_id, typ, user_id, event_key, data, created_at
		 FROM event_log WHERE seq > $1 ORDER BY seq LIMIT $2`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		var data string
		var ms int64
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.UserID, &e.Key, &data, &ms); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
			return nil, fmt.Errorf("event %d data: %w", e.Seq, err)
		}
		e.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
