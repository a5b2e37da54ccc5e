package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"
)

// TimestampLayout is the ISO-8601 layout stored in history.ts. The offset is
// always written explicitly, never as "Z".
const TimestampLayout = "2006-01-02T15:04:05.000000-07:00"

// ErrHistoryUnavailable marks failures of the history store so callers can
// tell persistence problems apart from empty results.
var ErrHistoryUnavailable = errors.New("history unavailable")

// HistoryEntry is one row of the history table.
type HistoryEntry struct {
	ID        int64   `json:"id"`
	UserID    int64   `json:"user_id"`
	Query     string  `json:"query"`
	Title     *string `json:"title"`
	URL       *string `json:"url"`
	Timestamp string  `json:"ts"`
}

// QueryCount is the number of times a query appears in a recency window.
type QueryCount struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// History is an append-only log of user lookups.
type History struct {
	DB  *sql.DB
	Now func() time.Time
}

// NewHistory returns a History backed by database.
func NewHistory(database *sql.DB) *History {
	return &History{DB: database, Now: time.Now}
}

// Append records one lookup attempt. title and url may be nil.
func (h *History) Append(ctx context.Context, userID int64, query string, title, url *string) (int64, error) {
	ts := h.now().UTC().Format(TimestampLayout)
	res, err := h.DB.ExecContext(ctx,
		`INSERT INTO history (user_id, query, title, url, ts) VALUES (?, ?, ?, ?, ?)`,
		userID, query, nullString(title), nullString(url), ts,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: insert history user_id=%d: %v", ErrHistoryUnavailable, userID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: get history id: %v", ErrHistoryUnavailable, err)
	}
	return id, nil
}

// Recent returns up to limit entries for the user, newest first.
func (h *History) Recent(ctx context.Context, userID int64, limit int) ([]HistoryEntry, error) {
	entries := []HistoryEntry{}
	if limit <= 0 {
		return entries, nil
	}
	rows, err := h.DB.QueryContext(ctx,
		`SELECT id, user_id, query, title, url, ts FROM history WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query history user_id=%d: %v", ErrHistoryUnavailable, userID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e          HistoryEntry
			title, url sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Query, &title, &url, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: scan history row: %v", ErrHistoryUnavailable, err)
		}
		e.Title = stringPtr(title)
		e.URL = stringPtr(url)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate history rows: %v", ErrHistoryUnavailable, err)
	}
	return entries, nil
}

// Frequency counts queries among the user's limit most recent entries.
// Results are ordered by count descending; equal counts keep the order in
// which the query was first seen walking from newest to oldest.
func (h *History) Frequency(ctx context.Context, userID int64, limit int) ([]QueryCount, error) {
	recent, err := h.Recent(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	return countQueries(recent), nil
}

func countQueries(entries []HistoryEntry) []QueryCount {
	counts := []QueryCount{}
	index := map[string]int{}
	for _, e := range entries {
		if i, ok := index[e.Query]; ok {
			counts[i].Count++
			continue
		}
		index[e.Query] = len(counts)
		counts = append(counts, QueryCount{Query: e.Query, Count: 1})
	}
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
	return counts
}

func (h *History) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
