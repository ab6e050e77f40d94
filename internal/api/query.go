package api

import (
	"context"
	"database/sql"
	"fmt"
)

// Status filter values for response listings.
const (
	StatusFilterComplete = "complete"
	StatusFilterPartial  = "partial"
	StatusFilterAll      = "all"
)

// ListQuery is the resolved set of listing parameters after validation.
type ListQuery struct {
	FormID   string
	Status   string
	PageSize int
	Cursor   *Cursor
	// Since and Until are stored-format timestamp bounds on submitted_at,
	// inclusive. Empty means unbounded.
	Since string
	Until string
}

// responseRow is a listing row's sort key. SubmittedAt is the raw stored
// string so a cursor built from it compares exactly against the database.
type responseRow struct {
	ID          string
	SubmittedAt string
}

// ResponseStore runs the query gateway's read queries against the response
// tables. Payload materialization happens separately, row by row.
type ResponseStore struct {
	db *sql.DB
}

// NewResponseStore creates a ResponseStore over db.
func NewResponseStore(db *sql.DB) *ResponseStore {
	return &ResponseStore{db: db}
}

// FormID returns the owning form of a response, or sql.ErrNoRows.
func (s *ResponseStore) FormID(ctx context.Context, responseID string) (string, error) {
	var formID string
	err := s.db.QueryRowContext(ctx,
		`SELECT form_id FROM form_responses WHERE id = ?;`, responseID).Scan(&formID)
	if err != nil {
		return "", err
	}
	return formID, nil
}

// ListPage returns up to PageSize+1 row keys in (submitted_at, id) ascending
// order, plus the total count of the filtered set. The caller inspects the
// extra row to decide has_more. Rows with no submitted_at sort first, keyed
// by the empty string.
func (s *ResponseStore) ListPage(ctx context.Context, q ListQuery) ([]responseRow, int, error) {
	where := "form_id = ?"
	args := []any{q.FormID}

	switch q.Status {
	case StatusFilterComplete:
		where += " AND is_partial = 0"
	case StatusFilterPartial:
		where += " AND is_partial = 1"
	case StatusFilterAll:
	default:
		return nil, 0, fmt.Errorf("unknown status filter %q", q.Status)
	}
	if q.Since != "" {
		where += " AND IFNULL(submitted_at, '') >= ?"
		args = append(args, q.Since)
	}
	if q.Until != "" {
		where += " AND IFNULL(submitted_at, '') <= ?"
		args = append(args, q.Until)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM form_responses WHERE " + where + ";"
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count responses: %w", err)
	}

	// Keyset continuation: strictly after the cursor row in the total order.
	if q.Cursor != nil {
		where += ` AND (IFNULL(submitted_at, '') > ?
  OR (IFNULL(submitted_at, '') = ? AND id > ?))`
		args = append(args, q.Cursor.SubmittedAt, q.Cursor.SubmittedAt, q.Cursor.ID)
	}

	query := `SELECT id, IFNULL(submitted_at, '') FROM form_responses WHERE ` + where + `
ORDER BY IFNULL(submitted_at, '') ASC, id ASC
LIMIT ?;`
	args = append(args, q.PageSize+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var out []responseRow
	for rows.Next() {
		var r responseRow
		if err := rows.Scan(&r.ID, &r.SubmittedAt); err != nil {
			return nil, 0, fmt.Errorf("scan response row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("read response rows: %w", err)
	}
	return out, total, nil
}
