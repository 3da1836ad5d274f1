package repo

import (
	"context"
	"database/sql"
	"strings"

	"taskpilot/internal/domain"
)

// Every task statement filters by user_id; a task under another user is
// indistinguishable from a missing one.

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(user_id,title,description,completed,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		t.UserID, t.Title, nullable(t.Description), t.Completed, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetTask(ctx context.Context, userID string, id int64) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,user_id,title,COALESCE(description,''),completed,created_at,updated_at FROM tasks WHERE id=? AND user_id=?`, id, userID)
	var t domain.Task
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

type TaskFilters struct {
	UserID    string
	Completed *bool
	Search    string
	Limit     int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	clauses := []string{"user_id=?"}
	args := []any{f.UserID}
	if f.Completed != nil {
		clauses = append(clauses, "completed=?")
		args = append(args, *f.Completed)
	}
	if f.Search != "" {
		clauses = append(clauses, "(title LIKE ? OR description LIKE ?)")
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern)
	}
	query := `SELECT id,user_id,title,COALESCE(description,''),completed,created_at,updated_at FROM tasks WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY created_at, id`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, completed=?, updated_at=? WHERE id=? AND user_id=?`,
		t.Title, nullable(t.Description), t.Completed, t.UpdatedAt, t.ID, t.UserID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, userID string, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=? AND user_id=?`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountTasksByCompletion(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT completed, COUNT(*) FROM tasks WHERE user_id=? GROUP BY completed`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{"completed": 0, "pending": 0}
	for rows.Next() {
		var completed bool
		var n int
		if err := rows.Scan(&completed, &n); err != nil {
			return nil, err
		}
		if completed {
			counts["completed"] = n
		} else {
			counts["pending"] = n
		}
	}
	return counts, rows.Err()
}
