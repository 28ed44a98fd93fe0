package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/skeletab/internal/apperr"
	"github.com/starford/skeletab/internal/models"
)

// TableRow represents a row in the tables table.
type TableRow struct {
	models.Identity
	GridPath     string    `json:"csv_path"`
	ImagePath    string    `json:"image_path,omitempty"`
	SkeletonPath string    `json:"skeleton_path,omitempty"`
	Status       string    `json:"status"`
	Fingerprint  string    `json:"-"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	models.Identity
	Status  string `json:"status"`
	Snippet string `json:"snippet"`
}

// PaperProgress counts the tables of one paper by status.
type PaperProgress struct {
	PaperID  string         `json:"paper_id"`
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

// Progress summarises annotation status across the indexed project.
type Progress struct {
	Total    int             `json:"total"`
	ByStatus map[string]int  `json:"by_status"`
	Papers   []PaperProgress `json:"papers"`
}

// UpsertTable inserts or replaces a table row and its search entry within a
// transaction. body is the searchable skeleton text.
func (db *DB) UpsertTable(r TableRow, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}
	_, err = tx.Exec(`
		INSERT INTO tables (paper_id, table_id, grid_path, image_path, skeleton_path, status, fingerprint, labels, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(paper_id, table_id) DO UPDATE SET
			grid_path     = excluded.grid_path,
			image_path    = excluded.image_path,
			skeleton_path = excluded.skeleton_path,
			status        = excluded.status,
			fingerprint   = excluded.fingerprint,
			labels        = excluded.labels,
			updated_at    = excluded.updated_at
	`, r.PaperID, r.TableID, r.GridPath, r.ImagePath, r.SkeletonPath, r.Status, r.Fingerprint, body, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert table: %w", err)
	}

	if err := ftsUpsert(tx, r.Identity, body); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteTable removes a table row and its search entry.
func (db *DB) DeleteTable(id models.Identity) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, id)
	if _, err := tx.Exec(`DELETE FROM tables WHERE paper_id = ? AND table_id = ?`, id.PaperID, id.TableID); err != nil {
		return fmt.Errorf("index: delete table: %w", err)
	}
	return tx.Commit()
}

// GetTable returns the indexed row for id or an apperr.ErrNotFound error.
func (db *DB) GetTable(id models.Identity) (*TableRow, error) {
	var r TableRow
	err := db.conn.QueryRow(`
		SELECT paper_id, table_id, grid_path, image_path, skeleton_path, status, fingerprint, updated_at
		FROM tables WHERE paper_id = ? AND table_id = ?
	`, id.PaperID, id.TableID).Scan(&r.PaperID, &r.TableID, &r.GridPath, &r.ImagePath, &r.SkeletonPath, &r.Status, &r.Fingerprint, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: %w: %s/%s", apperr.ErrNotFound, id.PaperID, id.TableID)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get table: %w", err)
	}
	return &r, nil
}

// GetFingerprint returns the stored fingerprint for id, or "" if not indexed.
func (db *DB) GetFingerprint(id models.Identity) (string, error) {
	var fp string
	err := db.conn.QueryRow(`SELECT fingerprint FROM tables WHERE paper_id = ? AND table_id = ?`,
		id.PaperID, id.TableID).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get fingerprint: %w", err)
	}
	return fp, nil
}

// AllFingerprints returns the fingerprint of every indexed table.
func (db *DB) AllFingerprints() (map[models.Identity]string, error) {
	rows, err := db.conn.Query(`SELECT paper_id, table_id, fingerprint FROM tables`)
	if err != nil {
		return nil, fmt.Errorf("index: all fingerprints: %w", err)
	}
	defer rows.Close()

	out := make(map[models.Identity]string)
	for rows.Next() {
		var id models.Identity
		var fp string
		if err := rows.Scan(&id.PaperID, &id.TableID, &fp); err != nil {
			return nil, err
		}
		out[id] = fp
	}
	return out, rows.Err()
}

// Progress counts indexed tables per status, overall and per paper.
func (db *DB) Progress() (*Progress, error) {
	rows, err := db.conn.Query(`
		SELECT paper_id, status, count(*)
		FROM tables
		GROUP BY paper_id, status
		ORDER BY paper_id, status
	`)
	if err != nil {
		return nil, fmt.Errorf("index: progress: %w", err)
	}
	defer rows.Close()

	p := &Progress{ByStatus: map[string]int{}, Papers: []PaperProgress{}}
	for rows.Next() {
		var paper, status string
		var n int
		if err := rows.Scan(&paper, &status, &n); err != nil {
			return nil, err
		}
		if len(p.Papers) == 0 || p.Papers[len(p.Papers)-1].PaperID != paper {
			p.Papers = append(p.Papers, PaperProgress{PaperID: paper, ByStatus: map[string]int{}})
		}
		last := &p.Papers[len(p.Papers)-1]
		last.Total += n
		last.ByStatus[status] += n
		p.Total += n
		p.ByStatus[status] += n
	}
	return p, rows.Err()
}
