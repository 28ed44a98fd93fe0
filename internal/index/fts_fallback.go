//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"

	"github.com/starford/skeletab/internal/models"
)

func initFTS(_ *sql.DB) error {
	// Search falls back to LIKE over tables.labels.
	return nil
}

func ftsUpsert(_ *sql.Tx, _ models.Identity, _ string) error {
	return nil
}

func ftsDelete(_ *sql.Tx, _ models.Identity) {}

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT paper_id, table_id, status, substr(labels, 1, 200)
		FROM tables
		WHERE paper_id LIKE ? OR table_id LIKE ? OR labels LIKE ?
		ORDER BY paper_id, table_id
		LIMIT ?
	`, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.PaperID, &r.TableID, &r.Status, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
