//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"

	"github.com/starford/skeletab/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS tables_fts USING fts5(
			paper_id UNINDEXED,
			table_id UNINDEXED,
			title,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, id models.Identity, body string) error {
	ftsDelete(tx, id)
	_, err := tx.Exec(`INSERT INTO tables_fts (paper_id, table_id, title, body) VALUES (?, ?, ?, ?)`,
		id.PaperID, id.TableID, id.PaperID+" "+id.TableID, body)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, id models.Identity) {
	_, _ = tx.Exec(`DELETE FROM tables_fts WHERE paper_id = ? AND table_id = ?`, id.PaperID, id.TableID)
}

// Search performs an FTS5 full-text search over skeleton labels and notes.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT f.paper_id,
		       f.table_id,
		       t.status,
		       snippet(tables_fts, 3, '<b>', '</b>', '...', 32)
		FROM tables_fts f
		JOIN tables t ON t.paper_id = f.paper_id AND t.table_id = f.table_id
		WHERE tables_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
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
