package index

import "github.com/starford/skeletab/internal/models"

// TableIndex is the read/write surface of the inventory index. Consumers
// depend on it rather than on *DB.
type TableIndex interface {
	UpsertTable(r TableRow, body string) error
	DeleteTable(id models.Identity) error
	GetTable(id models.Identity) (*TableRow, error)
	GetFingerprint(id models.Identity) (string, error)
	AllFingerprints() (map[models.Identity]string, error)
	Search(query string, limit int) ([]SearchResult, error)
	Progress() (*Progress, error)
	Close() error
}

var _ TableIndex = (*DB)(nil)
