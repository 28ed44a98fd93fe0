// Package project discovers logical tables under a project root and resolves
// the artifacts that belong to each of them.
package project

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/starford/skeletab/internal/apperr"
	"github.com/starford/skeletab/internal/locate"
	"github.com/starford/skeletab/internal/models"
	"github.com/starford/skeletab/internal/skeleton"
	"github.com/starford/skeletab/internal/storage"
	"github.com/starford/skeletab/internal/tableid"
)

// GridExts are the extensions treated as grid files.
var GridExts = []string{".csv"}

// Scanner walks project roots. The zero value is not usable; use New.
type Scanner struct {
	logger *slog.Logger
}

// New creates a Scanner that reports identity conflicts to logger.
func New(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{logger: logger}
}

// candidate is a grid file that parsed to an identity.
type candidate struct {
	id  models.Identity
	rel string
	abs string
}

// gridsByIdentity walks root and groups parseable grid files by identity.
// Each group is ordered by relative path; the first element is the winner.
func gridsByIdentity(root string) (map[models.Identity][]candidate, error) {
	fsys, err := storage.NewFS(root)
	if err != nil {
		return nil, err
	}
	files, err := fsys.List("", GridExts...)
	if err != nil {
		return nil, err
	}
	groups := make(map[models.Identity][]candidate)
	for _, f := range files {
		id, ok := tableid.Parse(f.Path)
		if !ok {
			continue
		}
		groups[id] = append(groups[id], candidate{id: id, rel: f.Path, abs: f.Abs})
	}
	// List is sorted by path already; keep the invariant explicit.
	for _, g := range groups {
		sort.Slice(g, func(i, j int) bool { return g[i].rel < g[j].rel })
	}
	return groups, nil
}

// Companions resolves the image and sidecar next to gridPath.
func Companions(gridPath string, id models.Identity) models.TablePaths {
	dir, base := filepath.Dir(gridPath), tableid.Build(id)
	paths := models.TablePaths{GridPath: gridPath}
	paths.ImagePath, _ = locate.FindImage(dir, base)
	paths.SkeletonPath, _ = locate.FindSkeleton(dir, base)
	return paths
}

func entryFor(c candidate, shadowed []candidate) models.TableEntry {
	paths := Companions(c.abs, c.id)
	e := models.TableEntry{
		Identity:   c.id,
		TablePaths: paths,
		Status:     skeleton.EntryStatus(paths.SkeletonPath),
	}
	for _, s := range shadowed {
		e.Shadowed = append(e.Shadowed, s.abs)
	}
	return e
}

// Scan returns one entry per logical table under root, sorted by paper id
// then table id. When several grid files share an identity the one with the
// lexicographically smallest path relative to root wins and the others are
// listed in Shadowed.
func (s *Scanner) Scan(root string) ([]models.TableEntry, error) {
	groups, err := gridsByIdentity(root)
	if err != nil {
		return nil, fmt.Errorf("project: scan %s: %w", root, err)
	}

	out := make([]models.TableEntry, 0, len(groups))
	for id, g := range groups {
		if len(g) > 1 {
			shadowed := make([]string, 0, len(g)-1)
			for _, c := range g[1:] {
				shadowed = append(shadowed, c.rel)
			}
			s.logger.Warn("project: duplicate grid files for table",
				slog.String("paper_id", id.PaperID),
				slog.String("table_id", id.TableID),
				slog.String("kept", g[0].rel),
				slog.Any("shadowed", shadowed))
		}
		out = append(out, entryFor(g[0], g[1:]))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PaperID != out[j].PaperID {
			return out[i].PaperID < out[j].PaperID
		}
		return out[i].TableID < out[j].TableID
	})
	return out, nil
}

// Resolve finds the artifacts of one table under root using the same
// tie-break as Scan. It fails with apperr.ErrArtifactNotFound when no grid
// file resolves to the identity.
func (s *Scanner) Resolve(root string, id models.Identity) (models.TablePaths, error) {
	g, err := s.find(root, id)
	if err != nil {
		return models.TablePaths{}, err
	}
	return Companions(g[0].abs, id), nil
}

// Entry resolves one table and computes its inventory status.
func (s *Scanner) Entry(root string, id models.Identity) (models.TableEntry, error) {
	g, err := s.find(root, id)
	if err != nil {
		return models.TableEntry{}, err
	}
	return entryFor(g[0], g[1:]), nil
}

func (s *Scanner) find(root string, id models.Identity) ([]candidate, error) {
	groups, err := gridsByIdentity(root)
	if err != nil {
		return nil, fmt.Errorf("project: resolve %s: %w", root, err)
	}
	g, ok := groups[id]
	if !ok {
		return nil, notFound(id)
	}
	return g, nil
}

func notFound(id models.Identity) error {
	return fmt.Errorf("project: %w: no grid for %s", apperr.ErrArtifactNotFound, tableid.Build(id))
}

// ParseIdentity validates a caller-supplied (paper, table) pair: it must be
// the identity parsed back from its own grid filename.
func ParseIdentity(paperID, tableID string) (models.Identity, error) {
	want := models.Identity{PaperID: paperID, TableID: tableID}
	got, ok := tableid.Parse(tableid.Build(want) + GridExts[0])
	if !ok || got != want {
		return models.Identity{}, fmt.Errorf("project: %w: %q/%q", apperr.ErrUnparseableIdentity, paperID, tableID)
	}
	return want, nil
}
