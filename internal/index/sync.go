package index

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/starford/skeletab/internal/checksum"
	"github.com/starford/skeletab/internal/models"
	"github.com/starford/skeletab/internal/project"
	"github.com/starford/skeletab/internal/skeleton"
)

// Change kinds reported by Sync.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
)

// Change is one index mutation made by Sync.
type Change struct {
	Kind string
	ID   models.Identity
}

// Sync scans root and brings the index up to date:
//   - new tables and tables whose artifacts changed are upserted
//   - tables no longer on disk are deleted from the index
//
// Per-table failures are logged and skipped; only a failed scan or a failed
// fingerprint lookup aborts the pass.
func Sync(db *DB, root string, mgr *skeleton.Manager, logger *slog.Logger) ([]Change, error) {
	entries, err := project.New(logger).Scan(root)
	if err != nil {
		return nil, err
	}
	fingerprints, err := db.AllFingerprints()
	if err != nil {
		return nil, err
	}

	var changes []Change
	disk := make(map[models.Identity]struct{}, len(entries))
	for _, e := range entries {
		disk[e.Identity] = struct{}{}

		old, known := fingerprints[e.Identity]
		kind, err := refresh(db, mgr, e, old, known)
		if err != nil {
			logger.Warn("sync: index failed",
				slog.String("paper_id", e.PaperID),
				slog.String("table_id", e.TableID),
				slog.String("error", err.Error()))
			continue
		}
		if kind == "" {
			continue
		}
		logger.Debug("sync: indexed", slog.String("grid", e.GridPath), slog.String("op", kind))
		changes = append(changes, Change{Kind: kind, ID: e.Identity})
	}

	for id := range fingerprints {
		if _, ok := disk[id]; ok {
			continue
		}
		if err := db.DeleteTable(id); err != nil {
			logger.Warn("sync: delete failed",
				slog.String("paper_id", id.PaperID),
				slog.String("table_id", id.TableID),
				slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: removed stale", slog.String("paper_id", id.PaperID), slog.String("table_id", id.TableID))
		changes = append(changes, Change{Kind: KindDeleted, ID: id})
	}
	return changes, nil
}

// fingerprint covers the resolved paths and the bytes behind them, so a
// companion appearing, disappearing or changing all count as a change.
func fingerprint(e models.TableEntry) string {
	return checksum.SumFiles(e.GridPath, e.ImagePath, e.SkeletonPath)
}

// Refresh re-indexes a single inventory entry. It returns the change kind,
// or "" when the stored fingerprint already matches.
func Refresh(db *DB, mgr *skeleton.Manager, e models.TableEntry) (string, error) {
	old, err := db.GetFingerprint(e.Identity)
	if err != nil {
		return "", err
	}
	return refresh(db, mgr, e, old, old != "")
}

func refresh(db *DB, mgr *skeleton.Manager, e models.TableEntry, old string, known bool) (string, error) {
	fp := fingerprint(e)
	if known && old == fp {
		return "", nil
	}
	if err := indexEntry(db, mgr, e, fp); err != nil {
		return "", err
	}
	if known {
		return KindUpdated, nil
	}
	return KindCreated, nil
}

func indexEntry(db *DB, mgr *skeleton.Manager, e models.TableEntry, fp string) error {
	var body string
	if e.SkeletonPath != "" {
		sk, err := mgr.Load(e.GridPath)
		if err != nil {
			return err
		}
		body = SearchText(sk)
	}
	return db.UpsertTable(TableRow{
		Identity:     e.Identity,
		GridPath:     e.GridPath,
		ImagePath:    e.ImagePath,
		SkeletonPath: e.SkeletonPath,
		Status:       e.Status,
		Fingerprint:  fp,
	}, body)
}

// SearchText flattens the human-entered labels, variable names and notes of
// sk into one newline-separated string.
func SearchText(sk *models.Skeleton) string {
	var parts []string
	add := func(ss ...*string) {
		for _, s := range ss {
			if s != nil && strings.TrimSpace(*s) != "" {
				parts = append(parts, *s)
			}
		}
	}
	for _, c := range sk.YColumns {
		add(c.DepvarLabel, c.DepvarDataName, c.Note)
	}
	for _, r := range sk.XRows {
		add(r.DisplayLabel, r.DataVarName, r.Note)
	}
	for _, r := range sk.FERows {
		add(&r.Label, r.DataVarName, r.Note)
	}
	for _, r := range sk.ObsRows {
		add(&r.Label, r.Note)
	}
	for _, notes := range []map[string]string{sk.Notes.Rows, sk.Notes.Cols, sk.Notes.Cells} {
		for _, k := range sortedKeys(notes) {
			v := notes[k]
			add(&v)
		}
	}
	return strings.Join(parts, "\n")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
