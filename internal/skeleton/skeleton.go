// Package skeleton owns the read/default/write lifecycle of the per-table
// skeleton sidecar.
package skeleton

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/starford/skeletab/internal/apperr"
	"github.com/starford/skeletab/internal/locate"
	"github.com/starford/skeletab/internal/models"
	"github.com/starford/skeletab/internal/storage"
	"github.com/starford/skeletab/internal/tableid"
)

// Manager loads, defaults and saves skeleton sidecars.
type Manager struct {
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for last_modified.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger sets the logger used to report recovered sidecar failures.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager using the wall clock and the default logger.
func NewManager(opts ...Option) *Manager {
	m := &Manager{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) stamp() models.Timestamp {
	return models.NewTimestamp(m.now())
}

// Default builds a fresh skeleton for id. imagePath may be empty.
func (m *Manager) Default(id models.Identity, gridPath, imagePath string) *models.Skeleton {
	sk := &models.Skeleton{
		PaperID:            id.PaperID,
		TableID:            id.TableID,
		GridFile:           filepath.Base(gridPath),
		Status:             models.StatusInProgress,
		BracketTypeDefault: models.BracketUnknown,
		LastModified:       m.stamp(),
	}
	if imagePath != "" {
		name := filepath.Base(imagePath)
		sk.ImageFile = &name
	}
	normalize(sk)
	return sk
}

// Load returns the skeleton for the grid at gridPath. A missing or corrupt
// sidecar yields the default skeleton; only an unparseable grid name or an
// I/O failure other than "not exist" is returned as an error.
func (m *Manager) Load(gridPath string) (*models.Skeleton, error) {
	id, err := identityOf(gridPath)
	if err != nil {
		return nil, err
	}
	dir, base := filepath.Dir(gridPath), tableid.Build(id)
	imagePath, _ := locate.FindImage(dir, base)

	path, ok := locate.FindSkeleton(dir, base)
	if !ok {
		return m.Default(id, gridPath, imagePath), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return m.Default(id, gridPath, imagePath), nil
		}
		return nil, fmt.Errorf("skeleton: read %s: %w", path, err)
	}

	sk, err := m.Decode(data)
	if err != nil {
		m.logger.Warn("skeleton: sidecar corrupt, using default",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return m.Default(id, gridPath, imagePath), nil
	}
	if sk.PaperID == "" && sk.TableID == "" {
		sk.PaperID, sk.TableID = id.PaperID, id.TableID
	}
	if sk.GridFile == "" {
		sk.GridFile = filepath.Base(gridPath)
	}
	return sk, nil
}

// Decode parses sidecar bytes. Absent fields take their defaults and unknown
// fields are ignored; any structural mismatch is reported as
// apperr.ErrSidecarCorrupt.
func (m *Manager) Decode(data []byte) (*models.Skeleton, error) {
	sk := &models.Skeleton{
		Status:             models.StatusInProgress,
		BracketTypeDefault: models.BracketUnknown,
		LastModified:       m.stamp(),
	}
	if err := json.Unmarshal(data, sk); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrSidecarCorrupt, err)
	}
	normalize(sk)
	return sk, nil
}

// Save writes sk to the canonical sidecar next to gridPath and returns the
// path written. The identity is re-derived from gridPath and last_modified is
// stamped with the current time; both are written back into sk.
func (m *Manager) Save(gridPath string, sk *models.Skeleton) (string, error) {
	id, err := identityOf(gridPath)
	if err != nil {
		return "", err
	}
	sk.PaperID, sk.TableID = id.PaperID, id.TableID
	sk.LastModified = m.stamp()
	normalize(sk)

	data, err := Encode(sk)
	if err != nil {
		return "", fmt.Errorf("skeleton: encode: %w", err)
	}
	target := locate.SkeletonPath(filepath.Dir(gridPath), tableid.Build(id))
	if err := storage.WriteFileAtomic(target, data); err != nil {
		return "", fmt.Errorf("skeleton: save %s: %w", target, err)
	}
	return target, nil
}

// Encode renders sk as indented UTF-8 JSON without HTML escaping.
func Encode(sk *models.Skeleton) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sk); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func identityOf(gridPath string) (models.Identity, error) {
	id, ok := tableid.Parse(gridPath)
	if !ok {
		return models.Identity{}, fmt.Errorf("skeleton: %w: %s", apperr.ErrUnparseableIdentity, filepath.Base(gridPath))
	}
	return id, nil
}

// normalize replaces nil collections so that they encode as {} and [].
func normalize(sk *models.Skeleton) {
	if sk.BracketTypeOverrides == nil {
		sk.BracketTypeOverrides = map[string]string{}
	}
	if sk.YColumns == nil {
		sk.YColumns = []models.YColumn{}
	}
	if sk.XRows == nil {
		sk.XRows = []models.XRow{}
	}
	if sk.FERows == nil {
		sk.FERows = []models.FERow{}
	}
	if sk.ObsRows == nil {
		sk.ObsRows = []models.ObsRow{}
	}
	if sk.Notes.Rows == nil {
		sk.Notes.Rows = map[string]string{}
	}
	if sk.Notes.Cols == nil {
		sk.Notes.Cols = map[string]string{}
	}
	if sk.Notes.Cells == nil {
		sk.Notes.Cells = map[string]string{}
	}
}
