// Package annotator coordinates the project scanner, the skeleton manager,
// the grid store and the inventory index on behalf of the HTTP API and the
// MCP server.
package annotator

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/starford/skeletab/internal/apperr"
	"github.com/starford/skeletab/internal/grid"
	"github.com/starford/skeletab/internal/index"
	"github.com/starford/skeletab/internal/locate"
	"github.com/starford/skeletab/internal/models"
	"github.com/starford/skeletab/internal/project"
	"github.com/starford/skeletab/internal/skeleton"
	"github.com/starford/skeletab/internal/storage"
	"github.com/starford/skeletab/internal/tableid"
	"github.com/starford/skeletab/internal/variables"
)

// Service is safe for concurrent use. Writes to the same table are not
// serialized against each other; the last rename wins.
type Service struct {
	indexRoot string
	scanner   *project.Scanner
	mgr       *skeleton.Manager
	db        *index.DB
	vars      variables.Source
	onChange  index.EventCallback
	logger    *slog.Logger

	mu   sync.RWMutex
	root string
}

// Option configures a Service.
type Option func(*Service)

// WithIndex attaches the inventory index kept for root. Saves under root
// refresh it immediately.
func WithIndex(db *index.DB) Option {
	return func(s *Service) { s.db = db }
}

// WithVariables sets the candidate variable source.
func WithVariables(src variables.Source) Option {
	return func(s *Service) { s.vars = src }
}

// WithChangeCallback is notified after a save changes the index.
func WithChangeCallback(cb index.EventCallback) Option {
	return func(s *Service) { s.onChange = cb }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithManager overrides the skeleton manager.
func WithManager(m *skeleton.Manager) Option {
	return func(s *Service) { s.mgr = m }
}

// NewService creates a service whose default project root is root.
func NewService(root string, opts ...Option) (*Service, error) {
	abs, err := checkRoot(root)
	if err != nil {
		return nil, err
	}
	s := &Service{
		indexRoot: abs,
		root:      abs,
		vars:      &variables.HeaderSource{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mgr == nil {
		s.mgr = skeleton.NewManager(skeleton.WithLogger(s.logger))
	}
	s.scanner = project.New(s.logger)
	return s, nil
}

// Root returns the current default project root.
func (s *Service) Root() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// SetRoot changes the default project root. The index stays bound to the
// root the service was created with.
func (s *Service) SetRoot(root string) (string, error) {
	abs, err := checkRoot(root)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.root = abs
	s.mu.Unlock()
	return abs, nil
}

// ResolveRoot returns rootDir as an absolute directory, or the default root
// when rootDir is empty.
func (s *Service) ResolveRoot(rootDir string) (string, error) {
	if rootDir == "" {
		return s.Root(), nil
	}
	return checkRoot(rootDir)
}

func checkRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("annotator: %w: %v", apperr.ErrInvalidRoot, err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("annotator: %w: %s", apperr.ErrInvalidRoot, root)
	}
	return abs, nil
}

// ListTables scans the project fresh on every call.
func (s *Service) ListTables(_ context.Context, rootDir string) ([]models.TableEntry, error) {
	root, err := s.ResolveRoot(rootDir)
	if err != nil {
		return nil, err
	}
	return s.scanner.Scan(root)
}

// GetTable returns the inventory entry, grid and skeleton of one table.
func (s *Service) GetTable(_ context.Context, rootDir, paperID, tableID string) (*models.TableDetail, error) {
	_, e, err := s.entry(rootDir, paperID, tableID)
	if err != nil {
		return nil, err
	}
	g, err := grid.Read(e.GridPath)
	if err != nil {
		return nil, err
	}
	sk, err := s.mgr.Load(e.GridPath)
	if err != nil {
		return nil, err
	}
	return &models.TableDetail{Info: e, Grid: g, Skeleton: sk}, nil
}

// SaveGrid replaces the grid of an existing table and returns its path.
func (s *Service) SaveGrid(_ context.Context, rootDir, paperID, tableID string, g *models.Grid) (string, error) {
	root, e, err := s.entry(rootDir, paperID, tableID)
	if err != nil {
		return "", err
	}
	if err := grid.Write(e.GridPath, g); err != nil {
		return "", err
	}
	s.logger.Info("grid saved", slog.String("path", e.GridPath))
	s.refresh(root, e.Identity)
	return e.GridPath, nil
}

// SaveSkeleton writes sk as the sidecar of an existing table and returns the
// path written. Identity and last_modified are set by the server.
func (s *Service) SaveSkeleton(_ context.Context, rootDir, paperID, tableID string, sk *models.Skeleton) (string, error) {
	root, e, err := s.entry(rootDir, paperID, tableID)
	if err != nil {
		return "", err
	}
	path, err := s.mgr.Save(e.GridPath, sk)
	if err != nil {
		return "", err
	}
	s.logger.Info("skeleton saved", slog.String("path", path), slog.String("status", sk.Status))
	s.refresh(root, e.Identity)
	return path, nil
}

// DecodeSkeleton parses a client-supplied skeleton with the same defaults
// as a sidecar read. Malformed input is reported as apperr.ErrInvalidInput.
func (s *Service) DecodeSkeleton(data []byte) (*models.Skeleton, error) {
	sk, err := s.mgr.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("annotator: %w: %v", apperr.ErrInvalidInput, err)
	}
	return sk, nil
}

// ImagePath returns the image resolved for a table, or an
// apperr.ErrNotFound error when it has none.
func (s *Service) ImagePath(_ context.Context, rootDir, paperID, tableID string) (string, error) {
	_, e, err := s.entry(rootDir, paperID, tableID)
	if err != nil {
		return "", err
	}
	if e.ImagePath == "" {
		return "", fmt.Errorf("annotator: %w: no image for %s", apperr.ErrNotFound, tableid.Build(e.Identity))
	}
	return e.ImagePath, nil
}

var (
	pngMagic  = []byte("\x89PNG\r\n\x1a\n")
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
)

// ImageExt sniffs data and returns ".png" or ".jpg".
func ImageExt(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, pngMagic):
		return ".png", nil
	case bytes.HasPrefix(data, jpegMagic):
		return ".jpg", nil
	}
	return "", fmt.Errorf("annotator: %w: image must be PNG or JPEG", apperr.ErrInvalidInput)
}

// UploadImage stores data as the exact-match image of a table, next to its
// grid, and returns the path written. Exact-match images with another
// extension are removed so the upload is the one served.
func (s *Service) UploadImage(_ context.Context, rootDir, paperID, tableID string, data []byte) (string, error) {
	ext, err := ImageExt(data)
	if err != nil {
		return "", err
	}
	root, e, err := s.entry(rootDir, paperID, tableID)
	if err != nil {
		return "", err
	}
	fsys, err := storage.NewFS(root)
	if err != nil {
		return "", err
	}
	relDir, err := filepath.Rel(root, filepath.Dir(e.GridPath))
	if err != nil {
		return "", err
	}
	base := tableid.Build(e.Identity)
	target := filepath.Join(root, relDir, base+ext)
	if err := fsys.Write(filepath.Join(relDir, base+ext), data); err != nil {
		return "", err
	}
	// Another exact-match extension could shadow the upload in FindImage.
	for _, other := range locate.ImageExts {
		if other == ext {
			continue
		}
		if err := fsys.Remove(filepath.Join(relDir, base+other)); err != nil {
			return "", err
		}
	}
	s.logger.Info("image uploaded", slog.String("path", target), slog.Int("bytes", len(data)))
	s.refresh(root, e.Identity)
	return target, nil
}

// Variables lists candidate data variable names for a table's paper. The
// paper directory <root>/<paper_id> is searched when it exists, otherwise
// the directory holding the grid.
func (s *Service) Variables(ctx context.Context, rootDir, paperID, tableID string) ([]string, error) {
	root, e, err := s.entry(rootDir, paperID, tableID)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(root, e.PaperID)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		dir = filepath.Dir(e.GridPath)
	}
	return s.vars.Variables(ctx, dir)
}

// Search queries the inventory index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	if s.db == nil {
		return nil, apperr.ErrIndexDisabled
	}
	return s.db.Search(query, limit)
}

// Progress reports annotation status counts from the inventory index.
func (s *Service) Progress(_ context.Context) (*index.Progress, error) {
	if s.db == nil {
		return nil, apperr.ErrIndexDisabled
	}
	return s.db.Progress()
}

func (s *Service) entry(rootDir, paperID, tableID string) (string, models.TableEntry, error) {
	root, err := s.ResolveRoot(rootDir)
	if err != nil {
		return "", models.TableEntry{}, err
	}
	id, err := project.ParseIdentity(paperID, tableID)
	if err != nil {
		return "", models.TableEntry{}, err
	}
	e, err := s.scanner.Entry(root, id)
	if err != nil {
		return "", models.TableEntry{}, err
	}
	return root, e, nil
}

// refresh re-indexes one table after a write. Index failures are logged;
// the watcher's next pass corrects them.
func (s *Service) refresh(root string, id models.Identity) {
	if s.db == nil || root != s.indexRoot {
		return
	}
	e, err := s.scanner.Entry(root, id)
	if err != nil {
		s.logger.Warn("index refresh failed", slog.String("table", tableid.Build(id)), slog.String("error", err.Error()))
		return
	}
	kind, err := index.Refresh(s.db, s.mgr, e)
	if err != nil {
		s.logger.Warn("index refresh failed", slog.String("table", tableid.Build(id)), slog.String("error", err.Error()))
		return
	}
	if kind != "" && s.onChange != nil {
		s.onChange(kind, id)
	}
}
