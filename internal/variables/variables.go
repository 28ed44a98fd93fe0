// Package variables suggests candidate data variable names for a paper by
// looking at the data and code files that ship with it.
package variables

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/starford/skeletab/internal/storage"
	"github.com/starford/skeletab/internal/tableid"
)

// DefaultLimit caps the number of names a source returns.
const DefaultLimit = 3000

// Source lists candidate variable names found under dir.
type Source interface {
	Variables(ctx context.Context, dir string) ([]string, error)
}

// HeaderSource reads the header row of .csv and .tsv data files. Grid files
// (names that parse as a table identity) are skipped.
type HeaderSource struct {
	Limit  int
	Logger *slog.Logger
}

var _ Source = (*HeaderSource)(nil)

// Variables implements Source.
func (h *HeaderSource) Variables(ctx context.Context, dir string) ([]string, error) {
	fsys, err := storage.NewFS(dir)
	if err != nil {
		return nil, err
	}
	files, err := fsys.List("", ".csv", ".tsv")
	if err != nil {
		return nil, err
	}

	names := newNameSet(limitOr(h.Limit))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, ok := tableid.Parse(f.Path); ok {
			continue
		}
		header, err := readHeader(f.Abs)
		if err != nil {
			logOr(h.Logger).Debug("variables: header unreadable",
				slog.String("path", f.Abs),
				slog.String("error", err.Error()))
			continue
		}
		names.add(header...)
	}
	return names.sorted(), nil
}

func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		r.Comma = '\t'
	}
	rec, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	return rec, err
}

// codeExts are the analysis-script extensions CodeSource reads.
var codeExts = []string{".py", ".r", ".jl", ".m", ".sas", ".do", ".ado", ".qmd", ".ipynb"}

const (
	codeReadLimit = 8000
	maxNameLen    = 60
)

var identRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_.]*`)

// CodeSource collects identifiers from the first few kilobytes of analysis
// scripts. Files with "log" in their name are skipped.
type CodeSource struct {
	Limit int
}

var _ Source = (*CodeSource)(nil)

// Variables implements Source.
func (c *CodeSource) Variables(ctx context.Context, dir string) ([]string, error) {
	fsys, err := storage.NewFS(dir)
	if err != nil {
		return nil, err
	}
	files, err := fsys.List("", codeExts...)
	if err != nil {
		return nil, err
	}

	names := newNameSet(limitOr(c.Limit))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.Contains(strings.ToLower(filepath.Base(f.Path)), "log") {
			continue
		}
		data, err := fsys.Read(f.Path)
		if err != nil {
			continue
		}
		if len(data) > codeReadLimit {
			data = data[:codeReadLimit]
		}
		names.add(identRe.FindAllString(string(data), -1)...)
	}
	return names.sorted(), nil
}

// Multi merges the names of several sources.
type Multi []Source

// Variables implements Source. A failing source fails the whole call.
func (m Multi) Variables(ctx context.Context, dir string) ([]string, error) {
	set := newNameSet(0)
	for _, s := range m {
		names, err := s.Variables(ctx, dir)
		if err != nil {
			return nil, err
		}
		set.add(names...)
	}
	return set.sorted(), nil
}

type nameSet struct {
	limit int
	m     map[string]struct{}
}

func newNameSet(limit int) *nameSet {
	return &nameSet{limit: limit, m: make(map[string]struct{})}
}

// add inserts the usable names.
func (s *nameSet) add(names ...string) {
	for _, n := range names {
		n = strings.TrimSpace(strings.TrimPrefix(n, "\ufeff"))
		if n == "" || len(n) > maxNameLen || isNumber(n) {
			continue
		}
		s.m[n] = struct{}{}
	}
}

// sorted returns the names in order, cut to the limit after sorting.
func (s *nameSet) sorted() []string {
	out := make([]string, 0, len(s.m))
	for n := range s.m {
		out = append(out, n)
	}
	slices.Sort(out)
	if s.limit > 0 && len(out) > s.limit {
		out = out[:s.limit]
	}
	return out
}

func isNumber(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func limitOr(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	return n
}

func logOr(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
