// Package tableid derives (paper_id, table_id) identities from artifact
// filenames such as "acme_table3_A.csv" or "acme_figure2.skeleton.json".
//
// A stem is read as
//
//	<paper>_<keyword><digits>[_<panel>]...
//
// where keyword is "table" or "figure" (any case), paper is the shortest
// non-empty prefix that makes the rest match, and each panel token is a run
// of ASCII letters and digits. Text after the last well-formed panel token is
// ignored, so "acme_table1-draft.csv" still parses as ("acme", "table1").
package tableid

import (
	"path/filepath"
	"strings"

	"github.com/starford/skeletab/internal/models"
)

// SkeletonMarker is the stem suffix carried by skeleton sidecars.
const SkeletonMarker = ".skeleton"

var keywords = []string{"table", "figure"}

// Parse extracts the identity from a filename or path. It reports false when
// the name carries no <keyword><digits> token after a paper prefix.
func Parse(filename string) (models.Identity, bool) {
	return ParseStem(Stem(filename))
}

// Stem returns the base name without its last extension and without a
// trailing sidecar marker.
func Stem(filename string) string {
	base := filepath.Base(filename)
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	if len(base) > len(SkeletonMarker) && strings.EqualFold(base[len(base)-len(SkeletonMarker):], SkeletonMarker) {
		base = base[:len(base)-len(SkeletonMarker)]
	}
	return base
}

// ParseStem parses a stem that has already been stripped of extensions.
func ParseStem(stem string) (models.Identity, bool) {
	for i := 1; i < len(stem); i++ {
		if stem[i] != '_' {
			continue
		}
		n := matchTable(stem[i+1:])
		if n == 0 {
			continue
		}
		return models.Identity{
			PaperID: stem[:i],
			TableID: stem[i+1 : i+1+n],
		}, true
	}
	return models.Identity{}, false
}

// matchTable returns the length of the table id at the start of s, or 0.
func matchTable(s string) int {
	n := matchKeyword(s)
	if n == 0 {
		return 0
	}
	digits := countWhile(s[n:], isDigit)
	if digits == 0 {
		return 0
	}
	n += digits
	for n < len(s) && s[n] == '_' {
		tok := countWhile(s[n+1:], isAlnum)
		if tok == 0 {
			break
		}
		n += 1 + tok
	}
	return n
}

func matchKeyword(s string) int {
	for _, kw := range keywords {
		if len(s) >= len(kw) && strings.EqualFold(s[:len(kw)], kw) {
			return len(kw)
		}
	}
	return 0
}

func countWhile(s string, pred func(byte) bool) int {
	n := 0
	for n < len(s) && pred(s[n]) {
		n++
	}
	return n
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlnum(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Build returns the base prefix "<paper>_<table>" shared by all artifacts of
// an identity.
func Build(id models.Identity) string {
	return id.PaperID + "_" + id.TableID
}

// Panel returns the panel tokens of a table id ("wp_A" for "table1_wp_A"),
// or "" when the table id has none.
func Panel(tableID string) string {
	n := matchKeyword(tableID)
	if n == 0 {
		return ""
	}
	digits := countWhile(tableID[n:], isDigit)
	n += digits
	if digits == 0 || n >= len(tableID) || tableID[n] != '_' {
		return ""
	}
	return tableID[n+1:]
}

// PanelLess drops the last panel token from the identity's table id. The
// second result is false when there is no panel to strip.
func PanelLess(id models.Identity) (models.Identity, bool) {
	if Panel(id.TableID) == "" {
		return id, false
	}
	i := strings.LastIndexByte(id.TableID, '_')
	return models.Identity{PaperID: id.PaperID, TableID: id.TableID[:i]}, true
}
