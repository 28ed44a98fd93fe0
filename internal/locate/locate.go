// Package locate finds the image and skeleton companions of a grid file.
//
// Lookups always stat the file system; nothing is cached between calls.
package locate

import (
	"path/filepath"

	"github.com/starford/skeletab/internal/storage"
	"github.com/starford/skeletab/internal/tableid"
)

// ImageExts are tried in this order within each lookup tier.
var ImageExts = []string{".png", ".jpg", ".jpeg"}

const (
	SkeletonSuffix       = ".skeleton.json"
	LegacySkeletonSuffix = ".json"

	// WithPanelsSuffix names the shared "with panels" rendering of a
	// multi-panel table.
	WithPanelsSuffix = "_wp"
)

// ImageBases returns the base prefixes tried for an image, highest priority
// first: the exact base, then (for panel tables) the base without its last
// panel token, then that panel-less base with "_wp" appended.
func ImageBases(base string) []string {
	bases := []string{base}
	id, ok := tableid.ParseStem(base)
	if !ok || tableid.Build(id) != base {
		return bases
	}
	stripped, ok := tableid.PanelLess(id)
	if !ok {
		return bases
	}
	panelLess := tableid.Build(stripped)
	return append(bases, panelLess, panelLess+WithPanelsSuffix)
}

// ImageCandidates lists every path FindImage probes, in probe order.
func ImageCandidates(dir, base string) []string {
	var out []string
	for _, b := range ImageBases(base) {
		for _, ext := range ImageExts {
			out = append(out, filepath.Join(dir, b+ext))
		}
	}
	return out
}

// FindImage returns the best image for base in dir.
func FindImage(dir, base string) (string, bool) {
	return firstFile(ImageCandidates(dir, base))
}

// SkeletonCandidates lists the sidecar paths FindSkeleton probes.
func SkeletonCandidates(dir, base string) []string {
	return []string{
		filepath.Join(dir, base+SkeletonSuffix),
		filepath.Join(dir, base+LegacySkeletonSuffix),
	}
}

// FindSkeleton returns the canonical sidecar for base, falling back to the
// legacy bare ".json" name. Panels never share a sidecar.
func FindSkeleton(dir, base string) (string, bool) {
	return firstFile(SkeletonCandidates(dir, base))
}

// SkeletonPath is where a sidecar for base is written.
func SkeletonPath(dir, base string) string {
	return filepath.Join(dir, base+SkeletonSuffix)
}

func firstFile(candidates []string) (string, bool) {
	for _, c := range candidates {
		if storage.IsFile(c) {
			return c, true
		}
	}
	return "", false
}
