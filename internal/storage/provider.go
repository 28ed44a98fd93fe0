// Package storage defines the project-tree file-system abstraction.
package storage

import "time"

// FileInfo describes one file found under a project root.
type FileInfo struct {
	Path    string // relative to the root, slash-separated on all platforms
	Abs     string
	Size    int64
	ModTime time.Time
}

// Provider is the interface for project-tree file operations.
type Provider interface {
	// Root returns the absolute project root.
	Root() string
	// List returns every file under dir (relative to root) whose extension
	// matches one of exts, case-insensitively. Results are sorted by Path.
	List(dir string, exts ...string) ([]FileInfo, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to root).
	Write(path string, content []byte) error
	// Remove deletes the file at path. A missing file is not an error.
	Remove(path string) error
}
