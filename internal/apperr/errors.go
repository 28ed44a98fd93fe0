// Package apperr holds the sentinel errors shared across skeletab packages.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrArtifactNotFound is returned when no grid file resolves to a
	// requested identity. It matches ErrNotFound under errors.Is.
	ErrArtifactNotFound = &wrapped{msg: "artifact not found", parent: ErrNotFound}

	// ErrUnparseableIdentity is returned when a filename the caller named
	// explicitly does not follow the <paper>_<table|figure><N> convention.
	ErrUnparseableIdentity = errors.New("unparseable table identity")

	// ErrSidecarCorrupt marks a skeleton sidecar that exists but cannot be
	// decoded. Callers of skeleton.Manager.Load never see it; it is recovered
	// by substituting a default skeleton.
	ErrSidecarCorrupt = errors.New("skeleton sidecar corrupt")

	ErrInvalidRoot = errors.New("invalid project root")

	// ErrInvalidInput covers request payloads that fail validation, such as
	// an upload that is not a PNG or JPEG image.
	ErrInvalidInput = errors.New("invalid input")

	ErrIndexDisabled = errors.New("index not available")
)

type wrapped struct {
	msg    string
	parent error
}

func (e *wrapped) Error() string { return e.msg }
func (e *wrapped) Unwrap() error { return e.parent }
