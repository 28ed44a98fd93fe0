package api

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/skeletab/internal/apperr"
	"github.com/starford/skeletab/internal/index"
	"github.com/starford/skeletab/internal/models"
)

// ConfigResponse reports the default project root.
type ConfigResponse struct {
	RootDir string `json:"root_dir" example:"/data/replication" validate:"required"`
}

// ConfigUpdateRequest changes the default project root.
type ConfigUpdateRequest struct {
	RootDir string `json:"root_dir" example:"/data/replication" validate:"required"`
}

// Validate implements validation.Validatable.
func (r *ConfigUpdateRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.RootDir, validation.Required),
	)
}

// GridUpdateRequest is the body of save_csv. Both keys must be present;
// empty arrays are allowed.
type GridUpdateRequest struct {
	Header []string   `json:"header" validate:"required"`
	Rows   [][]string `json:"rows" validate:"required"`
}

// Validate implements validation.Validatable.
func (r *GridUpdateRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Header, validation.NotNil),
		validation.Field(&r.Rows, validation.NotNil),
	)
}

// Grid converts the request into the domain type.
func (r *GridUpdateRequest) Grid() *models.Grid {
	return &models.Grid{Header: r.Header, Rows: r.Rows}
}

// SaveGridResponse is returned after a grid is written.
type SaveGridResponse struct {
	OK      bool   `json:"ok" example:"true" validate:"required"`
	CSVPath string `json:"csv_path" example:"/data/acme/acme_table1.csv" validate:"required"`
}

// SaveSkeletonResponse is returned after a sidecar is written.
type SaveSkeletonResponse struct {
	OK           bool   `json:"ok" example:"true" validate:"required"`
	SkeletonPath string `json:"skeleton_path" example:"/data/acme/acme_table1.skeleton.json" validate:"required"`
}

// ImageUploadResponse is returned after an image upload.
type ImageUploadResponse struct {
	OK        bool   `json:"ok" example:"true" validate:"required"`
	ImagePath string `json:"image_path" example:"/data/acme/acme_table1.png" validate:"required"`
	Size      int64  `json:"size" example:"12345" validate:"required"`
}

// VariablesResponse lists candidate data variable names.
type VariablesResponse struct {
	Variables []string `json:"variables" validate:"required"`
}

// SearchRequest holds the query parameters of GET /search.
type SearchRequest struct {
	Query string
	Limit int
}

// Validate implements validation.Validatable.
func (r *SearchRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Query, validation.Required.Error("query parameter 'q' is required")),
		validation.Field(&r.Limit, validation.Min(0), validation.Max(200)),
	)
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// TableEntry is one inventory row (aliased from the domain layer).
type TableEntry = models.TableEntry

// TableDetail is the editor payload for one table (aliased from the domain layer).
type TableDetail = models.TableDetail

// Progress is the status summary (aliased from the index layer).
type Progress = index.Progress

// invalid wraps a validation failure as apperr.ErrInvalidInput.
func invalid(err error) error {
	return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
}
