// Package models defines the domain types for skeletab.
package models

// Status values written by the annotator. Skeleton status is free-form, these
// are only the conventional ones.
const (
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"

	BracketUnknown = "unknown"
	RoleKey        = "key"
)

// Identity names one logical table or figure.
type Identity struct {
	PaperID string `json:"paper_id"`
	TableID string `json:"table_id"`
}

// TablePaths are the artifacts resolved for one identity. ImagePath and
// SkeletonPath are empty when the companion does not exist.
type TablePaths struct {
	GridPath     string `json:"csv_path"`
	ImagePath    string `json:"image_path,omitempty"`
	SkeletonPath string `json:"skeleton_path,omitempty"`
}

// TableEntry is one row of the project inventory.
type TableEntry struct {
	Identity
	TablePaths
	Status string `json:"status"`
	// Shadowed lists other grid files that resolved to the same identity
	// and lost the tie-break.
	Shadowed []string `json:"shadowed,omitempty"`
}

// Grid is the verbatim cell content of a grid file.
type Grid struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// YColumn describes a dependent-variable column.
type YColumn struct {
	Col            int     `json:"col"`
	DepvarLabel    *string `json:"depvar_label"`
	DepvarDataName *string `json:"depvar_data_name"`
	Note           *string `json:"note"`
}

// XRow describes an explanatory-variable row.
type XRow struct {
	Row          int     `json:"row"`
	DisplayLabel *string `json:"display_label"`
	DataVarName  *string `json:"data_var_name"`
	Role         string  `json:"role"`
	Note         *string `json:"note"`
}

// FERow describes a fixed-effects indicator row.
type FERow struct {
	Row         int     `json:"row"`
	Label       string  `json:"label"`
	DataVarName *string `json:"data_var_name"`
	Note        *string `json:"note"`
}

// ObsRow describes an observation-count row.
type ObsRow struct {
	Row   int     `json:"row"`
	Label string  `json:"label"`
	Note  *string `json:"note"`
}

// NoteCollection holds free-text notes keyed by row, column or cell id.
type NoteCollection struct {
	Rows  map[string]string `json:"rows"`
	Cols  map[string]string `json:"cols"`
	Cells map[string]string `json:"cells"`
}

// Skeleton is the durable annotation record for one table.
type Skeleton struct {
	PaperID              string            `json:"paper_id"`
	TableID              string            `json:"table_id"`
	GridFile             string            `json:"grid_file"`
	ImageFile            *string           `json:"image_file"`
	Status               string            `json:"status"`
	BracketTypeDefault   string            `json:"bracket_type_default"`
	BracketTypeOverrides map[string]string `json:"bracket_type_overrides"`
	YColumns             []YColumn         `json:"y_columns"`
	XRows                []XRow            `json:"x_rows"`
	FERows               []FERow           `json:"fe_rows"`
	ObsRows              []ObsRow          `json:"obs_rows"`
	Notes                NoteCollection    `json:"notes"`
	LastModified         Timestamp         `json:"last_modified"`
}

// Identity returns the identity recorded inside the skeleton.
func (s *Skeleton) Identity() Identity {
	return Identity{PaperID: s.PaperID, TableID: s.TableID}
}

// TableDetail bundles everything the editor needs for one table.
type TableDetail struct {
	Info     TableEntry `json:"info"`
	Grid     *Grid      `json:"grid"`
	Skeleton *Skeleton  `json:"skeleton"`
}
