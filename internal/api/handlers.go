package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/skeletab/internal/annotator"
	"github.com/starford/skeletab/internal/index"
)

// Handler holds API route handlers.
type Handler struct {
	svc *annotator.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *annotator.Service) *Handler {
	return &Handler{svc: svc}
}

func rootDir(r *http.Request) string {
	return r.URL.Query().Get("root_dir")
}

func tableParams(r *http.Request) (string, string) {
	return chi.URLParam(r, "paper"), chi.URLParam(r, "table")
}

// GetConfig handles GET /api/config.
//
//	@Summary		Get the default project root
//	@Tags			config
//	@Produce		json
//	@Success		200	{object}	ConfigResponse
//	@Security		BearerAuth
//	@Router			/config [get]
func (h *Handler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ConfigResponse{RootDir: h.svc.Root()})
}

// UpdateConfig handles POST /api/config.
//
//	@Summary		Change the default project root
//	@Tags			config
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ConfigUpdateRequest	true	"New root"
//	@Success		200		{object}	ConfigResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/config [post]
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigUpdateRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, "update config", invalid(err))
		return
	}
	root, err := h.svc.SetRoot(req.RootDir)
	if err != nil {
		writeError(w, "update config", err)
		return
	}
	writeJSON(w, http.StatusOK, ConfigResponse{RootDir: root})
}

// ListProjects handles GET /api/projects.
//
//	@Summary		List every table under the project root
//	@Tags			tables
//	@Produce		json
//	@Param			root_dir	query		string	false	"Project root override"
//	@Success		200			{array}		TableEntry
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/projects [get]
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListTables(r.Context(), rootDir(r))
	if err != nil {
		writeError(w, "list projects", err)
		return
	}
	if entries == nil {
		entries = []TableEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetTable handles GET /api/table/{paper}/{table}.
//
//	@Summary		Get grid, skeleton and inventory entry of one table
//	@Tags			tables
//	@Produce		json
//	@Param			paper		path		string	true	"Paper id"
//	@Param			table		path		string	true	"Table id"
//	@Param			root_dir	query		string	false	"Project root override"
//	@Success		200			{object}	TableDetail
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/table/{paper}/{table} [get]
func (h *Handler) GetTable(w http.ResponseWriter, r *http.Request) {
	paper, table := tableParams(r)
	detail, err := h.svc.GetTable(r.Context(), rootDir(r), paper, table)
	if err != nil {
		writeError(w, "get table", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// SaveGrid handles POST /api/table/{paper}/{table}/save_csv.
//
//	@Summary		Replace the grid of a table
//	@Tags			tables
//	@Accept			json
//	@Produce		json
//	@Param			paper		path		string				true	"Paper id"
//	@Param			table		path		string				true	"Table id"
//	@Param			root_dir	query		string				false	"Project root override"
//	@Param			body		body		GridUpdateRequest	true	"Grid"
//	@Success		200			{object}	SaveGridResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/table/{paper}/{table}/save_csv [post]
func (h *Handler) SaveGrid(w http.ResponseWriter, r *http.Request) {
	var req GridUpdateRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, "save grid", invalid(err))
		return
	}
	paper, table := tableParams(r)
	path, err := h.svc.SaveGrid(r.Context(), rootDir(r), paper, table, req.Grid())
	if err != nil {
		writeError(w, "save grid", err)
		return
	}
	writeJSON(w, http.StatusOK, SaveGridResponse{OK: true, CSVPath: path})
}

// SaveSkeleton handles POST /api/table/{paper}/{table}/save_skeleton.
//
//	@Summary		Write the skeleton sidecar of a table
//	@Description	paper_id, table_id and last_modified in the body are ignored.
//	@Tags			tables
//	@Accept			json
//	@Produce		json
//	@Param			paper		path		string	true	"Paper id"
//	@Param			table		path		string	true	"Table id"
//	@Param			root_dir	query		string	false	"Project root override"
//	@Success		200			{object}	SaveSkeletonResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/table/{paper}/{table}/save_skeleton [post]
func (h *Handler) SaveSkeleton(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil || !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	sk, err := h.svc.DecodeSkeleton(body)
	if err != nil {
		writeError(w, "save skeleton", err)
		return
	}
	paper, table := tableParams(r)
	path, err := h.svc.SaveSkeleton(r.Context(), rootDir(r), paper, table, sk)
	if err != nil {
		writeError(w, "save skeleton", err)
		return
	}
	writeJSON(w, http.StatusOK, SaveSkeletonResponse{OK: true, SkeletonPath: path})
}

// Variables handles GET /api/table/{paper}/{table}/variables.
//
//	@Summary		Candidate data variable names for a table's paper
//	@Tags			tables
//	@Produce		json
//	@Param			paper		path		string	true	"Paper id"
//	@Param			table		path		string	true	"Table id"
//	@Param			root_dir	query		string	false	"Project root override"
//	@Success		200			{object}	VariablesResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/table/{paper}/{table}/variables [get]
func (h *Handler) Variables(w http.ResponseWriter, r *http.Request) {
	paper, table := tableParams(r)
	names, err := h.svc.Variables(r.Context(), rootDir(r), paper, table)
	if err != nil {
		writeError(w, "variables", err)
		return
	}
	writeJSON(w, http.StatusOK, VariablesResponse{Variables: names})
}

// Search handles GET /api/search.
//
//	@Summary		Search skeleton labels, variable names and notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	req := SearchRequest{Query: r.URL.Query().Get("q")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be an integer"))
			return
		}
		req.Limit = n
	}
	if err := req.Validate(); err != nil {
		var errs validation.Errors
		if errors.As(err, &errs) && errs["Query"] != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(errs["Query"].Error()))
			return
		}
		writeError(w, "search", invalid(err))
		return
	}
	results, err := h.svc.Search(r.Context(), req.Query, req.Limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Progress handles GET /api/progress.
//
//	@Summary		Annotation status counts
//	@Tags			search
//	@Produce		json
//	@Success		200	{object}	Progress
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/progress [get]
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Progress(r.Context())
	if err != nil {
		writeError(w, "progress", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
