package api

import (
	"io"
	"net/http"
)

const maxUploadBytes = 50 << 20 // 50 MB

// ServeImage handles GET /api/table/{paper}/{table}/image.
//
//	@Summary		Serve the image resolved for a table
//	@Tags			images
//	@Produce		image/png
//	@Produce		image/jpeg
//	@Param			paper		path	string	true	"Paper id"
//	@Param			table		path	string	true	"Table id"
//	@Param			root_dir	query	string	false	"Project root override"
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/table/{paper}/{table}/image [get]
func (h *Handler) ServeImage(w http.ResponseWriter, r *http.Request) {
	paper, table := tableParams(r)
	path, err := h.svc.ImagePath(r.Context(), rootDir(r), paper, table)
	if err != nil {
		writeError(w, "serve image", err)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, path)
}

// UploadImage handles POST /api/table/{paper}/{table}/image
// (multipart/form-data, field "file").
//
//	@Summary		Upload the image of a table
//	@Description	Only PNG and JPEG are accepted. The file is stored next to the grid as <paper>_<table>.png|jpg.
//	@Tags			images
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			paper		path		string	true	"Paper id"
//	@Param			table		path		string	true	"Table id"
//	@Param			root_dir	query		string	false	"Project root override"
//	@Param			file		formData	file	true	"Image file"
//	@Success		200			{object}	ImageUploadResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/table/{paper}/{table}/image [post]
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read upload"))
		return
	}

	paper, table := tableParams(r)
	path, err := h.svc.UploadImage(r.Context(), rootDir(r), paper, table, data)
	if err != nil {
		writeError(w, "upload image", err)
		return
	}
	writeJSON(w, http.StatusOK, ImageUploadResponse{OK: true, ImagePath: path, Size: int64(len(data))})
}
