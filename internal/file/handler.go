package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/publiclinks/service/internal/middleware"
	"github.com/publiclinks/service/internal/response"
	"github.com/publiclinks/service/internal/shortlink"
)

// maxUploadBytes caps multipart parsing memory; larger files spill to disk.
const maxUploadBytes = 32 << 20

// Handler holds HTTP handlers for file endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new file Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// uploadResponse is the JSON body returned by Upload.
type uploadResponse struct {
	ID           int64   `json:"id"`
	Filename     string  `json:"filename"`
	StorageKey   string  `json:"storageKey"`
	ShortLinkURL *string `json:"shortLinkUrl,omitempty"`
	ShortLinkKey *string `json:"shortLinkKey,omitempty"`
	ProxyURL     string  `json:"proxyUrl"`
	StorageURL   string  `json:"storageUrl"`
}

// linkRequest is the JSON body accepted by UpdateLink.
type linkRequest struct {
	Key string `json:"key"`
}

// linkResponse is the JSON body returned by UpdateLink.
type linkResponse struct {
	ShortLinkURL string `json:"shortLinkUrl"`
	ShortLinkKey string `json:"shortLinkKey"`
}

// List godoc
//
//	@Summary	List uploaded files
//	@Tags		files
//	@Produce	json
//	@Success	200	{object}	response.Envelope{data=[]file.ListEntry}
//	@Failure	401	{object}	response.Envelope
//	@Router		/api/files [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.List(r.Context())
	if err != nil {
		log.Printf("file: list failed: %v", err)
		response.InternalError(w)
		return
	}
	response.OK(w, entries)
}

// Upload godoc
//
//	@Summary	Upload a file
//	@Tags		files
//	@Accept		multipart/form-data
//	@Produce	json
//	@Param		file	formData	file	true	"file to upload"
//	@Success	200	{object}	response.Envelope{data=file.uploadResponse}
//	@Failure	400	{object}	response.Envelope
//	@Failure	500	{object}	response.Envelope
//	@Router		/api/files [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		response.BadRequest(w, "invalid multipart body")
		return
	}
	part, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "no file provided")
		return
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		response.BadRequest(w, "could not read file")
		return
	}

	res, err := h.svc.Upload(r.Context(), u.ID, header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		if errors.Is(err, ErrNoFilename) {
			response.BadRequest(w, ErrNoFilename.Error())
			return
		}
		log.Printf("file: upload failed: %v", err)
		response.ServerError(w, "failed to upload file")
		return
	}

	response.OK(w, uploadResponse{
		ID:           res.Record.ID,
		Filename:     res.Record.Filename,
		StorageKey:   res.Record.StorageKey,
		ShortLinkURL: res.Record.ShortLinkURL,
		ShortLinkKey: res.Record.ShortLinkKey,
		ProxyURL:     res.ProxyURL,
		StorageURL:   res.StorageURL,
	})
}

// UpdateLink godoc
//
//	@Summary	Change a file's short-link key
//	@Tags		files
//	@Accept		json
//	@Produce	json
//	@Param		id		path	int					true	"file id"
//	@Param		body	body	file.linkRequest	true	"requested key"
//	@Success	200	{object}	response.Envelope{data=file.linkResponse}
//	@Failure	400	{object}	response.Envelope
//	@Failure	404	{object}	response.Envelope
//	@Failure	500	{object}	response.Envelope
//	@Router		/api/files/{id}/link [put]
func (h *Handler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.NotFound(w, ErrNotFound.Error())
		return
	}

	var req linkRequest
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		response.BadRequest(w, "key is required")
		return
	}

	link, err := h.svc.RekeyLink(r.Context(), id, req.Key)
	switch {
	case err == nil:
		response.OK(w, linkResponse{ShortLinkURL: link.URL, ShortLinkKey: link.Key})
	case errors.Is(err, ErrNotFound):
		response.NotFound(w, ErrNotFound.Error())
	case errors.Is(err, ErrNotEditable), errors.Is(err, shortlink.ErrEmptyKey):
		response.BadRequest(w, err.Error())
	default:
		// Provider rejection (key taken) or persistence failure; the
		// message is actionable, so pass it through.
		log.Printf("file: rekey %d failed: %v", id, err)
		response.ServerError(w, err.Error())
	}
}

// Delete godoc
//
//	@Summary	Delete a file
//	@Tags		files
//	@Produce	json
//	@Param		id	path	int	true	"file id"
//	@Success	200	{object}	response.Envelope
//	@Failure	404	{object}	response.Envelope
//	@Failure	500	{object}	response.Envelope
//	@Router		/api/files/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.NotFound(w, ErrNotFound.Error())
		return
	}

	err = h.svc.Delete(r.Context(), id)
	switch {
	case err == nil:
		response.OK(w, nil)
	case errors.Is(err, ErrNotFound):
		response.NotFound(w, ErrNotFound.Error())
	default:
		log.Printf("file: delete %d failed: %v", id, err)
		response.InternalError(w)
	}
}

// Serve godoc
//
//	@Summary	Serve a stored file inline
//	@Tags		files
//	@Param		storageKey	path	string	true	"storage key"
//	@Success	200	{file}	binary
//	@Failure	404	{object}	response.Envelope
//	@Failure	500	{object}	response.Envelope
//	@Router		/f/{storageKey} [get]
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if unescaped, err := url.PathUnescape(key); err == nil {
		key = unescaped
	}

	rec, data, contentType, err := h.svc.Serve(r.Context(), key)
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(w, ErrNotFound.Error())
		return
	case err != nil:
		// The record exists but the bytes are unreachable; distinct
		// from "never uploaded".
		log.Printf("file: serve %q failed: %v", key, err)
		response.ServerError(w, "failed to retrieve file")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", rec.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
