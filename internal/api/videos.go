// Package api exposes the video signing service over HTTP and MCP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clipsign/clipsign/internal/jobs"
	"github.com/clipsign/clipsign/internal/media"
	"github.com/clipsign/clipsign/internal/signer"
	"github.com/clipsign/clipsign/internal/storage"
)

// maxUploadSize caps the multipart request body.
const maxUploadSize = 2 << 30 // 2GB

// multipartMemory bounds the in-memory part of multipart parsing; larger
// uploads spill to temp files.
const multipartMemory = 32 << 20 // 32MB

const defaultListLimit = 20
const maxListLimit = 100

// Deps holds handler dependencies.
type Deps struct {
	Jobs   *jobs.Orchestrator
	Token  string
	Health func() signer.Diagnostics
}

// NewHandler builds the HTTP router. Video routes require the bearer
// token; the health endpoint is open so probes work without credentials.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Post("/videos", handleSubmit(deps))
		r.Get("/videos", handleList(deps))
		r.Get("/videos/{id}", handleStatus(deps))
		r.Get("/videos/{id}/artifact", handleArtifact(deps))
	})

	return r
}

type videoResponse struct {
	VideoID      string          `json:"video_id"`
	OriginalName string          `json:"original_name"`
	ContentHash  string          `json:"content_hash"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	OutputName   string          `json:"output_name,omitempty"`
	ErrorDetail  string          `json:"error_detail,omitempty"`
	DeviceInfo   json.RawMessage `json:"device_info,omitempty"`
}

func toVideoResponse(v storage.Video) videoResponse {
	resp := videoResponse{
		VideoID:      v.ID,
		OriginalName: v.OriginalName,
		ContentHash:  v.ContentHash,
		Status:       v.Status,
		CreatedAt:    v.CreatedAt,
		OutputName:   v.OutputName,
		ErrorDetail:  v.ErrorDetail,
	}
	if !v.CompletedAt.IsZero() {
		t := v.CompletedAt
		resp.CompletedAt = &t
	}
	if v.DeviceInfo != "" {
		resp.DeviceInfo = json.RawMessage(v.DeviceInfo)
	}
	return resp
}

func handleSubmit(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		defer r.Body.Close()

		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart body: %v", err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file field is required")
			return
		}
		defer file.Close()

		deviceInfo := r.FormValue("device_info")

		v, err := deps.Jobs.Submit(r.Context(), header.Filename, deviceInfo, file)
		if err != nil {
			var vErr *jobs.ValidationError
			if errors.As(err, &vErr) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", vErr)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "upload failed: %v", err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]any{
			"message":      "video uploaded successfully",
			"video_id":     v.ID,
			"status":       v.Status,
			"content_hash": v.ContentHash,
		})
	}
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		v, err := deps.Jobs.Video(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "video not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "fetching video: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, toVideoResponse(v))
	}
}

func handleList(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit %q", raw)
				return
			}
			limit = min(n, maxListLimit)
		}

		videos, err := deps.Jobs.Videos(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing videos: %v", err)
			return
		}

		out := make([]videoResponse, len(videos))
		for i, v := range videos {
			out[i] = toVideoResponse(v)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleArtifact(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		path, v, err := deps.Jobs.Artifact(id)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "video not found")
			return
		case errors.Is(err, jobs.ErrNotSigned):
			httpError(w, http.StatusConflict, "invalid_request_error", "video not yet signed (status %s)", v.Status)
			return
		case errors.Is(err, jobs.ErrArtifactMissing):
			httpError(w, http.StatusNotFound, "not_found", "signed artifact not found")
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "fetching artifact: %v", err)
			return
		}

		w.Header().Set("Content-Type", media.SignedContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", v.OutputName))
		http.ServeFile(w, r, path)
	}
}

// handleHealth reports dependency reachability. It always answers 200:
// missing dependencies are diagnostics, not a liveness failure.
func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":       "healthy",
			"timestamp":    time.Now().UTC(),
			"dependencies": deps.Health(),
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
