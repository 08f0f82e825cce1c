package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sjawhar/pitchspeak/internal/estimate"
	"github.com/sjawhar/pitchspeak/internal/export"
	"github.com/sjawhar/pitchspeak/internal/storage"
)

const maxBodyBytes = 1 << 20

func registerAPIRoutes(mux *http.ServeMux, store ConversationStore, opts Options) {
	logger := opts.Logger

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		var warnings []string
		if opts.Warnings != nil {
			warnings = opts.Warnings()
		}
		if warnings == nil {
			warnings = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"warnings":      warnings,
			"quota_backend": opts.QuotaBackend,
			"email_enabled": opts.Mailer != nil,
			"drive_enabled": opts.Drive != nil,
		})
	})

	mux.HandleFunc("GET /api/quota", func(w http.ResponseWriter, r *http.Request) {
		owner := OwnerFromContext(r.Context())
		if owner == "" {
			writeJSONError(w, http.StatusUnauthorized, "sign in required")
			return
		}
		writeJSON(w, http.StatusOK, opts.Gate.Peek(r.Context(), owner))
	})

	mux.HandleFunc("GET /api/conversations", func(w http.ResponseWriter, r *http.Request) {
		req, err := pageRequest(r, opts.PageSize)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		var page estimate.Page
		if r.URL.Query().Get("scope") == "all" {
			if !isAdmin(r, opts.AdminToken) {
				writeJSONError(w, http.StatusForbidden, "admin token required")
				return
			}
			page, err = store.ListAll(r.Context(), req)
		} else {
			owner := OwnerFromContext(r.Context())
			if owner == "" {
				writeJSONError(w, http.StatusUnauthorized, "sign in required")
				return
			}
			page, err = store.ListByOwner(r.Context(), owner, req)
		}
		if errors.Is(err, storage.ErrInvalidCursor) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			logger.Error("list conversations failed", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "list conversations failed")
			return
		}
		writeJSON(w, http.StatusOK, page)
	})

	mux.HandleFunc("GET /api/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		rec, ok := lookupConversation(w, r, store, opts)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, rec)
	})

	mux.HandleFunc("GET /api/conversations/{id}/pdf", func(w http.ResponseWriter, r *http.Request) {
		rec, ok := lookupConversation(w, r, store, opts)
		if !ok {
			return
		}
		data, err := export.RenderPDF(rec.Result, rec.CreatedAt)
		if err != nil {
			logger.Error("render pdf failed", "id", rec.ID, "error", err)
			writeJSONError(w, http.StatusInternalServerError, "Failed to generate PDF")
			return
		}
		writePDF(w, data, export.PDFFilename(rec.CreatedAt))
	})

	mux.HandleFunc("GET /api/conversations/{id}/markdown", func(w http.ResponseWriter, r *http.Request) {
		rec, ok := lookupConversation(w, r, store, opts)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(export.RenderMarkdown(rec)))
	})

	mux.HandleFunc("POST /api/conversations/{id}/email", func(w http.ResponseWriter, r *http.Request) {
		if opts.Mailer == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "email is not configured")
			return
		}
		var body struct {
			Email string `json:"email"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		rec, ok := lookupConversation(w, r, store, opts)
		if !ok {
			return
		}
		data, err := export.RenderPDF(rec.Result, rec.CreatedAt)
		if err != nil {
			logger.Error("render pdf failed", "id", rec.ID, "error", err)
			writeJSONError(w, http.StatusInternalServerError, "Failed to generate PDF")
			return
		}
		messageID, err := opts.Mailer.Send(r.Context(), body.Email, rec, data)
		if errors.Is(err, export.ErrInvalidRecipient) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			logger.Error("send email failed", "id", rec.ID, "error", err)
			writeJSONError(w, http.StatusBadGateway, "failed to send email, try again")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"message_id": messageID})
	})

	mux.HandleFunc("POST /api/conversations/{id}/drive", func(w http.ResponseWriter, r *http.Request) {
		if opts.Drive == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "drive export is not configured")
			return
		}
		rec, ok := lookupConversation(w, r, store, opts)
		if !ok {
			return
		}
		data, err := export.RenderPDF(rec.Result, rec.CreatedAt)
		if err != nil {
			logger.Error("render pdf failed", "id", rec.ID, "error", err)
			writeJSONError(w, http.StatusInternalServerError, "Failed to generate PDF")
			return
		}
		fileID, err := opts.Drive.Upload(r.Context(), rec, data)
		if err != nil {
			logger.Error("drive upload failed", "id", rec.ID, "error", err)
			writeJSONError(w, http.StatusBadGateway, "failed to upload to drive, try again")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"file_id": fileID})
	})

	mux.HandleFunc("POST /api/pdf", func(w http.ResponseWriter, r *http.Request) {
		var result estimate.Result
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&result); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := result.Validate(); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		now := time.Now()
		data, err := export.RenderPDF(result, now)
		if err != nil {
			logger.Error("render pdf failed", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "Failed to generate PDF")
			return
		}
		writePDF(w, data, export.PDFFilename(now))
	})
}

// lookupConversation resolves the {id} path value. Ids are validated before
// the store is queried, and records owned by someone else read as missing.
func lookupConversation(w http.ResponseWriter, r *http.Request, store ConversationStore, opts Options) (estimate.Record, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid conversation id")
		return estimate.Record{}, false
	}

	rec, err := store.Get(r.Context(), id.String())
	if errors.Is(err, estimate.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "conversation not found")
		return estimate.Record{}, false
	}
	if err != nil {
		opts.Logger.Error("get conversation failed", "id", id, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "get conversation failed")
		return estimate.Record{}, false
	}

	if rec.OwnerID != "" && rec.OwnerID != OwnerFromContext(r.Context()) && !isAdmin(r, opts.AdminToken) {
		writeJSONError(w, http.StatusNotFound, "conversation not found")
		return estimate.Record{}, false
	}
	return rec, true
}

func pageRequest(r *http.Request, defaultLimit int) (estimate.PageRequest, error) {
	q := r.URL.Query()
	req := estimate.PageRequest{Cursor: q.Get("cursor"), Limit: defaultLimit}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return estimate.PageRequest{}, fmt.Errorf("invalid limit %q", raw)
		}
		req.Limit = limit
	}
	return req, nil
}

func writePDF(w http.ResponseWriter, data []byte, filename string) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
