package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Handlers holds dependencies shared by HTTP handlers.
type Handlers struct {
	Cfg        Config
	Vault      *Vault
	Identities IdentityStore
}

// writeJSON is a small helper to send JSON responses with status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON error: %v", err)
	}
}

// identityFromRequest resolves the caller's identity from HTTP Basic
// credentials checked against the identity store. The API is stateless;
// sessions and cookies belong to the frontend.
func (h *Handlers) identityFromRequest(ctx context.Context, r *http.Request) (Identity, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return Identity{}, ErrDenied
	}
	id, err := h.Identities.Authenticate(ctx, username, password)
	if err != nil {
		return Identity{}, err
	}
	return *id, nil
}

// writePipelineError maps the pipeline error taxonomy onto HTTP statuses.
func writePipelineError(w http.ResponseWriter, op string, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":    "invalid_file",
			"filename": ve.Filename,
			"message":  ve.Error(),
		})
	case errors.Is(err, ErrDenied):
		writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"error": "forbidden",
		})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": "not_found",
		})
	default:
		log.Printf("%s error: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": "server_error",
		})
	}
}

// writeAuthError separates rejected credentials (401) from identity-store
// failures (500); only a real denial reads as unauthorized.
func writeAuthError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, ErrDenied) {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"error": "unauthorized",
		})
		return
	}
	log.Printf("%s authenticate error: %v", op, err)
	writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"error": "server_error",
	})
}

// LoginHandler implements POST /api/login. It verifies the posted
// credentials against the identity store and returns the identity view
// the frontend scopes its UI by.
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "invalid_json",
		})
		return
	}

	ctx := r.Context()
	id, err := h.Identities.Authenticate(ctx, body.Username, body.Password)
	if err != nil {
		if !errors.Is(err, ErrDenied) {
			log.Printf("LoginHandler Authenticate error: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"error": "server_error",
			})
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"ok":    false,
			"error": "unauthorized",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":       true,
		"identity": id,
	})
}

// FilesHandler implements:
//   - GET  /api/files  (role-scoped listing)
//   - POST /api/files  (multipart batch upload, "files" parts)
func (h *Handlers) FilesHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := h.identityFromRequest(ctx, r)
	if err != nil {
		writeAuthError(w, "FilesHandler", err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		records, err := h.Vault.List(ctx, id)
		if err != nil {
			writePipelineError(w, "FilesHandler List", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":    true,
			"files": records,
		})

	case http.MethodPost:
		// Limit to 512MB in memory/temporary files.
		if err := r.ParseMultipartForm(512 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error": "invalid_multipart",
			})
			return
		}

		parts := r.MultipartForm.File["files"]
		if len(parts) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error": "no_files_provided",
			})
			return
		}

		files := make([]NamedFile, 0, len(parts))
		for _, fh := range parts {
			f, err := fh.Open()
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]interface{}{
					"error":    "unreadable_file",
					"filename": fh.Filename,
				})
				return
			}
			data, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]interface{}{
					"error":    "unreadable_file",
					"filename": fh.Filename,
				})
				return
			}
			files = append(files, NamedFile{Name: fh.Filename, Data: data})
		}

		accepted, err := h.Vault.Ingest(ctx, id, files)
		if err != nil {
			// Files accepted before the failure stay stored; report both.
			var ve *ValidationError
			if errors.As(err, &ve) {
				writeJSON(w, http.StatusBadRequest, map[string]interface{}{
					"error":    "invalid_file",
					"filename": ve.Filename,
					"message":  ve.Error(),
					"accepted": accepted,
				})
				return
			}
			writePipelineError(w, "FilesHandler Ingest", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":       true,
			"accepted": accepted,
		})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// FileByNameHandler implements:
//   - GET    /api/files/<filename>               (retrieval: metadata + preview)
//   - GET    /api/files/<filename>/download-url  (signed direct download link)
//   - DELETE /api/files/<filename>               (deletion)
func (h *Handlers) FileByNameHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	const prefix = "/api/files/"
	if !strings.HasPrefix(path, prefix) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	suffix := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if suffix == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "filename required",
		})
		return
	}

	ctx := r.Context()
	id, err := h.identityFromRequest(ctx, r)
	if err != nil {
		writeAuthError(w, "FileByNameHandler", err)
		return
	}

	parts := strings.Split(suffix, "/")

	// /api/files/{filename}
	if len(parts) == 1 {
		filename := parts[0]
		switch r.Method {
		case http.MethodGet:
			res, err := h.Vault.Retrieve(ctx, id, filename)
			if err != nil {
				writePipelineError(w, "FileByName Retrieve", err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"ok":   true,
				"file": res,
			})
		case http.MethodDelete:
			if err := h.Vault.Delete(ctx, id, filename); err != nil {
				writePipelineError(w, "FileByName Delete", err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"ok":       true,
				"filename": filename,
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	// /api/files/{filename}/download-url
	if len(parts) == 2 && parts[1] == "download-url" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		ttl := 15 * time.Minute
		if raw := r.URL.Query().Get("ttl"); raw != "" {
			secs, err := strconv.Atoi(raw)
			if err != nil || secs <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]interface{}{
					"error": "invalid_ttl",
				})
				return
			}
			ttl = time.Duration(secs) * time.Second
		}

		url, err := h.Vault.IssueDownloadLink(ctx, id, parts[0], ttl)
		if err != nil {
			writePipelineError(w, "FileByName IssueDownloadLink", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":          true,
			"downloadUrl": url,
			"expiresIn":   int(ttl.Seconds()),
		})
		return
	}

	w.WriteHeader(http.StatusNotFound)
}
