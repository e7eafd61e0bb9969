package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// memIdentityStore maps username -> (password, identity) for handler tests.
type memIdentityStore struct {
	passwords  map[string]string
	identities map[string]Identity
}

func (m *memIdentityStore) Authenticate(_ context.Context, username, password string) (*Identity, error) {
	if pw, ok := m.passwords[username]; ok && pw == password {
		id := m.identities[username]
		return &id, nil
	}
	return nil, ErrDenied
}

func newTestHandlers() (*Handlers, *memBlobStore, *memRecordStore) {
	vault, blobs, records := newTestVault()
	ids := &memIdentityStore{
		passwords: map[string]string{
			"dr-house": "lupus",
			"pat-100":  "hunter2",
		},
		identities: map[string]Identity{
			"dr-house": doctorID,
			"pat-100":  patientID,
		},
	}
	return &Handlers{Vault: vault, Identities: ids}, blobs, records
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestLoginHandler(t *testing.T) {
	h, _, _ := newTestHandlers()

	req := httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"username":"dr-house","password":"lupus"}`))
	rr := httptest.NewRecorder()
	h.LoginHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeBody(t, rr)
	identity, _ := body["identity"].(map[string]interface{})
	if identity["role"] != "doctor" {
		t.Errorf("identity = %v, want doctor role", body["identity"])
	}

	req = httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"username":"dr-house","password":"wrong"}`))
	rr = httptest.NewRecorder()
	h.LoginHandler(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("bad password status = %d, want 401", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/login", nil)
	rr = httptest.NewRecorder()
	h.LoginHandler(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", rr.Code)
	}
}

func TestFilesHandler_RequiresCredentials(t *testing.T) {
	h, _, _ := newTestHandlers()

	req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	rr := httptest.NewRecorder()
	h.FilesHandler(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("no credentials status = %d, want 401", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/files", nil)
	req.SetBasicAuth("dr-house", "wrong")
	rr = httptest.NewRecorder()
	h.FilesHandler(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("bad credentials status = %d, want 401", rr.Code)
	}
}

// failingIdentityStore simulates an unreachable identity backend.
type failingIdentityStore struct{ err error }

func (f *failingIdentityStore) Authenticate(context.Context, string, string) (*Identity, error) {
	return nil, f.err
}

func TestFilesHandler_IdentityStoreFailureIsNotUnauthorized(t *testing.T) {
	h, _, _ := newTestHandlers()
	h.Identities = &failingIdentityStore{err: errors.New("identity backend unavailable")}

	req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	req.SetBasicAuth("dr-house", "lupus")
	rr := httptest.NewRecorder()
	h.FilesHandler(rr, req)

	// A store failure is not a credential rejection.
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["error"] != "server_error" {
		t.Errorf("body = %v", body)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/files/scan1.dcm", nil)
	req.SetBasicAuth("dr-house", "lupus")
	rr = httptest.NewRecorder()
	h.FileByNameHandler(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("per-file status = %d, want 500", rr.Code)
	}
}

func TestWithCORS(t *testing.T) {
	t.Setenv("DICOMVAULT_CORS_ALLOWED_ORIGIN", "https://viewer.example")

	wrapped := withCORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/files", nil)
	rr := httptest.NewRecorder()
	wrapped.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://viewer.example" {
		t.Errorf("allowed origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/files", nil)
	rr = httptest.NewRecorder()
	wrapped.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("GET status = %d, want 200", rr.Code)
	}
}

func TestFilesHandler_ListScopedByRole(t *testing.T) {
	h, _, records := newTestHandlers()
	records.records = []*FileRecord{
		{OwnerUserID: "dr-house", Filename: "scan1.dcm", PatientID: "P100"},
		{OwnerUserID: "dr-wilson", Filename: "scan2.dcm", PatientID: "P200"},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	req.SetBasicAuth("pat-100", "hunter2")
	rr := httptest.NewRecorder()
	h.FilesHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	files, _ := body["files"].([]interface{})
	if len(files) != 1 {
		t.Fatalf("patient sees %d files, want 1", len(files))
	}
	first, _ := files[0].(map[string]interface{})
	if first["filename"] != "scan1.dcm" {
		t.Errorf("file = %v, want scan1.dcm", first["filename"])
	}
}

func multipartBody(t *testing.T, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestFilesHandler_UploadRejectsBadExtension(t *testing.T) {
	h, _, records := newTestHandlers()

	buf, contentType := multipartBody(t, map[string][]byte{
		"notes.txt": []byte("not imaging data"),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/files", buf)
	req.Header.Set("Content-Type", contentType)
	req.SetBasicAuth("dr-house", "lupus")
	rr := httptest.NewRecorder()
	h.FilesHandler(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["error"] != "invalid_file" || body["filename"] != "notes.txt" {
		t.Errorf("body = %v", body)
	}
	if len(records.records) != 0 {
		t.Error("rejected upload must not create records")
	}
}

func TestFilesHandler_UploadStoresBatch(t *testing.T) {
	h, blobs, records := newTestHandlers()

	buf, contentType := multipartBody(t, map[string][]byte{
		"scan1.dcm": []byte("unparseable but accepted"),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/files", buf)
	req.Header.Set("Content-Type", contentType)
	req.SetBasicAuth("dr-house", "lupus")
	rr := httptest.NewRecorder()
	h.FilesHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	accepted, _ := body["accepted"].([]interface{})
	if len(accepted) != 1 || accepted[0] != "scan1.dcm" {
		t.Errorf("accepted = %v", accepted)
	}
	if _, ok := blobs.objects["scan1.dcm"]; !ok {
		t.Error("blob not stored")
	}
	if len(records.records) != 1 {
		t.Errorf("got %d records, want 1", len(records.records))
	}
}

func TestFilesHandler_UploadForbiddenForPatient(t *testing.T) {
	h, _, _ := newTestHandlers()

	buf, contentType := multipartBody(t, map[string][]byte{
		"scan1.dcm": []byte("x"),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/files", buf)
	req.Header.Set("Content-Type", contentType)
	req.SetBasicAuth("pat-100", "hunter2")
	rr := httptest.NewRecorder()
	h.FilesHandler(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
}

func TestFileByNameHandler_DeleteForbidden(t *testing.T) {
	h, blobs, records := newTestHandlers()
	records.records = []*FileRecord{
		{OwnerUserID: "dr-wilson", Filename: "scan2.dcm", PatientID: "P200"},
	}
	blobs.objects["scan2.dcm"] = []byte("x")

	req := httptest.NewRequest(http.MethodDelete, "/api/files/scan2.dcm", nil)
	req.SetBasicAuth("dr-house", "lupus")
	rr := httptest.NewRecorder()
	h.FileByNameHandler(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403: %s", rr.Code, rr.Body.String())
	}
	if len(records.records) != 1 {
		t.Error("record removed despite denial")
	}
}

func TestFileByNameHandler_DownloadURL(t *testing.T) {
	h, blobs, records := newTestHandlers()
	records.records = []*FileRecord{
		{OwnerUserID: "dr-house", Filename: "scan1.dcm", PatientID: "P100"},
	}
	blobs.objects["scan1.dcm"] = []byte("x")

	req := httptest.NewRequest(http.MethodGet, "/api/files/scan1.dcm/download-url?ttl=60", nil)
	req.SetBasicAuth("pat-100", "hunter2")
	rr := httptest.NewRecorder()
	h.FileByNameHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["downloadUrl"] != "https://signed.example/scan1.dcm" {
		t.Errorf("downloadUrl = %v", body["downloadUrl"])
	}
	if body["expiresIn"] != float64(60) {
		t.Errorf("expiresIn = %v, want 60", body["expiresIn"])
	}

	req = httptest.NewRequest(http.MethodGet, "/api/files/scan1.dcm/download-url?ttl=nope", nil)
	req.SetBasicAuth("pat-100", "hunter2")
	rr = httptest.NewRecorder()
	h.FileByNameHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad ttl status = %d, want 400", rr.Code)
	}
}

func TestFileByNameHandler_NotFound(t *testing.T) {
	h, _, _ := newTestHandlers()

	req := httptest.NewRequest(http.MethodGet, "/api/files/missing.dcm", nil)
	req.SetBasicAuth("dr-house", "lupus")
	rr := httptest.NewRecorder()
	h.FileByNameHandler(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/files/", nil)
	req.SetBasicAuth("dr-house", "lupus")
	rr = httptest.NewRecorder()
	h.FileByNameHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty filename status = %d, want 400", rr.Code)
	}
}
