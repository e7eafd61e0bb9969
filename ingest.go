package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"github.com/suyashkumar/dicom"

	"dicomvault-rest/dicomimage"
)

// NamedFile is one (filename, raw bytes) pair in an upload batch.
type NamedFile struct {
	Name string
	Data []byte
}

// Sentinels for patient fields on file records.
const (
	// sentinelUnknown marks patient fields missing from a readable header.
	sentinelUnknown = "unknown"
	// sentinelUnreadable marks patient fields of a container that could
	// not be parsed at all.
	sentinelUnreadable = "unreadable"
)

// allowedExtension is the single upload extension we accept.
const allowedExtension = ".dcm"

// allowedFilename checks the extension gate applied before anything else
// touches the file.
func allowedFilename(name string) bool {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return false
	}
	return strings.EqualFold(name[i:], allowedExtension)
}

// sanitizeFilename reduces an uploaded name to a safe object key: base
// name only, restricted to [A-Za-z0-9._-].
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = path.Base(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "unnamed" + allowedExtension
	}
	return out
}

// Ingest validates and stores an upload batch for the identity. Files are
// processed in order; the first invalid filename aborts the remainder of
// the batch while files accepted before it stay stored. Per accepted file:
// best-effort header parse (a failed parse substitutes sentinel patient
// fields but still stores the blob), blob write, then record insert. The
// two writes are independent; no transaction spans them.
//
// Returns the filenames accepted so far, even alongside an error.
func (v *Vault) Ingest(ctx context.Context, id Identity, files []NamedFile) ([]string, error) {
	if !Allowed(id, ActionUpload, nil) {
		return nil, ErrDenied
	}

	accepted := make([]string, 0, len(files))
	for _, f := range files {
		if f.Name == "" || len(f.Data) == 0 {
			continue
		}
		if !allowedFilename(f.Name) {
			return accepted, &ValidationError{
				Filename: f.Name,
				Reason:   "only DICOM (" + allowedExtension + ") files are allowed",
			}
		}

		filename := sanitizeFilename(f.Name)

		// Header-only parse in best-effort mode, same as the full parse but
		// skipping pixel data. Malformed containers still get stored; their
		// patient fields are sentinel-filled.
		patientName, patientID := sentinelUnreadable, sentinelUnreadable
		ds, err := dicom.Parse(bytes.NewReader(f.Data), int64(len(f.Data)), nil, dicom.SkipPixelData())
		if err != nil {
			log.Printf("Ingest: parse %s: %v", filename, err)
		} else {
			patientName, patientID = dicomimage.PatientFields(&ds)
			if patientName == "" {
				patientName = sentinelUnknown
			}
			if patientID == "" {
				patientID = sentinelUnknown
			}
		}

		if err := v.Blobs.Put(ctx, filename, f.Data); err != nil {
			return accepted, fmt.Errorf("store blob %s: %w", filename, err)
		}

		rec := &FileRecord{
			OwnerUserID: id.UserID,
			Filename:    filename,
			UploadedAt:  time.Now().UTC(),
			PatientName: patientName,
			PatientID:   patientID,
			StorageURL:  v.Blobs.ObjectURL(filename),
		}
		if err := v.Records.InsertFileRecord(ctx, rec); err != nil {
			// The blob is already stored; the orphan is the accepted failure
			// mode, there is no compensation pass.
			return accepted, fmt.Errorf("insert file record %s: %w", filename, err)
		}

		accepted = append(accepted, filename)
	}
	return accepted, nil
}
