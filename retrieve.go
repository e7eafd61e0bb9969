package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"

	"github.com/suyashkumar/dicom"

	"dicomvault-rest/dicomimage"
)

// RetrievalResult is the metadata field set plus an optional inline
// preview. HasPreview is false when the container held no decodable pixel
// data; the caller renders metadata with an explicit "no preview" state.
type RetrievalResult struct {
	Filename   string                     `json:"filename"`
	Metadata   []dicomimage.MetadataField `json:"metadata"`
	HasPreview bool                       `json:"has_preview"`
	PreviewPNG string                     `json:"preview_png,omitempty"`
}

// Retrieve fetches, parses, and renders a stored file for the identity:
// record lookup, view authorization, blob fetch, parse, metadata
// extraction, preview normalization. Unlike ingestion there is no record
// to fall back on, so a fetch or parse failure fails the whole call with
// no partial metadata. A missing preview alone never does.
func (v *Vault) Retrieve(ctx context.Context, id Identity, filename string) (*RetrievalResult, error) {
	rec, err := v.Records.FindFileRecord(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("find file record %s: %w", filename, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("record %s: %w", filename, ErrNotFound)
	}
	if !Allowed(id, ActionView, rec) {
		return nil, ErrDenied
	}

	data, err := v.Blobs.Get(ctx, rec.Filename)
	if err != nil {
		// Includes the blob-deleted-out-of-band case: the record still
		// lists, the miss surfaces here as ErrNotFound.
		return nil, fmt.Errorf("fetch blob %s: %w", rec.Filename, err)
	}

	ds, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rec.Filename, err)
	}

	res := &RetrievalResult{
		Filename: rec.Filename,
		Metadata: dicomimage.ExtractMetadata(&ds),
	}

	preview, err := dicomimage.RenderPreview(&ds)
	if err != nil {
		if !errors.Is(err, ErrNoImageData) {
			log.Printf("Retrieve: preview %s: %v", rec.Filename, err)
		}
		// Metadata-only result.
		return res, nil
	}
	res.HasPreview = true
	res.PreviewPNG = base64.StdEncoding.EncodeToString(preview)
	return res, nil
}
