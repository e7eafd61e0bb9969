package main

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// Delete removes a stored file for the identity: record lookup, ownership
// authorization, blob delete, record delete. The two deletes are
// independent. The record delete is attempted even when the blob delete
// fails, so a record never outlives its content; the reverse order of
// failure (record gone, blob delete failed) leaves an orphan blob, which
// is the accepted inconsistency. No garbage-collection pass exists.
func (v *Vault) Delete(ctx context.Context, id Identity, filename string) error {
	rec, err := v.Records.FindFileRecord(ctx, filename)
	if err != nil {
		return fmt.Errorf("find file record %s: %w", filename, err)
	}
	if rec == nil {
		return fmt.Errorf("record %s: %w", filename, ErrNotFound)
	}
	if !Allowed(id, ActionDelete, rec) {
		return ErrDenied
	}

	blobErr := v.Blobs.Delete(ctx, rec.Filename)
	if blobErr != nil && errors.Is(blobErr, ErrNotFound) {
		// Blob already gone out-of-band; removing the record is still the
		// right outcome.
		log.Printf("Delete: blob %s already missing", rec.Filename)
		blobErr = nil
	}

	n, metaErr := v.Records.DeleteFileRecord(ctx, rec.Filename)
	if metaErr != nil {
		if blobErr != nil {
			return fmt.Errorf("delete blob %s: %v; delete record: %w", rec.Filename, blobErr, metaErr)
		}
		return fmt.Errorf("delete record %s: %w", rec.Filename, metaErr)
	}
	if blobErr != nil {
		return fmt.Errorf("delete blob %s: %w", rec.Filename, blobErr)
	}
	if n == 0 {
		// Raced with another delete between lookup and removal.
		return fmt.Errorf("record %s: %w", rec.Filename, ErrNotFound)
	}
	return nil
}
