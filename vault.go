package main

import (
	"context"
	"fmt"
	"time"
)

// Vault bundles the two store capabilities the pipelines run against.
// Both handles are constructed once at process start and threaded into
// every call; the pipelines themselves hold no mutable state, so requests
// are independent and need no locking.
type Vault struct {
	Blobs   BlobStore
	Records RecordStore
}

// List returns the file records visible to the identity, in store order.
// Visibility is the access policy's listing scope; an unrecognized role
// gets an empty result, not an error.
func (v *Vault) List(ctx context.Context, id Identity) ([]*FileRecord, error) {
	if !Allowed(id, ActionList, nil) {
		return nil, ErrDenied
	}

	all, err := v.Records.ListFileRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list file records: %w", err)
	}

	visible := make([]*FileRecord, 0, len(all))
	for _, rec := range all {
		if Visible(id, rec) {
			visible = append(visible, rec)
		}
	}
	return visible, nil
}

// IssueDownloadLink returns a time-limited signed URL for the record's
// blob, authorized like a view. The link bypasses the retrieval pipeline
// entirely; the store enforces the expiry.
func (v *Vault) IssueDownloadLink(ctx context.Context, id Identity, filename string, ttl time.Duration) (string, error) {
	rec, err := v.Records.FindFileRecord(ctx, filename)
	if err != nil {
		return "", fmt.Errorf("find file record %s: %w", filename, err)
	}
	if rec == nil {
		return "", fmt.Errorf("record %s: %w", filename, ErrNotFound)
	}
	if !Allowed(id, ActionView, rec) {
		return "", ErrDenied
	}

	url, err := v.Blobs.SignGetURL(rec.Filename, ttl)
	if err != nil {
		return "", fmt.Errorf("sign download link %s: %w", filename, err)
	}
	return url, nil
}
