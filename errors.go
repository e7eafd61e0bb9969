package main

import (
	"errors"
	"fmt"

	"dicomvault-rest/dicomimage"
)

// Sentinel errors for the pipeline surface. Backing-store failures are
// wrapped with fmt.Errorf("...: %w", err) and surface verbatim; nothing is
// retried internally.
var (
	// ErrDenied means the access policy rejected the action for this identity.
	ErrDenied = errors.New("denied")

	// ErrNotFound means the metadata record or the blob does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoImageData means the container holds no decodable pixel data.
	// Retrieval degrades to metadata-only; this never fails the whole call.
	ErrNoImageData = dicomimage.ErrNoImageData
)

// ValidationError reports a rejected upload filename. The first invalid
// file in a batch aborts the remainder of that batch.
type ValidationError struct {
	Filename string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid file %q: %s", e.Filename, e.Reason)
}
