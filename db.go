package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FileRecord corresponds to a Firestore document in the "file_records"
// collection: one per accepted upload. Filename is the join key to the
// blob store object; uniqueness is not enforced, so re-uploading the same
// filename overwrites the blob and adds a second record pointing at it.
type FileRecord struct {
	OwnerUserID string    `firestore:"owner_user_id" json:"owner_user_id"`
	Filename    string    `firestore:"filename" json:"filename"`
	UploadedAt  time.Time `firestore:"uploaded_at" json:"uploaded_at"`
	PatientName string    `firestore:"patient_name" json:"patient_name"`
	PatientID   string    `firestore:"patient_id" json:"patient_id"`
	StorageURL  string    `firestore:"storage_url" json:"storage_url"`
}

// RecordStore is the metadata document store capability the pipelines
// consume. Find returns (nil, nil) when no record matches; Delete reports
// how many documents were removed.
type RecordStore interface {
	InsertFileRecord(ctx context.Context, rec *FileRecord) error
	ListFileRecords(ctx context.Context) ([]*FileRecord, error)
	FindFileRecord(ctx context.Context, filename string) (*FileRecord, error)
	DeleteFileRecord(ctx context.Context, filename string) (int, error)
}

// FirestoreDB wraps a Firestore client and exposes the small subset of
// operations the pipelines and the identity store need.
type FirestoreDB struct {
	client *firestore.Client
}

// NewFirestoreDB creates a new Firestore client for the given project ID.
func NewFirestoreDB(ctx context.Context, projectID string) (*FirestoreDB, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &FirestoreDB{client: client}, nil
}

// Close releases underlying Firestore resources.
func (db *FirestoreDB) Close() error {
	return db.client.Close()
}

// InsertFileRecord appends a new file record document with an auto ID.
func (db *FirestoreDB) InsertFileRecord(ctx context.Context, rec *FileRecord) error {
	if rec == nil {
		return fmt.Errorf("nil file record")
	}
	if strings.TrimSpace(rec.Filename) == "" {
		return fmt.Errorf("missing filename")
	}
	_, err := db.client.Collection("file_records").NewDoc().Set(ctx, rec)
	if err != nil {
		return fmt.Errorf("insert file record (%s): %w", rec.Filename, err)
	}
	return nil
}

// ListFileRecords returns every file record, ordered by upload time
// descending. Role scoping happens above this layer.
func (db *FirestoreDB) ListFileRecords(ctx context.Context) ([]*FileRecord, error) {
	q := db.client.Collection("file_records").OrderBy("uploaded_at", firestore.Desc)

	it := q.Documents(ctx)
	defer it.Stop()

	var records []*FileRecord
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list file records: %w", err)
		}
		var rec FileRecord
		if err := snap.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("decode file record (%s): %w", snap.Ref.ID, err)
		}
		records = append(records, &rec)
	}
	return records, nil
}

// FindFileRecord returns the first record with the given filename, or
// (nil, nil) when none exists.
func (db *FirestoreDB) FindFileRecord(ctx context.Context, filename string) (*FileRecord, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, fmt.Errorf("empty filename")
	}

	q := db.client.Collection("file_records").Where("filename", "==", filename).Limit(1)
	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("find file record (%s): %w", filename, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	var rec FileRecord
	if err := docs[0].DataTo(&rec); err != nil {
		return nil, fmt.Errorf("decode file record (%s): %w", filename, err)
	}
	return &rec, nil
}

// DeleteFileRecord removes the first record matching the filename and
// reports how many documents were deleted (0 or 1).
func (db *FirestoreDB) DeleteFileRecord(ctx context.Context, filename string) (int, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return 0, fmt.Errorf("empty filename")
	}

	q := db.client.Collection("file_records").Where("filename", "==", filename).Limit(1)
	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return 0, fmt.Errorf("query file record for delete (%s): %w", filename, err)
	}
	if len(docs) == 0 {
		return 0, nil
	}
	if _, err := docs[0].Ref.Delete(ctx); err != nil {
		return 0, fmt.Errorf("delete file record (%s): %w", filename, err)
	}
	return 1, nil
}

// Authenticate looks up a user document by username and password. The
// comparison happens in the store query; the rest of the service only ever
// sees the resulting Identity. Unknown credentials return ErrDenied.
func (db *FirestoreDB) Authenticate(ctx context.Context, username, password string) (*Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrDenied
	}

	q := db.client.Collection("users").
		Where("username", "==", username).
		Where("password", "==", password).
		Limit(1)
	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("authenticate (%s): %w", username, err)
	}
	if len(docs) == 0 {
		return nil, ErrDenied
	}

	var u User
	if err := docs[0].DataTo(&u); err != nil {
		return nil, fmt.Errorf("decode user (%s): %w", username, err)
	}

	return &Identity{
		UserID:         u.Username,
		Role:           Role(u.Role),
		PatientScopeID: u.PatientID,
	}, nil
}
