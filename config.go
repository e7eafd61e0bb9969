package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// Config holds service configuration. We need the project ID (for
// Firestore), the imaging bucket for DICOM uploads, and the service
// account used to sign time-limited download URLs.
type Config struct {
	ProjectID     string
	ImagingBucket string

	SignedURLServiceAccountEmail string
	SignedURLPrivateKey          string
}

// serviceAccountCreds is a minimal view of a GCP service account JSON key.
type serviceAccountCreds struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// loadSigningCreds loads the download-link signing service account JSON
// from Google Secret Manager. The secret is expected to contain the raw
// JSON service account key for dicomvault-signer@<project>.iam.gserviceaccount.com.
// A missing or malformed secret disables signed links but does not abort
// startup.
func loadSigningCreds(ctx context.Context, projectID string) (string, string) {
	const secretID = "dicomvault-download-signer-credentials"

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		log.Printf("loadSigningCreds: failed to init Secret Manager client: %v", err)
		return "", ""
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Printf("loadSigningCreds: error closing Secret Manager client: %v", err)
		}
	}()

	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, secretID)
	resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		log.Printf("loadSigningCreds: AccessSecretVersion failed for %s: %v", name, err)
		return "", ""
	}
	if resp.Payload == nil || len(resp.Payload.Data) == 0 {
		log.Printf("loadSigningCreds: secret %s has empty payload", name)
		return "", ""
	}

	var creds serviceAccountCreds
	if err := json.Unmarshal(resp.Payload.Data, &creds); err != nil {
		log.Printf("loadSigningCreds: failed to unmarshal service account JSON: %v", err)
		return "", ""
	}

	if creds.ClientEmail == "" || creds.PrivateKey == "" {
		log.Printf("loadSigningCreds: missing client_email or private_key in secret %s", name)
		return "", ""
	}

	return creds.ClientEmail, creds.PrivateKey
}

// LoadConfig reads configuration from environment variables with local-dev
// defaults, then pulls signing credentials from Secret Manager.
func LoadConfig() Config {
	projectID := os.Getenv("DICOMVAULT_PROJECT_ID")
	if projectID == "" {
		projectID = "dicomvault-dev"
	}

	// Bucket holding the raw DICOM blobs. Kept private; access goes through
	// the backend or signed URLs only.
	imagingBucket := os.Getenv("DICOMVAULT_IMAGING_BUCKET")
	if imagingBucket == "" {
		imagingBucket = "dicomvault-imaging"
	}

	ctx := context.Background()
	signedEmail, signedKey := loadSigningCreds(ctx, projectID)

	return Config{
		ProjectID:     projectID,
		ImagingBucket: imagingBucket,

		SignedURLServiceAccountEmail: signedEmail,
		SignedURLPrivateKey:          signedKey,
	}
}
