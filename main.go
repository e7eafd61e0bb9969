package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/storage"
)

func main() {
	cfg := LoadConfig()

	ctx := context.Background()
	fsdb, err := NewFirestoreDB(ctx, cfg.ProjectID)
	if err != nil {
		log.Fatalf("failed to init Firestore: %v", err)
	}
	defer func() {
		if err := fsdb.Close(); err != nil {
			log.Printf("error closing Firestore client: %v", err)
		}
	}()

	st, err := storage.NewClient(ctx)
	if err != nil {
		log.Fatalf("failed to init GCS storage client: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("error closing storage client: %v", err)
		}
	}()

	h := &Handlers{
		Cfg: cfg,
		Vault: &Vault{
			Blobs:   NewGCSBlobStore(st, cfg),
			Records: fsdb,
		},
		Identities: fsdb,
	}

	mux := http.NewServeMux()

	// Auth route
	mux.HandleFunc("/api/login", h.LoginHandler)

	// File routes: listing + upload, then per-file retrieval, download
	// links, and deletion.
	mux.HandleFunc("/api/files", h.FilesHandler)
	mux.HandleFunc("/api/files/", h.FileByNameHandler)

	addr := ":8080"
	server := &http.Server{
		Addr:    addr,
		Handler: withCORS(mux),
	}

	go func() {
		log.Printf("DicomVault REST server listening on %s (project=%s)", addr, cfg.ProjectID)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down server...")
	if err := server.Shutdown(context.Background()); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
}
