package storage

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestLocalBackendSaveReadDelete(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewLocalBackend(dir+"/uploads", dir+"/outputs", "/api/v1/download/file")
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}

	ctx := context.Background()
	payload := []byte("feature collection bytes")

	path, err := backend.Save(ctx, payload, "parcels.geojson", FolderUploads)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.Contains(path, "parcels.geojson") {
		t.Errorf("expected path to retain logical name, got %q", path)
	}

	got, err := backend.Read(ctx, path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("Read returned %q, want %q", got, payload)
	}

	url, err := backend.URL(ctx, path, time.Hour)
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	if !strings.HasPrefix(url, "/api/v1/download/file?") {
		t.Errorf("unexpected URL shape: %q", url)
	}

	if err := backend.Delete(ctx, path); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Idempotent: deleting again must not error.
	if err := backend.Delete(ctx, path); err != nil {
		t.Errorf("second Delete returned error, want nil (idempotent): %v", err)
	}

	if _, err := backend.Read(ctx, path); err == nil {
		t.Error("Read after Delete: expected error, got nil")
	}
}

func TestLocalBackendSeparatesFolders(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewLocalBackend(dir+"/uploads", dir+"/outputs", "/download")
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}
	ctx := context.Background()

	uploadPath, err := backend.Save(ctx, []byte("a"), "in.geojson", FolderUploads)
	if err != nil {
		t.Fatal(err)
	}
	outputPath, err := backend.Save(ctx, []byte("b"), "out.geojson", FolderOutputs)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(uploadPath, "/uploads/") {
		t.Errorf("upload path %q not under uploads dir", uploadPath)
	}
	if !strings.Contains(outputPath, "/outputs/") {
		t.Errorf("output path %q not under outputs dir", outputPath)
	}
}
