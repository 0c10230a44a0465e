package service

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestLocalStorePutGet(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	content := "line1\nline2\n"
	if err := store.Put(ctx, "boms/abc/file.csv", strings.NewReader(content), int64(len(content)), "text/csv"); err != nil {
		t.Fatalf("put: %v", err)
	}

	rc, err := store.Get(ctx, "boms/abc/file.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != content {
		t.Errorf("Content mismatch: %q", string(data))
	}
}

func TestLocalStoreGetMissingKey(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	if _, err := store.Get(context.Background(), "boms/none/file.csv"); err == nil {
		t.Fatal("Expected error for missing key")
	}
}
