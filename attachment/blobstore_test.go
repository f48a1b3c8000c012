package attachment

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
)

func TestMemoryBlobStorePutGetRoundTrip(t *testing.T) {
	store := NewMemoryBlobStore()
	ctx := context.Background()

	n, err := store.Put(ctx, "avatar/u1", strings.NewReader("avatar-bytes"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n != int64(len("avatar-bytes")) {
		t.Fatalf("expected size %d, got %d", len("avatar-bytes"), n)
	}

	r, size, err := store.Get(ctx, "avatar/u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer r.Close()
	if size != n {
		t.Fatalf("expected Get size %d to match Put size %d", size, n)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, []byte("avatar-bytes")) {
		t.Fatalf("round trip mismatch: got %q", got)
	}
}

func TestMemoryBlobStoreGetMissingKeyFails(t *testing.T) {
	store := NewMemoryBlobStore()
	if _, _, err := store.Get(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestMemoryBlobStoreRejectsOversizedBlob(t *testing.T) {
	store := NewMemoryBlobStore()
	oversized := bytes.Repeat([]byte{'x'}, MaxBlobBytes+1)
	if _, err := store.Put(context.Background(), "big", bytes.NewReader(oversized)); err == nil {
		t.Fatal("expected error for blob exceeding MaxBlobBytes")
	}
}
