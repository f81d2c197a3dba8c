package health

import (
	"context"
	"errors"
	"testing"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func TestCheckStorageRoot_writable(t *testing.T) {
	if err := CheckStorageRoot(t.TempDir()); err != nil {
		t.Fatalf("CheckStorageRoot: %v", err)
	}
}

func TestCheckStorageRoot_missingDir(t *testing.T) {
	if err := CheckStorageRoot("/nonexistent/path/for/sure"); err == nil {
		t.Fatal("expected error for nonexistent storage root")
	}
}

func TestCheckAuditDB(t *testing.T) {
	if err := CheckAuditDB(context.Background(), fakePinger{}); err != nil {
		t.Fatalf("CheckAuditDB: %v", err)
	}
	if err := CheckAuditDB(context.Background(), fakePinger{err: errors.New("down")}); err == nil {
		t.Fatal("expected error when ping fails")
	}
}
