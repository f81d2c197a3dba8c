package blobstore

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestPutFetchRoundTrip(t *testing.T) {
	s := New(t.TempDir())

	v0, err := s.Put("greeting", map[string]string{"content-type": "text/plain"}, bytes.NewBufferString("hello world"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if v0.ContentLength != 11 {
		t.Fatalf("content length = %d, want 11", v0.ContentLength)
	}

	result, err := s.Fetch("greeting")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("body = %q", data)
	}
	if result.Version.Meta["content-type"] != "text/plain" {
		t.Fatalf("meta not preserved: %+v", result.Version.Meta)
	}
}

func TestFetch_notFound(t *testing.T) {
	s := New(t.TempDir())
	if _, err := s.Fetch("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPut_overwriteCreatesNewVersion(t *testing.T) {
	s := New(t.TempDir())
	if _, err := s.Put("o", nil, bytes.NewBufferString("v0")); err != nil {
		t.Fatalf("Put v0: %v", err)
	}
	if _, err := s.Put("o", nil, bytes.NewBufferString("v1")); err != nil {
		t.Fatalf("Put v1: %v", err)
	}
	result, err := s.Fetch("o")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer result.Body.Close()
	data, _ := io.ReadAll(result.Body)
	if string(data) != "v1" {
		t.Fatalf("expected latest version v1, got %q", data)
	}
}

func TestDelete_hidesObject(t *testing.T) {
	s := New(t.TempDir())
	if _, err := s.Put("gone", nil, bytes.NewBufferString("data")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete("gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Fetch("gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := s.Head("gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Head after delete, got %v", err)
	}
}

func TestHead_matchesFetchVersion(t *testing.T) {
	s := New(t.TempDir())
	put, err := s.Put("k", map[string]string{"x": "y"}, bytes.NewBufferString("payload"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	head, err := s.Head("k")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.ContentMD5Base64 != put.ContentMD5Base64 || head.ContentLength != put.ContentLength {
		t.Fatalf("Head result mismatch: %+v vs %+v", head, put)
	}
}
