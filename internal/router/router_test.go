package router

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashshelf/hashshelf/internal/blobstore"
	"github.com/hashshelf/hashshelf/internal/masterkey"
)

func TestBucketAndPath_vectors(t *testing.T) {
	cases := []struct {
		host, path     string
		wantBucket     string
		wantObjectPath string
		wantOK         bool
	}{
		{"", "/", "", "", false},
		{"", "/potato", "", "", false},
		{"", "/potato/", "potato", "/", true},
		{"", "/potato/an/d", "potato", "/an/d", true},
		{"foo", "/", "", "", false},
		{"foo", "/plants/greens", "plants", "/greens", true},
		{"potato.foo", "/", "potato", "/", true},
		{"potato.foo", "/cheese/and/beans", "potato", "/cheese/and/beans", true},
	}
	for _, c := range cases {
		gotBucket, gotPath, ok := bucketAndPath(c.host, c.path)
		if ok != c.wantOK {
			t.Errorf("bucketAndPath(%q, %q) ok = %v, want %v", c.host, c.path, ok, c.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if gotBucket != c.wantBucket || gotPath != c.wantObjectPath {
			t.Errorf("bucketAndPath(%q, %q) = (%q, %q), want (%q, %q)",
				c.host, c.path, gotBucket, gotPath, c.wantBucket, c.wantObjectPath)
		}
	}
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	return &Router{
		Store:  blobstore.New(t.TempDir()),
		Master: masterkey.New("test-seed"),
		Now:    func() time.Time { return time.Now() },
	}
}

func TestRouter_anonymousPutGetDelete(t *testing.T) {
	rt := newTestRouter(t)

	putReq := httptest.NewRequest(http.MethodPut, "http://localhost/my-bucket/object-one", bytes.NewBufferString("hello"))
	putResp := httptest.NewRecorder()
	rt.ServeHTTP(putResp, putReq)
	if putResp.Code != http.StatusAccepted {
		t.Fatalf("PUT status = %d, want %d", putResp.Code, http.StatusAccepted)
	}

	getReq := httptest.NewRequest(http.MethodGet, "http://localhost/my-bucket/object-one", nil)
	getResp := httptest.NewRecorder()
	rt.ServeHTTP(getResp, getReq)
	if getResp.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want %d", getResp.Code, http.StatusOK)
	}
	if getResp.Body.String() != "hello" {
		t.Fatalf("GET body = %q, want %q", getResp.Body.String(), "hello")
	}

	delReq := httptest.NewRequest(http.MethodDelete, "http://localhost/my-bucket/object-one", nil)
	delResp := httptest.NewRecorder()
	rt.ServeHTTP(delResp, delReq)
	if delResp.Code != http.StatusAccepted {
		t.Fatalf("DELETE status = %d, want %d", delResp.Code, http.StatusAccepted)
	}

	getReq2 := httptest.NewRequest(http.MethodGet, "http://localhost/my-bucket/object-one", nil)
	getResp2 := httptest.NewRecorder()
	rt.ServeHTTP(getResp2, getReq2)
	if getResp2.Code != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d, want %d", getResp2.Code, http.StatusNotFound)
	}
}

func TestRouter_getMissingIsNotFound(t *testing.T) {
	rt := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "http://localhost/my-bucket/nope", nil)
	resp := httptest.NewRecorder()
	rt.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", resp.Code, http.StatusNotFound)
	}
}

func TestRouter_invalidBucketIsBadRequest(t *testing.T) {
	rt := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "http://localhost/AB/object", nil)
	resp := httptest.NewRecorder()
	rt.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.Code, http.StatusBadRequest)
	}
}

func TestRouter_unknownMethodIsMethodNotAllowed(t *testing.T) {
	rt := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "http://localhost/my-bucket/object", nil)
	resp := httptest.NewRecorder()
	rt.ServeHTTP(resp, req)
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", resp.Code, http.StatusMethodNotAllowed)
	}
}

func TestRouter_invalidSignatureIsForbidden(t *testing.T) {
	rt := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "http://localhost/my-bucket/object", nil)
	req.Header.Set("Authorization", "AWS4-HMAC-SHA256 Credential=x/20200104/us-east-1/s3/aws4_request, "+
		"SignedHeaders=host, Signature="+string(bytes.Repeat([]byte("a"), 64)))
	req.Header.Set("X-Amz-Date", "20200104T204036Z")
	resp := httptest.NewRecorder()
	rt.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", resp.Code, http.StatusForbidden)
	}
}
