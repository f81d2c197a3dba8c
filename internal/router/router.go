// Package router dispatches inbound HTTP requests to BlobStore after SigV4
// validation, extracting the bucket and object path from either the Host
// header or the request path.
package router

import (
	"errors"
	"io"
	"log"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/hashshelf/hashshelf/internal/apierr"
	"github.com/hashshelf/hashshelf/internal/blobstore"
	"github.com/hashshelf/hashshelf/internal/bucket"
	"github.com/hashshelf/hashshelf/internal/keyhash"
	"github.com/hashshelf/hashshelf/internal/masterkey"
	"github.com/hashshelf/hashshelf/internal/sigv4"
)

// AuditSink receives one record per completed request. Implementations
// must not block the response path; cmd/hashshelfd's auditAdapter wraps
// (*audit.Log).RecordAsync to satisfy this.
type AuditSink interface {
	RecordAsync(rec AuditRecord)
}

// AuditRecord mirrors audit.Record without this package depending on the
// audit package's SQL machinery.
type AuditRecord struct {
	At         time.Time
	Method     string
	Bucket     string
	ObjectPath string
	KeyHash    string
	AccessKey  string
	StatusCode int
	DurationMS int64
}

// MetricsSink receives one observation per completed request and tracks
// streams while a body is being encoded or decoded.
type MetricsSink interface {
	ObserveRequest(method, status string, elapsed time.Duration)
	// StreamStarted marks one object stream as open and returns a func to
	// call when it closes.
	StreamStarted() func()
}

// Router is the thin HTTP entry point: method/path dispatch, auth, and
// delegation to a Store.
type Router struct {
	Store  *blobstore.Store
	Master masterkey.MasterKey
	Now    func() time.Time
	Audit  AuditSink
	// Metrics is optional; nil disables request observation.
	Metrics MetricsSink
}

// ServeHTTP implements http.Handler. Panics from any downstream code are
// recovered here and converted to 500, matching the "panics are caught at
// the router boundary" contract.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusInternalServerError

	defer func() {
		if p := recover(); p != nil {
			log.Printf("router: panic handling %s %s: %v\n%s", r.Method, r.URL.Path, p, debug.Stack())
			w.WriteHeader(http.StatusInternalServerError)
		}
		if rt.Metrics != nil {
			rt.Metrics.ObserveRequest(r.Method, strconv.Itoa(status), time.Since(start))
		}
	}()

	status = rt.dispatch(w, r, start)
}

func (rt *Router) dispatch(w http.ResponseWriter, r *http.Request, start time.Time) int {
	now := time.Now
	if rt.Now != nil {
		now = rt.Now
	}

	bucketName, objectPath, ok := bucketAndPath(r.Host, r.URL.Path)
	if !ok {
		return rt.fail(w, apierr.ErrBadBucket, start, r.Method, "", "")
	}
	name, ok := bucket.Parse(bucketName)
	if !ok {
		return rt.fail(w, apierr.ErrBadBucket, start, r.Method, "", objectPath)
	}

	headers := lowercaseHeaders(r.Header)
	headers["host"] = r.Host

	result := sigv4.Validate(r.URL.String(), r.Method, headers, now(), rt.Master.SecretKeyFor)
	var accessKey string
	switch result.Outcome {
	case sigv4.Invalid, sigv4.Unsupported:
		return rt.fail(w, apierr.ErrForbidden, start, r.Method, string(name), objectPath)
	case sigv4.Valid:
		accessKey = result.AccessKey
	}

	var status int
	switch r.Method {
	case http.MethodGet:
		status = rt.handleGet(w, objectPath)
	case http.MethodPut:
		status = rt.handlePut(w, r, objectPath, headers)
	case http.MethodDelete:
		status = rt.handleDelete(w, objectPath)
	default:
		status = apierr.Status(apierr.ErrMethodNotAllowed)
		w.WriteHeader(status)
	}

	rt.recordAudit(start, r.Method, string(name), objectPath, objectPath, accessKey, status)
	return status
}

// fail writes and audits a failure determined entirely by apierr's status
// vocabulary, so every rejection path (bad bucket, auth, method) goes
// through the same mapping the bottom-level store code uses.
func (rt *Router) fail(w http.ResponseWriter, err error, start time.Time, method, bucketName, objectPath string) int {
	status := apierr.Status(err)
	w.WriteHeader(status)
	rt.recordAudit(start, method, bucketName, objectPath, objectPath, "", status)
	return status
}

func (rt *Router) handleGet(w http.ResponseWriter, key string) int {
	result, err := rt.Store.Fetch(key)
	if err != nil {
		return rt.writeStoreError(w, "fetch", key, err)
	}
	defer result.Body.Close()

	v := result.Version
	w.Header().Set("Content-Length", strconv.FormatUint(v.ContentLength, 10))
	w.Header().Set("Content-MD5", v.ContentMD5Base64)
	w.Header().Set("Last-Modified", v.Modified.Format(http.TimeFormat))
	for k, val := range v.Meta {
		w.Header().Set(k, val)
	}
	w.WriteHeader(http.StatusOK)

	done := rt.streamStarted()
	defer done()
	if _, err := io.Copy(w, result.Body); err != nil {
		log.Printf("router: stream body for %q: %v", key, err)
	}
	return http.StatusOK
}

func (rt *Router) handlePut(w http.ResponseWriter, r *http.Request, key string, signedHeaders map[string]string) int {
	retained := make(map[string]string, len(signedHeaders))
	for k, v := range signedHeaders {
		if k == "authorization" || k == "host" {
			continue
		}
		retained[k] = v
	}

	done := rt.streamStarted()
	_, err := rt.Store.Put(key, retained, r.Body)
	done()
	if err != nil {
		return rt.writeStoreError(w, "store", key, err)
	}
	w.WriteHeader(http.StatusAccepted)
	return http.StatusAccepted
}

// streamStarted marks one object stream as open, returning a no-op if
// Metrics is nil.
func (rt *Router) streamStarted() func() {
	if rt.Metrics == nil {
		return func() {}
	}
	return rt.Metrics.StreamStarted()
}

func (rt *Router) handleDelete(w http.ResponseWriter, key string) int {
	if _, err := rt.Store.Head(key); err != nil {
		return rt.writeStoreError(w, "head before delete", key, err)
	}
	if err := rt.Store.Delete(key); err != nil {
		return rt.writeStoreError(w, "delete", key, err)
	}
	w.WriteHeader(http.StatusAccepted)
	return http.StatusAccepted
}

// writeStoreError maps a blobstore error to an apierr status, logging
// anything beyond a plain not-found.
func (rt *Router) writeStoreError(w http.ResponseWriter, op, key string, err error) int {
	var apiErr error = apierr.ErrInternal
	if errors.Is(err, blobstore.ErrNotFound) {
		apiErr = apierr.ErrNotFound
	} else {
		log.Printf("router: %s %q: %v", op, key, err)
	}
	status := apierr.Status(apiErr)
	w.WriteHeader(status)
	return status
}

func (rt *Router) recordAudit(start time.Time, method, bucketName, objectPath, key, accessKey string, status int) {
	if rt.Audit == nil {
		return
	}
	hash := ""
	if key != "" {
		hash = keyHashPrefix(key)
	}
	rt.Audit.RecordAsync(AuditRecord{
		At:         start.UTC(),
		Method:     method,
		Bucket:     bucketName,
		ObjectPath: objectPath,
		KeyHash:    hash,
		AccessKey:  accessKey,
		StatusCode: status,
		DurationMS: time.Since(start).Milliseconds(),
	})
}

func keyHashPrefix(key string) string {
	h := string(keyhash.Of(key))
	if len(h) < 16 {
		return h
	}
	return h[:16]
}

// bucketAndPath extracts (bucket, objectPath) per the contract: prefer the
// first DNS label of the Host header when it has two or more dot-separated
// parts, else use the first path segment.
func bucketAndPath(host, path string) (string, string, bool) {
	if b, ok := firstDNSLabel(host); ok {
		return b, path, true
	}
	return firstPathSegment(path)
}

func firstDNSLabel(host string) (string, bool) {
	host = stripPort(host)
	parts := strings.Split(host, ".")
	if len(parts) < 2 {
		return "", false
	}
	return parts[0], true
}

func stripPort(host string) string {
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		return host[:idx]
	}
	return host
}

func firstPathSegment(path string) (string, string, bool) {
	if len(path) < 1 || path[0] != '/' {
		return "", "", false
	}
	rest := path[1:]
	idx := strings.IndexByte(rest, '/')
	if idx == -1 {
		return "", "", false
	}
	return rest[:idx], "/" + rest[idx+1:], true
}

func lowercaseHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) == 0 {
			continue
		}
		out[strings.ToLower(k)] = v[0]
	}
	return out
}
