// Package sigv4 validates AWS Signature Version 4 authenticated HTTP
// requests against an access-key -> secret-key lookup, fixed to region
// us-east-1 and service s3.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	region     = "us-east-1"
	service    = "s3"
	algorithm  = "AWS4-HMAC-SHA256 "
	dateLayout = "20060102T150405Z"
	dayLayout  = "20060102"
)

// emptyPayloadHash is SHA256 of the empty string: the canonical payload
// hash used for every request. Request bodies are not covered by SigV4
// payload signing here, and no Content-MD5 header is checked against them.
const emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

var authHeaderPattern = regexp.MustCompile(
	`^Credential=([^/ ,=]+)/(\d{8})/([^/ ,=]+)/([^/ ,=]+)/aws4_request, ` +
		`SignedHeaders=([^/ ,=]+), ` +
		`Signature=([a-f0-9]{64})$`,
)

// Outcome classifies the result of validating one request.
type Outcome int

const (
	// Invalid means the request carried a malformed or incorrect signature.
	Invalid Outcome = iota
	// Unsupported means the request used an authentication scheme, region,
	// or service this validator does not implement.
	Unsupported
	// Anonymous means the request carried no Authorization header at all.
	Anonymous
	// Valid means the signature checked out.
	Valid
)

// Result is returned by Validate.
type Result struct {
	Outcome Outcome
	// AccessKey is populated only when Outcome == Valid.
	AccessKey string
	// Headers holds the original header set for Anonymous, or only the
	// signed headers (with their original casing preserved as given) for
	// Valid. For Invalid/Unsupported it is nil.
	Headers map[string]string
}

// SecretLookup resolves an access key to its secret key. Implementations
// should not themselves validate that the access key was ever issued;
// Validate only calls this for access keys it intends to check.
type SecretLookup func(accessKey string) string

// Validate checks an inbound request against the SigV4 scheme. headers is
// a case-insensitive map (lowercased keys) of the request's headers.
func Validate(rawURL, method string, headers map[string]string, now time.Time, secretFor SecretLookup) Result {
	authorization, ok := headers["authorization"]
	if !ok {
		return Result{Outcome: Anonymous, Headers: headers}
	}

	dateHeader, ok := headers["x-amz-date"]
	if !ok {
		return Result{Outcome: Invalid}
	}
	if _, err := time.Parse(dateLayout, dateHeader); err != nil {
		return Result{Outcome: Invalid}
	}

	if !strings.HasPrefix(authorization, algorithm) {
		return Result{Outcome: Unsupported}
	}

	fields, ok := parseAuthHeader(authorization[len(algorithm):])
	if !ok {
		return Result{Outcome: Invalid}
	}

	credentialDate, err := time.Parse(dayLayout, fields.date)
	if err != nil {
		return Result{Outcome: Invalid}
	}
	if absDays(credentialDate, now.UTC()) > 2 {
		return Result{Outcome: Invalid}
	}

	if fields.region != region || fields.service != service {
		return Result{Outcome: Unsupported}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Result{Outcome: Invalid}
	}

	cleanHeaders := make(map[string]string, len(fields.signedHeaders))
	remaining := make(map[string]string, len(headers))
	for k, v := range headers {
		remaining[k] = v
	}
	for _, name := range fields.signedHeaders {
		value, ok := remaining[name]
		if !ok {
			return Result{Outcome: Invalid}
		}
		delete(remaining, name)
		cleanHeaders[name] = value
	}

	secret := secretFor(fields.accessKey)
	expected := computeSignature(signingInputs{
		method:        method,
		path:          parsed.EscapedPath(),
		query:         parsed.RawQuery,
		headers:       cleanHeaders,
		signedHeaders: fields.signedHeaders,
		amzDate:       dateHeader,
		credDate:      fields.date,
		secret:        secret,
	})

	if subtle.ConstantTimeCompare([]byte(expected), []byte(fields.signature)) != 1 {
		return Result{Outcome: Invalid}
	}

	return Result{Outcome: Valid, AccessKey: fields.accessKey, Headers: cleanHeaders}
}

type authHeaderFields struct {
	accessKey     string
	date          string
	region        string
	service       string
	signedHeaders []string
	signature     string
}

func parseAuthHeader(s string) (authHeaderFields, bool) {
	m := authHeaderPattern.FindStringSubmatch(s)
	if m == nil {
		return authHeaderFields{}, false
	}
	return authHeaderFields{
		accessKey:     m[1],
		date:          m[2],
		region:        m[3],
		service:       m[4],
		signedHeaders: strings.Split(m[5], ";"),
		signature:     m[6],
	}, true
}

// absDays returns the number of calendar days between a and b, truncating
// both to a UTC date before differencing so a credential date (always
// midnight) compares against now's *date*, not its instant. Mirrors the
// original's NaiveDate::signed_duration_since, which diffs dates, never
// instants.
func absDays(a, b time.Time) int {
	da := truncToDate(a)
	db := truncToDate(b)
	days := int(da.Sub(db).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

func truncToDate(t time.Time) time.Time {
	t = t.UTC()
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type signingInputs struct {
	method        string
	path          string
	query         string
	headers       map[string]string
	signedHeaders []string
	amzDate       string
	credDate      string
	secret        string
}

func computeSignature(in signingInputs) string {
	sortedHeaders := append([]string(nil), in.signedHeaders...)
	sort.Strings(sortedHeaders)

	var canonicalHeaders strings.Builder
	for _, h := range sortedHeaders {
		canonicalHeaders.WriteString(h)
		canonicalHeaders.WriteByte(':')
		canonicalHeaders.WriteString(in.headers[h])
		canonicalHeaders.WriteByte('\n')
	}
	signedHeadersJoined := strings.Join(sortedHeaders, ";")

	canonicalRequest := strings.Join([]string{
		in.method,
		canonicalURI(in.path),
		in.query,
		canonicalHeaders.String(),
		signedHeadersJoined,
		emptyPayloadHash,
	}, "\n")

	credentialScope := fmt.Sprintf("%s/%s/%s/aws4_request", in.credDate, region, service)
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		in.amzDate,
		credentialScope,
		hashHex(canonicalRequest),
	}, "\n")

	kDate := hmacSHA256([]byte("AWS4"+in.secret), in.credDate)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	kSigning := hmacSHA256(kService, "aws4_request")

	return hex.EncodeToString(hmacSHA256(kSigning, stringToSign))
}

func canonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, msg string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(msg))
	return h.Sum(nil)
}
