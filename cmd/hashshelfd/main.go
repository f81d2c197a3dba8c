// Command hashshelfd serves an S3-compatible object store backed by a
// local content-addressed, versioned filesystem layout.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hashshelf/hashshelf/internal/audit"
	"github.com/hashshelf/hashshelf/internal/blobstore"
	"github.com/hashshelf/hashshelf/internal/config"
	"github.com/hashshelf/hashshelf/internal/health"
	"github.com/hashshelf/hashshelf/internal/masterkey"
	"github.com/hashshelf/hashshelf/internal/metrics"
	"github.com/hashshelf/hashshelf/internal/router"
)

func main() {
	issue := flag.Bool("issue", false, "emit a randomly-rolled (access, secret) key pair to stdout and exit")
	rootFlag := flag.String("root", "", "storage root (overrides HASHSHELF_STORAGE_ROOT)")
	addrFlag := flag.String("addr", "", "listen address (overrides HASHSHELF_LISTEN_ADDR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *rootFlag != "" {
		cfg.StorageRoot = *rootFlag
		if os.Getenv("HASHSHELF_AUDIT_DB") == "" {
			cfg.AuditDBPath = *rootFlag + "/audit.db"
		}
	}
	if *addrFlag != "" {
		cfg.ListenAddr = *addrFlag
	}

	master := masterkey.New(cfg.MasterKey)

	if *issue {
		runIssue(master)
		return
	}

	if err := os.MkdirAll(cfg.StorageRoot, 0o700); err != nil {
		log.Fatalf("storage root %s: %v", cfg.StorageRoot, err)
	}
	if err := health.CheckStorageRoot(cfg.StorageRoot); err != nil {
		log.Fatalf("storage root not usable: %v", err)
	}

	auditLog, err := audit.Open(cfg.AuditDBPath)
	if err != nil {
		log.Fatalf("audit log: %v", err)
	}
	defer auditLog.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	store := blobstore.New(cfg.StorageRoot)

	rt := &router.Router{
		Store:   store,
		Master:  master,
		Audit:   auditAdapter{auditLog},
		Metrics: m,
	}

	handler := h2c.NewHandler(rt, &http2.Server{})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, reg)
	}

	go func() {
		log.Printf("hashshelfd listening on %s (storage root %s)", cfg.ListenAddr, cfg.StorageRoot)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown: %v", err)
	}
}

func runIssue(master masterkey.MasterKey) {
	var roleID masterkey.RoleId
	if _, err := rand.Read(roleID[:]); err != nil {
		log.Fatalf("issue: generate role id: %v", err)
	}
	access, err := master.AccessKeyFor(roleID)
	if err != nil {
		log.Fatalf("issue: %v", err)
	}
	secret := master.SecretKeyFor(access)
	fmt.Printf("%s\t%s\n", access, secret)
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Printf("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("metrics server: %v", err)
	}
}

// auditAdapter bridges audit.Log to router.AuditSink without router
// depending on database/sql or modernc.org/sqlite.
type auditAdapter struct {
	log *audit.Log
}

func (a auditAdapter) RecordAsync(rec router.AuditRecord) {
	a.log.RecordAsync(audit.Record{
		At:         rec.At,
		Method:     rec.Method,
		Bucket:     rec.Bucket,
		ObjectPath: rec.ObjectPath,
		KeyHash:    rec.KeyHash,
		AccessKey:  rec.AccessKey,
		StatusCode: rec.StatusCode,
		DurationMS: rec.DurationMS,
	})
}
