package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"order-sync/core/reconcile"
	"order-sync/core/storage"
)

// ProductResult is the outcome of one product's reconciliation pass.
type ProductResult struct {
	Product    string              `json:"product"`
	ProjectKey string              `json:"project_key"`
	Skipped    string              `json:"skipped,omitempty"`
	Run        reconcile.RunResult `json:"run"`
}

// Report is the full record of one sync run across all products.
type Report struct {
	RunID      string           `json:"run_id"`
	DryRun     bool             `json:"dry_run"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Products   []ProductResult  `json:"products"`
	Totals     reconcile.Totals `json:"totals"`
}

// New starts a report for a fresh run.
func New(dryRun bool) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		DryRun:    dryRun,
		StartedAt: time.Now().UTC(),
	}
}

// AddProduct folds one product's run into the report.
func (r *Report) AddProduct(product, projectKey string, run reconcile.RunResult) {
	r.Products = append(r.Products, ProductResult{
		Product:    product,
		ProjectKey: projectKey,
		Run:        run,
	})
	r.Totals.Orders += run.Totals.Orders
	r.Totals.Created += run.Totals.Created
	r.Totals.Updated += run.Totals.Updated
	r.Totals.Noops += run.Totals.Noops
	r.Totals.Failed += run.Totals.Failed
	r.Totals.Warnings += run.Totals.Warnings
	r.Totals.Retries += run.Totals.Retries
}

// AddSkipped records a product that could not be reconciled at all.
func (r *Report) AddSkipped(product, reason string) {
	r.Products = append(r.Products, ProductResult{Product: product, Skipped: reason})
}

// Finish stamps the end time and sorts products for stable output.
func (r *Report) Finish() {
	r.FinishedAt = time.Now().UTC()
	sort.Slice(r.Products, func(i, j int) bool {
		return r.Products[i].Product < r.Products[j].Product
	})
}

// Failed reports whether any order in the run ended in error.
func (r *Report) Failed() bool { return r.Totals.Failed > 0 }

// FileName returns the report's artifact name.
func (r *Report) FileName() string {
	return fmt.Sprintf("sync-%s-%s.json", r.StartedAt.Format("20060102-150405"), r.RunID)
}

// Write persists the report as indented JSON under dir and returns the path.
func (r *Report) Write(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	path := filepath.Join(dir, r.FileName())
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// Upload pushes the report to object storage, creating the bucket on
// first use.
func (r *Report) Upload(ctx context.Context, client storage.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}

	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = client.PutObject(ctx, bucket, r.FileName(), bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("upload report: %w", err)
	}
	return nil
}

// Summary renders a short human-readable digest of the run.
func (r *Report) Summary() string {
	var b strings.Builder
	mode := "sync"
	if r.DryRun {
		mode = "dry-run"
	}
	fmt.Fprintf(&b, "run %s (%s) finished in %s\n",
		r.RunID, mode, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	for _, p := range r.Products {
		if p.Skipped != "" {
			fmt.Fprintf(&b, "  %-20s skipped: %s\n", p.Product, p.Skipped)
			continue
		}
		t := p.Run.Totals
		fmt.Fprintf(&b, "  %-20s %s: %d orders, %d created, %d updated, %d noop, %d failed\n",
			p.Product, p.ProjectKey, t.Orders, t.Created, t.Updated, t.Noops, t.Failed)
	}
	t := r.Totals
	fmt.Fprintf(&b, "total: %d orders, %d created, %d updated, %d noop, %d failed, %d warnings, %d retries",
		t.Orders, t.Created, t.Updated, t.Noops, t.Failed, t.Warnings, t.Retries)
	return b.String()
}
