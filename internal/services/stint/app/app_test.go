package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const bundleYAML = `name: pilot
spec:
  min_earnings: 0
  max_earnings: 20
modules:
  - id: mod-1
    order: 1
    name: warmup
    start_stage: stage-a
    variables:
      - id: var-score
        name: score
        scope: hand
        data_type: int
        is_payoff: true
    stages:
      - id: stage-a
        name: alpha
        breadcrumb_type: none
        end_stage: true
`

func writeBundle(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "content.yaml")
	if err := os.WriteFile(path, []byte(bundleYAML), 0o600); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
	return path
}

func TestOpenRequiresContent(t *testing.T) {
	t.Parallel()
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Fatal("expected an error without a content path")
	}
}

func TestOpenWithMemoryBackends(t *testing.T) {
	t.Parallel()
	runtime, err := Open(context.Background(), Config{ContentPath: writeBundle(t)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer runtime.Close()

	if runtime.Catalog.Name != "pilot" {
		t.Fatalf("catalog name = %q, want pilot", runtime.Catalog.Name)
	}
	if runtime.Engine == nil {
		t.Fatal("engine not wired")
	}
}

func TestOpenWithSQLiteStore(t *testing.T) {
	t.Parallel()
	cfg := Config{
		ContentPath: writeBundle(t),
		DBPath:      filepath.Join(t.TempDir(), "stint.db"),
	}
	runtime, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := runtime.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRuntimeSeed(t *testing.T) {
	t.Parallel()
	runtime, err := Open(context.Background(), Config{ContentPath: writeBundle(t)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer runtime.Close()

	result, err := runtime.Seed(context.Background(), 2, 2)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(result.TeamIDs) != 2 || len(result.HandIDs) != 4 {
		t.Fatalf("seeded %d teams and %d hands, want 2 and 4", len(result.TeamIDs), len(result.HandIDs))
	}

	// Seeding starts every hand, so entry stage pre-actions have fired.
	for _, handID := range result.HandIDs {
		h, err := runtime.Store.GetHand(context.Background(), handID)
		if err != nil {
			t.Fatalf("get hand %s: %v", handID, err)
		}
		crumb, err := runtime.Store.GetBreadcrumb(context.Background(), h.BreadcrumbID)
		if err != nil {
			t.Fatalf("get breadcrumb: %v", err)
		}
		if !crumb.Started {
			t.Fatalf("hand %s still on an unstarted visit", handID)
		}
	}
}
