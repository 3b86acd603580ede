package scoutline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/scoutline-dev/scoutline/pkg/prospect"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	ctx := context.Background()
	engine, err := New(ctx,
		WithDatabase(filepath.Join(t.TempDir(), "scoutline.db")),
		WithoutBrowser(),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() {
		if err := engine.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	})
	return engine
}

func TestLaunchRunRejectsInvalidConfig(t *testing.T) {
	engine := testEngine(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  prospect.RunConfig
	}{
		{
			name: "no platforms",
			cfg: prospect.RunConfig{
				Regions:      []string{"CZ"},
				MinFollowers: 1000,
				MaxFollowers: 50000,
				TargetCount:  5,
			},
		},
		{
			name: "inverted follower range",
			cfg: prospect.RunConfig{
				Platforms:    []prospect.Platform{prospect.Instagram},
				Regions:      []string{"CZ"},
				MinFollowers: 50000,
				MaxFollowers: 1000,
				TargetCount:  5,
			},
		},
		{
			name: "zero target",
			cfg: prospect.RunConfig{
				Platforms:    []prospect.Platform{prospect.Instagram},
				Regions:      []string{"CZ"},
				MinFollowers: 1000,
				MaxFollowers: 50000,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := engine.LaunchRun(ctx, tt.cfg); err == nil {
				t.Error("LaunchRun() succeeded, want config error")
			}
		})
	}
}

func TestListRunsEmpty(t *testing.T) {
	engine := testEngine(t)

	runs, err := engine.ListRuns(context.Background())
	if err != nil {
		t.Fatalf("ListRuns() error: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("ListRuns() = %d runs, want 0", len(runs))
	}
}

func TestRunStatusMissingRun(t *testing.T) {
	engine := testEngine(t)

	if _, err := engine.RunStatus(context.Background(), "no-such-run"); err == nil {
		t.Error("RunStatus() succeeded for unknown run")
	}
}

func TestEnrichEmailsEmptyStore(t *testing.T) {
	engine := testEngine(t)

	result, err := engine.EnrichEmails(context.Background())
	if err != nil {
		t.Fatalf("EnrichEmails() error: %v", err)
	}
	if result.Scanned != 0 || result.Extracted != 0 {
		t.Errorf("EnrichEmails() = %+v, want zero counts", result)
	}
}
