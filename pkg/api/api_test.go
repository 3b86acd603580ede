package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/scoutline-dev/scoutline/pkg/prospect"
	"github.com/scoutline-dev/scoutline/pkg/runner"
	"github.com/scoutline-dev/scoutline/pkg/store"
)

type fakeEngine struct {
	runs      map[string]*runner.Progress
	launched  []prospect.RunConfig
	launchErr error
	cancelled []string
	cancelErr error
	listed    []*prospect.Run
	attempts  map[string][]*prospect.Attempt
	prospects map[string][]*prospect.Prospect
}

func (f *fakeEngine) LaunchRun(_ context.Context, cfg prospect.RunConfig) (string, error) {
	if f.launchErr != nil {
		return "", f.launchErr
	}
	f.launched = append(f.launched, cfg)
	return fmt.Sprintf("run-%d", len(f.launched)), nil
}

func (f *fakeEngine) RunStatus(_ context.Context, runID string) (*runner.Progress, error) {
	p, ok := f.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %q: %w", runID, store.ErrNotFound)
	}
	return p, nil
}

func (f *fakeEngine) CancelRun(_ context.Context, runID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, runID)
	return nil
}

func (f *fakeEngine) ListRuns(_ context.Context) ([]*prospect.Run, error) {
	return f.listed, nil
}

func (f *fakeEngine) RunAttempts(_ context.Context, runID string) ([]*prospect.Attempt, error) {
	if _, ok := f.runs[runID]; !ok {
		return nil, fmt.Errorf("run %q: %w", runID, store.ErrNotFound)
	}
	return f.attempts[runID], nil
}

func (f *fakeEngine) RunProspects(_ context.Context, runID string) ([]*prospect.Prospect, error) {
	if _, ok := f.runs[runID]; !ok {
		return nil, fmt.Errorf("run %q: %w", runID, store.ErrNotFound)
	}
	return f.prospects[runID], nil
}

func testServer(t *testing.T, engine *fakeEngine) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(engine, nil).Router())
	t.Cleanup(srv.Close)
	return srv
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close() //nolint:errcheck // test cleanup
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestLaunchRun(t *testing.T) {
	engine := &fakeEngine{}
	srv := testServer(t, engine)

	body := `{"platforms":["instagram"],"regions":["CZ"],"keywords":["fitness"],"min_followers":1000,"max_followers":50000,"target_count":5}`
	resp, err := http.Post(srv.URL+"/api/runs", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/runs: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	got := decode[launchResponse](t, resp)
	if got.RunID != "run-1" {
		t.Errorf("run_id = %q, want %q", got.RunID, "run-1")
	}
	if len(engine.launched) != 1 {
		t.Fatalf("launched %d runs, want 1", len(engine.launched))
	}
	if diff := cmp.Diff([]string{"fitness"}, engine.launched[0].Keywords); diff != "" {
		t.Errorf("keywords mismatch (-want +got):\n%s", diff)
	}
}

func TestLaunchRunRejectsBadConfig(t *testing.T) {
	engine := &fakeEngine{launchErr: errors.New("min_followers must not exceed max_followers")}
	srv := testServer(t, engine)

	resp, err := http.Post(srv.URL+"/api/runs", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST /api/runs: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	got := decode[errorResponse](t, resp)
	if !strings.Contains(got.Error, "min_followers") {
		t.Errorf("error = %q, want config complaint", got.Error)
	}
}

func TestLaunchRunRejectsMalformedBody(t *testing.T) {
	srv := testServer(t, &fakeEngine{})

	resp, err := http.Post(srv.URL+"/api/runs", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST /api/runs: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck // test cleanup
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestRunStatus(t *testing.T) {
	engine := &fakeEngine{
		runs: map[string]*runner.Progress{
			"run-1": {Status: prospect.RunRunning, TotalProcessed: 12, TotalFound: 3},
		},
	}
	srv := testServer(t, engine)

	resp, err := http.Get(srv.URL + "/api/runs/run-1")
	if err != nil {
		t.Fatalf("GET run status: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	got := decode[runner.Progress](t, resp)
	want := runner.Progress{Status: prospect.RunRunning, TotalProcessed: 12, TotalFound: 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
}

func TestRunStatusMissing(t *testing.T) {
	srv := testServer(t, &fakeEngine{runs: map[string]*runner.Progress{}})

	resp, err := http.Get(srv.URL + "/api/runs/nope")
	if err != nil {
		t.Fatalf("GET run status: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck // test cleanup
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestCancelRun(t *testing.T) {
	engine := &fakeEngine{}
	srv := testServer(t, engine)

	resp, err := http.Post(srv.URL+"/api/runs/run-1/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("POST cancel: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck // test cleanup
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	if diff := cmp.Diff([]string{"run-1"}, engine.cancelled); diff != "" {
		t.Errorf("cancelled mismatch (-want +got):\n%s", diff)
	}
}

func TestCancelRunTerminal(t *testing.T) {
	engine := &fakeEngine{cancelErr: errors.New("run already completed")}
	srv := testServer(t, engine)

	resp, err := http.Post(srv.URL+"/api/runs/run-1/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("POST cancel: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck // test cleanup
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestListRuns(t *testing.T) {
	engine := &fakeEngine{
		listed: []*prospect.Run{
			{ID: "run-1", Status: prospect.RunCompleted},
			{ID: "run-2", Status: prospect.RunRunning},
		},
	}
	srv := testServer(t, engine)

	resp, err := http.Get(srv.URL + "/api/runs")
	if err != nil {
		t.Fatalf("GET /api/runs: %v", err)
	}
	got := decode[[]*prospect.Run](t, resp)
	if len(got) != 2 || got[0].ID != "run-1" || got[1].ID != "run-2" {
		t.Errorf("runs = %+v, want run-1 and run-2", got)
	}
}

func TestListRunsEmpty(t *testing.T) {
	srv := testServer(t, &fakeEngine{})

	resp, err := http.Get(srv.URL + "/api/runs")
	if err != nil {
		t.Fatalf("GET /api/runs: %v", err)
	}
	got := decode[[]*prospect.Run](t, resp)
	if got == nil || len(got) != 0 {
		t.Errorf("runs = %v, want empty array", got)
	}
}

func TestRunProspects(t *testing.T) {
	engine := &fakeEngine{
		runs: map[string]*runner.Progress{"run-1": {Status: prospect.RunCompleted}},
		prospects: map[string][]*prospect.Prospect{
			"run-1": {{ID: "p-1", Name: "Jane Doe", TotalFollowers: 12000}},
		},
	}
	srv := testServer(t, engine)

	resp, err := http.Get(srv.URL + "/api/runs/run-1/prospects")
	if err != nil {
		t.Fatalf("GET prospects: %v", err)
	}
	got := decode[[]*prospect.Prospect](t, resp)
	if len(got) != 1 || got[0].Name != "Jane Doe" {
		t.Errorf("prospects = %+v, want Jane Doe", got)
	}
}

func TestRunAttemptsMissingRun(t *testing.T) {
	srv := testServer(t, &fakeEngine{runs: map[string]*runner.Progress{}})

	resp, err := http.Get(srv.URL + "/api/runs/nope/attempts")
	if err != nil {
		t.Fatalf("GET attempts: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck // test cleanup
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}
