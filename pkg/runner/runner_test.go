package runner

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/scoutline-dev/scoutline/pkg/discover"
	"github.com/scoutline-dev/scoutline/pkg/prospect"
	"github.com/scoutline-dev/scoutline/pkg/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testConfig() prospect.RunConfig {
	return prospect.RunConfig{
		Regions:      []string{"CZ"},
		MinFollowers: 1000,
		MaxFollowers: 100000,
		TargetCount:  5,
		Platforms:    []prospect.Platform{prospect.Instagram},
		Keywords:     []string{"fashion"},
	}
}

// fixedStrategy yields a fixed handle list for every region.
type fixedStrategy struct {
	name    string
	handles []string
	calls   int
}

func (s *fixedStrategy) Name() string { return s.name }

func (s *fixedStrategy) Discover(_ context.Context, region string, _ *prospect.RunConfig, budget int) ([]prospect.Handle, error) {
	s.calls++
	var out []prospect.Handle
	for _, username := range s.handles {
		if len(out) >= budget {
			break
		}
		out = append(out, prospect.Handle{Platform: prospect.Instagram, Username: username, Region: region})
	}
	return out, nil
}

// scriptedResolver serves canned snapshots keyed by username.
type scriptedResolver struct {
	snapshots map[string]*prospect.Snapshot
	errs      map[string]error
	gate      chan struct{} // if non-nil, Resolve blocks until it closes
	resolving chan string   // if non-nil, receives usernames as they start
}

func (r *scriptedResolver) Resolve(ctx context.Context, _ prospect.Platform, username string) (*prospect.Snapshot, error) {
	if r.resolving != nil {
		r.resolving <- username
	}
	if r.gate != nil {
		<-r.gate
	}
	if err := r.errs[username]; err != nil {
		return nil, err
	}
	s, ok := r.snapshots[username]
	if !ok {
		return nil, prospect.ErrProfileNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *scriptedResolver) IsPrivate(_ context.Context, _ prospect.Platform, username string) (bool, error) {
	s, ok := r.snapshots[username]
	if !ok {
		return false, prospect.ErrProfileNotFound
	}
	return s.Private, nil
}

func snap(username string, followers int, bio string, private bool) *prospect.Snapshot {
	return &prospect.Snapshot{
		Platform:  prospect.Instagram,
		Username:  username,
		URL:       prospect.ProfileURL(prospect.Instagram, username),
		Name:      "Creator " + username,
		Bio:       bio,
		Followers: followers,
		Private:   private,
	}
}

func attemptsByStatus(t *testing.T, st *store.Store, runID string) map[string]prospect.AttemptStatus {
	t.Helper()
	attempts, err := st.AttemptsForRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("AttemptsForRun: %v", err)
	}
	out := make(map[string]prospect.AttemptStatus, len(attempts))
	for _, a := range attempts {
		if _, dup := out[a.Username]; dup {
			t.Errorf("more than one attempt for %q", a.Username)
		}
		out[a.Username] = a.Status
	}
	return out
}

func TestRunScenario(t *testing.T) {
	st := testStore(t)
	resolver := &scriptedResolver{snapshots: map[string]*prospect.Snapshot{
		"a": snap("a", 5000, "fashion and style", false),
		"b": snap("b", 5000, "fashion", true),
		"c": snap("c", 500, "fashion", false),
		"d": snap("d", 5000, "cooking only", false),
		"e": snap("e", 5000, "fashion", true),
		"f": snap("f", 8000, "prague fashion week", false),
	}}
	strategy := &fixedStrategy{name: "test", handles: []string{"a", "b", "c", "d", "e", "f"}}

	r := New(st, resolver, WithStrategies(strategy))
	runID, err := r.Start(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Wait()

	run, err := st.GetRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != prospect.RunCompleted {
		t.Errorf("Status = %s, want completed (log: %s)", run.Status, run.ErrorLog)
	}
	if run.TotalProcessed != 6 || run.TotalFound != 2 {
		t.Errorf("counters = %d processed / %d found, want 6 / 2", run.TotalProcessed, run.TotalFound)
	}
	if run.CompletedAt == nil {
		t.Error("CompletedAt not set on terminal run")
	}

	wantStatuses := map[string]prospect.AttemptStatus{
		"a": prospect.AttemptSuccess,
		"b": prospect.AttemptSkippedPrivate,
		"c": prospect.AttemptSuccess,
		"d": prospect.AttemptSuccess,
		"e": prospect.AttemptSkippedPrivate,
		"f": prospect.AttemptSuccess,
	}
	if diff := cmp.Diff(wantStatuses, attemptsByStatus(t, st, runID)); diff != "" {
		t.Errorf("attempt statuses mismatch (-want +got):\n%s", diff)
	}

	prospects, err := st.ProspectsForRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("ProspectsForRun: %v", err)
	}
	var admitted []string
	for _, p := range prospects {
		admitted = append(admitted, p.InstagramUsername)
	}
	sort.Strings(admitted)
	if diff := cmp.Diff([]string{"a", "f"}, admitted); diff != "" {
		t.Errorf("admitted mismatch (-want +got):\n%s", diff)
	}
}

func TestRunStopsAtTarget(t *testing.T) {
	st := testStore(t)
	snapshots := make(map[string]*prospect.Snapshot)
	var handles []string
	for i := range 10 {
		username := fmt.Sprintf("user%02d", i)
		snapshots[username] = snap(username, 5000, "fashion", false)
		handles = append(handles, username)
	}
	resolver := &scriptedResolver{snapshots: snapshots}
	strategy := &fixedStrategy{name: "test", handles: handles}

	cfg := testConfig()
	cfg.TargetCount = 3

	r := New(st, resolver, WithStrategies(strategy))
	runID, err := r.Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Wait()

	run, _ := st.GetRun(context.Background(), runID)
	if run.TotalFound != 3 {
		t.Errorf("TotalFound = %d, want 3", run.TotalFound)
	}
	if run.Status != prospect.RunCompleted {
		t.Errorf("Status = %s, want completed", run.Status)
	}
}

func TestSameHandleAcrossStrategies(t *testing.T) {
	st := testStore(t)
	resolver := &scriptedResolver{snapshots: map[string]*prospect.Snapshot{
		"shared": snap("shared", 5000, "fashion", false),
	}}
	first := &fixedStrategy{name: "search", handles: []string{"shared"}}
	second := &fixedStrategy{name: "geo", handles: []string{"Shared"}}

	cfg := testConfig()
	cfg.TargetCount = 2 // keep going after the first admission

	r := New(st, resolver, WithStrategies(first, second))
	runID, err := r.Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Wait()

	attempts, err := st.AttemptsForRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("AttemptsForRun: %v", err)
	}
	if len(attempts) != 1 {
		t.Errorf("attempts = %d, want 1 (second occurrence pre-filtered)", len(attempts))
	}

	prospects, _ := st.ProspectsForRun(context.Background(), runID)
	if len(prospects) != 1 {
		t.Errorf("prospects = %d, want 1", len(prospects))
	}
}

func TestRejectedHandleNotReprocessed(t *testing.T) {
	st := testStore(t)
	resolver := &scriptedResolver{snapshots: map[string]*prospect.Snapshot{
		"reject": snap("reject", 500, "fashion", false), // below the follower minimum
	}}
	first := &fixedStrategy{name: "search", handles: []string{"reject"}}
	second := &fixedStrategy{name: "geo", handles: []string{"reject"}}

	r := New(st, resolver, WithStrategies(first, second))
	runID, err := r.Start(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Wait()

	// The rejection already has its audit row; the second strategy's
	// emission must be pre-filtered, not re-resolved.
	attempts, err := st.AttemptsForRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("AttemptsForRun: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("attempts = %d, want 1 (rejected handle re-emitted by second strategy)", len(attempts))
	}
	if attempts[0].Status != prospect.AttemptSuccess {
		t.Errorf("Status = %s, want success", attempts[0].Status)
	}
	if attempts[0].Error == "" {
		t.Error("Error empty, want validation reason")
	}

	run, _ := st.GetRun(context.Background(), runID)
	if run.TotalProcessed != 1 {
		t.Errorf("TotalProcessed = %d, want 1", run.TotalProcessed)
	}
}

func TestFailedResolutionDoesNotAbortRun(t *testing.T) {
	st := testStore(t)
	resolver := &scriptedResolver{
		snapshots: map[string]*prospect.Snapshot{
			"good": snap("good", 5000, "fashion", false),
		},
		errs: map[string]error{"broken": fmt.Errorf("connection reset")},
	}
	strategy := &fixedStrategy{name: "test", handles: []string{"broken", "good"}}

	r := New(st, resolver, WithStrategies(strategy))
	runID, err := r.Start(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Wait()

	run, _ := st.GetRun(context.Background(), runID)
	if run.Status != prospect.RunCompleted {
		t.Errorf("Status = %s, want completed", run.Status)
	}

	statuses := attemptsByStatus(t, st, runID)
	want := map[string]prospect.AttemptStatus{
		"broken": prospect.AttemptFailed,
		"good":   prospect.AttemptSuccess,
	}
	if diff := cmp.Diff(want, statuses); diff != "" {
		t.Errorf("attempt statuses mismatch (-want +got):\n%s", diff)
	}
}

func TestCancelObservedAtCandidateBoundary(t *testing.T) {
	st := testStore(t)
	resolver := &scriptedResolver{
		snapshots: map[string]*prospect.Snapshot{
			"first":  snap("first", 5000, "fashion", false),
			"second": snap("second", 5000, "fashion", false),
		},
		gate:      make(chan struct{}),
		resolving: make(chan string, 4),
	}
	strategy := &fixedStrategy{name: "test", handles: []string{"first", "second"}}

	r := New(st, resolver, WithStrategies(strategy))
	runID, err := r.Start(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Wait for the first resolution to be in flight, then cancel.
	<-resolver.resolving
	if err := r.Cancel(context.Background(), runID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(resolver.gate)
	r.Wait()

	run, _ := st.GetRun(context.Background(), runID)
	if run.Status != prospect.RunCancelled {
		t.Errorf("Status = %s, want cancelled", run.Status)
	}

	// The in-flight candidate still produced its attempt row.
	attempts, _ := st.AttemptsForRun(context.Background(), runID)
	if len(attempts) != 1 {
		t.Errorf("attempts = %d, want 1 (in-flight candidate completes, next never starts)", len(attempts))
	}
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	st := testStore(t)
	r := New(st, &scriptedResolver{})

	cfg := testConfig()
	cfg.TargetCount = 0
	if _, err := r.Start(context.Background(), cfg); err == nil {
		t.Error("Start accepted invalid config")
	}
}

func TestProgress(t *testing.T) {
	st := testStore(t)
	resolver := &scriptedResolver{snapshots: map[string]*prospect.Snapshot{
		"a": snap("a", 5000, "fashion", false),
	}}
	strategy := &fixedStrategy{name: "test", handles: []string{"a"}}

	r := New(st, resolver, WithStrategies(strategy))
	runID, err := r.Start(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Wait()

	progress, err := r.Progress(context.Background(), runID)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	want := &Progress{Status: prospect.RunCompleted, TotalProcessed: 1, TotalFound: 1}
	if diff := cmp.Diff(want, progress); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
}

var _ discover.Strategy = (*fixedStrategy)(nil)
