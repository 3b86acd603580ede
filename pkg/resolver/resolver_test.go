package resolver

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/scoutline-dev/scoutline/pkg/pacing"
	"github.com/scoutline-dev/scoutline/pkg/prospect"
)

func noSleep() *pacing.Group {
	return pacing.NewGroup(pacing.WithSleep(func(context.Context, time.Duration) error {
		return nil
	}))
}

// fakeFetcher returns queued results, one per call.
type fakeFetcher struct {
	snapshots []*prospect.Snapshot
	errs      []error
	calls     int
}

func (f *fakeFetcher) Fetch(context.Context, string) (*prospect.Snapshot, error) {
	i := f.calls
	f.calls++
	if i >= len(f.errs) {
		i = len(f.errs) - 1
	}
	return f.snapshots[i], f.errs[i]
}

type fakeRenderer struct {
	html  string
	err   error
	calls int
}

func (f *fakeRenderer) HTML(context.Context, string) (string, error) {
	f.calls++
	return f.html, f.err
}

func snapshotFor(username string) *prospect.Snapshot {
	return &prospect.Snapshot{
		Platform:  prospect.Instagram,
		Username:  username,
		Name:      "Jane Doe",
		Followers: 5000,
	}
}

func TestResolveStructuredFirst(t *testing.T) {
	fetcher := &fakeFetcher{
		snapshots: []*prospect.Snapshot{snapshotFor("janedoe")},
		errs:      []error{nil},
	}
	renderer := &fakeRenderer{}
	r := New(
		WithFetcher(prospect.Instagram, fetcher),
		WithRenderer(renderer),
		WithPacing(noSleep()),
	)

	s, err := r.Resolve(context.Background(), prospect.Instagram, "janedoe")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.Username != "janedoe" {
		t.Errorf("Username = %q", s.Username)
	}
	if renderer.calls != 0 {
		t.Errorf("renderer called %d times, want 0 when structured fetch succeeds", renderer.calls)
	}
}

func TestResolveRetriesTransientErrors(t *testing.T) {
	fetcher := &fakeFetcher{
		snapshots: []*prospect.Snapshot{nil, snapshotFor("janedoe")},
		errs:      []error{errors.New("connection reset"), nil},
	}
	r := New(WithFetcher(prospect.Instagram, fetcher), WithPacing(noSleep()))

	s, err := r.Resolve(context.Background(), prospect.Instagram, "janedoe")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s == nil || fetcher.calls != 2 {
		t.Errorf("calls = %d, want 2", fetcher.calls)
	}
}

func TestResolveNotFoundIsPermanent(t *testing.T) {
	fetcher := &fakeFetcher{
		snapshots: []*prospect.Snapshot{nil},
		errs:      []error{prospect.ErrProfileNotFound},
	}
	r := New(WithFetcher(prospect.Instagram, fetcher), WithPacing(noSleep()))

	_, err := r.Resolve(context.Background(), prospect.Instagram, "ghost")
	if !errors.Is(err, prospect.ErrProfileNotFound) {
		t.Fatalf("err = %v, want ErrProfileNotFound", err)
	}
	if fetcher.calls != 1 {
		t.Errorf("calls = %d, want 1 (not found is never retried)", fetcher.calls)
	}
}

func TestResolveGivesUpAfterCeiling(t *testing.T) {
	fetcher := &fakeFetcher{
		snapshots: []*prospect.Snapshot{nil},
		errs:      []error{errors.New("connection reset")},
	}
	r := New(WithFetcher(prospect.Instagram, fetcher), WithPacing(noSleep()))

	_, err := r.Resolve(context.Background(), prospect.Instagram, "janedoe")
	if err == nil {
		t.Fatal("Resolve = nil, want error after retry ceiling")
	}
	if fetcher.calls != attemptCeiling {
		t.Errorf("calls = %d, want %d", fetcher.calls, attemptCeiling)
	}
}

func TestResolveRenderFallback(t *testing.T) {
	fetcher := &fakeFetcher{
		snapshots: []*prospect.Snapshot{nil},
		errs:      []error{errors.New("no rehydration data")},
	}
	html := `<html><head>
		<title>Jane Doe (@janedoe) &bull; Instagram photos and videos</title>
		<meta property="og:description" content="15K Followers, 300 Following, 512 Posts - Prague fashion">
	</head><body>` + strings.Repeat("instagram profile content ", 20) + `</body></html>`
	renderer := &fakeRenderer{html: html}

	r := New(
		WithFetcher(prospect.Instagram, fetcher),
		WithRenderer(renderer),
		WithPacing(noSleep()),
	)

	s, err := r.Resolve(context.Background(), prospect.Instagram, "janedoe")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.Followers != 15000 {
		t.Errorf("Followers = %d, want 15000 from rendered page", s.Followers)
	}
	if renderer.calls == 0 {
		t.Error("renderer never called")
	}
}

func TestIsPrivateUsesFetcherFlag(t *testing.T) {
	private := snapshotFor("janedoe")
	private.Private = true
	fetcher := &fakeFetcher{snapshots: []*prospect.Snapshot{private}, errs: []error{nil}}
	r := New(WithFetcher(prospect.Instagram, fetcher), WithPacing(noSleep()))

	got, err := r.IsPrivate(context.Background(), prospect.Instagram, "janedoe")
	if err != nil {
		t.Fatalf("IsPrivate: %v", err)
	}
	if !got {
		t.Error("IsPrivate = false, want true")
	}
}

func TestQuickValidate(t *testing.T) {
	profileBody := strings.Repeat("profile text ", 30)
	tests := []struct {
		name     string
		html     string
		platform prospect.Platform
		wantErr  error
	}{
		{
			"valid profile page",
			"<html><body>instagram " + profileBody + "</body></html>",
			prospect.Instagram,
			nil,
		},
		{
			"error signature",
			"<html><body>Sorry, this page isn't available. instagram</body></html>",
			prospect.Instagram,
			prospect.ErrProfileNotFound,
		},
		{
			"throttle signature",
			"<html><body>Too many requests. instagram " + profileBody + "</body></html>",
			prospect.Instagram,
			prospect.ErrRateLimited,
		},
		{
			"no platform markers",
			"<html><body>" + profileBody + "</body></html>",
			prospect.TikTok,
			prospect.ErrProfileNotFound,
		},
		{
			"near-empty body",
			"<html><body>tiktok</body></html>",
			prospect.TikTok,
			prospect.ErrProfileNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := QuickValidate(tt.html, tt.platform)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("QuickValidate = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("QuickValidate = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
