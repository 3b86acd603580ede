package dedupe

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/scoutline-dev/scoutline/pkg/prospect"
)

// fakeFinder reports a fixed set of known identity fields.
type fakeFinder struct {
	known map[string]bool
	calls int
}

func (f *fakeFinder) FindProspectsByIdentity(_ context.Context, fields []string) ([]*prospect.Prospect, error) {
	f.calls++
	for _, field := range fields {
		if f.known[strings.ToLower(field)] {
			return []*prospect.Prospect{{ID: "existing"}}, nil
		}
	}
	return nil, nil
}

func TestPreFilter(t *testing.T) {
	finder := &fakeFinder{known: map[string]bool{"instagram:known": true}}
	c := New(finder, nil)

	handles := []prospect.Handle{
		{Platform: prospect.Instagram, Username: "fresh", Region: "CZ"},
		{Platform: prospect.Instagram, Username: "Known", Region: "CZ"},
	}

	got, err := c.PreFilter(context.Background(), handles)
	if err != nil {
		t.Fatalf("PreFilter: %v", err)
	}
	want := handles[:1]
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PreFilter mismatch (-want +got):\n%s", diff)
	}
}

func TestPreFilterCachesKnownHandles(t *testing.T) {
	finder := &fakeFinder{known: map[string]bool{"instagram:known": true}}
	c := New(finder, nil)

	handles := []prospect.Handle{{Platform: prospect.Instagram, Username: "known"}}
	for range 2 {
		if _, err := c.PreFilter(context.Background(), handles); err != nil {
			t.Fatalf("PreFilter: %v", err)
		}
	}
	if finder.calls != 1 {
		t.Errorf("store lookups = %d, want 1 (second batch served from seen set)", finder.calls)
	}
}

func TestIsDuplicateAgainstStore(t *testing.T) {
	finder := &fakeFinder{known: map[string]bool{"email:jane@example.com": true}}
	c := New(finder, nil)

	s := &prospect.Snapshot{
		Platform: prospect.Instagram,
		Username: "freshhandle",
		Bio:      "bookings: jane@example.com",
	}
	dup, err := c.IsDuplicate(context.Background(), s)
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if !dup {
		t.Error("IsDuplicate = false, want true on email match")
	}
}

func TestAdmitVisibleToNextCheck(t *testing.T) {
	c := New(&fakeFinder{}, nil)

	first := &prospect.Snapshot{
		Platform: prospect.Instagram,
		Username: "janedoe",
		URL:      "https://www.instagram.com/janedoe/",
	}
	dup, err := c.IsDuplicate(context.Background(), first)
	if err != nil || dup {
		t.Fatalf("IsDuplicate before admit = %v, %v", dup, err)
	}

	c.Admit(first)

	// Same identity, different case.
	second := &prospect.Snapshot{Platform: prospect.Instagram, Username: "JaneDoe"}
	dup, err = c.IsDuplicate(context.Background(), second)
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if !dup {
		t.Error("IsDuplicate after admit = false, want true")
	}
}

func TestMarkProcessedBlocksReemission(t *testing.T) {
	c := New(&fakeFinder{}, nil)
	h := prospect.Handle{Platform: prospect.Instagram, Username: "rejected", Region: "CZ"}

	got, err := c.PreFilter(context.Background(), []prospect.Handle{h})
	if err != nil {
		t.Fatalf("PreFilter: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("PreFilter kept %d handles, want 1", len(got))
	}

	// Processed but never admitted (failed, private or rule-rejected).
	c.MarkProcessed(h)

	// Re-emission by another strategy, case-variant included.
	again := []prospect.Handle{h, {Platform: prospect.Instagram, Username: "Rejected", Region: "SK"}}
	got, err = c.PreFilter(context.Background(), again)
	if err != nil {
		t.Fatalf("PreFilter: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("PreFilter kept %d handles after MarkProcessed, want 0", len(got))
	}
}

func TestAdmitIdempotent(t *testing.T) {
	c := New(&fakeFinder{}, nil)
	s := &prospect.Snapshot{Platform: prospect.TikTok, Username: "janedoe"}

	c.Admit(s)
	c.Admit(s)

	dup, err := c.IsDuplicate(context.Background(), s)
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if !dup {
		t.Error("IsDuplicate = false, want true")
	}
}

func TestIdentityFields(t *testing.T) {
	s := &prospect.Snapshot{
		Platform: prospect.Instagram,
		Username: "JaneDoe",
		URL:      "https://www.instagram.com/JaneDoe/",
		Bio:      "Contact me: Jane.Doe@Example.com 💌",
	}

	want := []string{
		"instagram:janedoe",
		"url:https://www.instagram.com/janedoe/",
		"email:jane.doe@example.com",
	}
	if diff := cmp.Diff(want, IdentityFields(s)); diff != "" {
		t.Errorf("IdentityFields mismatch (-want +got):\n%s", diff)
	}
}
