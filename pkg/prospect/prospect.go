// Package prospect defines the common types for prospect discovery and admission.
package prospect

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common errors returned by platform and resolver packages.
var (
	ErrAuthRequired    = errors.New("authentication required")
	ErrProfileNotFound = errors.New("profile not found")
	ErrRateLimited     = errors.New("rate limited")
	ErrPrivateAccount  = errors.New("private account")
)

// Platform identifies a supported social network.
type Platform string

// Supported platforms.
const (
	Instagram Platform = "instagram"
	TikTok    Platform = "tiktok"
	YouTube   Platform = "youtube"
)

// RunStatus is the lifecycle state of a discovery run.
type RunStatus string

// Run lifecycle states. A run is terminal once it reaches
// completed, failed or cancelled.
const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// ProspectStatus is the review lifecycle state of a stored prospect.
type ProspectStatus string

// Prospect review states. Mutation past "pending" happens in
// downstream review workflows, not in this engine.
const (
	StatusPending  ProspectStatus = "pending"
	StatusApproved ProspectStatus = "approved"
	StatusRejected ProspectStatus = "rejected"
	StatusMerged   ProspectStatus = "merged"
)

// AttemptStatus classifies the outcome of processing one candidate handle.
type AttemptStatus string

// Attempt outcomes. Validation rejections and duplicates are recorded
// as success with no resulting prospect.
const (
	AttemptSuccess        AttemptStatus = "success"
	AttemptFailed         AttemptStatus = "failed"
	AttemptNotFound       AttemptStatus = "not_found"
	AttemptSkippedPrivate AttemptStatus = "skipped_private"
)

// RunConfig is the immutable input to a run.
type RunConfig struct {
	Regions         []string   `json:"regions"`
	MinFollowers    int        `json:"min_followers"`
	MaxFollowers    int        `json:"max_followers"`
	TargetCount     int        `json:"target_count"`
	Platforms       []Platform `json:"platforms"`
	Hashtags        []string   `json:"hashtags,omitempty"`
	Keywords        []string   `json:"keywords,omitempty"`
	ExcludeKeywords []string   `json:"exclude_keywords,omitempty"`
}

// Validate checks the config invariants before a run is created.
func (c *RunConfig) Validate() error {
	if len(c.Regions) == 0 {
		return errors.New("at least one region is required")
	}
	if c.MinFollowers < 0 {
		return errors.New("min followers must not be negative")
	}
	if c.MinFollowers > c.MaxFollowers {
		return fmt.Errorf("min followers %d exceeds max followers %d", c.MinFollowers, c.MaxFollowers)
	}
	if c.TargetCount <= 0 {
		return errors.New("target count must be positive")
	}
	if len(c.Platforms) == 0 {
		return errors.New("at least one platform is required")
	}
	for _, p := range c.Platforms {
		switch p {
		case Instagram, TikTok, YouTube:
		default:
			return fmt.Errorf("unsupported platform: %s", p)
		}
	}
	return nil
}

// Run is the mutable state of one execution. Only the run controller
// mutates it; observers read it through the store.
type Run struct {
	ID             string     `json:"id"`
	Config         RunConfig  `json:"config"`
	Status         RunStatus  `json:"status"`
	TotalProcessed int        `json:"total_processed"`
	TotalFound     int        `json:"total_found"`
	ErrorLog       string     `json:"error_log,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Handle is an ephemeral candidate produced by a discovery strategy.
// It is never persisted directly; every handle that enters the pipeline
// leaves exactly one Attempt behind.
type Handle struct {
	Platform Platform `json:"platform"`
	Username string   `json:"username"`
	Region   string   `json:"region"`
}

// Key returns the canonical identity key for in-run deduplication.
func (h Handle) Key() string {
	return string(h.Platform) + ":" + strings.ToLower(h.Username)
}

// Snapshot is the resolved, normalized data for one handle at one point
// in time. It is consumed by validation and either discarded or folded
// into a Prospect.
type Snapshot struct {
	Platform  Platform     `json:"platform"`
	Username  string       `json:"username"`
	URL       string       `json:"url"`
	Name      string       `json:"name"`
	Bio       string       `json:"bio,omitempty"`
	AvatarURL string       `json:"avatar_url,omitempty"`
	Followers int          `json:"followers"`
	Following int          `json:"following,omitempty"`
	Posts     int          `json:"posts,omitempty"`
	Verified  bool         `json:"verified,omitempty"`
	Private   bool         `json:"private,omitempty"`
	Data      PlatformData `json:"-"`
}

// Prospect is one persisted row per admitted unique identity.
type Prospect struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Email             string         `json:"email,omitempty"`
	Bio               string         `json:"bio,omitempty"`
	AvatarURL         string         `json:"avatar_url,omitempty"`
	Region            string         `json:"region"`
	TotalFollowers    int            `json:"total_followers"`
	EngagementRate    float64        `json:"engagement_rate"`
	AvgLikes          int            `json:"avg_likes"`
	AvgComments       int            `json:"avg_comments"`
	InstagramUsername string         `json:"instagram_username,omitempty"`
	InstagramURL      string         `json:"instagram_url,omitempty"`
	TikTokUsername    string         `json:"tiktok_username,omitempty"`
	TikTokURL         string         `json:"tiktok_url,omitempty"`
	YouTubeChannel    string         `json:"youtube_channel,omitempty"`
	YouTubeURL        string         `json:"youtube_url,omitempty"`
	Status            ProspectStatus `json:"status"`
	RunID             string         `json:"run_id"`
	Data              PlatformData   `json:"-"`
	CreatedAt         time.Time      `json:"created_at"`
}

// IdentityFields returns the canonical identity keys carried by this
// prospect: one per non-empty platform field plus the email. Keys are
// lowercase so equality is case-insensitive.
func (p *Prospect) IdentityFields() []string {
	var fields []string
	add := func(kind, value string) {
		if value != "" {
			fields = append(fields, kind+":"+strings.ToLower(value))
		}
	}
	add("instagram", p.InstagramUsername)
	add("url", p.InstagramURL)
	add("tiktok", p.TikTokUsername)
	add("url", p.TikTokURL)
	add("youtube", p.YouTubeChannel)
	add("url", p.YouTubeURL)
	add("email", p.Email)
	return fields
}

// Attempt is one append-only audit row per candidate handle processed.
// Attempts are never updated after creation.
type Attempt struct {
	ID         string        `json:"id"`
	RunID      string        `json:"run_id"`
	Platform   Platform      `json:"platform"`
	Username   string        `json:"username"`
	ProfileURL string        `json:"profile_url"`
	Region     string        `json:"region"`
	Status     AttemptStatus `json:"status"`
	Error      string        `json:"error,omitempty"`
	RawPayload []byte        `json:"raw_payload,omitempty"`
	ProspectID string        `json:"prospect_id,omitempty"`
	Duration   time.Duration `json:"duration"`
	CreatedAt  time.Time     `json:"created_at"`
}

// ProfileURL builds the canonical profile URL for a platform handle.
func ProfileURL(platform Platform, username string) string {
	switch platform {
	case Instagram:
		return "https://www.instagram.com/" + username + "/"
	case TikTok:
		return "https://www.tiktok.com/@" + username
	case YouTube:
		return "https://www.youtube.com/@" + username
	default:
		return ""
	}
}
