// Platform-specific payloads, modeled as a tagged union and serialized
// only at the persistence boundary.

package prospect

import (
	"encoding/json"
	"fmt"
)

// PlatformData carries the platform-specific remainder of a resolved
// profile that does not fit the normalized Snapshot fields.
type PlatformData interface {
	PlatformName() Platform
}

// InstagramData holds Instagram-specific profile details.
type InstagramData struct {
	UserID       string   `json:"user_id,omitempty"`
	Category     string   `json:"category,omitempty"`
	ExternalURL  string   `json:"external_url,omitempty"`
	BioLinks     []string `json:"bio_links,omitempty"`
	IsBusiness   bool     `json:"is_business,omitempty"`
	OnThreads    bool     `json:"on_threads,omitempty"`
	ProfilePicHD string   `json:"profile_pic_hd,omitempty"`
}

// PlatformName implements PlatformData.
func (InstagramData) PlatformName() Platform { return Instagram }

// TikTokData holds TikTok-specific profile details.
type TikTokData struct {
	UserID     string `json:"user_id,omitempty"`
	Hearts     int    `json:"hearts,omitempty"`
	Videos     int    `json:"videos,omitempty"`
	Commercial bool   `json:"commercial,omitempty"`
}

// PlatformName implements PlatformData.
func (TikTokData) PlatformName() Platform { return TikTok }

// YouTubeData holds YouTube-specific channel details.
type YouTubeData struct {
	ChannelID string `json:"channel_id,omitempty"`
	Videos    int    `json:"videos,omitempty"`
	Country   string `json:"country,omitempty"`
}

// PlatformName implements PlatformData.
func (YouTubeData) PlatformName() Platform { return YouTube }

// MarshalData serializes platform data to JSON for storage.
// A nil value marshals to empty bytes.
func MarshalData(d PlatformData) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal %s data: %w", d.PlatformName(), err)
	}
	return b, nil
}

// UnmarshalData deserializes stored platform data keyed by platform.
func UnmarshalData(platform Platform, raw []byte) (PlatformData, error) {
	if len(raw) == 0 {
		return nil, nil //nolint:nilnil // absent data is not an error
	}
	var (
		d   PlatformData
		err error
	)
	switch platform {
	case Instagram:
		var v InstagramData
		err = json.Unmarshal(raw, &v)
		d = v
	case TikTok:
		var v TikTokData
		err = json.Unmarshal(raw, &v)
		d = v
	case YouTube:
		var v YouTubeData
		err = json.Unmarshal(raw, &v)
		d = v
	default:
		return nil, fmt.Errorf("unsupported platform: %s", platform)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s data: %w", platform, err)
	}
	return d, nil
}
