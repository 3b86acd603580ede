// Engagement estimation from follower count.
//
// These figures are placeholders derived from fixed heuristic bands, not
// measured metrics. Smaller accounts tend to have proportionally higher
// engagement, so the rate decreases as the audience grows.

package prospect

// EngagementEstimate holds estimated interaction figures for a follower count.
type EngagementEstimate struct {
	Rate        float64
	AvgLikes    int
	AvgComments int
}

// engagement bands: upper follower bound (exclusive) -> estimated rate.
var engagementBands = []struct {
	upTo int
	rate float64
}{
	{5_000, 0.08},
	{20_000, 0.05},
	{100_000, 0.03},
	{1_000_000, 0.02},
}

const defaultEngagementRate = 0.012

// EstimateEngagement derives engagement figures from a follower count.
// Comments are assumed to run at roughly 2% of likes.
func EstimateEngagement(followers int) EngagementEstimate {
	if followers <= 0 {
		return EngagementEstimate{}
	}

	rate := defaultEngagementRate
	for _, band := range engagementBands {
		if followers < band.upTo {
			rate = band.rate
			break
		}
	}

	likes := int(float64(followers) * rate)
	comments := likes / 50
	return EngagementEstimate{Rate: rate, AvgLikes: likes, AvgComments: comments}
}

// FromSnapshot folds a resolved snapshot into a new prospect row.
// The caller assigns the ID and any extracted email afterwards.
func FromSnapshot(s *Snapshot, region, runID string) *Prospect {
	est := EstimateEngagement(s.Followers)
	p := &Prospect{
		Name:           s.Name,
		Bio:            s.Bio,
		AvatarURL:      s.AvatarURL,
		Region:         region,
		TotalFollowers: s.Followers,
		EngagementRate: est.Rate,
		AvgLikes:       est.AvgLikes,
		AvgComments:    est.AvgComments,
		Status:         StatusPending,
		RunID:          runID,
		Data:           s.Data,
	}

	url := s.URL
	if url == "" {
		url = ProfileURL(s.Platform, s.Username)
	}
	switch s.Platform {
	case Instagram:
		p.InstagramUsername = s.Username
		p.InstagramURL = url
	case TikTok:
		p.TikTokUsername = s.Username
		p.TikTokURL = url
	case YouTube:
		p.YouTubeChannel = s.Username
		p.YouTubeURL = url
	}
	return p
}
