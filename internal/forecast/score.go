package forecast

import (
	"math"
	"time"
)

// minHoursSincePost floors a meme's age so brand-new or future-dated memes
// score large but finite.
const minHoursSincePost = 0.1

// commentWeight is how many upvote-equivalents one comment counts for.
const commentWeight = 2

// Score computes the virality score of m at now: weighted engagement per
// hour of age, rounded to 2 decimals. Memes without a creation time score 0.
func Score(m Meme, now time.Time) float64 {
	if m.CreatedUTC == 0 {
		return 0
	}

	hours := (epochSeconds(now) - m.CreatedUTC) / 3600
	if hours < minHoursSincePost {
		hours = minHoursSincePost
	}

	raw := m.Upvotes*m.UpvoteRatio + m.Comments*commentWeight
	return round2(raw / hours)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
