// Package freshness derives the human-facing freshness labels shown next to a
// rate snapshot. Everything here is pure and is recomputed on every render.
package freshness

import (
	"fmt"
	"time"

	"github.com/dalfonso89/ratewatch/internal/models"
)

// UnknownLabel is shown for a missing timestamp or an unrecognized tag
const UnknownLabel = "Unknown"

// ElapsedLabel describes how long ago lastUpdated was, relative to now.
// Each bucket includes its lower bound: exactly 30s is "30s ago".
func ElapsedLabel(now, lastUpdated time.Time) string {
	if lastUpdated.IsZero() {
		return UnknownLabel
	}

	seconds := int64(now.Sub(lastUpdated) / time.Second)
	minutes := seconds / 60
	hours := minutes / 60

	switch {
	case seconds < 30:
		return "Just now"
	case seconds < 60:
		return fmt.Sprintf("%ds ago", seconds)
	case minutes < 60:
		return fmt.Sprintf("%d min ago", minutes)
	case hours < 24:
		return fmt.Sprintf("%dh ago", hours)
	default:
		return "Over a day ago"
	}
}

// Label maps the backend's freshness tag to its display text
func Label(tag models.FreshnessTag) string {
	switch tag {
	case models.FreshnessFresh:
		return "Live Data"
	case models.FreshnessRecent:
		return "Recent Data"
	case models.FreshnessStale:
		return "Outdated"
	default:
		return UnknownLabel
	}
}

// SourcesLabel renders "{used}/{available} sources"
func SourcesLabel(used, available int) string {
	return fmt.Sprintf("%d/%d sources", used, available)
}

// Indicator is everything the freshness line of a view shows
type Indicator struct {
	Tag         models.FreshnessTag `json:"freshness"`
	Label       string              `json:"freshness_label"`
	Elapsed     string              `json:"elapsed_label"`
	Sources     string              `json:"sources_label"`
	Cached      bool                `json:"is_cached"`
	CacheAge    string              `json:"cache_age,omitempty"`
	LastUpdated time.Time           `json:"last_updated"`
}

// Summarize derives the indicator for snapshot as of now
func Summarize(now time.Time, snapshot models.RateSnapshot) Indicator {
	indicator := Indicator{
		Tag:         snapshot.Freshness,
		Label:       Label(snapshot.Freshness),
		Elapsed:     ElapsedLabel(now, snapshot.LastUpdated),
		Sources:     SourcesLabel(snapshot.SourcesUsed, snapshot.SourcesAvailable),
		Cached:      snapshot.IsCached,
		LastUpdated: snapshot.LastUpdated,
	}
	if snapshot.IsCached && snapshot.CacheAgeSeconds != nil {
		indicator.CacheAge = (time.Duration(*snapshot.CacheAgeSeconds) * time.Second).String()
	}
	return indicator
}
