package forecast

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/lazypower/trendcast/internal/store"
)

// Collections used by the forecast pass.
const (
	CollectionMemes     = "memes"
	CollectionAlerts    = "alerts"
	CollectionSnapshots = "trending_snapshots"
)

const untitled = "untitled"

// Meme is the typed view of one stored meme document. Absent fields take
// their neutral defaults: counts 0, UpvoteRatio 1.0, ForecastScore 0,
// LulzScore and VibeShift 0. CreatedUTC is 0 when the document has no
// usable creation time, which makes the meme unscoreable.
type Meme struct {
	ID            string
	CreatedUTC    float64
	Upvotes       float64
	UpvoteRatio   float64
	Comments      float64
	ForecastScore float64
	Title         string
	Name          string

	// Carried into snapshots as-is.
	LulzScore any
	VibeShift any
	ImageURL  any
	Link      any
}

// FromDocument builds a Meme from a stored document, attaching the
// document's id.
func FromDocument(d store.Document) Meme {
	f := d.Fields
	m := Meme{
		ID:          d.ID,
		UpvoteRatio: 1.0,
		LulzScore:   0,
		VibeShift:   0,
	}

	if v, ok := number(f["created_utc"]); ok {
		m.CreatedUTC = v
	}
	if v, ok := number(f["upvotes"]); ok {
		m.Upvotes = v
	}
	if v, ok := number(f["upvote_ratio"]); ok {
		m.UpvoteRatio = v
	}
	if v, ok := number(f["comments"]); ok {
		m.Comments = v
	}
	if v, ok := number(f["forecastScore"]); ok {
		m.ForecastScore = v
	}
	m.Title = label(f["title"])
	m.Name = label(f["name"])

	if v, ok := f["lulzScore"]; ok {
		m.LulzScore = v
	}
	if v, ok := f["vibeShift"]; ok {
		m.VibeShift = v
	}
	m.ImageURL = f["image_url"]
	m.Link = f["link"]
	return m
}

// Label returns the display title: title, else name, else "untitled".
func (m Meme) Label() string {
	if m.Title != "" {
		return m.Title
	}
	if m.Name != "" {
		return m.Name
	}
	return untitled
}

// label renders a stored title or name. Empty, zero, false and null values
// yield "" so Label falls through to the next candidate.
func label(v any) string {
	switch l := v.(type) {
	case nil:
		return ""
	case string:
		return l
	case bool:
		if !l {
			return ""
		}
		return "true"
	}
	if n, ok := number(v); ok {
		if n == 0 {
			return ""
		}
		return formatNumber(n)
	}
	return fmt.Sprint(v)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// formatNumber renders a score the shortest way that round-trips:
// 40 → "40", 120.5 → "120.5".
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
